package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"insurance-bot/internal/domain"
)

const (
	defaultPolicyTimeout = 30 * time.Second
	policyDateLayout     = "02.01.2006"
)

const policySystemPrompt = "Ти - асистент з оформлення страхової документації. " +
	"Створюй офіційні, професійні тексти страхових полісів українською мовою. " +
	"Використовуй стандартні формулювання та юридично коректні терміни. " +
	"Включи всі обов'язкові реквізити страхового поліса."

// Policy is one issued insurance policy.
type Policy struct {
	Number   string
	IssuedAt time.Time
	Text     string
	// Generated is false when the local template was used.
	Generated bool
}

// PolicyGenerator produces policy text through the language model and
// falls back to a local template whenever the model call fails.
type PolicyGenerator struct {
	llm       LLMClient
	model     string
	timeout   time.Duration
	log       *slog.Logger
	now       func() time.Time
	newNumber func() string
}

// NewPolicyGenerator returns a generator. A nil llm always uses the
// template.
func NewPolicyGenerator(llm LLMClient, model string, timeout time.Duration, log *slog.Logger) *PolicyGenerator {
	if timeout <= 0 {
		timeout = defaultPolicyTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &PolicyGenerator{
		llm:       llm,
		model:     strings.TrimSpace(model),
		timeout:   timeout,
		log:       log,
		now:       time.Now,
		newNumber: newPolicyNumber,
	}
}

// newPolicyNumber returns POL- followed by six uppercase hex digits.
func newPolicyNumber() string {
	return "POL-" + strings.ToUpper(uuid.NewString()[:6])
}

// Generate never fails: any model error yields the template text.
func (g *PolicyGenerator) Generate(ctx context.Context, rec *domain.ConversationRecord) Policy {
	p := Policy{Number: g.newNumber(), IssuedAt: g.now()}
	id, v := policyParties(rec)

	if g.llm != nil && g.model != "" {
		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		text, err := g.llm.Chat(callCtx, g.model, []domain.ChatMessage{
			{Role: "system", Content: policySystemPrompt},
			{Role: "user", Content: policyPrompt(p, id, v)},
		})
		cancel()
		elapsed := time.Since(start).Milliseconds()
		switch {
		case err != nil:
			g.log.Warn("policy.llm.failed", "policy", p.Number, "elapsed_ms", elapsed, "err", err)
		case strings.TrimSpace(text) == "":
			g.log.Warn("policy.llm.empty", "policy", p.Number, "elapsed_ms", elapsed)
		default:
			g.log.Info("policy.llm.generated", "policy", p.Number, "elapsed_ms", elapsed)
			p.Text = strings.TrimSpace(text)
			p.Generated = true
			return p
		}
	}

	p.Text = fallbackPolicy(p, id, v)
	return p
}

func policyParties(rec *domain.ConversationRecord) (*domain.IdentityData, *domain.VehicleData) {
	id, v := &domain.IdentityData{}, &domain.VehicleData{}
	if rec != nil && rec.Identity != nil {
		id = rec.Identity
	}
	if rec != nil && rec.Vehicle != nil {
		v = rec.Vehicle
	}
	return id, v
}

func policyPrompt(p Policy, id *domain.IdentityData, v *domain.VehicleData) string {
	var b strings.Builder
	b.WriteString("Створи офіційний текст страхового поліса українською мовою з наступними даними:\n")
	fmt.Fprintf(&b, "1. Номер поліса: %s\n", p.Number)
	fmt.Fprintf(&b, "2. Дата оформлення: %s\n", p.IssuedAt.Format(policyDateLayout))
	fmt.Fprintf(&b, "3. Страхувальник: %s %s\n", id.GivenName, id.Surname)
	fmt.Fprintf(&b, "4. Паспорт: %s\n", id.DocumentNumber)
	fmt.Fprintf(&b, "5. Дата народження: %s\n", id.BirthDate)
	fmt.Fprintf(&b, "6. Автомобіль: %s\n", v.Make)
	fmt.Fprintf(&b, "7. Номерний знак: %s\n", v.RegistrationNumber)
	fmt.Fprintf(&b, "8. VIN: %s\n", v.VehicleIdentificationNumber)
	fmt.Fprintf(&b, "9. Дата реєстрації ТЗ: %s\n", v.RegistrationDate)
	b.WriteString("10. Умови страхування: базове покриття, термін дії 1 рік, вартість 100 USD\n\n")
	b.WriteString("Додай стандартні пункти страхового поліса, підпис та печатку.")
	return b.String()
}

func fallbackPolicy(p Policy, id *domain.IdentityData, v *domain.VehicleData) string {
	date := p.IssuedAt.Format(policyDateLayout)
	var b strings.Builder
	fmt.Fprintf(&b, "СТРАХОВИЙ ПОЛІС №%s\n\n", p.Number)
	fmt.Fprintf(&b, "Дата оформлення: %s\n\n", date)
	b.WriteString("Страхувальник:\n")
	fmt.Fprintf(&b, "ПІБ: %s %s\n", id.GivenName, id.Surname)
	fmt.Fprintf(&b, "Паспорт: %s\n", id.DocumentNumber)
	fmt.Fprintf(&b, "Дата народження: %s\n\n", id.BirthDate)
	b.WriteString("Об'єкт страхування:\n")
	fmt.Fprintf(&b, "Марка: %s\n", v.Make)
	fmt.Fprintf(&b, "Номерний знак: %s\n", v.RegistrationNumber)
	fmt.Fprintf(&b, "VIN: %s\n", v.VehicleIdentificationNumber)
	fmt.Fprintf(&b, "Дата реєстрації: %s\n\n", v.RegistrationDate)
	b.WriteString("Умови страхування:\n")
	b.WriteString("- Вид: Автоцивілка (ОСЦПВ)\n")
	b.WriteString("- Термін дії: 1 рік\n")
	b.WriteString("- Сума: 100 USD\n")
	b.WriteString("- Територія: Україна\n\n")
	b.WriteString("Особливі умови:\n")
	b.WriteString("Страхувальник зобов'язаний повідомляти про будь-які зміни.\n\n")
	fmt.Fprintf(&b, "Дата: %s\n", date)
	b.WriteString("Підпис: ___________\n")
	b.WriteString("Печатка: ___________")
	return b.String()
}

// policyFileName is the on-disk name of the artifact.
func policyFileName(id *domain.IdentityData, p Policy) string {
	given, surname := "", ""
	if id != nil {
		given, surname = id.GivenName, id.Surname
	}
	return fmt.Sprintf("insurance_%s_%s_%s_%s.txt", given, surname, p.IssuedAt.Format("20060102"), p.Number)
}

// policyDeliveryName is the file name the user sees.
func policyDeliveryName(id *domain.IdentityData) string {
	given, surname := "", ""
	if id != nil {
		given, surname = id.GivenName, id.Surname
	}
	return fmt.Sprintf("Страховий_поліс_%s_%s.txt", given, surname)
}
