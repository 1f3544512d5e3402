package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"insurance-bot/internal/domain"
)

func policyRecord() *domain.ConversationRecord {
	rec := domain.NewConversationRecord("42", 42)
	rec.Identity = &domain.IdentityData{
		Surname:        "Іванов",
		GivenName:      "Іван",
		DocumentNumber: "КМ123456",
		BirthDate:      "1990-05-15",
	}
	rec.Vehicle = &domain.VehicleData{
		RegistrationNumber:          "АА1234ВВ",
		Make:                        "Toyota Camry",
		VehicleIdentificationNumber: "JT2BF22K3W0123456",
	}
	return rec
}

func fixedGenerator(llm LLMClient, model string, timeout time.Duration) *PolicyGenerator {
	g := NewPolicyGenerator(llm, model, timeout, discardLogger())
	g.now = func() time.Time { return time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC) }
	g.newNumber = func() string { return "POL-A1B2C3" }
	return g
}

func TestPolicyGenerator_UsesModelText(t *testing.T) {
	llm := &fakeLLM{answer: "\n  Поліс POL-A1B2C3  \n"}
	p := fixedGenerator(llm, "mixtral-8x7b-32768", time.Second).Generate(context.Background(), policyRecord())

	require.True(t, p.Generated)
	require.Equal(t, "Поліс POL-A1B2C3", p.Text)
	require.Equal(t, "POL-A1B2C3", p.Number)
	require.Equal(t, "mixtral-8x7b-32768", llm.model)
	require.Len(t, llm.messages, 2)
	require.Equal(t, "system", llm.messages[0].Role)
	require.Equal(t, "user", llm.messages[1].Role)
	require.Contains(t, llm.messages[1].Content, "1. Номер поліса: POL-A1B2C3")
	require.Contains(t, llm.messages[1].Content, "2. Дата оформлення: 07.03.2025")
	require.Contains(t, llm.messages[1].Content, "3. Страхувальник: Іван Іванов")
	require.Contains(t, llm.messages[1].Content, "7. Номерний знак: АА1234ВВ")
}

func TestPolicyGenerator_FallsBackToTemplate(t *testing.T) {
	cases := []struct {
		name  string
		llm   LLMClient
		model string
	}{
		{name: "model error", llm: &fakeLLM{err: errors.New("503")}, model: "m"},
		{name: "blank answer", llm: &fakeLLM{answer: "   \n"}, model: "m"},
		{name: "deadline", llm: &fakeLLM{block: true}, model: "m"},
		{name: "no client", llm: nil, model: "m"},
		{name: "no model", llm: &fakeLLM{answer: "unused"}, model: " "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := fixedGenerator(tc.llm, tc.model, 20*time.Millisecond).Generate(context.Background(), policyRecord())
			require.False(t, p.Generated)
			require.Contains(t, p.Text, "СТРАХОВИЙ ПОЛІС №POL-A1B2C3")
			require.Contains(t, p.Text, "Дата оформлення: 07.03.2025")
			require.Contains(t, p.Text, "ПІБ: Іван Іванов")
			require.Contains(t, p.Text, "Паспорт: КМ123456")
			require.Contains(t, p.Text, "Марка: Toyota Camry")
			require.Contains(t, p.Text, "VIN: JT2BF22K3W0123456")
			require.Contains(t, p.Text, "- Сума: 100 USD")
		})
	}
}

func TestPolicyGenerator_NilRecordParts(t *testing.T) {
	p := fixedGenerator(nil, "", 0).Generate(context.Background(), domain.NewConversationRecord("1", 1))
	require.Contains(t, p.Text, "СТРАХОВИЙ ПОЛІС №POL-A1B2C3")
}

func TestNewPolicyNumber(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		n := newPolicyNumber()
		require.Regexp(t, `^POL-[0-9A-F]{6}$`, n)
		seen[n] = true
	}
	require.Greater(t, len(seen), 1)
}

func TestPolicyFileNames(t *testing.T) {
	id := &domain.IdentityData{Surname: "Іванов", GivenName: "Іван"}
	p := Policy{Number: "POL-00FF00", IssuedAt: time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)}

	require.Equal(t, "insurance_Іван_Іванов_20250307_POL-00FF00.txt", policyFileName(id, p))
	require.Equal(t, "Страховий_поліс_Іван_Іванов.txt", policyDeliveryName(id))
	require.Equal(t, "Страховий_поліс__.txt", policyDeliveryName(nil))
}
