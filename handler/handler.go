package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"insurance-bot/internal/domain"
	"insurance-bot/internal/integrations/telegram"
	"insurance-bot/internal/usecase"
)

const (
	secretHeader      = "X-Telegram-Bot-Api-Secret-Token"
	correlationHeader = "X-Correlation-Id"
)

// Error codes returned in the response body.
const (
	codeUnauthorized     = "UNAUTHORIZED"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	codeInvalidUpdate    = "INVALID_UPDATE"
)

// InputHandler consumes one conversation input. *usecase.ConversationService
// satisfies it.
type InputHandler interface {
	Handle(ctx context.Context, in domain.Input) error
}

// Handler receives Telegram webhook calls from API Gateway.
type Handler struct {
	inputs InputHandler
	secret string
	log    *slog.Logger
}

type Option func(*Handler)

// WithSecret requires every call to carry secret in the Telegram secret
// token header. An empty secret disables the check.
func WithSecret(secret string) Option {
	return func(h *Handler) {
		h.secret = strings.TrimSpace(secret)
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

func NewHandler(inputs InputHandler, opts ...Option) (*Handler, error) {
	if inputs == nil {
		return nil, errors.New("handler: input handler must not be nil")
	}
	h := &Handler{inputs: inputs, log: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Handle answers 200 for every update it accepted, including updates the
// conversation service failed on, so Telegram does not redeliver them.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	start := time.Now()
	correlationID := header(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := h.log.With("correlation_id", correlationID)

	if event.HTTPMethod != "" && event.HTTPMethod != http.MethodPost {
		return jsonResponse(http.StatusMethodNotAllowed, correlationID, errorResponse{Error: codeMethodNotAllowed}), nil
	}
	if h.secret != "" && header(event.Headers, secretHeader) != h.secret {
		log.Warn("webhook.unauthorized")
		return jsonResponse(http.StatusUnauthorized, correlationID, errorResponse{Error: codeUnauthorized}), nil
	}

	var update tgbotapi.Update
	if err := json.Unmarshal([]byte(event.Body), &update); err != nil {
		log.Warn("webhook.decode_failed", "err", err)
		return jsonResponse(http.StatusBadRequest, correlationID, errorResponse{Error: codeInvalidUpdate, Reason: "invalid_json"}), nil
	}

	in, ok := telegram.ToInput(update)
	if !ok {
		log.Debug("webhook.update.ignored", "update_id", update.UpdateID)
		return jsonResponse(http.StatusOK, correlationID, okResponse{OK: true}), nil
	}

	if err := h.inputs.Handle(ctx, in); err != nil {
		attrs := []any{"update_id", update.UpdateID, "session_id", in.SessionID, "err", err}
		var ue *usecase.Error
		if errors.As(err, &ue) {
			attrs = append(attrs, "code", string(ue.Code), "reason", ue.Reason)
		}
		log.Error("webhook.update.failed", attrs...)
	}
	log.Info("webhook.update.handled",
		"update_id", update.UpdateID,
		"session_id", in.SessionID,
		"input", in.Kind.String(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return jsonResponse(http.StatusOK, correlationID, okResponse{OK: true}), nil
}

// header looks name up case-insensitively; API Gateway passes headers as
// the client sent them.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func jsonResponse(status int, correlationID string, body any) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(raw),
	}
}
