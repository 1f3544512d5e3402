package usecase

import (
	"context"

	"insurance-bot/internal/domain"
)

// Transport sends messages to a chat and fetches files the user sent.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string, keyboard [][]domain.Button) error
	SendDocument(ctx context.Context, chatID int64, path, filename, caption string) error
	DownloadFile(ctx context.Context, fileID, dest string) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// Extractor runs one document through the OCR provider.
type Extractor interface {
	Upload(ctx context.Context, kind domain.DocumentKind, imagePath string) (string, error)
	AwaitResult(ctx context.Context, kind domain.DocumentKind, jobID string) ([]byte, error)
	Extract(payload []byte, kind domain.DocumentKind) (*domain.Extraction, error)
}

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

// SessionStore holds one live record per session. Get returns nil, nil
// when the session has no record. Claim reports false for an update id
// the session has already accepted.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*domain.ConversationRecord, error)
	Save(ctx context.Context, rec *domain.ConversationRecord) error
	Delete(ctx context.Context, sessionID string) error
	Claim(ctx context.Context, sessionID string, updateID int) (bool, error)
}

// Archiver keeps raw OCR payloads. Failures are logged, never surfaced.
type Archiver interface {
	Save(jobID string, payload []byte) (string, error)
}

// Files is the scratch area for downloaded photos and policy artifacts.
type Files interface {
	TempPath(prefix, ext string) string
	WriteText(name, content string) (string, error)
	Remove(path string) error
}

type PolicyWriter interface {
	Generate(ctx context.Context, rec *domain.ConversationRecord) Policy
}
