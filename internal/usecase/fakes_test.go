package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"insurance-bot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentText struct {
	chatID   int64
	text     string
	keyboard [][]domain.Button
}

type sentDocument struct {
	chatID   int64
	path     string
	filename string
	caption  string
	content  string
}

type fakeTransport struct {
	mu          sync.Mutex
	texts       []sentText
	docs        []sentDocument
	downloads   []string
	callbacks   []string
	downloadErr error
	documentErr error
	sendErr     error
}

func (f *fakeTransport) SendText(_ context.Context, chatID int64, text string, keyboard [][]domain.Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, sentText{chatID: chatID, text: text, keyboard: keyboard})
	return f.sendErr
}

func (f *fakeTransport) SendDocument(_ context.Context, chatID int64, path, filename, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.documentErr != nil {
		return f.documentErr
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f.docs = append(f.docs, sentDocument{chatID: chatID, path: path, filename: filename, caption: caption, content: string(raw)})
	return nil
}

// DownloadFile writes the file id itself as the photo content.
func (f *fakeTransport) DownloadFile(_ context.Context, fileID, dest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, dest)
	if f.downloadErr != nil {
		return f.downloadErr
	}
	return os.WriteFile(dest, []byte(fileID), 0o600)
}

func (f *fakeTransport) AnswerCallback(_ context.Context, callbackID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, callbackID)
	return nil
}

func (f *fakeTransport) allTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.texts))
	for _, m := range f.texts {
		out = append(out, m.text)
	}
	return out
}

func (f *fakeTransport) last() sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return sentText{}
	}
	return f.texts[len(f.texts)-1]
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = nil
}

// extractStep scripts one upload → await → extract sequence.
type extractStep struct {
	uploadErr  error
	awaitErr   error
	extractErr error
	ext        *domain.Extraction
}

type fakeExtractor struct {
	mu       sync.Mutex
	steps    []extractStep
	cur      extractStep
	uploads  int
	awaits   int
	extracts int
	kinds    []domain.DocumentKind
	photos   []string
}

func (f *fakeExtractor) Upload(_ context.Context, kind domain.DocumentKind, imagePath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	f.kinds = append(f.kinds, kind)
	raw, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("fake: read image: %w", err)
	}
	f.photos = append(f.photos, string(raw))
	if len(f.steps) == 0 {
		return "", errors.New("fake: no step scripted")
	}
	f.cur, f.steps = f.steps[0], f.steps[1:]
	if f.cur.uploadErr != nil {
		return "", f.cur.uploadErr
	}
	return fmt.Sprintf("job-%d", f.uploads), nil
}

func (f *fakeExtractor) AwaitResult(_ context.Context, _ domain.DocumentKind, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.awaits++
	if f.cur.awaitErr != nil {
		return nil, f.cur.awaitErr
	}
	return []byte(`{"document":{"inference":{"prediction":{}}}}`), nil
}

func (f *fakeExtractor) Extract(_ []byte, _ domain.DocumentKind) (*domain.Extraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extracts++
	return f.cur.ext, f.cur.extractErr
}

func identityExtraction(id domain.IdentityData) *domain.Extraction {
	return &domain.Extraction{Kind: domain.DocumentIdentity, Identity: &id}
}

func vehicleExtraction(v domain.VehicleData) *domain.Extraction {
	return &domain.Extraction{Kind: domain.DocumentVehicle, Vehicle: &v}
}

type memStore struct {
	mu        sync.Mutex
	records   map[string]*domain.ConversationRecord
	inFlight  map[string]int
	overlap   bool
	getErr    error
	saveErr   error
	deleteErr error
	claimErr  error
	claimed   map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		records:  map[string]*domain.ConversationRecord{},
		inFlight: map[string]int{},
		claimed:  map[string]bool{},
	}
}

func (m *memStore) Get(_ context.Context, sessionID string) (*domain.ConversationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight[sessionID]++
	if m.inFlight[sessionID] > 1 {
		m.overlap = true
	}
	if m.getErr != nil {
		m.inFlight[sessionID]--
		return nil, m.getErr
	}
	rec, ok := m.records[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	if rec.Identity != nil {
		id := *rec.Identity
		cp.Identity = &id
	}
	if rec.Vehicle != nil {
		v := *rec.Vehicle
		cp.Vehicle = &v
	}
	return &cp, nil
}

func (m *memStore) Save(_ context.Context, rec *domain.ConversationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight[rec.SessionID]--
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records[rec.SessionID] = rec
	return nil
}

func (m *memStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight[sessionID]--
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.records, sessionID)
	return nil
}

func (m *memStore) Claim(_ context.Context, sessionID string, updateID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return false, m.claimErr
	}
	key := fmt.Sprintf("%s#%d", sessionID, updateID)
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

func (m *memStore) record(sessionID string) *domain.ConversationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[sessionID]
}

type fakeLLM struct {
	mu       sync.Mutex
	answer   string
	err      error
	block    bool
	model    string
	messages []domain.ChatMessage
	calls    int
}

func (f *fakeLLM) Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error) {
	f.mu.Lock()
	f.calls++
	f.model = model
	f.messages = messages
	block := f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.answer, f.err
}

type failingArchive struct{}

func (failingArchive) Save(string, []byte) (string, error) {
	return "", errors.New("disk full")
}
