package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"insurance-bot/internal/domain"
)

// MemoryStore keeps conversation records in process memory. It serves the
// long-polling runtime, where one process owns every session.
type MemoryStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	records   map[string]memoryEntry
	claims    map[string]time.Time
	lastSweep time.Time
}

// sweepEvery bounds how often Save scans for expired sessions.
const sweepEvery = time.Minute

type memoryEntry struct {
	raw     []byte
	expires time.Time
}

// NewMemoryStore returns an empty store. A non-positive ttl selects 24h.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, records: make(map[string]memoryEntry), claims: make(map[string]time.Time)}
}

// Get returns a copy of the record so callers never share state with the
// store. Expired entries are dropped on read; Save also sweeps abandoned
// sessions periodically.
func (m *MemoryStore) Get(_ context.Context, sessionID string) (*domain.ConversationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.records[sessionID]
	if !ok {
		return nil, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.records, sessionID)
		return nil, nil
	}
	var rec domain.ConversationRecord
	if err := json.Unmarshal(e.raw, &rec); err != nil {
		return nil, fmt.Errorf("repository: decode record: %w", err)
	}
	return &rec, nil
}

func (m *MemoryStore) Save(_ context.Context, rec *domain.ConversationRecord) error {
	if rec == nil || strings.TrimSpace(rec.SessionID) == "" {
		return errors.New("repository: Save: record with session id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	if now.Sub(m.lastSweep) >= sweepEvery {
		m.sweep(now)
	}
	rec.UpdatedAt = now
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("repository: encode record: %w", err)
	}
	m.records[rec.SessionID] = memoryEntry{raw: raw, expires: now.Add(m.ttl)}
	return nil
}

// sweep drops every expired entry. The caller holds m.mu.
func (m *MemoryStore) sweep(now time.Time) {
	for id, e := range m.records {
		if !now.Before(e.expires) {
			delete(m.records, id)
		}
	}
	for k, expires := range m.claims {
		if !now.Before(expires) {
			delete(m.claims, k)
		}
	}
	m.lastSweep = now
}

// Claim reports whether updateID is seen for the first time for sessionID.
func (m *MemoryStore) Claim(_ context.Context, sessionID string, updateID int) (bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return false, errors.New("repository: Claim: session id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	key := sessionID + "#" + strconv.Itoa(updateID)
	if expires, ok := m.claims[key]; ok && now.Before(expires) {
		return false, nil
	}
	m.claims[key] = now.Add(m.ttl)
	return true, nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, sessionID)
	return nil
}

// Len reports the number of stored records, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
