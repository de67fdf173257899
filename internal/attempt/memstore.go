package attempt

import (
	"context"
	"sync"
	"time"
)

// MemoryRegistry is an in-memory [Registry]. State is lost on restart; it
// backs deployments without Postgres and all engine tests.
//
// All methods are safe for concurrent use.
type MemoryRegistry struct {
	mu      sync.Mutex
	records map[pairKey]*Record
	now     func() time.Time
}

var _ Registry = (*MemoryRegistry)(nil)

type pairKey struct {
	email string
	role  string
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		records: make(map[pairKey]*Record),
		now:     time.Now,
	}
}

// CanStart implements [Registry].
func (m *MemoryRegistry) CanStart(_ context.Context, candidateEmail, role string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.records[pairKey{candidateEmail, role}]
	return !exists, nil
}

// RegisterStart implements [Registry].
func (m *MemoryRegistry) RegisterStart(_ context.Context, candidateEmail, role, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{candidateEmail, role}
	if _, exists := m.records[key]; exists {
		return ErrAlreadyAttempted
	}
	now := m.now()
	m.records[key] = &Record{
		CandidateEmail: candidateEmail,
		Role:           role,
		SessionID:      sessionID,
		Status:         StatusStarted,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return nil
}

// MarkInProgress implements [Registry].
func (m *MemoryRegistry) MarkInProgress(_ context.Context, candidateEmail, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[pairKey{candidateEmail, role}]
	if !ok {
		return ErrNotFound
	}
	if rec.Status != StatusStarted {
		return nil
	}
	rec.Status = StatusInProgress
	rec.UpdatedAt = m.now()
	return nil
}

// MarkCompleted implements [Registry].
func (m *MemoryRegistry) MarkCompleted(_ context.Context, candidateEmail, role string, score float64, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[pairKey{candidateEmail, role}]
	if !ok {
		return ErrNotFound
	}
	if rec.Status == StatusAbandoned {
		return ErrAbandoned
	}
	rec.Status = StatusCompleted
	rec.Score = score
	rec.Summary = summary
	rec.UpdatedAt = m.now()
	return nil
}

// ReapAbandoned implements [Registry].
func (m *MemoryRegistry) ReapAbandoned(_ context.Context, maxAge time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxAge)
	reaped := 0
	for _, rec := range m.records {
		if rec.Status.Terminal() || rec.UpdatedAt.After(cutoff) {
			continue
		}
		rec.Status = StatusAbandoned
		rec.UpdatedAt = m.now()
		reaped++
	}
	return reaped, nil
}

// Get implements [Registry].
func (m *MemoryRegistry) Get(_ context.Context, candidateEmail, role string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[pairKey{candidateEmail, role}]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}
