package audit

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ondutyhq/sentinel/pkg/incident"
)

// MemoryStore is an in-process AuditAppender for tests and for the
// plan/dry-run code paths, where nothing should touch Postgres.
type MemoryStore struct {
	mu      sync.Mutex
	Issued  map[string]incident.CommandSpec
	Results map[string][]incident.ExecutionRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Issued:  make(map[string]incident.CommandSpec),
		Results: make(map[string][]incident.ExecutionRecord),
	}
}

func (m *MemoryStore) AppendIssued(ctx context.Context, incidentID string, cmd incident.CommandSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := uuid.NewString()
	m.Issued[ref] = cmd
	return ref, nil
}

func (m *MemoryStore) AppendResult(ctx context.Context, ref string, rec incident.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Results[ref] = append(m.Results[ref], rec)
	return nil
}
