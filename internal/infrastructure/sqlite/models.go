package sqlite

import (
	"time"

	"github.com/zjrosen/catalog-engine/internal/failures"
)

// FailureModel represents the database row for the failures table.
type FailureModel struct {
	ID        int64
	RunID     string
	ModuleKey string
	Kind      string
	Reason    string
	Payload   *string // nullable
	CreatedAt int64   // Unix timestamp
}

func toFailureModel(f *failures.Failure) *FailureModel {
	m := &FailureModel{
		ID:        f.ID,
		RunID:     f.RunID,
		ModuleKey: f.Key,
		Kind:      string(f.Kind),
		Reason:    f.Reason,
		CreatedAt: f.CreatedAt.Unix(),
	}
	if f.Payload != "" {
		payload := f.Payload
		m.Payload = &payload
	}
	return m
}

func (m *FailureModel) toDomain() *failures.Failure {
	f := &failures.Failure{
		ID:        m.ID,
		RunID:     m.RunID,
		Key:       m.ModuleKey,
		Kind:      failures.Kind(m.Kind),
		Reason:    m.Reason,
		CreatedAt: time.Unix(m.CreatedAt, 0).UTC(),
	}
	if m.Payload != nil {
		f.Payload = *m.Payload
	}
	return f
}
