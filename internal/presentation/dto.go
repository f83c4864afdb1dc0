package presentation

import (
	"encoding/json"
	"time"

	"github.com/zjrosen/catalog-engine/internal/engine"
	"github.com/zjrosen/catalog-engine/internal/failures"
)

// SummaryDTO represents a run summary for presentation
type SummaryDTO struct {
	RunID            string `json:"run_id"`
	Mode             string `json:"mode"`
	Processed        int    `json:"processed"`
	Changed          int    `json:"changed"`
	Updated          int    `json:"updated"`
	Deleted          int    `json:"deleted"`
	TrackerFailures  int    `json:"tracker_failures"`
	WriteFailures    int    `json:"write_failures"`
	CacheInvalidated bool   `json:"cache_invalidated"`
	ArtifactPath     string `json:"artifact_path,omitempty"`
	Duration         string `json:"duration"`
	Error            string `json:"error,omitempty"`
}

// FailureDTO represents one failure-log entry. Payload stays raw JSON so it
// can be piped back into the datastore by hand.
type FailureDTO struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id"`
	Module    string          `json:"module"`
	Kind      string          `json:"kind"`
	Reason    string          `json:"reason"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt string          `json:"created_at"`
}

// FromSummary converts an engine summary.
func FromSummary(s *engine.Summary) SummaryDTO {
	return SummaryDTO{
		RunID:            s.RunID,
		Mode:             string(s.Mode),
		Processed:        s.Processed,
		Changed:          s.Changed,
		Updated:          s.Updated,
		Deleted:          s.Deleted,
		TrackerFailures:  s.TrackerFailures,
		WriteFailures:    s.WriteFailures,
		CacheInvalidated: s.CacheInvalidated,
		ArtifactPath:     s.ArtifactPath,
		Duration:         s.Duration.Round(time.Millisecond).String(),
		Error:            s.Error,
	}
}

// FromFailures converts failure-log entries. A payload that is not valid
// JSON is quoted as a string.
func FromFailures(list []*failures.Failure) []FailureDTO {
	out := make([]FailureDTO, 0, len(list))
	for _, f := range list {
		dto := FailureDTO{
			ID:        f.ID,
			RunID:     f.RunID,
			Module:    f.Key,
			Kind:      string(f.Kind),
			Reason:    f.Reason,
			CreatedAt: f.CreatedAt.UTC().Format(time.RFC3339),
		}
		if f.Payload != "" {
			if json.Valid([]byte(f.Payload)) {
				dto.Payload = json.RawMessage(f.Payload)
			} else {
				dto.Payload, _ = json.Marshal(f.Payload)
			}
		}
		out = append(out, dto)
	}
	return out
}
