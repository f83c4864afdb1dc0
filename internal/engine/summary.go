package engine

import (
	"time"

	"github.com/zjrosen/catalog-engine/internal/failures"
)

// Summary is what a run reports when it ends.
type Summary struct {
	RunID            string        `json:"run_id"`
	Mode             Mode          `json:"mode"`
	Processed        int           `json:"processed"`
	Changed          int           `json:"changed"`
	Updated          int           `json:"updated"`
	Deleted          int           `json:"deleted"`
	TrackerFailures  int           `json:"tracker_failures"`
	WriteFailures    int           `json:"write_failures"`
	CacheInvalidated bool          `json:"cache_invalidated"`
	ArtifactPath     string        `json:"artifact_path,omitempty"`
	Duration         time.Duration `json:"duration"`
	Error            string        `json:"error,omitempty"`

	// Failures lists everything left unresolved, tracker failures first.
	Failures []*failures.Failure `json:"-"`
}
