// Package failures holds the durable record of work a run could not finish:
// records the datastore refused and modules whose tracker lookup ran out of
// retries.
package failures

import "time"

// Kind tells what failed.
type Kind string

const (
	// KindWrite is a delta the datastore rejected even when sent alone.
	KindWrite Kind = "write"
	// KindTracker is a module whose expiration could not be resolved.
	KindTracker Kind = "tracker"
)

// Failure is one unresolved unit of work.
type Failure struct {
	ID        int64     `json:"id,omitempty" yaml:"id,omitempty"`
	RunID     string    `json:"run_id" yaml:"run_id"`
	Key       string    `json:"key" yaml:"key"`
	Kind      Kind      `json:"kind" yaml:"kind"`
	Reason    string    `json:"reason" yaml:"reason"`
	Payload   string    `json:"payload,omitempty" yaml:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	RunID string
	Key   string
	Kind  Kind
	// Limit restricts the number of rows returned. If 0, no limit is applied.
	Limit int
}

// Repository persists failures.
type Repository interface {
	// Record stores failures in one transaction and sets their IDs.
	Record(failures []*Failure) error

	// List returns matching failures, newest first.
	List(filter ListFilter) ([]*Failure, error)

	// Clear deletes failures for runID, or every failure when runID is empty.
	// It returns the number of rows removed.
	Clear(runID string) (int64, error)
}
