// Package writer persists a change set to the catalog datastore.
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/catalog-engine/internal/catalog"
	"github.com/zjrosen/catalog-engine/internal/datastore"
	"github.com/zjrosen/catalog-engine/internal/failures"
	"github.com/zjrosen/catalog-engine/internal/log"
)

// DefaultBatchSize is the number of deltas per PATCH request.
const DefaultBatchSize = 250

// ErrDatastoreUnreachable aborts a write phase.
var ErrDatastoreUnreachable = errors.New("write phase aborted: datastore unreachable")

// Datastore is the write side of the catalog datastore.
type Datastore interface {
	PatchModules(ctx context.Context, deltas []*catalog.Delta) error
	DeleteExpires(ctx context.Context, key string) error
	LoadCache(ctx context.Context) error
}

// Result summarizes one write phase.
type Result struct {
	Updated          int
	Deleted          int
	Failed           []*failures.Failure
	CacheInvalidated bool
}

// Writer sends deltas in chunks and isolates records the datastore refuses.
type Writer struct {
	store     Datastore
	repo      failures.Repository
	batchSize int
}

// New creates a writer. repo may be nil, in which case failures are only
// reported in the result.
func New(store Datastore, repo failures.Repository, batchSize int) *Writer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Writer{store: store, repo: repo, batchSize: batchSize}
}

// Write persists cs. An empty change set makes no calls at all. When the
// datastore cannot be reached the phase stops with ErrDatastoreUnreachable
// and the cache is left alone; records written before that stay written and
// count as updated, and every record not fully applied is reported as a
// failure.
func (w *Writer) Write(ctx context.Context, runID string, cs catalog.ChangeSet) (*Result, error) {
	res := &Result{}
	if len(cs) == 0 {
		log.Info(log.CatWriter, "nothing to write", "run_id", runID)
		return res, nil
	}

	err := w.write(ctx, runID, cs, res)
	w.persist(res.Failed)
	if err != nil {
		log.ErrorErr(log.CatWriter, "write phase aborted", err, "run_id", runID,
			"updated", res.Updated, "failed", len(res.Failed))
		return res, fmt.Errorf("%w: %w", ErrDatastoreUnreachable, err)
	}

	if err := w.store.LoadCache(ctx); err != nil {
		log.WarnErr(log.CatWriter, "cache invalidation failed", err, "run_id", runID)
	} else {
		res.CacheInvalidated = true
	}

	log.Info(log.CatWriter, "write phase finished", "run_id", runID,
		"updated", res.Updated, "deleted", res.Deleted, "failed", len(res.Failed))
	return res, nil
}

// abortReason is the failure reason for records left unwritten when the
// datastore goes away mid-phase.
const abortReason = "aborted: datastore unreachable"

// progress tracks each record through its PATCH and DELETE calls.
type progress struct {
	runID   string
	res     *Result
	patched map[string]bool
	settled map[string]bool
}

// done counts a record whose calls all succeeded.
func (p *progress) done(d *catalog.Delta) {
	p.settled[d.Key()] = true
	p.res.Updated++
}

func (p *progress) fail(d *catalog.Delta, payload failurePayload, err error) {
	p.settled[d.Key()] = true
	p.res.Failed = append(p.res.Failed, newFailure(p.runID, d.Key(), payload, err.Error()))
}

// abort records every unsettled delta with whatever part of it was not applied.
func (p *progress) abort(deltas []*catalog.Delta) {
	for _, d := range deltas {
		if p.settled[d.Key()] {
			continue
		}
		payload := failurePayload{Delete: deletes(d)}
		if d.HasPatch() && !p.patched[d.Key()] {
			payload.Patch = d
		}
		p.fail(d, payload, errors.New(abortReason))
	}
}

func (w *Writer) write(ctx context.Context, runID string, cs catalog.ChangeSet, res *Result) error {
	deltas := cs.Deltas()
	p := &progress{
		runID:   runID,
		res:     res,
		patched: make(map[string]bool),
		settled: make(map[string]bool),
	}

	var patches []*catalog.Delta
	for _, d := range deltas {
		if d.HasPatch() {
			patches = append(patches, d)
		}
	}

	for start := 0; start < len(patches); start += w.batchSize {
		chunk := patches[start:min(start+w.batchSize, len(patches))]
		err := w.store.PatchModules(ctx, chunk)
		if err == nil {
			log.Debug(log.CatWriter, "batch written", "size", len(chunk))
			for _, d := range chunk {
				p.patchDone(d)
			}
			continue
		}
		if errors.Is(err, datastore.ErrUnreachable) {
			p.abort(deltas)
			return err
		}

		log.WarnErr(log.CatWriter, "batch rejected, retrying records one by one", err, "size", len(chunk))
		for _, d := range chunk {
			err := w.store.PatchModules(ctx, []*catalog.Delta{d})
			switch {
			case err == nil:
				p.patchDone(d)
			case errors.Is(err, datastore.ErrUnreachable):
				p.abort(deltas)
				return err
			default:
				p.fail(d, failurePayload{Patch: d, Delete: deletes(d)}, err)
			}
		}
	}

	for _, d := range deltas {
		if p.settled[d.Key()] || !d.DeleteExpires {
			continue
		}
		err := w.store.DeleteExpires(ctx, d.Key())
		switch {
		case err == nil:
			res.Deleted++
			p.done(d)
		case errors.Is(err, datastore.ErrUnreachable):
			p.abort(deltas)
			return err
		default:
			p.fail(d, failurePayload{Delete: deletes(d)}, err)
		}
	}
	return nil
}

// patchDone marks d's PATCH as applied. A record with no pending delete is
// finished at this point.
func (p *progress) patchDone(d *catalog.Delta) {
	p.patched[d.Key()] = true
	if !d.DeleteExpires {
		p.done(d)
	}
}

// failurePayload is what was not applied: the PATCH body and the fields
// that were due to be deleted.
type failurePayload struct {
	Patch  *catalog.Delta `json:"patch,omitempty"`
	Delete []string       `json:"delete,omitempty"`
}

func deletes(d *catalog.Delta) []string {
	if d.DeleteExpires {
		return []string{"expires"}
	}
	return nil
}

func newFailure(runID, key string, p failurePayload, reason string) *failures.Failure {
	payload, _ := json.Marshal(p)

	log.Warn(log.CatWriter, "record not written", "module", key, "reason", reason)
	return &failures.Failure{
		RunID:     runID,
		Key:       key,
		Kind:      failures.KindWrite,
		Reason:    reason,
		Payload:   string(payload),
		CreatedAt: time.Now(),
	}
}

func (w *Writer) persist(list []*failures.Failure) {
	if w.repo == nil || len(list) == 0 {
		return
	}
	if err := w.repo.Record(list); err != nil {
		log.ErrorErr(log.CatWriter, "failed to record write failures", err, "count", len(list))
	}
}
