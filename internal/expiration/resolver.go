// Package expiration resolves whether the draft behind a module has expired.
package expiration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/zjrosen/catalog-engine/internal/catalog"
	"github.com/zjrosen/catalog-engine/internal/httpclient"
	"github.com/zjrosen/catalog-engine/internal/log"
	"github.com/zjrosen/catalog-engine/internal/tracker"
)

// Tracker looks up documents.
type Tracker interface {
	Document(ctx context.Context, name, version string) (*tracker.Document, error)
}

// Config controls the retry budget for tracker queries.
type Config struct {
	// Attempts is the total number of tries per document.
	Attempts int
	Backoff  time.Duration
}

// Failure is a module whose expiration could not be resolved this run.
type Failure struct {
	Key       string
	Reference string
	Err       error
}

// Result holds resolved expirations by name@revision and the modules that
// were left unchanged because the tracker could not be reached.
type Result struct {
	Expirations map[string]catalog.Expiration
	Failures    []Failure
}

// Resolver computes expiration state for modules.
type Resolver struct {
	tracker Tracker
	cfg     Config
}

// NewResolver creates a resolver.
func NewResolver(t Tracker, cfg Config) *Resolver {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Resolver{tracker: t, cfg: cfg}
}

// Resolve processes modules one at a time.
func (r *Resolver) Resolve(ctx context.Context, mods []catalog.Module) Result {
	res := Result{Expirations: make(map[string]catalog.Expiration, len(mods))}
	for i := range mods {
		m := &mods[i]
		exp, err := r.ResolveOne(ctx, m)
		if err != nil {
			log.WarnErr(log.CatExpiry, "expiration left unresolved", err, "module", m.Key(), "reference", m.Reference)
			res.Failures = append(res.Failures, Failure{Key: m.Key(), Reference: m.Reference, Err: err})
			continue
		}
		res.Expirations[m.Key()] = exp
	}
	return res
}

// ResolveOne returns m's expiration. An error means the tracker could not
// be reached within the retry budget.
func (r *Resolver) ResolveOne(ctx context.Context, m *catalog.Module) (catalog.Expiration, error) {
	if m.MaturityLevel == catalog.MaturityRatified {
		return catalog.Expiration{Expired: catalog.ExpiredFalse}, nil
	}
	if m.Reference == "" {
		return catalog.Expiration{Expired: catalog.ExpiredNotApplicable}, nil
	}

	name, recorded, ok := ParseReference(m.Reference)
	if !ok {
		// No document to ask about, same as having no reference.
		log.Warn(log.CatExpiry, "reference names no tracker document", "module", m.Key(), "reference", m.Reference)
		return catalog.Expiration{Expired: catalog.ExpiredNotApplicable}, nil
	}

	doc, err := backoff.Retry(ctx, func() (*tracker.Document, error) {
		doc, err := r.tracker.Document(ctx, name, recorded)
		if err != nil && !httpclient.Retryable(err) {
			return nil, backoff.Permanent(err)
		}
		if err != nil {
			log.Debug(log.CatExpiry, "tracker query failed, retrying", "document", name, "error", err)
		}
		return doc, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(r.cfg.Backoff)),
		backoff.WithMaxTries(uint(r.cfg.Attempts)),
	)
	if errors.Is(err, tracker.ErrNotFound) {
		return catalog.Expiration{Expired: catalog.ExpiredNotApplicable}, nil
	}
	if err != nil {
		return catalog.Expiration{}, fmt.Errorf("tracker lookup %s: %w", name, err)
	}

	if doc.BecameRFC || (recorded != "" && doc.MatchedVersion != recorded) {
		return catalog.Expiration{Expired: catalog.ExpiredTrue}, nil
	}
	exp := catalog.Expiration{Expired: catalog.ExpiredFalse}
	if doc.ExpiresAt != nil {
		t := doc.ExpiresAt.UTC()
		exp.Expires = &t
	}
	return exp, nil
}
