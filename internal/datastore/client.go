// Package datastore is the client for the remote catalog datastore: the
// read API that seeds a run, the partial-update write API and the cache
// invalidation endpoint.
package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/zjrosen/catalog-engine/internal/catalog"
	"github.com/zjrosen/catalog-engine/internal/httpclient"
	"github.com/zjrosen/catalog-engine/internal/log"
)

// Config configures the client.
type Config struct {
	BaseURL  string
	CacheURL string
	// Attempts is the total number of tries for each call.
	Attempts int
	Backoff  time.Duration
}

// Client talks to the datastore over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a datastore client.
func NewClient(cfg Config, client *http.Client) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.CacheURL = strings.TrimRight(cfg.CacheURL, "/")
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Client{cfg: cfg, http: client}
}

type modulesBody struct {
	Modules []json.RawMessage `json:"modules"`
}

type patchBody struct {
	Modules []*catalog.Delta `json:"modules"`
}

// ListModules returns every record in the catalog.
func (c *Client) ListModules(ctx context.Context) ([]catalog.Module, error) {
	resp, err := c.do(ctx, http.MethodGet, c.cfg.BaseURL+"/modules", nil)
	if err != nil {
		return nil, err
	}

	var body modulesBody
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	mods := make([]catalog.Module, 0, len(body.Modules))
	for _, raw := range body.Modules {
		var m catalog.Module
		if err := json.Unmarshal(raw, &m); err != nil {
			log.Warn(log.CatDatastore, "skipping undecodable record", "error", err)
			continue
		}
		mods = append(mods, m)
	}
	log.Debug(log.CatDatastore, "catalog loaded", "records", len(mods))
	return mods, nil
}

// PatchModules submits a batch of partial updates. An error status that
// survives the retries is returned as a *RejectionError naming the batch's keys.
func (c *Client) PatchModules(ctx context.Context, deltas []*catalog.Delta) error {
	_, err := c.do(ctx, http.MethodPatch, c.cfg.BaseURL+"/modules", patchBody{Modules: deltas})
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		keys := make([]string, len(deltas))
		for i, d := range deltas {
			keys[i] = d.Key()
		}
		return &RejectionError{Status: se.Code, Body: se.Body, Keys: keys}
	}
	return err
}

// DeleteExpires removes the expires field of one record. A record that has
// no such field counts as done.
func (c *Client) DeleteExpires(ctx context.Context, key string) error {
	u := c.cfg.BaseURL + "/modules/" + url.PathEscape(key) + "/expires"
	_, err := c.do(ctx, http.MethodDelete, u, nil)
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		if se.Code == http.StatusNotFound {
			return nil
		}
		return &RejectionError{Status: se.Code, Body: se.Body, Keys: []string{key}}
	}
	return err
}

// LoadCache asks the API layer to reload its cache. It is tried once.
func (c *Client) LoadCache(ctx context.Context) error {
	_, err := httpclient.Do(ctx, c.http, http.MethodPost, c.cfg.CacheURL+"/load-cache", nil)
	return err
}

// do retries transport failures and 5xx answers with a constant backoff.
// A transport failure that outlives the budget is wrapped in ErrUnreachable.
func (c *Client) do(ctx context.Context, method, u string, body any) (httpclient.Response, error) {
	resp, err := backoff.Retry(ctx, func() (httpclient.Response, error) {
		resp, err := httpclient.Do(ctx, c.http, method, u, body)
		if err != nil && !httpclient.Retryable(err) {
			return resp, backoff.Permanent(err)
		}
		if err != nil {
			log.Debug(log.CatDatastore, "request failed, retrying", "method", method, "url", u, "error", err)
		}
		return resp, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.cfg.Backoff)),
		backoff.WithMaxTries(uint(c.cfg.Attempts)),
	)
	var te *httpclient.TransportError
	if errors.As(err, &te) {
		return resp, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return resp, err
}
