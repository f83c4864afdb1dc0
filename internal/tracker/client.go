// Package tracker is the client for the document tracker that follows draft
// documents through their lifecycle.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zjrosen/catalog-engine/internal/httpclient"
	"github.com/zjrosen/catalog-engine/internal/log"
)

// ErrNotFound is returned when the tracker does not know the document.
var ErrNotFound = errors.New("document not found")

// Document is the tracker's view of one document.
type Document struct {
	Name           string     `json:"name"`
	MatchedVersion string     `json:"matchedVersion"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	BecameRFC      bool       `json:"becameRFC"`
}

// Client queries the tracker over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the tracker rooted at baseURL.
func NewClient(baseURL string, client *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

// Document fetches the document by name. An empty version asks for the
// current version.
func (c *Client) Document(ctx context.Context, name, version string) (*Document, error) {
	u := c.baseURL + "/doc/" + url.PathEscape(name)
	if version != "" {
		u += "?" + url.Values{"version": {version}}.Encode()
	}

	resp, err := httpclient.Do(ctx, c.http, http.MethodGet, u, nil)
	if err != nil {
		if resp.Status == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode tracker document %s: %w", name, err)
	}
	if doc.Name == "" {
		doc.Name = name
	}
	log.Debug(log.CatTracker, "document fetched", "name", name, "version", doc.MatchedVersion, "rfc", doc.BecameRFC)
	return &doc, nil
}
