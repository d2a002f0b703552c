// Package pinecone talks to the Pinecone data plane REST API.
package pinecone

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/skillmatch/internal/index"
	"github.com/spigell/skillmatch/internal/profile"
	"github.com/spigell/skillmatch/internal/vecmath"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip"
	apiVersion      = "2025-04"
	userAgent       = "spigell/skillmatch"

	// Pinecone caps a single upsert request at 1000 vectors.
	maxUpsertBatch = 1000
)

// Client is bound to one index host. Needs and offers live in separate indices.
type Client struct {
	host      string
	apiKey    string
	namespace string
	kind      profile.Kind
	logger    *zap.Logger

	HTTPClient *http.Client
	UserAgent  string
}

var _ index.Index = (*Client)(nil)

// New creates a client for the index at host, e.g. "https://needs-abc123.svc.pinecone.io".
func New(logger *zap.Logger, kind profile.Kind, host, apiKey, namespace string) (*Client, error) {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		return nil, errors.New("pinecone index host is required")
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("pinecone api key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		host:      host,
		apiKey:    apiKey,
		namespace: namespace,
		kind:      kind,
		logger:    logger,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		UserAgent: userAgent,
	}, nil
}

type metadata struct {
	UserID    string `json:"user_id"`
	Kind      string `json:"kind"`
	SkillID   string `json:"skill_id,omitempty"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
}

type vector struct {
	ID       string    `json:"id"`
	Values   []float32 `json:"values"`
	Metadata metadata  `json:"metadata"`
}

type upsertRequest struct {
	Vectors   []vector `json:"vectors"`
	Namespace string   `json:"namespace,omitempty"`
}

type upsertResponse struct {
	UpsertedCount int `json:"upsertedCount"`
}

type queryRequest struct {
	Vector          []float32      `json:"vector"`
	TopK            int            `json:"topK"`
	Namespace       string         `json:"namespace,omitempty"`
	Filter          map[string]any `json:"filter,omitempty"`
	IncludeValues   bool           `json:"includeValues"`
	IncludeMetadata bool           `json:"includeMetadata"`
}

type queryResponse struct {
	Matches []struct {
		ID       string    `json:"id"`
		Score    float64   `json:"score"`
		Values   []float32 `json:"values"`
		Metadata metadata  `json:"metadata"`
	} `json:"matches"`
}

// Upsert writes entries. Entry ids are random so an existing vector is never overwritten.
func (c *Client) Upsert(ctx context.Context, entries ...index.Entry) error {
	vectors := make([]vector, 0, len(entries))
	for _, e := range entries {
		if e.Kind != c.kind {
			return fmt.Errorf("entry %s has kind %q, index holds %q", e.ID, e.Kind, c.kind)
		}
		if len(e.Embedding) == 0 {
			return fmt.Errorf("entry %s: %w", e.ID, index.ErrEmptyEmbedding)
		}
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		vectors = append(vectors, vector{
			ID:     e.ID,
			Values: e.Embedding,
			Metadata: metadata{
				UserID:    e.OwnerID,
				Kind:      string(e.Kind),
				SkillID:   e.SkillID,
				Text:      e.Text,
				CreatedAt: createdAt.Unix(),
			},
		})
	}

	for start := 0; start < len(vectors); start += maxUpsertBatch {
		end := min(start+maxUpsertBatch, len(vectors))

		var resp upsertResponse
		if err := c.postJSON(ctx, "/vectors/upsert", upsertRequest{Vectors: vectors[start:end], Namespace: c.namespace}, &resp); err != nil {
			return fmt.Errorf("upsert %s vectors: %w", c.kind, err)
		}

		c.logger.Debug("pinecone upsert", zap.String("kind", string(c.kind)), zap.Int("upserted", resp.UpsertedCount))
	}

	return nil
}

// Query runs a nearest-neighbour search, filtered by user_id when OwnerID is set.
func (c *Client) Query(ctx context.Context, q index.Query) ([]index.Match, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	req := queryRequest{
		Vector:          q.Vector,
		TopK:            q.Limit(),
		Namespace:       c.namespace,
		IncludeValues:   true,
		IncludeMetadata: true,
	}
	if q.OwnerID != "" {
		req.Filter = map[string]any{"user_id": map[string]any{"$eq": q.OwnerID}}
	}

	var resp queryResponse
	if err := c.postJSON(ctx, "/query", req, &resp); err != nil {
		return nil, fmt.Errorf("query %s index: %w", c.kind, err)
	}

	matches := make([]index.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		matches = append(matches, index.Match{
			ID:        m.ID,
			OwnerID:   m.Metadata.UserID,
			Score:     m.Score,
			Text:      m.Metadata.Text,
			Embedding: vecmath.Embedding(m.Values),
		})
	}

	return matches, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req = c.setHeaders(req)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.request(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: string(data)}
	}

	if target == nil {
		return nil
	}

	return json.Unmarshal(data, target)
}

func (c *Client) request(req *http.Request) (*http.Response, error) {
	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	return c.HTTPClient.Do(req)
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("X-Pinecone-API-Version", apiVersion)
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)

	return req
}

// StatusError is returned for any non-200 response.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("bad status: %s", e.Status)
	}
	return fmt.Sprintf("bad status: %s: %s", e.Status, strings.TrimSpace(e.Body))
}
