package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/skillmatch/internal/ai"
	"github.com/spigell/skillmatch/internal/apperr"
	"github.com/spigell/skillmatch/internal/filtering"
	"github.com/spigell/skillmatch/internal/index/memory"
	"github.com/spigell/skillmatch/internal/matching"
	"github.com/spigell/skillmatch/internal/vecmath"
)

type stubGateway struct {
	err error
}

func (g *stubGateway) Embed(context.Context, string) (vecmath.Embedding, error) {
	if g.err != nil {
		return nil, apperr.E(apperr.CodeEmbeddingUnavailable, "stub", g.err)
	}
	return vecmath.Embedding{1, 0}, nil
}

func (g *stubGateway) Dimension() int { return 2 }

type stubClassifier struct {
	verdict *ai.Verdict
}

func (c *stubClassifier) Classify(context.Context, string) (*ai.Verdict, error) {
	return c.verdict, nil
}

type harness struct {
	handler    http.Handler
	logs       *observer.ObservedLogs
	gateway    *stubGateway
	classifier *stubClassifier
}

func newHarness(t *testing.T, filters filtering.Config) *harness {
	t.Helper()

	h := &harness{
		gateway:    &stubGateway{},
		classifier: &stubClassifier{verdict: &ai.Verdict{Specific: true}},
	}

	engine, err := matching.NewEngine(matching.DefaultConfig(), matching.Deps{
		Gateway:    h.gateway,
		Indices:    memory.NewPair(2),
		Classifier: h.classifier,
	})
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	h.logs = logs
	h.handler = New(engine, filters, zap.New(core))
	return h
}

func (h *harness) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

const skillsBody = `{"user_id":%q,"skills":[{"skill_name":"Go","experience_level":"senior","tools":["pprof"],"description":"backend services"}]}`

func (h *harness) seed(t *testing.T) {
	t.Helper()

	for _, user := range []string{"alice", "bob"} {
		rec, _ := h.do(t, http.MethodPost, "/offers", strings.Replace(skillsBody, "%q", `"`+user+`"`, 1))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec, out := h.do(t, http.MethodPost, "/needs", `{"user_id":"bob","text":"terraform review"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "need", out["kind"])
	assert.NotEmpty(t, out["id"])
}

func TestAlive(t *testing.T) {
	h := newHarness(t, filtering.Config{})

	rec, out := h.do(t, http.MethodGet, "/", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ALIVE", out["message"])
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestOffersReturnEntries(t *testing.T) {
	h := newHarness(t, filtering.Config{})

	rec, out := h.do(t, http.MethodPost, "/offers", strings.Replace(skillsBody, "%q", `"alice"`, 1))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	entries, ok := out["entries"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 1)

	entry := entries[0].(map[string]any)
	assert.Equal(t, "offer", entry["kind"])
	assert.Equal(t, "alice_skill_go", entry["skill_id"])
	assert.Contains(t, entry["text"], "Skill: Go.")
}

func TestMatchesEndToEnd(t *testing.T) {
	h := newHarness(t, filtering.Config{})
	h.seed(t)

	rec, out := h.do(t, http.MethodPost, "/matches", `{"requester_id":"alice","query":"go code review"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, string(matching.StatusMatched), out["status"])
	matches := out["matches"].([]any)
	require.Len(t, matches, 1)

	m := matches[0].(map[string]any)
	assert.Equal(t, "bob", m["candidate_id"])
	assert.Equal(t, "terraform review", m["need_text"])
	assert.InDelta(t, 1.0, m["mutual_score"], 1e-5)
}

func TestMatchesApplyExcludeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "excluded.json")
	require.NoError(t, filtering.AppendToFile(path, filtering.ExcludedCandidate{ID: "bob", RequesterID: "alice"}))

	h := newHarness(t, filtering.Config{ExcludeFile: path})
	h.seed(t)

	rec, out := h.do(t, http.MethodPost, "/matches", `{"requester_id":"alice","query":"go code review"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(matching.StatusMatched), out["status"])
	assert.Empty(t, out["matches"])
}

func TestMatchesAmbiguous(t *testing.T) {
	h := newHarness(t, filtering.Config{})
	h.classifier.verdict = &ai.Verdict{Reason: "too broad", Suggestions: []string{"name a language"}}

	rec, out := h.do(t, http.MethodPost, "/matches", `{"requester_id":"alice","query":"help"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, string(matching.StatusAmbiguous), out["status"])
	assert.Equal(t, "too broad", out["reason"])
	assert.Equal(t, []any{"name a language"}, out["suggestions"])
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		broken bool
		status int
		code   apperr.Code
	}{
		{name: "empty body", path: "/needs", body: "", status: http.StatusBadRequest, code: apperr.CodeInputInvalid},
		{name: "unknown field", path: "/needs", body: `{"user":"bob"}`, status: http.StatusBadRequest, code: apperr.CodeInputInvalid},
		{name: "missing need text", path: "/needs", body: `{"user_id":"bob"}`, status: http.StatusBadRequest, code: apperr.CodeInputInvalid},
		{name: "invalid skill", path: "/offers", body: `{"user_id":"bob","skills":[{"skill_name":"Go"}]}`, status: http.StatusBadRequest, code: apperr.CodeInputInvalid},
		{name: "missing requester", path: "/matches", body: `{"query":"go"}`, status: http.StatusBadRequest, code: apperr.CodeInputInvalid},
		{name: "embedding down", path: "/needs", body: `{"user_id":"bob","text":"go"}`, broken: true, status: http.StatusServiceUnavailable, code: apperr.CodeEmbeddingUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, filtering.Config{})
			if tt.broken {
				h.gateway.err = errors.New("connection refused")
			}

			rec, out := h.do(t, http.MethodPost, tt.path, tt.body)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, string(tt.code), out["code"])
			assert.NotEmpty(t, out["message"])
			assert.NotContains(t, out["message"], "connection refused")
		})
	}
}

func TestMatchesAmbiguousKeepsEmptySuggestions(t *testing.T) {
	h := newHarness(t, filtering.Config{})
	h.classifier.verdict = &ai.Verdict{Reason: "too broad"}

	rec, out := h.do(t, http.MethodPost, "/matches", `{"requester_id":"alice","query":"help"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, string(matching.StatusAmbiguous), out["status"])
	suggestions, ok := out["suggestions"]
	require.True(t, ok, "suggestions missing from %s", rec.Body.String())
	assert.Equal(t, []any{}, suggestions)
}

func TestRequestIDIsEchoedAndLogged(t *testing.T) {
	h := newHarness(t, filtering.Config{})

	req := httptest.NewRequest(http.MethodPost, "/needs", strings.NewReader(`{"user_id":"bob"}`))
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	entries := h.logs.FilterMessage("request rejected").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-42", entries[0].ContextMap()["request_id"])

	rec, _ = h.do(t, http.MethodGet, "/", "")
	generated := rec.Header().Get("X-Request-ID")
	assert.Len(t, generated, 36)
	assert.NotEqual(t, "req-42", generated)
}
