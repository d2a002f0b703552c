package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/skillmatch/internal/filtering"
	"github.com/spigell/skillmatch/internal/matching"
)

func TestDecodeConfigDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	config, err := decodeConfig(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if config.Matching.TopK != matching.DefaultTopK {
		t.Fatalf("unexpected top-k %d", config.Matching.TopK)
	}
	if config.Matching.Threshold != matching.DefaultThreshold {
		t.Fatalf("unexpected threshold %v", config.Matching.Threshold)
	}
	if config.Matching.Dimension != 768 {
		t.Fatalf("unexpected dimension %d", config.Matching.Dimension)
	}
	if !config.Matching.RecordNeedOnEmpty {
		t.Fatalf("expected need recording to be on by default")
	}
	if config.Index.Backend != "memory" || config.Index.Pinecone == nil {
		t.Fatalf("unexpected index config %+v", config.Index)
	}
	if config.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr %q", config.Server.Addr)
	}
}

func TestDecodeConfigFromYAML(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")

	raw := `
matching:
  top-k: 3
  threshold: 0.6
  index-timeout: 2s
embeddings:
  provider: openai
index:
  backend: pgvector
  database-dsn: postgres://localhost/skillmatch
exclude-file: excluded.json
limit: 10
`
	if err := v.ReadConfig(strings.NewReader(raw)); err != nil {
		t.Fatalf("read config: %v", err)
	}

	config, err := decodeConfig(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := config.matchingConfig()
	if got.TopK != 3 || got.Threshold != 0.6 || got.IndexTimeout != 2*time.Second {
		t.Fatalf("unexpected matching config %+v", got)
	}
	if got.ClassifyTimeout != matching.DefaultConfig().ClassifyTimeout {
		t.Fatalf("expected default classify timeout, got %v", got.ClassifyTimeout)
	}
	if config.Embeddings.Provider != "openai" || config.Index.DatabaseDSN == "" {
		t.Fatalf("unexpected config %+v %+v", config.Embeddings, config.Index)
	}
	if config.ExcludeFile != "excluded.json" || config.Limit != 10 {
		t.Fatalf("unexpected filters %q %d", config.ExcludeFile, config.Limit)
	}
}

func TestDecodeConfigRejectsInvalidValues(t *testing.T) {
	for _, raw := range []string{"matching:\n  dimension: 0\n", "limit: -1\n"} {
		v := viper.New()
		setDefaults(v)
		v.SetConfigType("yaml")
		if err := v.ReadConfig(strings.NewReader(raw)); err != nil {
			t.Fatalf("read config: %v", err)
		}

		if _, err := decodeConfig(v); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestLoadSkillsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "skills.yaml")
	content := `
skills:
  - skill_name: Go
    focus_area: backend
    experience_level: senior
    tools: [pprof, delve]
    description: concurrent services
  - skill_name: Terraform
    experience_level: middle
    description: aws modules
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	skills, err := loadSkillsFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(skills) != 2 {
		t.Fatalf("expected 2 skills, got %d", len(skills))
	}
	if skills[0].Name() != "Go" || len(skills[0].Tools()) != 2 {
		t.Fatalf("unexpected first skill %q %v", skills[0].Name(), skills[0].Tools())
	}

	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, []byte("other: 1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := loadSkillsFile(empty); err == nil {
		t.Fatalf("expected error for file without skills")
	}
}

func testConfig(t *testing.T) *Config {
	t.Helper()

	v := viper.New()
	setDefaults(v)
	config, err := decodeConfig(v)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return config
}

func TestNewIndices(t *testing.T) {
	config := testConfig(t)

	pair, release, err := newIndices(context.Background(), config, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()
	if pair.Needs == nil || pair.Offers == nil {
		t.Fatalf("expected both indices")
	}

	config.Index.Backend = "redis"
	if _, _, err := newIndices(context.Background(), config, zap.NewNop()); err == nil {
		t.Fatalf("expected unsupported backend error")
	}

	config.Index.Backend = "pinecone"
	t.Setenv("PINECONE_API_KEY", "")
	if _, _, err := newIndices(context.Background(), config, zap.NewNop()); err == nil {
		t.Fatalf("expected missing pinecone key error")
	}

	config.Index.Pinecone.APIKey = "pc-key"
	config.Index.Pinecone.NeedsHost = "needs.svc.pinecone.io"
	config.Index.Pinecone.OffersHost = "offers.svc.pinecone.io"
	if _, _, err := newIndices(context.Background(), config, zap.NewNop()); err != nil {
		t.Fatalf("unexpected pinecone error: %v", err)
	}
}

func TestNewEmbeddingProviderOpenAI(t *testing.T) {
	config := testConfig(t)
	config.Embeddings.Provider = "openai"

	t.Setenv("OPENAI_API_KEY", "")
	if _, err := newEmbeddingProvider(config, nil); err == nil {
		t.Fatalf("expected missing key error")
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	provider, err := newEmbeddingProvider(config, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Model() != "text-embedding-3-small" {
		t.Fatalf("unexpected model %q", provider.Model())
	}

	config.Embeddings.Provider = "cohere"
	if _, err := newEmbeddingProvider(config, nil); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
}

type stubMatcher struct {
	outcome *matching.Outcome
}

func (s *stubMatcher) MatchStored(context.Context, string, string) (*matching.Outcome, error) {
	return s.outcome, nil
}

func TestMatchAndFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "excluded.json")
	if err := excludeCandidate(path, "alice", "bob"); err != nil {
		t.Fatalf("exclude: %v", err)
	}

	engine := &stubMatcher{outcome: &matching.Outcome{
		Status: matching.StatusMatched,
		Matches: []matching.CandidateMatch{
			{CandidateID: "bob", MutualScore: 0.9},
			{CandidateID: "carol", MutualScore: 0.8},
			{CandidateID: "dave", MutualScore: 0.7},
		},
	}}

	filters := filtering.Config{ExcludeFile: path, Limit: 1}
	outcome, err := matchAndFilter(context.Background(), engine, filters, "alice", "go review", zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcome.Matches) != 1 || outcome.Matches[0].CandidateID != "carol" {
		t.Fatalf("unexpected matches %+v", outcome.Matches)
	}

	var buf bytes.Buffer
	if err := printOutcome(&buf, outcome); err != nil {
		t.Fatalf("print: %v", err)
	}
	var printed matching.Outcome
	if err := json.Unmarshal(buf.Bytes(), &printed); err != nil {
		t.Fatalf("printed output is not json: %v", err)
	}
	if printed.Status != matching.StatusMatched {
		t.Fatalf("unexpected printed status %q", printed.Status)
	}
}

func TestFollowUpHelpers(t *testing.T) {
	outcome := &matching.Outcome{
		Status: matching.StatusMatched,
		Matches: []matching.CandidateMatch{
			{CandidateID: "bob", MutualScore: 0.9},
			{CandidateID: "carol", MutualScore: 0.8},
		},
	}

	items := followUpItems(outcome, "")
	if len(items) != 2 || items[0] != PromptRefine || items[1] != PromptDone {
		t.Fatalf("unexpected items without exclude file: %v", items)
	}

	items = followUpItems(outcome, "excluded.json")
	if len(items) != 5 || items[2] != PromptAppendToExcludeFile {
		t.Fatalf("unexpected items: %v", items)
	}
	if id := candidateFromLabel(items[1]); id != "carol" {
		t.Fatalf("unexpected candidate from label %q", id)
	}

	left := dropCandidate(outcome.Matches, "bob")
	if len(left) != 1 || left[0].CandidateID != "carol" {
		t.Fatalf("unexpected matches after drop: %+v", left)
	}
}
