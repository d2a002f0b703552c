package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spigell/skillmatch/internal/apperr"
)

type stubGenerator struct {
	response string
	err      error
	system   string
	message  string
}

func (s *stubGenerator) GenerateContent(ctx context.Context, system, message string) (string, error) {
	s.system = system
	s.message = message
	return s.response, s.err
}

func TestClassifierSpecific(t *testing.T) {
	gen := &stubGenerator{response: "```json\n{\"ambiguous\": false, \"reason\": \"names React hooks\", \"suggestions\": []}\n```"}
	c := NewClassifier(gen, nil, 0)

	verdict, err := c.Classify(context.Background(), "Learn React hooks and Redux")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verdict.Specific {
		t.Fatalf("expected specific verdict")
	}
	if verdict.Suggestions == nil || len(verdict.Suggestions) != 0 {
		t.Fatalf("expected empty suggestions, got %#v", verdict.Suggestions)
	}
	if !strings.Contains(gen.message, "Learn React hooks and Redux") {
		t.Fatalf("query not in prompt: %q", gen.message)
	}
	if gen.system != systemInstruction {
		t.Fatalf("unexpected system instruction %q", gen.system)
	}
	if verdict.Raw == "" {
		t.Fatalf("expected raw response to be kept")
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		specific    bool
		suggestions int
	}{
		{name: "ambiguous", raw: `{"ambiguous": true, "reason": "vague", "suggestions": ["name a language", "say what to build"]}`, suggestions: 2},
		{name: "misspelled key", raw: `{"ambigous": "false", "reason": "fine"}`, specific: true},
		{name: "numeric verdict", raw: `{"ambiguous": 0}`, specific: true},
		{name: "uppercase no", raw: `{"ambiguous": " NO "}`, specific: true},
		{name: "prose around json", raw: `Sure! {"ambiguous": "yes", "suggestions": "add a framework"} hope this helps`, suggestions: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := parseVerdict(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if verdict.Specific != tt.specific {
				t.Fatalf("expected specific=%v, got %v", tt.specific, verdict.Specific)
			}
			if len(verdict.Suggestions) != tt.suggestions {
				t.Fatalf("expected %d suggestions, got %v", tt.suggestions, verdict.Suggestions)
			}
		})
	}
}

func TestParseVerdictUnusable(t *testing.T) {
	unusable := []string{
		"",
		"not json at all",
		`{"reason": "no verdict"}`,
		"{broken",
		`{"ambiguous": null, "reason": "x"}`,
		`{"ambiguous": "maybe"}`,
		`{"ambiguous": {}}`,
		`{"ambiguous": []}`,
		`{"ambigous": ""}`,
	}
	for _, raw := range unusable {
		if _, err := parseVerdict(raw); !errors.Is(err, apperr.ErrAmbiguityUnresolved) {
			t.Fatalf("raw %q: expected ErrAmbiguityUnresolved, got %v", raw, err)
		}
	}
}

func TestClassifierPropagatesGeneratorError(t *testing.T) {
	gen := &stubGenerator{err: errors.New("boom")}
	c := NewClassifier(gen, nil, 0)

	_, err := c.Classify(context.Background(), "anything")
	if err == nil || errors.Is(err, apperr.ErrAmbiguityUnresolved) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestClassifierRejectsNonBooleanVerdict(t *testing.T) {
	gen := &stubGenerator{response: `{"ambiguous": null, "reason": "unsure", "suggestions": []}`}
	c := NewClassifier(gen, nil, 0)

	verdict, err := c.Classify(context.Background(), "help with kubernetes")
	if !errors.Is(err, apperr.ErrAmbiguityUnresolved) {
		t.Fatalf("expected ErrAmbiguityUnresolved, got verdict %+v err %v", verdict, err)
	}
	if verdict != nil {
		t.Fatalf("expected no verdict, got %+v", verdict)
	}
}
