package profile

import (
	"errors"
	"strings"
	"testing"
)

func TestNewSkillRequiresFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input SkillInput
	}{
		{name: "no name", input: SkillInput{ExperienceLevel: "senior", Description: "Go services"}},
		{name: "no level", input: SkillInput{SkillName: "Go", Description: "Go services"}},
		{name: "no description", input: SkillInput{SkillName: "Go", ExperienceLevel: "senior", Description: "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewSkill(tt.input); !errors.Is(err, ErrMissingField) {
				t.Fatalf("expected ErrMissingField, got %v", err)
			}
		})
	}
}

func TestSkillText(t *testing.T) {
	skill, err := NewSkill(SkillInput{
		SkillName:       " Kubernetes ",
		FocusArea:       "Platform",
		ExperienceLevel: "Advanced",
		Components:      []string{"operators", " ", "helm charts"},
		Tools:           []string{"kubectl", "k9s"},
		Description:     "Run production clusters.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "Skill: Kubernetes. Focus Area: Platform. Experience Level: Advanced. Components: operators, helm charts. Tools: kubectl, k9s. Description: Run production clusters."
	if got := skill.Text(); got != want {
		t.Fatalf("unexpected text:\n got: %q\nwant: %q", got, want)
	}

	if skill.Kind() != KindOffer {
		t.Fatalf("unexpected kind %q", skill.Kind())
	}
}

func TestNewNeed(t *testing.T) {
	if _, err := NewNeed("  \n"); !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}

	need, err := NewNeed("  learn terraform modules ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if need.Text() != "learn terraform modules" || need.Kind() != KindNeed {
		t.Fatalf("unexpected need: %q %q", need.Text(), need.Kind())
	}
}

func TestDecodeSkills(t *testing.T) {
	raw := []any{
		map[string]any{
			"skill_name":       "React",
			"focus_area":       "Frontend",
			"experience_level": "Intermediate",
			"components":       []any{"hooks", "context"},
			"tools":            []any{"vite"},
			"description":      "Component driven UIs.",
		},
		map[string]any{
			"skill_name":       "Go",
			"experience_level": "Senior",
			"description":      "gRPC services.",
		},
	}

	skills, err := DecodeSkills(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(skills) != 2 {
		t.Fatalf("expected 2 skills, got %d", len(skills))
	}
	if skills[0].Name() != "React" || len(skills[0].Components()) != 2 {
		t.Fatalf("unexpected first skill: %+v", skills[0])
	}
	if !strings.Contains(skills[1].Text(), "Components: . Tools: .") {
		t.Fatalf("expected empty lists to render blank: %q", skills[1].Text())
	}
}

func TestDecodeSkillsRejectsUnknownAndInvalid(t *testing.T) {
	_, err := DecodeSkills([]any{map[string]any{"skill_name": "Go", "experience_level": "x", "description": "y", "salary": 10}})
	if err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}

	_, err = DecodeSkills([]any{map[string]any{"skill_name": "Go"}})
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected missing field error, got %v", err)
	}
}
