// Package profile models what a user offers (skills) and what a user needs.
package profile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Kind tells which side of an exchange a record describes.
type Kind string

const (
	KindNeed  Kind = "need"
	KindOffer Kind = "offer"
)

func (k Kind) Valid() bool {
	return k == KindNeed || k == KindOffer
}

// Record is implemented by Skill and Need only.
type Record interface {
	Kind() Kind
	Text() string
	record()
}

var ErrMissingField = errors.New("required field is missing")

// SkillInput is the loosely typed shape skills arrive in from configs and requests.
type SkillInput struct {
	SkillName       string   `mapstructure:"skill_name"`
	FocusArea       string   `mapstructure:"focus_area"`
	ExperienceLevel string   `mapstructure:"experience_level"`
	Components      []string `mapstructure:"components"`
	Tools           []string `mapstructure:"tools"`
	Description     string   `mapstructure:"description"`
}

// Skill is one validated offer.
type Skill struct {
	name            string
	focusArea       string
	experienceLevel string
	components      []string
	tools           []string
	description     string
}

// NewSkill validates the input and returns a Skill. skill_name,
// experience_level and description are required.
func NewSkill(in SkillInput) (*Skill, error) {
	s := &Skill{
		name:            strings.TrimSpace(in.SkillName),
		focusArea:       strings.TrimSpace(in.FocusArea),
		experienceLevel: strings.TrimSpace(in.ExperienceLevel),
		components:      cleanList(in.Components),
		tools:           cleanList(in.Tools),
		description:     strings.TrimSpace(in.Description),
	}

	switch {
	case s.name == "":
		return nil, fmt.Errorf("skill_name: %w", ErrMissingField)
	case s.experienceLevel == "":
		return nil, fmt.Errorf("skill %q: experience_level: %w", s.name, ErrMissingField)
	case s.description == "":
		return nil, fmt.Errorf("skill %q: description: %w", s.name, ErrMissingField)
	}

	return s, nil
}

func (s *Skill) Kind() Kind              { return KindOffer }
func (s *Skill) Name() string            { return s.name }
func (s *Skill) FocusArea() string       { return s.focusArea }
func (s *Skill) ExperienceLevel() string { return s.experienceLevel }
func (s *Skill) Components() []string    { return append([]string(nil), s.components...) }
func (s *Skill) Tools() []string         { return append([]string(nil), s.tools...) }
func (s *Skill) Description() string     { return s.description }
func (s *Skill) record()                 {}

// Text renders the canonical string that gets embedded.
func (s *Skill) Text() string {
	return fmt.Sprintf(
		"Skill: %s. Focus Area: %s. Experience Level: %s. Components: %s. Tools: %s. Description: %s",
		s.name, s.focusArea, s.experienceLevel,
		strings.Join(s.components, ", "), strings.Join(s.tools, ", "),
		s.description,
	)
}

// Need is one free-text description of what a user is looking for.
type Need struct {
	text string
}

func NewNeed(text string) (*Need, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("need text: %w", ErrMissingField)
	}
	return &Need{text: text}, nil
}

func (n *Need) Kind() Kind   { return KindNeed }
func (n *Need) Text() string { return n.text }
func (n *Need) record()      {}

// DecodeSkills converts a decoded JSON/YAML value (a list of maps) into
// validated skills.
func DecodeSkills(raw any) ([]*Skill, error) {
	var inputs []SkillInput

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &inputs,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode skill set: %w", err)
	}

	skills := make([]*Skill, 0, len(inputs))
	for i, in := range inputs {
		skill, err := NewSkill(in)
		if err != nil {
			return nil, fmt.Errorf("skill #%d: %w", i, err)
		}
		skills = append(skills, skill)
	}

	return skills, nil
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
