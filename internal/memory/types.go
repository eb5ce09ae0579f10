package memory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/saba/internal/recordstore"
)

// Type categorizes a memory.
type Type string

const (
	TypeFact       Type = "fact"
	TypePreference Type = "preference"
	TypePersonal   Type = "personal"
)

// Importance ranks a memory.
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceMedium Importance = "medium"
	ImportanceHigh   Importance = "high"
)

var ErrInvalidMemory = errors.New("invalid memory")

// Memory is a short fact or preference attributed to one user. No two
// memories of the same user share Normalize(Content).
type Memory struct {
	ID         string                `json:"id"`
	UserID     string                `json:"userId"`
	Content    string                `json:"content"`
	Type       Type                  `json:"type"`
	Importance Importance            `json:"importance"`
	CreatedAt  recordstore.Timestamp `json:"createdAt"`
	UpdatedAt  recordstore.Timestamp `json:"updatedAt"`
	Source     string                `json:"source,omitempty"`
	Confidence *float64              `json:"confidence,omitempty"`
}

// Meta is applied to every memory accepted by AddUnique.
type Meta struct {
	Type       Type
	Importance Importance
	Source     string
	Confidence *float64
}

// Input is a batch of memories submitted through the API. Content is a
// single-item shorthand appended after Contents.
type Input struct {
	Contents   []string   `json:"contents,omitempty"`
	Content    string     `json:"content,omitempty"`
	Type       Type       `json:"type,omitempty"`
	Importance Importance `json:"importance,omitempty"`
	Source     string     `json:"source,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"`
}

func (in Input) candidates() []string {
	out := make([]string, 0, len(in.Contents)+1)
	for _, c := range in.Contents {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	if strings.TrimSpace(in.Content) != "" {
		out = append(out, in.Content)
	}
	return out
}

// Patch lists the fields an update may change. Nil fields are left alone.
type Patch struct {
	Content    *string     `json:"content,omitempty"`
	Type       *Type       `json:"type,omitempty"`
	Importance *Importance `json:"importance,omitempty"`
	Source     *string     `json:"source,omitempty"`
	Confidence *float64    `json:"confidence,omitempty"`
}

// UpdateResult reports the outcome of Update. OK is false when the memory
// does not exist for the user or the new content is a duplicate.
type UpdateResult struct {
	OK        bool
	Duplicate bool
	Memory    *Memory
}

// Normalize trims, lowercases and collapses whitespace runs to one space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func (t Type) Valid() bool {
	switch t {
	case TypeFact, TypePreference, TypePersonal:
		return true
	}
	return false
}

func (i Importance) Valid() bool {
	switch i {
	case ImportanceLow, ImportanceMedium, ImportanceHigh:
		return true
	}
	return false
}

func (m Meta) withDefaults() Meta {
	if m.Type == "" {
		m.Type = TypePersonal
	}
	if m.Importance == "" {
		m.Importance = ImportanceMedium
	}
	return m
}

func (p Patch) validate() error {
	if p.Content != nil && strings.TrimSpace(*p.Content) == "" {
		return fmt.Errorf("%w: content must not be empty", ErrInvalidMemory)
	}
	if p.Type != nil && !p.Type.Valid() {
		return fmt.Errorf("%w: unknown type %s", ErrInvalidMemory, *p.Type)
	}
	if p.Importance != nil && !p.Importance.Valid() {
		return fmt.Errorf("%w: unknown importance %s", ErrInvalidMemory, *p.Importance)
	}
	return nil
}

func (in Input) validate() error {
	if len(in.candidates()) == 0 {
		return fmt.Errorf("%w: contents[] required", ErrInvalidMemory)
	}
	if in.Type != "" && !in.Type.Valid() {
		return fmt.Errorf("%w: unknown type %s", ErrInvalidMemory, in.Type)
	}
	if in.Importance != "" && !in.Importance.Valid() {
		return fmt.Errorf("%w: unknown importance %s", ErrInvalidMemory, in.Importance)
	}
	return nil
}
