// Package prompts loads the instruction templates sent to the
// text-generation service.
package prompts

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Set holds the parsed templates.
type Set struct {
	Extraction    string `yaml:"extraction"`
	ChatSystem    string `yaml:"chat_system"`
	FallbackReply string `yaml:"fallback_reply"`

	chatSystem *template.Template
}

// Default returns the embedded prompt set.
func Default() Set {
	s, err := parse(defaultPrompts)
	if err != nil {
		panic(fmt.Sprintf("embedded prompts are invalid: %v", err))
	}
	return s
}

// Load reads a prompt file and fills any missing entry from the defaults.
// An empty path returns the defaults.
func Load(path string) (Set, error) {
	base := Default()
	if strings.TrimSpace(path) == "" {
		return base, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Set{}, fmt.Errorf("read prompts: %w", err)
	}
	override, err := parse(raw)
	if err != nil {
		return Set{}, fmt.Errorf("parse prompts %s: %w", path, err)
	}
	if strings.TrimSpace(override.Extraction) != "" {
		base.Extraction = override.Extraction
	}
	if strings.TrimSpace(override.ChatSystem) != "" {
		base.ChatSystem = override.ChatSystem
		base.chatSystem = override.chatSystem
	}
	if strings.TrimSpace(override.FallbackReply) != "" {
		base.FallbackReply = override.FallbackReply
	}
	return base, nil
}

func parse(raw []byte) (Set, error) {
	var s Set
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Set{}, err
	}
	if strings.TrimSpace(s.ChatSystem) != "" {
		tmpl, err := template.New("chat_system").Option("missingkey=error").Parse(s.ChatSystem)
		if err != nil {
			return Set{}, fmt.Errorf("chat_system template: %w", err)
		}
		s.chatSystem = tmpl
	}
	return s, nil
}

// ChatSystemPrompt renders the chat system instruction with a summary of the
// user's other conversations.
func (s Set) ChatSystemPrompt(summary string) (string, error) {
	if s.chatSystem == nil {
		return "", errors.New("chat system prompt is not configured")
	}
	var out strings.Builder
	if err := s.chatSystem.Execute(&out, struct{ Summary string }{Summary: strings.TrimSpace(summary)}); err != nil {
		return "", fmt.Errorf("render chat system prompt: %w", err)
	}
	return strings.TrimSpace(out.String()), nil
}
