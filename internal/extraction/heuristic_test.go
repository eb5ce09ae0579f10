package extraction

import (
	"fmt"
	"testing"

	"github.com/ent0n29/saba/internal/conversations"
)

func userMessages(lines ...string) []conversations.Message {
	out := make([]conversations.Message, 0, len(lines))
	for _, l := range lines {
		out = append(out, conversations.Message{Role: conversations.RoleUser, Content: l})
	}
	return out
}

func TestHeuristicPatterns(t *testing.T) {
	cases := map[string]string{
		"My name is Alex.":               "User's name is alex",
		"I'm 29 years old":               "User's age is 29",
		"I love hiking in the hills!":    "Preference: hiking in the hills",
		"I live in Lagos.":               "Location: lagos",
		"I work as a software engineer.": "Work: a software engineer",
		"My birthday is March 3, 1994":   "Birthday: march 3, 1994",
		"I was born on 12/05/1990":       "Birthday: 12/05/1990",
		"I'm good at chess.":             "Skill: chess",
		"My skills include Go and SQL.":  "Skills: go and sql",
		"I'm learning Portuguese":        "Learning: portuguese",
		"My goal is to run a marathon.":  "Goal: run a marathon",
	}
	for in, want := range cases {
		got := Heuristic(userMessages(in))
		found := false
		for _, g := range got {
			if g == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("Heuristic(%q) = %q, want to contain %q", in, got, want)
		}
	}
}

func TestHeuristicDeduplicatesAndCaps(t *testing.T) {
	lines := []string{"I live in Lagos.", "i live in lagos."}
	for i := 0; i < 20; i++ {
		lines = append(lines, fmt.Sprintf("I live in town%d.", i))
	}
	got := Heuristic(userMessages(lines...))
	if len(got) != MaxCandidates {
		t.Fatalf("len = %d, want %d", len(got), MaxCandidates)
	}
	if got[0] != "Location: lagos" || got[1] != "Location: town0" {
		t.Fatalf("first facts = %q, want lagos once then town0", got[:2])
	}
}

func TestHeuristicNothingToFind(t *testing.T) {
	if got := Heuristic(userMessages("What's the weather like?")); len(got) != 0 {
		t.Fatalf("Heuristic() = %q, want none", got)
	}
}

func TestParseBullets(t *testing.T) {
	got := ParseBullets("- one\n•two\n*   three\n\n   \nfour")
	want := []string{"one", "two", "three", "four"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("ParseBullets() = %q, want %q", got, want)
	}

	var long string
	for i := 0; i < 20; i++ {
		long += fmt.Sprintf("- fact %d\n", i)
	}
	if n := len(ParseBullets(long)); n != MaxCandidates {
		t.Fatalf("len = %d, want %d", n, MaxCandidates)
	}
}
