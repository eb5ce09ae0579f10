package extraction

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ent0n29/saba/internal/conversations"
)

// MaxCandidates bounds how many facts one extraction run may propose.
const MaxCandidates = 12

const monthNames = `(january|february|march|april|may|june|july|august|september|october|november|december)`

type factPattern struct {
	re     *regexp.Regexp
	render func(m []string) string
}

func groupTemplate(format string, group int) func([]string) string {
	return func(m []string) string {
		return fmt.Sprintf(format, strings.TrimSpace(m[group]))
	}
}

func stripTemplate(format string, prefix *regexp.Regexp) func([]string) string {
	return func(m []string) string {
		return fmt.Sprintf(format, prefix.ReplaceAllString(m[0], ""))
	}
}

// factPatterns run in order over each lowercased message; each yields at most
// one fact per message.
var factPatterns = []factPattern{
	{regexp.MustCompile(`\bmy name is\s+([a-z\-\s']{2,})\b`), groupTemplate("User's name is %s", 1)},
	{regexp.MustCompile(`\b(i am|i'm|my age is)\s+(\d{1,3})\b`), groupTemplate("User's age is %s", 2)},
	{regexp.MustCompile(`\b(i like|i love|my favorite(?:\s+\w+)?\s+is)\s+([^.!?\n]{2,})`), stripTemplate("Preference: %s", regexp.MustCompile(`^(i like|i love)\s+`))},
	{regexp.MustCompile(`\b(i live in|i'm from|my hometown is)\s+([^.!?\n]{2,})`), groupTemplate("Location: %s", 2)},
	{regexp.MustCompile(`\b(i work as|my job is|i am an?|i'm an?)\s+([^.!?\n]{2,})`), stripTemplate("Work: %s", regexp.MustCompile(`^(i work as|my job is|i am|i'm)\s+`))},
	{regexp.MustCompile(`\b(my\s+birthday\s+is|dob\s+is|i\s+was\s+born\s+on)\s+(` + monthNames + `\s+\d{1,2}(?:,\s*\d{4})?)`), groupTemplate("Birthday: %s", 2)},
	{regexp.MustCompile(`\b(my\s+birthday\s+is|dob\s+is|i\s+was\s+born\s+on)\s+(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})\b`), groupTemplate("Birthday: %s", 2)},
	{regexp.MustCompile(`\b(i\s+was\s+born\s+on)\s+(\d{4}[-./]\d{1,2}[-./]\d{1,2})\b`), groupTemplate("Birthday: %s", 2)},
	{regexp.MustCompile(`\b(i\s+know|i'm\s+good\s+at|i\s+can\s+do)\s+([^.!?\n]{2,})`), groupTemplate("Skill: %s", 2)},
	{regexp.MustCompile(`\b(my\s+skills\s+include|i\s+have\s+experience\s+with)\s+([^.!?\n]{2,})`), groupTemplate("Skills: %s", 2)},
	{regexp.MustCompile(`\b(i'm\s+learning|i\s+want\s+to\s+learn)\s+([^.!?\n]{2,})`), groupTemplate("Learning: %s", 2)},
	{regexp.MustCompile(`\b(my\s+goal\s+is\s+to|i\s+want\s+to|i\s+plan\s+to|i\s+need\s+to)\s+([^.!?\n]{3,})`), groupTemplate("Goal: %s", 2)},
}

// Heuristic extracts templated facts with regular expressions. Exact
// duplicates are removed and the result is capped at MaxCandidates.
func Heuristic(messages []conversations.Message) []string {
	facts := make([]string, 0, MaxCandidates)
	seen := make(map[string]struct{})
	for _, msg := range messages {
		text := strings.ToLower(msg.Content)
		for _, p := range factPatterns {
			m := p.re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			fact := strings.TrimSpace(p.render(m))
			if fact == "" {
				continue
			}
			if _, dup := seen[fact]; dup {
				continue
			}
			seen[fact] = struct{}{}
			facts = append(facts, fact)
		}
	}
	if len(facts) > MaxCandidates {
		facts = facts[:MaxCandidates]
	}
	return facts
}

var bulletPrefix = regexp.MustCompile(`^[-•*]\s*`)

// ParseBullets turns a generated bullet list into candidate facts.
func ParseBullets(text string) []string {
	out := make([]string, 0, MaxCandidates)
	for _, line := range strings.Split(text, "\n") {
		item := strings.TrimSpace(bulletPrefix.ReplaceAllString(strings.TrimSpace(line), ""))
		if item == "" {
			continue
		}
		out = append(out, item)
		if len(out) == MaxCandidates {
			break
		}
	}
	return out
}

// Transcript renders messages as "User: ..." and "SABA: ..." lines.
func Transcript(messages []conversations.Message) string {
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		speaker := "User"
		if msg.Role == conversations.RoleAssistant {
			speaker = "SABA"
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(msg.Content)
	}
	return b.String()
}
