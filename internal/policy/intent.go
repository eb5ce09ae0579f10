package policy

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ReminderIntent is the result of scanning a chat message for a request to
// create a reminder.
type ReminderIntent struct {
	IsReminder bool
	Content    string
	Due        *time.Time
}

var (
	reminderKeywordPattern = regexp.MustCompile(`\b(remind|reminder|todo|task|remember)\b`)
	simpleTimePattern      = regexp.MustCompile(`(?i)\b(\d{1,2})(?:[:.\s](\d{2}))?\s*(am|pm)?\b`)
	explicitTimePattern    = regexp.MustCompile(`(?i)\b(\d{1,2})(?:(?:[:.](\d{2}))\s*(am|pm)?|(?:\s(\d{2}))?\s*(am|pm))\b`)
	remindMeToPattern      = regexp.MustCompile(`(?i)remind\s+me\s+to\s+(.+?)(?:\s+at\s+.+)?$`)
	clauseEndPattern       = regexp.MustCompile(`[.!?\n]`)

	dateLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"2006-01-02",
		"01/02/2006 15:04",
		"01/02/2006",
		"January 2, 2006 3:04pm",
		"January 2 2006 3:04pm",
		"Jan 2, 2006 3:04pm",
		"January 2, 2006",
	}
)

// ParseReminderIntent detects reminder phrasing ("remind", "reminder",
// "todo", "task", "remember") and extracts a due time and content. A time
// after " at " ("at 10:45 pm", "at 6pm", "at 10 45 pm") is taken as today in
// now's location; a full date after " at " is parsed with a fixed set of
// layouts. Without " at ", only an unambiguous clock time (with a colon or
// am/pm) anywhere in the message is used. "remind me to X at Y" yields X as
// the content; otherwise the whole message is the content.
func ParseReminderIntent(text string, now time.Time) ReminderIntent {
	lower := strings.ToLower(text)
	if !reminderKeywordPattern.MatchString(lower) {
		return ReminderIntent{}
	}

	out := ReminderIntent{IsReminder: true, Content: strings.TrimSpace(text)}

	if idx := strings.Index(lower, " at "); idx != -1 {
		after := strings.TrimSpace(text[idx+4:])
		candidate := strings.TrimSpace(clauseEndPattern.Split(after, 2)[0])
		if due, ok := parseDate(candidate, now.Location()); ok {
			out.Due = &due
		} else if due, ok := parseClock(simpleTimePattern, candidate, now); ok {
			out.Due = &due
		}
	}
	if out.Due == nil {
		if due, ok := parseDate(strings.TrimSpace(text), now.Location()); ok {
			out.Due = &due
		} else if due, ok := parseClock(explicitTimePattern, text, now); ok {
			out.Due = &due
		}
	}

	if m := remindMeToPattern.FindStringSubmatch(text); m != nil && strings.TrimSpace(m[1]) != "" {
		out.Content = strings.TrimSpace(m[1])
	}
	return out
}

func parseClock(re *regexp.Regexp, s string, now time.Time) (time.Time, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	hours, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	minutes := 0
	ampm := ""
	for _, g := range m[2:] {
		switch strings.ToLower(g) {
		case "":
		case "am", "pm":
			ampm = strings.ToLower(g)
		default:
			if minutes, err = strconv.Atoi(g); err != nil {
				return time.Time{}, false
			}
		}
	}
	if ampm == "pm" && hours < 12 {
		hours += 12
	}
	if ampm == "am" && hours == 12 {
		hours = 0
	}
	if hours > 23 || minutes > 59 {
		return time.Time{}, false
	}
	y, mo, d := now.Date()
	return time.Date(y, mo, d, hours, minutes, 0, 0, now.Location()), true
}

func parseDate(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
