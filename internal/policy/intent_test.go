package policy

import (
	"testing"
	"time"
)

var testNow = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

func TestParseReminderIntentIgnoresSmallTalk(t *testing.T) {
	got := ParseReminderIntent("what a lovely day, tell me a joke", testNow)
	if got.IsReminder {
		t.Fatalf("IsReminder = true, want false for %+v", got)
	}
	if ParseReminderIntent("multitasking is hard", testNow).IsReminder {
		t.Fatalf("IsReminder = true for a word that only contains a keyword")
	}
}

func TestParseReminderIntentWithTime(t *testing.T) {
	cases := []struct {
		text        string
		wantContent string
		wantHour    int
		wantMinute  int
	}{
		{"Remind me to call mom at 10:45 pm", "call mom", 22, 45},
		{"remind me to stretch at 6pm.", "stretch", 18, 0},
		{"Remind me to sleep at 10 45 pm", "sleep", 22, 45},
		{"remind me to eat at 12am", "eat", 0, 0},
		{"todo: standup at 9:15", "todo: standup at 9:15", 9, 15},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got := ParseReminderIntent(tc.text, testNow)
			if !got.IsReminder {
				t.Fatalf("IsReminder = false, want true")
			}
			if got.Content != tc.wantContent {
				t.Fatalf("Content = %q, want %q", got.Content, tc.wantContent)
			}
			if got.Due == nil {
				t.Fatalf("Due = nil, want %02d:%02d", tc.wantHour, tc.wantMinute)
			}
			if got.Due.Hour() != tc.wantHour || got.Due.Minute() != tc.wantMinute || got.Due.Day() != testNow.Day() {
				t.Fatalf("Due = %v, want today at %02d:%02d", got.Due, tc.wantHour, tc.wantMinute)
			}
		})
	}
}

func TestParseReminderIntentWithDate(t *testing.T) {
	got := ParseReminderIntent("remind me to renew passport at 2026-04-01", testNow)
	if got.Due == nil {
		t.Fatalf("Due = nil, want a date")
	}
	want := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	if !got.Due.Equal(want) {
		t.Fatalf("Due = %v, want %v", got.Due, want)
	}
	if got.Content != "renew passport" {
		t.Fatalf("Content = %q, want %q", got.Content, "renew passport")
	}
}

func TestParseReminderIntentWithoutTime(t *testing.T) {
	got := ParseReminderIntent("Remember to buy 2 apples", testNow)
	if !got.IsReminder {
		t.Fatalf("IsReminder = false, want true")
	}
	if got.Due != nil {
		t.Fatalf("Due = %v, want nil for a bare number", got.Due)
	}
	if got.Content != "Remember to buy 2 apples" {
		t.Fatalf("Content = %q, want whole message", got.Content)
	}

	got = ParseReminderIntent("add a task for the report by 5pm", testNow)
	if got.Due == nil || got.Due.Hour() != 17 {
		t.Fatalf("Due = %v, want 17:00 from an explicit clock time", got.Due)
	}
}
