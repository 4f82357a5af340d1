package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDraftValidate(t *testing.T) {
	good := Draft{Title: "Lunch", Amount: "12.50", Category: "Food", Date: "2025-03-14"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name  string
		draft Draft
		want  error
	}{
		{"missing title", Draft{Amount: "1", Category: "c", Date: "2025-01-01"}, ErrEmptyTitle},
		{"missing amount", Draft{Title: "t", Category: "c", Date: "2025-01-01"}, ErrInvalidAmount},
		{"zero amount", Draft{Title: "t", Amount: "0", Category: "c", Date: "2025-01-01"}, ErrInvalidAmount},
		{"negative amount", Draft{Title: "t", Amount: "-3", Category: "c", Date: "2025-01-01"}, ErrInvalidAmount},
		{"missing category", Draft{Title: "t", Amount: "1", Date: "2025-01-01"}, ErrEmptyCategory},
		{"bad date", Draft{Title: "t", Amount: "1", Category: "c", Date: "14/03/2025"}, ErrInvalidDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.draft.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDraftFromNormalizesDate(t *testing.T) {
	e := Expense{ID: "a1", Title: "Bus", Amount: decimal.RequireFromString("2.40"), Category: "Transport", Date: "2025-02-03T00:00:00.000Z"}
	d := DraftFrom(e)
	if d.Date != "2025-02-03" {
		t.Fatalf("date = %q, want 2025-02-03", d.Date)
	}
	if d.Amount != "2.4" || d.Title != "Bus" || d.Category != "Transport" {
		t.Fatalf("unexpected draft: %+v", d)
	}

	e.Date = ""
	if got := DraftFrom(e).Date; got != Today() {
		t.Fatalf("empty date should fall back to today, got %q", got)
	}
}

func TestNewDraftDefaults(t *testing.T) {
	d := NewDraft()
	if !d.IsZero() {
		t.Fatalf("new draft should be empty: %+v", d)
	}
	if _, err := time.Parse(DateLayout, d.Date); err != nil {
		t.Fatalf("default date %q not a calendar date: %v", d.Date, err)
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2025-01-15", "2025-01-15", true},
		{"2025-01-15T10:30:00Z", "2025-01-15", true},
		{"2025-01-15T23:30:00.000-05:00", "2025-01-16", true},
		{"2025-01-15T10:30:00", "2025-01-15", true},
		{"not a date", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseDate(tc.in)
		if ok != tc.ok {
			t.Fatalf("ParseDate(%q) ok=%v, want %v", tc.in, ok, tc.ok)
		}
		if ok && got.Format(DateLayout) != tc.want {
			t.Fatalf("ParseDate(%q) = %s, want %s", tc.in, got.Format(DateLayout), tc.want)
		}
	}
}
