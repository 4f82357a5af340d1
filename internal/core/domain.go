package core

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date format used by form drafts and the API.
const DateLayout = "2006-01-02"

type (
	// Expense is a single record as returned by the expense API.
	// Date is kept verbatim: the API may send a plain date or a full timestamp.
	Expense struct {
		ID       string          `json:"id"`
		Title    string          `json:"title"`
		Amount   decimal.Decimal `json:"amount"`
		Category string          `json:"category"`
		Date     string          `json:"date"`
	}

	// Draft mirrors the editable fields of an Expense as form text.
	Draft struct {
		Title    string `json:"title" validate:"required"`
		Amount   string `json:"amount" validate:"required"`
		Category string `json:"category" validate:"required"`
		Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	}

	// User identifies the account a session is authenticated as.
	User struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
)

var (
	ErrEmptyTitle    = errors.New("title is required")
	ErrEmptyCategory = errors.New("category is required")
	ErrInvalidDate   = errors.New("invalid date")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Today returns the current UTC calendar date as YYYY-MM-DD.
func Today() string {
	return time.Now().UTC().Format(DateLayout)
}

// NewDraft returns an empty draft dated today.
func NewDraft() Draft {
	return Draft{Date: Today()}
}

// IsZero reports whether the draft holds no user input besides the default date.
func (d Draft) IsZero() bool {
	return d.Title == "" && d.Amount == "" && d.Category == ""
}

// Validate applies the same constraints a browser enforces on the form inputs:
// every field required, a positive amount and a calendar date.
func (d Draft) Validate() error {
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			switch verrs[0].Field() {
			case "Title":
				return ErrEmptyTitle
			case "Category":
				return ErrEmptyCategory
			case "Amount":
				return ErrInvalidAmount
			case "Date":
				return ErrInvalidDate
			}
		}
		return err
	}
	if _, err := ParseAmount(d.Amount); err != nil {
		return err
	}
	return nil
}

// DraftFrom copies a record into a draft, normalizing its date to YYYY-MM-DD.
func DraftFrom(e Expense) Draft {
	return Draft{
		Title:    e.Title,
		Amount:   e.Amount.String(),
		Category: e.Category,
		Date:     NormalizeDate(e.Date),
	}
}

// NormalizeDate reduces an API date or timestamp to its calendar-date part.
// Empty input falls back to today.
func NormalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Today()
	}
	if i := strings.IndexByte(raw, 'T'); i > 0 {
		return raw[:i]
	}
	return raw
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	DateLayout,
}

// ParseDate parses the date formats the API is known to return.
// Timestamps are converted to UTC.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
