package core

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// InvalidDateLabel is the month bucket for records whose date cannot be parsed.
const InvalidDateLabel = "Invalid Date"

// MonthLabelLayout renders a short month name and a numeric year, e.g. "Jan 2025".
const MonthLabelLayout = "Jan 2006"

// AggregateByCategory sums amounts per category. Labels match exactly
// (case-sensitive) and the result keeps the first-seen order of categories.
func AggregateByCategory(records []Expense) []CategoryTotal {
	out := make([]CategoryTotal, 0)
	index := make(map[string]int)
	for _, r := range records {
		if i, ok := index[r.Category]; ok {
			out[i].Value = out[i].Value.Add(r.Amount)
			continue
		}
		index[r.Category] = len(out)
		out = append(out, CategoryTotal{Name: r.Category, Value: r.Amount})
	}
	return out
}

// MonthLabel returns the month-year label for a record date, or InvalidDateLabel.
func MonthLabel(date string) string {
	t, ok := ParseDate(date)
	if !ok {
		return InvalidDateLabel
	}
	return t.Format(MonthLabelLayout)
}

// AggregateByMonth sums amounts per month-year label, then sorts the buckets
// chronologically by re-parsing each label. The invalid-date bucket sorts last.
func AggregateByMonth(records []Expense) []MonthTotal {
	out := make([]MonthTotal, 0)
	index := make(map[string]int)
	for _, r := range records {
		label := MonthLabel(r.Date)
		if i, ok := index[label]; ok {
			out[i].Amount = out[i].Amount.Add(r.Amount)
			continue
		}
		index[label] = len(out)
		out = append(out, MonthTotal{Month: label, Amount: r.Amount})
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, okI := parseMonthLabel(out[i].Month)
		tj, okJ := parseMonthLabel(out[j].Month)
		switch {
		case okI && okJ:
			return ti.Before(tj)
		case okI:
			return true
		default:
			return false
		}
	})
	return out
}

// Total sums every record amount. An empty list totals zero.
func Total(records []Expense) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range records {
		sum = sum.Add(r.Amount)
	}
	return sum
}

// MostRecent returns up to n records ordered by date, newest first.
// Records with equal dates keep their input order; unparseable dates go last.
func MostRecent(records []Expense, n int) []Expense {
	if n <= 0 || len(records) == 0 {
		return []Expense{}
	}
	sorted := make([]Expense, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, okI := ParseDate(sorted[i].Date)
		tj, okJ := ParseDate(sorted[j].Date)
		switch {
		case okI && okJ:
			return ti.After(tj)
		case okI:
			return true
		default:
			return false
		}
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Summarize derives every dashboard figure from the record list.
func Summarize(records []Expense, recent int) Summary {
	byCategory := AggregateByCategory(records)
	return Summary{
		Total:         Total(records),
		Count:         len(records),
		CategoryCount: len(byCategory),
		ByCategory:    byCategory,
		ByMonth:       AggregateByMonth(records),
		Recent:        MostRecent(records, recent),
	}
}

func parseMonthLabel(label string) (time.Time, bool) {
	t, err := time.Parse(MonthLabelLayout, label)
	return t, err == nil
}
