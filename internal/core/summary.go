package core

import "github.com/shopspring/decimal"

// CategoryTotal is the running sum of amounts sharing a category label.
type CategoryTotal struct {
	Name  string
	Value decimal.Decimal
}

// MonthTotal is the running sum of amounts falling in a month-year label.
type MonthTotal struct {
	Month  string
	Amount decimal.Decimal
}

// Summary holds every figure the dashboard derives from the cached records.
// It is recomputed from the record list and never stored on its own.
type Summary struct {
	Total         decimal.Decimal
	Count         int
	CategoryCount int
	ByCategory    []CategoryTotal
	ByMonth       []MonthTotal
	Recent        []Expense
}
