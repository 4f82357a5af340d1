package chart

import (
	"bytes"
	"image/color"
	"testing"

	"github.com/shopspring/decimal"

	"expensedash/internal/core"
)

func TestPaletteCycles(t *testing.T) {
	if len(Palette) != 6 {
		t.Fatalf("palette has %d colours, want 6", len(Palette))
	}
	if ColorAt(6) != ColorAt(0) || ColorAt(7) != ColorAt(1) {
		t.Error("palette should cycle")
	}
	want := color.RGBA{R: 0x00, G: 0x88, B: 0xFE, A: 0xff}
	if ColorAt(0) != want {
		t.Errorf("first colour = %v, want %v", ColorAt(0), want)
	}
}

func TestCategoryPie(t *testing.T) {
	totals := []core.CategoryTotal{
		{Name: "Food", Value: decimal.NewFromInt(15)},
		{Name: "Transport", Value: decimal.NewFromInt(20)},
	}
	svg, err := CategoryPie(totals)
	if err != nil {
		t.Fatalf("CategoryPie() error = %v", err)
	}
	if !bytes.Contains(svg, []byte("<svg")) {
		t.Error("output is not SVG")
	}
	if !bytes.Contains(svg, []byte("Transport")) {
		t.Error("legend label missing")
	}
}

func TestMonthlyBar(t *testing.T) {
	totals := []core.MonthTotal{
		{Month: "Jan 2025", Amount: decimal.NewFromInt(10)},
		{Month: "Mar 2025", Amount: decimal.NewFromInt(25)},
	}
	svg, err := MonthlyBar(totals)
	if err != nil {
		t.Fatalf("MonthlyBar() error = %v", err)
	}
	if !bytes.Contains(svg, []byte("Mar 2025")) {
		t.Error("month label missing")
	}
}

func TestEmptyChartsRenderPlaceholder(t *testing.T) {
	for name, render := range map[string]func() ([]byte, error){
		"pie": func() ([]byte, error) { return CategoryPie(nil) },
		"bar": func() ([]byte, error) { return MonthlyBar([]core.MonthTotal{}) },
	} {
		t.Run(name, func(t *testing.T) {
			svg, err := render()
			if err != nil {
				t.Fatalf("render error = %v", err)
			}
			if !bytes.Contains(svg, []byte("No data")) {
				t.Error("placeholder text missing")
			}
		})
	}
}
