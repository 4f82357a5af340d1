package http

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"

	"expensedash/internal/core"
	appweb "expensedash/web"
)

var templateFuncs = template.FuncMap{
	"currency":  func(d decimal.Decimal) string { return core.FormatCurrency(d) },
	"dateInput": core.NormalizeDate,
	"date":      displayDate,
	"upper":     strings.ToUpper,
}

// parseTemplates loads every embedded page and partial.
func parseTemplates() (*template.Template, error) {
	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return t, nil
}

// renderTemplate executes name into a buffer so a failure never leaves a
// half-written response.
func renderTemplate(t *template.Template, name string, data any) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("templates not loaded")
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("execute %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
