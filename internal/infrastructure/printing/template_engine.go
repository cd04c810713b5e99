package printing

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// TemplateEngine renders HTML templates with locale-aware formatting helpers
type TemplateEngine struct {
	tag     language.Tag
	printer *message.Printer
	title   cases.Caser
	funcMap template.FuncMap
}

// NewTemplateEngine creates an engine for the given BCP 47 locale. An
// unparsable locale falls back to English.
func NewTemplateEngine(locale string) *TemplateEngine {
	tag, err := language.Parse(locale)
	if err != nil || locale == "" {
		tag = language.English
	}

	e := &TemplateEngine{
		tag:     tag,
		printer: message.NewPrinter(tag),
		title:   cases.Title(tag),
	}
	e.funcMap = template.FuncMap{
		"money":    e.formatMoney,
		"date":     formatDate,
		"dateTime": formatDateTime,
		"title":    e.titleCase,
		"upper":    strings.ToUpper,
	}
	return e
}

// Locale returns the engine's language tag
func (e *TemplateEngine) Locale() language.Tag {
	return e.tag
}

// Parse compiles a named template with the engine's functions
func (e *TemplateEngine) Parse(name, content string) (*template.Template, error) {
	if strings.TrimSpace(content) == "" {
		return nil, NewRenderError(ErrCodeInvalidHTML, "template content is empty", nil)
	}
	tmpl, err := template.New(name).Funcs(e.funcMap).Parse(content)
	if err != nil {
		return nil, NewRenderError(ErrCodeTemplateFailed, "failed to parse template "+name, err)
	}
	return tmpl, nil
}

// Execute runs a compiled template against data
func (e *TemplateEngine) Execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", NewRenderError(ErrCodeTemplateFailed, "failed to execute template "+tmpl.Name(), err)
	}
	return buf.String(), nil
}

// formatMoney groups digits the way the locale does, always with two decimals.
// Example (en): 1234.5 -> "1,234.50"
func (e *TemplateEngine) formatMoney(d decimal.Decimal) string {
	return e.printer.Sprint(number.Decimal(d.Round(2).InexactFloat64(), number.Scale(2)))
}

func (e *TemplateEngine) titleCase(s string) string {
	return e.title.String(s)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02 Jan 2006")
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("02 Jan 2006 15:04 UTC")
}
