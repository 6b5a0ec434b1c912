package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Ripening Alert] {{.Device}}
Ethylene: {{.Ethylene}} ppm (threshold {{.Threshold}})
Temperature: {{.Temperature}} °C
Humidity: {{.Humidity}} %
Forecast: {{.Forecast}}
Time: {{.Time}}
Suggestion: {{.Suggestion}}
{{ if .ReportURL }}
Dashboard: {{.ReportURL}}
{{ end }}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Device      string
	Source      string
	Ethylene    string
	Temperature string
	Humidity    string
	Threshold   string
	Forecast    string
	Time        string
	Suggestion  string
	ReportURL   string
	TraceID     string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("advisory-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("advisory template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
