package export

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"formatDate": func(t *time.Time) string {
		if t == nil {
			return "n/a"
		}
		return t.Format("Jan 2, 2006")
	},
	"percent": func(fraction float64) string {
		return fmt.Sprintf("%.0f%%", fraction*100)
	},
}).Parse(reportHTML))

// TemplateData holds data for the status report template.
type TemplateData struct {
	Name            string
	Description     string
	CompanyName     string
	PercentComplete float64
	Archived        bool
	StartDate       *time.Time
	DeliveryDate    *time.Time
	CompletedDate   *time.Time
	GeneratedAt     time.Time
	Steps           []TemplateStep
}

// TemplateStep is one node of the rendered step tree.
type TemplateStep struct {
	Verb         string
	Description  string
	Completed    bool
	Asynchronous bool
	Children     []TemplateStep
}

// RenderReportHTML renders the status report template.
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const reportHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Name}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .progress { font-size: 1.2em; font-weight: bold; margin: 1rem 0; }
    ul.steps { list-style: none; padding-left: 1.2rem; }
    ul.steps li { margin: 0.3rem 0; }
    .done { color: #2a7a2a; }
    .pending { color: #a33; }
    .flag { color: #666; font-size: 0.85em; }
  </style>
</head>
<body>
  <h1>{{.Name}}</h1>
  {{if .Description}}<p>{{.Description}}</p>{{end}}
  <div class="meta">
    {{.CompanyName}}{{if .Archived}} | archived{{end}} | generated {{.GeneratedAt.Format "Jan 2, 2006"}}<br>
    start {{formatDate .StartDate}} | delivery {{formatDate .DeliveryDate}} | completed {{formatDate .CompletedDate}}
  </div>
  <div class="progress">{{percent .PercentComplete}} complete</div>
  {{template "steps" .Steps}}
</body>
</html>
{{define "steps"}}
{{if .}}
<ul class="steps">
  {{range .}}
  <li>
    {{if .Completed}}<span class="done">&#10003;</span>{{else}}<span class="pending">&#9744;</span>{{end}}
    <strong>{{.Verb}}</strong>{{if .Description}}: {{.Description}}{{end}}
    {{if .Asynchronous}}<span class="flag">(async)</span>{{end}}
    {{template "steps" .Children}}
  </li>
  {{end}}
</ul>
{{end}}
{{end}}`
