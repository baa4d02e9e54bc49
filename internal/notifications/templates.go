package notifications

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/yuin/goldmark"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/angelmondragon/clubpay-backend/pkg/money"
)

// Bodies are written in Markdown and rendered once per send. Raw HTML in
// substituted values is dropped by the renderer.
var markdown = goldmark.New(goldmark.WithRendererOptions(goldmarkhtml.WithHardWraps()))

var templates = template.Must(template.New("notifications").Funcs(template.FuncMap{
	"gbp":  money.FormatGBP,
	"date": func(t time.Time) string { return t.UTC().Format("2 January 2006") },
}).Parse(`
{{define "membership"}}# Thanks for your payment

{{if .IsNew}}Welcome to the club! Your **{{.Type}}** membership is now active.{{else}}Your **{{.Type}}** membership has been renewed.{{end}}

- Amount paid: {{gbp .AmountPence}}
- Paid until: {{date .PaidUntil}}
{{end}}

{{define "sponsorship"}}# New game sponsorship

**{{.SponsorName}}** has paid to sponsor game ` + "`{{.GameID}}`" + ` ({{.Season}}).

- Amount: {{gbp .AmountPence}}
- Contact: {{if .Email}}{{.Email}}{{else}}no email on the payment{{end}}
{{if .Duplicate}}
Duplicate sponsorship for this season: a charge for this payment already exists.
{{end}}{{end}}

{{define "receipt"}}# Payment received

We have recorded your payment for:
{{range .Lines}}
- {{.Description}}: {{gbp .AmountPence}}{{end}}

Total: **{{gbp .TotalPence}}**
{{if .Juniors}}
Junior memberships now active for: {{range $i, $name := .Juniors}}{{if $i}}, {{end}}{{$name}}{{end}}.
{{end}}{{end}}
`))

func render(name string, data any) (string, error) {
	var md bytes.Buffer
	if err := templates.ExecuteTemplate(&md, name, data); err != nil {
		return "", fmt.Errorf("execute %s template: %w", name, err)
	}
	var html bytes.Buffer
	if err := markdown.Convert(md.Bytes(), &html); err != nil {
		return "", fmt.Errorf("render %s markdown: %w", name, err)
	}
	return html.String(), nil
}
