package digest

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/mikey/sift-mail/internal/core"
)

// Title heads every rendered digest
const Title = "Sift Mail Digest"

type page struct {
	Title   string
	Account string
	Items   []core.DigestItem
}

var htmlTemplate = htmltemplate.Must(htmltemplate.New("digest").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h2>{{.Title}}</h2>
{{if .Account}}<p>{{.Account}}</p>{{end}}
{{if .Items}}<table border="1" cellpadding="6">
<tr><th>From</th><th>Subject</th><th>Snippet</th><th>Date</th></tr>
{{range .Items}}<tr><td>{{.From}}</td><td>{{.Subject}}</td><td>{{.Snippet}}</td><td>{{.Date}}</td></tr>
{{end}}</table>{{else}}<p>No quarantined messages.</p>{{end}}
</body></html>
`))

var textTemplate = texttemplate.Must(texttemplate.New("digest").Parse(`{{.Title}}{{if .Account}} for {{.Account}}{{end}}

{{range .Items}}- {{.Subject}}
  From: {{.From}}
  Date: {{.Date}}
  {{.Snippet}}

{{else}}No quarantined messages.
{{end}}`))

// RenderHTML renders the digest as an HTML page. Message fields are escaped.
func RenderHTML(account string, items []core.DigestItem) ([]byte, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, page{Title: Title, Account: account, Items: items}); err != nil {
		return nil, fmt.Errorf("failed to render html digest: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderText renders the digest as plain text
func RenderText(account string, items []core.DigestItem) ([]byte, error) {
	var buf bytes.Buffer
	if err := textTemplate.Execute(&buf, page{Title: Title, Account: account, Items: items}); err != nil {
		return nil, fmt.Errorf("failed to render text digest: %w", err)
	}
	return buf.Bytes(), nil
}
