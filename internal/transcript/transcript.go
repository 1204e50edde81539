// ABOUTME: Renders a conversation record as a standalone HTML transcript
// ABOUTME: Message bodies are treated as Markdown and converted with goldmark

package transcript

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/coven-sync/internal/conversation"
)

// md renders untrusted chat content. Raw HTML in messages is dropped since
// the default renderer is not put in unsafe mode.
var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

var page = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,sans-serif;max-width:46rem;margin:2rem auto;padding:0 1rem;color:#1f2328}
.msg{border-top:1px solid #d0d7de;padding:.75rem 0}
.meta{font-size:.8rem;color:#656d76}
.user .meta b{color:#0969da}
.agent .meta b{color:#8250df}
ul.attachments{font-size:.85rem}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{with .Description}}<p>{{.}}</p>{{end}}
{{with .Summary}}<blockquote>{{.}}</blockquote>{{end}}
{{range .Messages}}<div class="msg {{.Role}}">
<div class="meta"><b>{{.Author}}</b> {{.Timestamp}}</div>
{{.Body}}
{{with .Attachments}}<ul class="attachments">{{range .}}<li>{{if .URL}}<a href="{{.URL}}">{{.Name}}</a>{{else}}{{.Name}}{{end}} ({{.Detail}})</li>{{end}}</ul>{{end}}
</div>
{{else}}<p>No messages.</p>
{{end}}
</body>
</html>
`))

type pageData struct {
	Title       string
	Description string
	Summary     string
	Messages    []messageView
}

type messageView struct {
	Role        string
	Author      string
	Timestamp   string
	Body        template.HTML
	Attachments []attachmentView
}

type attachmentView struct {
	Name   string
	URL    string
	Detail string
}

// Render writes rec as an HTML document. fallbackName labels the agent when
// the record carries no name.
func Render(w io.Writer, rec conversation.Record, fallbackName string) error {
	agentName := fallbackName
	if rec.AgentName != nil && *rec.AgentName != "" {
		agentName = *rec.AgentName
	}

	data := pageData{
		Title:       agentName,
		Description: deref(rec.AgentDescription),
		Summary:     strings.TrimSpace(deref(rec.Summary)),
	}

	for _, m := range rec.Messages {
		body, err := markdown(m.Content)
		if err != nil {
			return fmt.Errorf("rendering message %s: %w", m.ID, err)
		}

		author := "You"
		if m.Author == conversation.RoleAgent {
			author = agentName
		}
		view := messageView{
			Role:      string(m.Author),
			Author:    author,
			Timestamp: m.Timestamp,
			Body:      body,
		}
		for _, a := range m.Attachments {
			view.Attachments = append(view.Attachments, attachmentView{
				Name:   a.Name,
				URL:    deref(a.URL),
				Detail: describe(a),
			})
		}
		data.Messages = append(data.Messages, view)
	}

	if err := page.Execute(w, data); err != nil {
		return fmt.Errorf("executing transcript template: %w", err)
	}
	return nil
}

func markdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func describe(a conversation.Attachment) string {
	parts := []string{a.MimeType, humanSize(a.Size)}
	if a.Kind == conversation.AttachmentAudio && a.DurationSeconds != nil {
		parts = append(parts, fmt.Sprintf("%.1fs", *a.DurationSeconds))
	}
	return strings.Join(parts, ", ")
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
