package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

// threadTemplate is parsed once at startup. The file is compiled in, so a
// parse failure is a programming error.
var threadTemplate = template.Must(
	template.New("thread.html").Funcs(template.FuncMap{
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"safeHTML": func(v any) template.HTML {
			switch s := v.(type) {
			case template.HTML:
				return s
			case string:
				return template.HTML(s)
			default:
				return ""
			}
		},
	}).ParseFS(templateFS, "templates/thread.html"),
)

// TemplateData carries everything the thread page renders.
type TemplateData struct {
	Title        string
	SourceTitle  string
	OriginURL    string
	Author       string
	CommentCount int
	GeneratedAt  time.Time
	TreeHTML     template.HTML
}

// RenderThreadHTML renders the standalone thread page.
func RenderThreadHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := threadTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
