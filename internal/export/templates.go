package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"

	"github.com/ankushKun/commentkit-sub001/internal/thread"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate = template.Must(
	template.New("report.html").Funcs(template.FuncMap{
		"formatDate": func(t time.Time) string {
			return t.UTC().Format("Jan 2, 2006 15:04 MST")
		},
		"author": func(a thread.Author) string {
			if a == nil {
				return "unknown"
			}
			return a.DisplayName()
		},
	}).ParseFS(templateFS, "templates/report.html"),
)

// RenderReportHTML renders the report template.
func RenderReportHTML(report Report) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}
