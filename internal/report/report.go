// Package report renders a review ranking as HTML or Markdown for humans.
package report

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/starford/workboard/internal/rank"
)

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Review queue</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.3em 0.8em; text-align: left; }
tr.blocked { background: #fff3f3; }
</style>
</head>
<body>
<h1>Review queue</h1>
<p>Generated {{.GeneratedAt.Format "2006-01-02 15:04 MST"}} &middot; {{len .Rows}} units</p>
<table>
<tr><th>#</th><th>Unit</th><th>Title</th><th>Latency (days)</th><th>Blockers</th><th>Oldest thread</th></tr>
{{- range .Rows}}
<tr{{if .Blocked}} class="blocked"{{end}}>
<td>{{.Position}}</td>
<td>{{.Ref}}</td>
<td>{{.Title}}</td>
<td>{{.Latency}}</td>
<td>{{.Blockers}}</td>
<td>{{.Thread}}</td>
</tr>
{{- end}}
</table>
</body>
</html>
`

var tmpl = template.Must(template.New("ranking").Parse(htmlTemplate))

type row struct {
	Position int
	Ref      string
	Title    string
	Latency  int
	Blockers int
	Thread   string
	Blocked  bool
}

type page struct {
	GeneratedAt time.Time
	Rows        []row
}

func buildRows(items []rank.Item, now time.Time) []row {
	rows := make([]row, 0, len(items))
	for i, it := range items {
		thread := ""
		if !it.OldestThread.IsZero() {
			thread = fmt.Sprintf("%dd", int(now.Sub(it.OldestThread).Hours()/24))
		}
		rows = append(rows, row{
			Position: i + 1,
			Ref:      it.Unit.Ref().String(),
			Title:    it.Unit.Primary.Title,
			Latency:  it.LatencyDays(now),
			Blockers: it.Unit.UnresolvedBlockers,
			Thread:   thread,
			Blocked:  it.Unit.UnresolvedBlockers > 0,
		})
	}
	return rows
}

// WriteHTML renders the ranked items as a standalone HTML page.
func WriteHTML(w io.Writer, items []rank.Item, now time.Time) error {
	if err := tmpl.Execute(w, page{GeneratedAt: now, Rows: buildRows(items, now)}); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}
	return nil
}

// WriteMarkdown renders the ranked items as a Markdown table, suitable for
// pasting into chat or a tracker comment.
func WriteMarkdown(w io.Writer, items []rank.Item, now time.Time) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Review queue\n\n")
	fmt.Fprintf(&b, "Generated %s, %d units\n\n", now.Format("2006-01-02 15:04 MST"), len(items))
	b.WriteString("| # | Unit | Title | Latency (days) | Blockers | Oldest thread |\n")
	b.WriteString("|---|------|-------|----------------|----------|---------------|\n")
	for _, r := range buildRows(items, now) {
		fmt.Fprintf(&b, "| %d | %s | %s | %d | %d | %s |\n",
			r.Position, r.Ref, escapePipes(r.Title), r.Latency, r.Blockers, r.Thread)
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("report: render markdown: %w", err)
	}
	return nil
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
