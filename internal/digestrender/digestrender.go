// Package digestrender renders the daily digest email body: no
// provider glue, no templating engine dependency, just a pure function
// of model.AccumulatorFile in and an HTML string out.
package digestrender

import (
	"fmt"
	"html"
	"strings"
	"time"

	"mailtriage/internal/model"
)

// Render produces the HTML body for acc. It never errors: an empty
// accumulator renders an empty-state body. The daily digest gate never
// calls Render on an empty accumulator, but an active run that found
// nothing gets this body in its completion email.
func Render(acc model.AccumulatorFile, addonName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>%s daily digest</h1>\n", html.EscapeString(addonName))
	fmt.Fprintf(&b, "<p>%d messages processed, %s to %s.</p>\n",
		acc.TotalProcessed, formatDate(acc.FirstDate), formatDate(acc.LastDate))

	renderSection(&b, "Must do", acc.MustDo)
	renderSection(&b, "Must know", acc.MustKnow)

	return b.String()
}

func renderSection(b *strings.Builder, title string, findings []model.Finding) {
	fmt.Fprintf(b, "<h2>%s (%d)</h2>\n", html.EscapeString(title), len(findings))
	if len(findings) == 0 {
		b.WriteString("<p><em>Nothing here.</em></p>\n")
		return
	}
	b.WriteString("<ul>\n")
	for _, f := range findings {
		action := f.KeyAction
		if action == "" {
			action = f.KeyKnowledge
		}
		fmt.Fprintf(b, "<li><strong>%s</strong> — %s (%s): %s</li>\n",
			html.EscapeString(f.Subject),
			html.EscapeString(f.Sender),
			html.EscapeString(f.Topic),
			html.EscapeString(action),
		)
	}
	b.WriteString("</ul>\n")
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "?"
	}
	return t.Format("2006-01-02")
}
