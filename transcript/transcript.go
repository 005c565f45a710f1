// Package transcript renders panel logs for export.
//
// Markdown output keeps each panel as its own section with the reply text
// verbatim, so model-produced Markdown (code fences, tables, lists) survives.
// HTML output runs that Markdown through goldmark with GFM enabled and lays
// the panels out side by side.
package transcript

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/linanwx/triptych/provider"
	"github.com/linanwx/triptych/session"
)

const title = "Triptych transcript"

// Heading returns the section title used for a panel.
func Heading(s session.Snapshot) string {
	return fmt.Sprintf("Panel %d: %s / %s", s.Slot, s.Provider, s.Model)
}

// Markdown renders every snapshot as one Markdown document.
func Markdown(snapshots []session.Snapshot) string {
	var b strings.Builder
	b.WriteString("# " + title + "\n\n")
	for i, s := range snapshots {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		writePanel(&b, s)
	}
	return b.String()
}

func writePanel(b *strings.Builder, s session.Snapshot) {
	b.WriteString("## " + Heading(s) + "\n\n")
	if len(s.Messages) == 0 {
		b.WriteString("_No messages._\n")
		return
	}
	for _, m := range s.Messages {
		fmt.Fprintf(b, "**%s:**\n\n", speaker(m.Role))
		content := strings.TrimRight(m.Content, "\n")
		if content == "" {
			content = "_(empty)_"
		}
		b.WriteString(content + "\n\n")
	}
}

func speaker(role provider.Role) string {
	switch role {
	case provider.RoleUser:
		return "You"
	case provider.RoleSystem:
		return "System"
	default:
		return "Assistant"
	}
}

// HTML renders every snapshot into a standalone HTML page.
func HTML(snapshots []session.Snapshot) (string, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
	)

	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&out, "<title>%s</title>\n", title)
	out.WriteString("<style>" + pageStyle + "</style>\n</head>\n<body>\n")
	fmt.Fprintf(&out, "<h1>%s</h1>\n<div class=\"panels\">\n", title)

	for _, s := range snapshots {
		var panel strings.Builder
		writePanel(&panel, s)

		var rendered bytes.Buffer
		if err := md.Convert([]byte(panel.String()), &rendered); err != nil {
			return "", fmt.Errorf("render panel %d: %w", s.Slot, err)
		}
		fmt.Fprintf(&out, "<section class=\"panel\" data-session=\"%s\">\n", html.EscapeString(s.SessionID))
		out.Write(rendered.Bytes())
		out.WriteString("</section>\n")
	}

	out.WriteString("</div>\n</body>\n</html>\n")
	return out.String(), nil
}

const pageStyle = `
body { font-family: sans-serif; margin: 1.5em; }
.panels { display: flex; gap: 1em; align-items: flex-start; }
.panel { flex: 1; min-width: 0; border: 1px solid #ccc; border-radius: 6px; padding: 0 1em; }
pre { overflow-x: auto; background: #f5f5f5; padding: .5em; }
`
