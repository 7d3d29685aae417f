// Package report renders a human readable summary of a run as Markdown and
// HTML.
package report

import (
	"bytes"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"git.home.luguber.info/inful/pkgindex/internal/manifest"
)

// Markdown renders the run summary of m.
func Markdown(m *manifest.RunManifest) []byte {
	var b bytes.Buffer

	fmt.Fprintf(&b, "# pkgindex run %s\n\n", m.ID)
	b.WriteString("| | |\n|---|---|\n")
	row(&b, "Board", m.Board)
	row(&b, "Status", m.Status)
	row(&b, "Started", m.Started.Format(time.RFC3339))
	row(&b, "Duration", (time.Duration(m.Duration) * time.Millisecond).String())
	row(&b, "Packages", fmt.Sprint(m.Counts.Packages))
	row(&b, "Skipped", fmt.Sprint(m.Counts.Skipped))
	row(&b, "Compile commands", fmt.Sprint(m.Counts.CompileCommands))
	row(&b, "GN targets", fmt.Sprint(m.Counts.Targets))
	row(&b, "Conflicts", fmt.Sprint(m.Counts.Conflicts))
	if m.Error != "" {
		row(&b, "Error", m.Error)
	}

	var indexed, skipped []manifest.PackageRecord
	for _, p := range m.Packages {
		if p.Skipped {
			skipped = append(skipped, p)
		} else {
			indexed = append(indexed, p)
		}
	}

	if len(indexed) > 0 {
		b.WriteString("\n## Packages\n\n| Package | Build dir | Volatile | Source commits |\n|---|---|---|---|\n")
		for _, p := range indexed {
			row(&b, p.Name, p.BuildDir, yesNo(p.Volatile), commits(p.SourceCommits))
		}
	}

	if len(skipped) > 0 {
		b.WriteString("\n## Skipped packages\n\n| Package | Stage | Reason |\n|---|---|---|\n")
		for _, p := range skipped {
			row(&b, p.Name, p.Stage, p.Error)
		}
	}

	if len(m.Conflicts) > 0 {
		b.WriteString("\n## Build output conflicts\n\n| Original | Renamed |\n|---|---|\n")
		originals := make([]string, 0, len(m.Conflicts))
		for o := range m.Conflicts {
			originals = append(originals, o)
		}
		sort.Strings(originals)
		for _, o := range originals {
			row(&b, o, m.Conflicts[o])
		}
	}

	if len(m.Outputs) > 0 {
		b.WriteString("\n## Outputs\n\n| File | SHA-256 |\n|---|---|\n")
		for _, o := range m.Outputs {
			row(&b, o.Path, o.SHA256)
		}
	}
	return b.Bytes()
}

// HTML converts a Markdown report into a standalone HTML page.
func HTML(title string, markdown []byte) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))

	var body bytes.Buffer
	if err := md.Convert(markdown, &body); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	var page bytes.Buffer
	fmt.Fprintf(&page, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n", html.EscapeString(title))
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

// Render returns the Markdown and HTML reports of m.
func Render(m *manifest.RunManifest) (markdown, page []byte, err error) {
	markdown = Markdown(m)
	page, err = HTML("pkgindex run "+m.ID, markdown)
	return markdown, page, err
}

func row(b *bytes.Buffer, cells ...string) {
	b.WriteString("|")
	for _, c := range cells {
		b.WriteString(" ")
		b.WriteString(cell(c))
		b.WriteString(" |")
	}
	b.WriteString("\n")
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func commits(c map[string]string) string {
	dirs := make([]string, 0, len(c))
	for d := range c {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	parts := make([]string, 0, len(dirs))
	for _, d := range dirs {
		sha := c[d]
		if len(sha) > 12 {
			sha = sha[:12]
		}
		parts = append(parts, "`"+sha+"` "+d)
	}
	return strings.Join(parts, ", ")
}
