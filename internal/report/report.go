package report

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"finstat/internal"
	"finstat/internal/storage"
)

const missing = "n/a"

// Entry is one report column: a document and its stored result.
type Entry struct {
	Document internal.Document
	Result   internal.StoredResult
}

// Build renders a markdown comparison table with one column per document and
// one row per metric of the schema. Only selected records are shown.
func Build(entries []Entry, schema []internal.MetricDefinition) string {
	var b strings.Builder
	b.WriteString("# Financial metrics comparison\n\n")
	if len(entries) == 0 {
		b.WriteString("No documents.\n")
		return b.String()
	}

	b.WriteString("| Metric |")
	for _, e := range entries {
		b.WriteString(" " + escapeCell(columnTitle(e.Document)) + " |")
	}
	b.WriteString("\n|---|")
	for range entries {
		b.WriteString("---:|")
	}
	b.WriteString("\n")

	for _, def := range schema {
		b.WriteString("| " + escapeCell(def.StandardName) + " |")
		for _, e := range entries {
			cell := missing
			if m := e.Result.Selected(def.StandardName); m != nil {
				cell = FormatValue(m.ExtractedMetric, def.ValueKind)
				if m.Confidence == internal.ConfidenceLow {
					cell += " (low)"
				}
			}
			b.WriteString(" " + escapeCell(cell) + " |")
		}
		b.WriteString("\n")
	}

	var notes []string
	for _, e := range entries {
		for _, s := range e.Result.Sanity {
			if s.Level == internal.SanityInfo {
				continue
			}
			notes = append(notes, fmt.Sprintf("- **%s** %s: %s", columnTitle(e.Document), s.Level, s.Message))
		}
	}
	if len(notes) > 0 {
		b.WriteString("\n## Sanity checks\n\n")
		b.WriteString(strings.Join(notes, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

// FormatValue renders a value with its currency or percent sign. Amounts are
// in base units.
func FormatValue(m internal.ExtractedMetric, kind internal.ValueKind) string {
	if (m.Unit != nil && *m.Unit == internal.UnitPercent) || kind == internal.KindRatio {
		return strconv.FormatFloat(m.Value, 'f', -1, 64) + "%"
	}
	var s string
	if m.Value == math.Trunc(m.Value) && math.Abs(m.Value) < 1e18 {
		s = humanize.Comma(int64(m.Value))
	} else {
		s = humanize.CommafWithDigits(m.Value, 2)
	}
	if m.Currency != nil && *m.Currency != "" {
		s = *m.Currency + " " + s
	}
	return s
}

// RenderHTML converts report markdown to a standalone HTML page.
func RenderHTML(markdown string) ([]byte, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithXHTML()),
	)
	var body bytes.Buffer
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return nil, eris.Wrap(err, "render report")
	}

	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>Financial metrics comparison</title>\n")
	out.WriteString("<style>body{font-family:sans-serif;margin:2em}table{border-collapse:collapse}th,td{border:1px solid #ccc;padding:4px 8px}</style>\n")
	out.WriteString("</head><body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body></html>\n")
	return out.Bytes(), nil
}

func columnTitle(doc internal.Document) string {
	parts := make([]string, 0, 2)
	if doc.Bank != nil && *doc.Bank != "" {
		parts = append(parts, *doc.Bank)
	}
	if doc.Period != nil && *doc.Period != "" {
		parts = append(parts, *doc.Period)
	}
	if len(parts) == 0 {
		return doc.Name
	}
	return strings.Join(parts, " ")
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// Collect loads the documents and stored results for the given ids, in order.
func Collect(db *storage.DB, ids []string) ([]Entry, error) {
	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		doc, err := db.GetDocument(id)
		if err != nil {
			return nil, err
		}
		result, err := db.GetResult(id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Document: doc, Result: result})
	}
	return entries, nil
}
