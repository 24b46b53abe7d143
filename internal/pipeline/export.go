package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"finstat/internal"
)

const (
	metricsSheet = "metrics"
	sanitySheet  = "sanity"
)

// ExportResultsToXLSX writes stored extractions to a workbook with a metrics
// sheet and a sanity sheet.
func ExportResultsToXLSX(rows []internal.MetricExportRow, sanity []internal.SanityExportRow, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), metricsSheet); err != nil {
		return eris.Wrap(err, "rename sheet")
	}
	if _, err := f.NewSheet(sanitySheet); err != nil {
		return eris.Wrap(err, "create sanity sheet")
	}

	headers := []string{
		"document_id", "document_name", "bank", "period",
		"extraction_id", "metric_name", "value", "raw_value_text", "unit", "currency",
		"source_page", "confidence", "flags", "matched_label", "selected", "context",
		"review_status", "reviewer", "review_note",
	}
	writeRow(f, metricsSheet, 1, toAny(headers))

	for i, row := range rows {
		writeRow(f, metricsSheet, i+2, []any{
			row.DocumentID,
			row.DocumentName,
			derefString(row.Bank),
			derefString(row.Period),
			row.ExtractionID,
			row.MetricName,
			row.Value,
			row.RawValueText,
			derefString(row.Unit),
			derefString(row.Currency),
			row.SourcePage,
			row.Confidence,
			row.Flags,
			row.MatchedLabel,
			row.Selected,
			row.ContextLine,
			derefString(row.ReviewStatus),
			derefString(row.Reviewer),
			derefString(row.ReviewNote),
		})
	}

	writeRow(f, sanitySheet, 1, []any{"document_id", "level", "message"})
	for i, row := range sanity {
		writeRow(f, sanitySheet, i+2, []any{row.DocumentID, row.Level, row.Message})
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

// ExportRows flattens an unsaved result for the one-shot run path. Extraction
// ids are the item positions, starting at 1.
func ExportRows(name string, result internal.ExtractionResult) ([]internal.MetricExportRow, []internal.SanityExportRow) {
	rows := make([]internal.MetricExportRow, 0, len(result.Items))
	for i, it := range result.Items {
		row := internal.MetricExportRow{
			DocumentName: name,
			ExtractionID: int64(i + 1),
			MetricName:   it.MetricName,
			Value:        it.Value,
			RawValueText: it.RawValueText,
			Currency:     it.Currency,
			SourcePage:   it.SourcePage,
			Confidence:   string(it.Confidence),
			Flags:        strings.Join(it.Flags, ","),
			MatchedLabel: it.MatchedLabel,
			Selected:     it.Selected,
			ContextLine:  it.Context.Current,
		}
		if it.Unit != nil {
			unit := string(*it.Unit)
			row.Unit = &unit
		}
		rows = append(rows, row)
	}
	sanity := make([]internal.SanityExportRow, 0, len(result.Sanity))
	for _, s := range result.Sanity {
		sanity = append(sanity, internal.SanityExportRow{Level: string(s.Level), Message: s.Message})
	}
	return rows, sanity
}

func writeRow(f *excelize.File, sheet string, r int, values []any) {
	for col, value := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, r)
		_ = f.SetCellValue(sheet, cell, value)
	}
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
