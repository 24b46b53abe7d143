package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"finstat/internal"
	"finstat/internal/config"
	"finstat/internal/storage"
)

const sampleReport = "Annual Report 2024\fConsolidated balance sheet ($m)\nTotal assets 1,080,248\nTotal liabilities 1,000,000\nTotal equity 80,248\fKey ratios\nCET1 ratio 12.8%\nNet interest income 16,757 $m"

func testSchema() []internal.MetricDefinition {
	return []internal.MetricDefinition{
		{StandardName: "total_assets", CandidateLabels: []string{"total assets"}, ValueKind: internal.KindAmount},
		{StandardName: "total_liabilities", CandidateLabels: []string{"total liabilities"}, ValueKind: internal.KindAmount},
		{StandardName: "total_equity", CandidateLabels: []string{"total equity"}, ValueKind: internal.KindAmount},
		{StandardName: "cet1_ratio", CandidateLabels: []string{"cet1 ratio"}, ValueKind: internal.KindRatio},
		{StandardName: "net_interest_margin", CandidateLabels: []string{"net interest margin"}, ValueKind: internal.KindRatio},
	}
}

func testConfig() config.Config {
	return config.Config{
		DefaultDollarCurrency: "USD",
		KeepAlternates:        true,
		BalanceTolerance:      0.05,
		FinancialDocThreshold: 0.3,
		Workers:               2,
	}
}

func setup(t *testing.T) (*storage.DB, *ProcessingService, string) {
	t.Helper()
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, NewProcessingService(db, testConfig(), testSchema()), tmp
}

func addTextDoc(t *testing.T, db *storage.DB, dir, id, body string) internal.Document {
	t.Helper()
	path := filepath.Join(dir, id+".txt")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err := db.InsertDocument(internal.Document{ID: id, Name: id + ".txt", Kind: internal.DocText, Path: path, Hash: id, Source: "test"})
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestSmokeDocumentToXLSX(t *testing.T) {
	db, proc, tmp := setup(t)
	addTextDoc(t, db, tmp, "doc-1", sampleReport)

	res, err := proc.ProcessDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != internal.StatusProcessed || res.NumMetrics != 4 || res.Counts["notFound"] != 1 {
		t.Fatalf("res=%+v", res)
	}

	stored, err := db.GetResult("doc-1")
	if err != nil {
		t.Fatal(err)
	}
	assets := stored.Selected("total_assets")
	if assets == nil || assets.Value != 1_080_248e6 || assets.SourcePage != 2 {
		t.Fatalf("assets=%+v", assets)
	}
	doc, _ := db.GetDocument("doc-1")
	if doc.Pages != 3 || doc.Status != internal.StatusProcessed {
		t.Fatalf("doc=%+v", doc)
	}
	if n, _ := db.CountRuns("doc-1"); n != 1 {
		t.Fatalf("runs=%d", n)
	}

	rows, err := db.GetExportRows([]string{"doc-1"})
	if err != nil {
		t.Fatal(err)
	}
	sanity, err := db.GetSanityRows([]string{"doc-1"})
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(tmp, "out", "result.xlsx")
	if err := ExportResultsToXLSX(rows, sanity, out); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	metricRows, _ := f.GetRows("metrics")
	if len(metricRows) != len(rows)+1 || metricRows[0][5] != "metric_name" {
		t.Fatalf("metrics sheet=%v", metricRows)
	}
	sanityRows, _ := f.GetRows("sanity")
	if len(sanityRows) != len(sanity)+1 {
		t.Fatalf("sanity sheet=%v", sanityRows)
	}
}

func TestProcessRejectsNonFinancial(t *testing.T) {
	db, proc, tmp := setup(t)
	addTextDoc(t, db, tmp, "menu", "Lunch menu\nTotal assets of the kitchen 3")

	res, err := proc.ProcessDocument(context.Background(), "menu")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != internal.StatusRejected {
		t.Fatalf("res=%+v", res)
	}
	stored, _ := db.GetResult("menu")
	if len(stored.Items) != 0 {
		t.Fatalf("rejected document must not be extracted")
	}
}

func TestProcessIsRepeatable(t *testing.T) {
	db, proc, tmp := setup(t)
	addTextDoc(t, db, tmp, "doc-1", sampleReport)

	for i := 0; i < 2; i++ {
		if _, err := proc.ProcessDocument(context.Background(), "doc-1"); err != nil {
			t.Fatal(err)
		}
	}
	first, _ := db.GetResult("doc-1")
	if _, err := proc.ProcessDocument(context.Background(), "doc-1"); err != nil {
		t.Fatal(err)
	}
	second, _ := db.GetResult("doc-1")
	if len(first.Items) != len(second.Items) || len(first.Sanity) != len(second.Sanity) {
		t.Fatalf("reprocessing changed the result")
	}
}

func TestProcessPending(t *testing.T) {
	db, proc, tmp := setup(t)
	addTextDoc(t, db, tmp, "a", sampleReport)
	addTextDoc(t, db, tmp, "b", "Lunch menu")
	missing, err := db.InsertDocument(internal.Document{ID: "c", Name: "c.pdf", Kind: internal.DocPDF, Path: filepath.Join(tmp, "gone.pdf"), Hash: "c", Source: "test"})
	if err != nil {
		t.Fatal(err)
	}

	summary, err := proc.ProcessPending(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Documents != 3 || summary.Processed != 1 || summary.Rejected != 1 || summary.Failed != 1 {
		t.Fatalf("summary=%+v", summary)
	}
	doc, _ := db.GetDocument(missing.ID)
	if doc.Status != internal.StatusFailed {
		t.Fatalf("status=%s", doc.Status)
	}

	again, err := proc.ProcessPending(context.Background(), 10)
	if err != nil || again.Documents != 0 {
		t.Fatalf("again=%+v err=%v", again, err)
	}
}

func TestRunFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	if err := os.WriteFile(path, []byte(sampleReport), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := RunFile(context.Background(), testConfig().ExtractorOptions(), testSchema(), internal.DocText, path)
	if err != nil {
		t.Fatal(err)
	}
	cet1 := res.Selected("cet1_ratio")
	if cet1 == nil || cet1.Value != 12.8 {
		t.Fatalf("cet1=%+v", cet1)
	}

	rows, sanity := ExportRows("report.txt", res)
	if len(rows) != len(res.Items) || len(sanity) != len(res.Sanity) {
		t.Fatalf("rows=%d sanity=%d", len(rows), len(sanity))
	}
	for _, row := range rows {
		if row.MetricName == "cet1_ratio" && row.Selected && (row.Unit == nil || *row.Unit != "percent") {
			t.Fatalf("row=%+v", row)
		}
	}
	if err := ExportResultsToXLSX(rows, sanity, filepath.Join(filepath.Dir(path), "run.xlsx")); err != nil {
		t.Fatal(err)
	}
}

func TestCountResult(t *testing.T) {
	res := internal.ExtractionResult{Items: []internal.ExtractedMetric{
		{MetricName: "total_assets", Confidence: internal.ConfidenceHigh, Selected: true},
		{MetricName: "total_assets", Confidence: internal.ConfidenceLow},
	}}
	counts := CountResult(res, testSchema())
	if counts["high"] != 1 || counts["alternates"] != 1 || counts["notFound"] != 4 {
		t.Fatalf("counts=%v", counts)
	}
}
