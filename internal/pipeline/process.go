package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finstat/internal"
	"finstat/internal/config"
	"finstat/internal/extractor"
	"finstat/internal/storage"
)

type ProcessingService struct {
	db     *storage.DB
	cfg    config.Config
	schema []internal.MetricDefinition
	engine *extractor.Engine
	log    *zap.Logger
}

func NewProcessingService(db *storage.DB, cfg config.Config, schema []internal.MetricDefinition) *ProcessingService {
	return &ProcessingService{
		db:     db,
		cfg:    cfg,
		schema: schema,
		engine: extractor.New(cfg.ExtractorOptions()),
		log:    zap.L().Named("pipeline"),
	}
}

func (s *ProcessingService) Schema() []internal.MetricDefinition {
	return s.schema
}

type ProcessResult struct {
	DocumentID string                  `json:"document_id"`
	TraceID    string                  `json:"trace_id"`
	Status     internal.DocumentStatus `json:"status"`
	NumMetrics int                     `json:"num_metrics"`
	Counts     map[string]int          `json:"counts"`
	Detect     DetectResult            `json:"detect"`
}

type ProcessSummary struct {
	Documents int             `json:"documents"`
	Processed int             `json:"processed"`
	Rejected  int             `json:"rejected"`
	Failed    int             `json:"failed"`
	Results   []ProcessResult `json:"results"`
}

// ProcessDocument extracts metrics from a stored document, replacing any
// earlier result. Documents that do not read like financial reports are
// marked rejected without extraction.
func (s *ProcessingService) ProcessDocument(ctx context.Context, id string) (ProcessResult, error) {
	doc, err := s.db.GetDocument(id)
	if err != nil {
		return ProcessResult{}, err
	}

	start := time.Now()
	trace := uuid.NewString()
	log := s.log.With(zap.String("document_id", doc.ID), zap.String("trace_id", trace))
	timings := map[string]float64{}

	pages, err := LoadPages(doc.Kind, doc.Path)
	if err != nil {
		s.fail(doc.ID, trace, start, log, err)
		return ProcessResult{}, err
	}
	timings["loadMs"] = float64(time.Since(start).Milliseconds())
	if doc.Pages != len(pages) {
		_ = s.db.UpdateDocumentPages(doc.ID, len(pages))
	}

	detect := DetectFinancialDocument(pages, s.cfg.FinancialDocThreshold)
	res := ProcessResult{DocumentID: doc.ID, TraceID: trace, Detect: detect, Counts: map[string]int{}}
	if !detect.IsFinancial {
		if err := s.db.ReplaceResult(doc.ID, internal.ExtractionResult{}); err != nil {
			return ProcessResult{}, err
		}
		if err := s.db.UpdateDocumentStatus(doc.ID, internal.StatusRejected); err != nil {
			return ProcessResult{}, err
		}
		timings["totalMs"] = float64(time.Since(start).Milliseconds())
		_ = s.db.InsertRun(trace, doc.ID, timings, res.Counts)
		log.Info("document rejected", zap.Float64("score", detect.Score))
		res.Status = internal.StatusRejected
		return res, nil
	}

	extractStart := time.Now()
	result, err := s.engine.Extract(ctx, pages, s.schema)
	if err != nil {
		s.fail(doc.ID, trace, start, log, err)
		return ProcessResult{}, err
	}
	timings["extractMs"] = float64(time.Since(extractStart).Milliseconds())

	if err := s.db.ReplaceResult(doc.ID, result); err != nil {
		return ProcessResult{}, err
	}
	if err := s.db.UpdateDocumentStatus(doc.ID, internal.StatusProcessed); err != nil {
		return ProcessResult{}, err
	}

	res.Counts = CountResult(result, s.schema)
	res.NumMetrics = len(s.schema) - res.Counts["notFound"]
	res.Status = internal.StatusProcessed
	timings["totalMs"] = float64(time.Since(start).Milliseconds())
	_ = s.db.InsertRun(trace, doc.ID, timings, res.Counts)

	log.Info("document processed",
		zap.Int("pages", len(pages)),
		zap.Int("metrics", res.NumMetrics),
		zap.Int("items", len(result.Items)),
		zap.Int("sanity", len(result.Sanity)),
	)
	return res, nil
}

func (s *ProcessingService) fail(id, trace string, start time.Time, log *zap.Logger, cause error) {
	log.Error("document failed", zap.Error(cause))
	_ = s.db.UpdateDocumentStatus(id, internal.StatusFailed)
	_ = s.db.InsertRun(trace, id, map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())}, map[string]int{"failed": 1})
}

// ProcessPending processes up to limit pending documents on WORKERS
// goroutines. A failing document is recorded and does not stop the batch.
func (s *ProcessingService) ProcessPending(ctx context.Context, limit int) (ProcessSummary, error) {
	pending, err := s.db.ListDocumentsByStatus(internal.StatusPending, limit)
	if err != nil {
		return ProcessSummary{}, eris.Wrap(err, "list pending documents")
	}

	summary := ProcessSummary{Documents: len(pending), Results: []ProcessResult{}}
	results := make([]*ProcessResult, len(pending))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, doc := range pending {
		i, doc := i, doc
		g.Go(func() error {
			res, err := s.ProcessDocument(gctx, doc.ID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				mu.Lock()
				summary.Failed++
				mu.Unlock()
				return nil
			}
			results[i] = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	for _, res := range results {
		if res == nil {
			continue
		}
		switch res.Status {
		case internal.StatusProcessed:
			summary.Processed++
		case internal.StatusRejected:
			summary.Rejected++
		}
		summary.Results = append(summary.Results, *res)
	}
	return summary, nil
}

// CountResult tallies selected records by confidence and the metrics that
// were not found.
func CountResult(result internal.ExtractionResult, schema []internal.MetricDefinition) map[string]int {
	counts := map[string]int{"high": 0, "medium": 0, "low": 0, "notFound": 0, "alternates": 0}
	for _, it := range result.Items {
		if !it.Selected {
			counts["alternates"]++
			continue
		}
		counts[string(it.Confidence)]++
	}
	for _, def := range schema {
		if result.Selected(def.StandardName) == nil {
			counts["notFound"]++
		}
	}
	return counts
}
