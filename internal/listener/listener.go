package listener

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"finstat/internal"
	"finstat/internal/config"
	"finstat/internal/connectors"
	"finstat/internal/documents"
	"finstat/internal/pipeline"
	"finstat/internal/publish"
	"finstat/internal/storage"
)

type Service struct {
	db        *storage.DB
	cfg       config.Config
	docs      *documents.Service
	processor *pipeline.ProcessingService
	publisher *publish.Client
	log       *zap.Logger
}

func NewService(db *storage.DB, cfg config.Config, schema []internal.MetricDefinition) *Service {
	return &Service{
		db:        db,
		cfg:       cfg,
		docs:      documents.NewService(db, cfg.DataDir),
		processor: pipeline.NewProcessingService(db, cfg, schema),
		publisher: publish.NewClient(cfg),
		log:       zap.L().Named("listener"),
	}
}

type CycleResult struct {
	Mailed    int
	Ingested  int
	Processed int
	Rejected  int
	Failed    int
	Exported  int
	Published int
}

func (s *Service) Run(ctx context.Context) error {
	interval := s.cfg.InboxListenerInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	s.log.Info("listener started", zap.String("inbox", s.cfg.InboxDir), zap.Duration("interval", interval))
	for {
		if _, err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Error("listener cycle error", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// RunCycle performs one pass: optional mail fetch, inbox scan, processing of
// pending documents, then export and publish of what was processed.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult

	if provider := strings.TrimSpace(s.cfg.InboxListenerProvider); provider != "" {
		conn, err := connectors.New(ctx, provider, s.cfg)
		if err != nil {
			return res, err
		}
		fetch := connectors.NewFetchService(s.db, filepath.Join(s.cfg.DataDir, "raw"), conn, s.docs)
		fetched, err := fetch.FetchAndStore(ctx, s.cfg.InboxListenerLabel, s.cfg.InboxListenerFetchMax)
		if err != nil {
			return res, err
		}
		res.Mailed = fetched.Documents
	}

	ingested, err := s.ingestInbox(ctx)
	if err != nil {
		return res, err
	}
	res.Ingested = ingested

	summary, err := s.processor.ProcessPending(ctx, s.cfg.InboxListenerProcessBatch)
	if err != nil {
		return res, err
	}
	res.Processed = summary.Processed
	res.Rejected = summary.Rejected
	res.Failed = summary.Failed

	for _, pr := range summary.Results {
		if pr.Status != internal.StatusProcessed {
			continue
		}
		if s.cfg.InboxListenerAutoPublish && s.publisher.Enabled() {
			if err := s.publish(ctx, pr.DocumentID); err != nil {
				s.log.Warn("publish failed", zap.String("document_id", pr.DocumentID), zap.Error(err))
			} else {
				res.Published++
			}
		}
		if s.cfg.InboxListenerAutoExport {
			if err := s.export(pr.DocumentID); err != nil {
				return res, err
			}
			res.Exported++
		}
	}

	s.log.Info("listener cycle done",
		zap.Int("mailed", res.Mailed),
		zap.Int("ingested", res.Ingested),
		zap.Int("processed", res.Processed),
		zap.Int("rejected", res.Rejected),
		zap.Int("failed", res.Failed),
		zap.Int("exported", res.Exported),
	)
	return res, nil
}

// ingestInbox registers every regular file in the inbox directory and moves
// it to done/. Unsupported files go to rejected/ so they are not retried.
func (s *Service) ingestInbox(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.cfg.InboxDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	added := 0
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(s.cfg.InboxDir, e.Name())
		_, created, err := s.docs.AddFile(ctx, path, nil, nil, "inbox")
		target := "done"
		if errors.Is(err, documents.ErrUnsupported) || errors.Is(err, documents.ErrInvalidPDF) {
			s.log.Warn("inbox file rejected", zap.String("file", e.Name()), zap.Error(err))
			target = "rejected"
		} else if err != nil {
			return added, err
		}
		if created {
			added++
		}
		if err := moveInto(path, filepath.Join(s.cfg.InboxDir, target)); err != nil {
			return added, err
		}
	}
	return added, nil
}

func (s *Service) export(documentID string) error {
	ids := []string{documentID}
	rows, err := s.db.GetExportRows(ids)
	if err != nil {
		return err
	}
	sanity, err := s.db.GetSanityRows(ids)
	if err != nil {
		return err
	}
	out := filepath.Join(s.cfg.OutputDir, "listener", documentID+".xlsx")
	if err := pipeline.ExportResultsToXLSX(rows, sanity, out); err != nil {
		return err
	}
	return s.db.UpdateDocumentStatus(documentID, internal.StatusExported)
}

func (s *Service) publish(ctx context.Context, documentID string) error {
	doc, err := s.db.GetDocument(documentID)
	if err != nil {
		return err
	}
	result, err := s.db.GetResult(documentID)
	if err != nil {
		return err
	}
	_, err = s.publisher.Publish(ctx, doc, result)
	return err
}

func moveInto(path, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(dir, filepath.Base(path)))
}
