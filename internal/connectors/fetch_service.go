package connectors

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"finstat/internal/documents"
	"finstat/internal/pipeline"
	"finstat/internal/storage"
)

const (
	EmailFetched       = "fetched"
	EmailProcessed     = "processed"
	EmailNoAttachments = "no_attachments"
	EmailFailed        = "failed"
)

type FetchService struct {
	db        *storage.DB
	connector MailConnector
	store     *MailStoreService
	docs      *documents.Service
	log       *zap.Logger
}

type FetchResult struct {
	Fetched    int `json:"fetched"`
	Stored     int `json:"stored"`
	Documents  int `json:"documents"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector, docs *documents.Service) *FetchService {
	return &FetchService{
		db:        db,
		connector: connector,
		store:     NewMailStoreService(db, rawMailDir),
		docs:      docs,
		log:       zap.L().Named("mail"),
	}
}

// FetchAndStore pulls messages from the mailbox and registers every report
// attachment as a pending document. Messages handled by an earlier run are
// skipped.
func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Fetched: len(messages)}
	source := "mail:" + s.connector.Provider()
	for _, msg := range messages {
		if prior, err := s.db.GetEmailByProviderMessageID(msg.Provider, msg.MessageID); err == nil && prior != nil && prior.Status != EmailFetched {
			continue
		}

		row, err := s.store.Store(msg)
		if err != nil {
			return res, err
		}
		res.Stored++

		content, err := pipeline.ParseMail(msg.Raw)
		if err != nil {
			s.log.Warn("unreadable message", zap.String("message_id", msg.MessageID), zap.Error(err))
			_ = s.db.UpdateEmailStatus(row.ID, EmailFailed)
			continue
		}
		res.Skipped += len(content.Skipped)

		added := 0
		for _, att := range content.Attachments {
			_, created, err := s.docs.Add(ctx, documents.AddInput{
				Name:        att.FileName,
				ContentType: att.ContentType,
				Content:     att.Content,
				Source:      source,
			})
			if errors.Is(err, documents.ErrUnsupported) || errors.Is(err, documents.ErrInvalidPDF) {
				s.log.Warn("attachment skipped", zap.String("file", att.FileName), zap.Error(err))
				res.Skipped++
				continue
			}
			if err != nil {
				return res, err
			}
			if created {
				added++
			} else {
				res.Duplicates++
			}
		}
		res.Documents += added

		status := EmailProcessed
		if len(content.Attachments) == 0 {
			status = EmailNoAttachments
		}
		if err := s.db.UpdateEmailStatus(row.ID, status); err != nil {
			return res, err
		}
	}

	s.log.Info("mail fetched",
		zap.String("provider", s.connector.Provider()),
		zap.Int("fetched", res.Fetched),
		zap.Int("documents", res.Documents),
		zap.Int("duplicates", res.Duplicates),
	)
	return res, nil
}
