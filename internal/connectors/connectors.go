package connectors

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"finstat/internal"
	"finstat/internal/config"
	"finstat/internal/connectors/gmail"
	"finstat/internal/connectors/imap"
)

type MailConnector interface {
	Provider() string
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

// New builds the connector for a provider name ("gmail" or "imap").
func New(ctx context.Context, provider string, cfg config.Config) (MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmail.NewConnector(ctx, cfg)
	case "imap":
		return imap.NewConnector(cfg)
	default:
		return nil, eris.Errorf("unsupported mail provider: %s", provider)
	}
}
