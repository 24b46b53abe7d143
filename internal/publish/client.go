package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"finstat/internal"
	"finstat/internal/config"
)

const maxAttempts = 5

// ErrDisabled is returned when no publish URL is configured.
var ErrDisabled = eris.New("publishing disabled")

// Payload is the document body sent to the ingestion endpoint.
type Payload struct {
	Document    internal.Document     `json:"document"`
	Result      internal.StoredResult `json:"result"`
	PublishedAt string                `json:"published_at"`
}

type Receipt struct {
	StatusCode int    `json:"status_code"`
	ID         string `json:"id,omitempty"`
	Attempts   int    `json:"attempts"`
}

type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
}

func NewClient(cfg config.Config) *Client {
	rps := cfg.PublishRPS
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.PublishTimeoutMs) * time.Millisecond},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		log:        zap.L().Named("publish"),
	}
}

func (c *Client) Enabled() bool {
	return strings.TrimSpace(c.cfg.PublishURL) != ""
}

// Publish posts one document result. 429 and 5xx responses are retried with
// exponential backoff, up to five attempts.
func (c *Client) Publish(ctx context.Context, doc internal.Document, result internal.StoredResult) (Receipt, error) {
	if !c.Enabled() {
		return Receipt{}, ErrDisabled
	}

	body, err := json.Marshal(Payload{Document: doc, Result: result, PublishedAt: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return Receipt{}, eris.Wrap(err, "encode payload")
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return Receipt{}, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.PublishURL, bytes.NewReader(body))
		if err != nil {
			return Receipt{}, eris.Wrap(err, "build request")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Idempotency-Key", doc.ID+":"+doc.Hash)
		if token := strings.TrimSpace(c.cfg.PublishToken); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				if err := backoff(ctx, attempt); err != nil {
					return Receipt{}, err
				}
			}
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts {
				lastErr = eris.Errorf("publish status %d", resp.StatusCode)
				c.log.Warn("publish retry", zap.String("document_id", doc.ID), zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt))
				if err := backoff(ctx, attempt); err != nil {
					return Receipt{}, err
				}
				continue
			}
			return Receipt{}, eris.Errorf("publish failed: status=%d body=%s", resp.StatusCode, truncate(string(respBody), 512))
		}

		receipt := Receipt{StatusCode: resp.StatusCode, Attempts: attempt}
		var ack struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(respBody, &ack) == nil {
			receipt.ID = ack.ID
		}
		c.log.Info("document published", zap.String("document_id", doc.ID), zap.Int("attempts", attempt))
		return receipt, nil
	}

	if lastErr == nil {
		lastErr = eris.New("publish request failed")
	}
	return Receipt{}, eris.Wrapf(lastErr, "publish %s after %d attempts", doc.ID, maxAttempts)
}

func backoff(ctx context.Context, attempt int) error {
	wait := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
