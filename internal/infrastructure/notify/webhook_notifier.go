// Package notify adapts the teacher's outbound-HTTP-client idiom (license
// validation's http.Client + json.Marshal + NewRequestWithContext) into the
// optional best-effort push-to-class-system webhook collaborator.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"brokle/internal/config"
	"brokle/internal/core/domain/grading"
)

// WebhookNotifier implements grading.ClassSystemNotifier by POSTing the
// export payload to a configured URL. Never returns an error that would
// fail the workflow; callers use grading.BestEffortPublish-style handling
// at the call site, but NotifyExportComplete itself always logs and
// swallows transport failures so a misbehaving class system can't wedge a
// finished batch.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWebhookNotifier builds a notifier from the class_system config
// section. A NoopClassSystemNotifier should be used instead when
// cfg.WebhookURL is empty.
func NewWebhookNotifier(cfg config.ClassSystemConfig, logger *slog.Logger) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:        cfg.WebhookURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (n *WebhookNotifier) NotifyExportComplete(ctx context.Context, batchID string, payload *grading.ExportPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn("failed to marshal export payload for class system webhook", "batch_id", batchID, "error", err)
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("failed to build class system webhook request", "batch_id", batchID, "error", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Warn("class system webhook request failed", "batch_id", batchID, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.Warn("class system webhook returned non-2xx", "batch_id", batchID, "status", resp.StatusCode)
	}
	return nil
}

// NoopClassSystemNotifier satisfies grading.ClassSystemNotifier without
// sending anything, for deployments with no class system configured.
type NoopClassSystemNotifier struct{}

func (NoopClassSystemNotifier) NotifyExportComplete(context.Context, string, *grading.ExportPayload) error {
	return nil
}
