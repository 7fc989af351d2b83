package notify

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"brokle/internal/config"
	"brokle/internal/core/domain/grading"
)

func TestWebhookNotifier_NotifyExportComplete_PostsPayload(t *testing.T) {
	var gotMethod, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(config.ClassSystemConfig{WebhookURL: srv.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := n.NotifyExportComplete(context.Background(), "batch-1", &grading.ExportPayload{}); err != nil {
		t.Fatalf("expected best-effort notify to never error, got %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("expected POST, got %s", gotMethod)
	}
	if gotContentType != "application/json" {
		t.Fatalf("expected application/json content type, got %s", gotContentType)
	}
}

func TestWebhookNotifier_NotifyExportComplete_SwallowsTransportError(t *testing.T) {
	n := NewWebhookNotifier(config.ClassSystemConfig{WebhookURL: "http://127.0.0.1:0"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := n.NotifyExportComplete(context.Background(), "batch-1", &grading.ExportPayload{}); err != nil {
		t.Fatalf("expected transport failure to be swallowed, got %v", err)
	}
}

func TestNoopClassSystemNotifier_NeverErrors(t *testing.T) {
	var n NoopClassSystemNotifier
	if err := n.NotifyExportComplete(context.Background(), "batch-1", &grading.ExportPayload{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
