// Package progress adapts pkg/websocket's channel hub into the grading
// domain's best-effort ProgressSink collaborator (spec.md §6 "progress/event
// interface").
package progress

import (
	"log/slog"

	"brokle/internal/core/domain/grading"
	"brokle/pkg/websocket"
)

// WebsocketSink implements grading.ProgressSink by broadcasting every event
// to whatever dashboard clients are subscribed to batchID's channel on the
// shared hub. Publish never blocks the workflow on a missing or slow
// listener: BroadcastToChannel enqueues into each client's buffered Send
// channel and drops clients that fall behind rather than stalling.
type WebsocketSink struct {
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewWebsocketSink(hub *websocket.Hub, logger *slog.Logger) *WebsocketSink {
	return &WebsocketSink{hub: hub, logger: logger}
}

func (s *WebsocketSink) Publish(batchID string, event grading.ProgressEvent) error {
	msg := websocket.NewEventMessage(string(event.Type), event)
	msg.SetChannel(batchID)

	data, err := msg.ToJSON()
	if err != nil {
		s.logger.Warn("failed to marshal progress event", "batch_id", batchID, "error", err)
		return err
	}

	s.hub.BroadcastToChannel(batchID, data)
	return nil
}
