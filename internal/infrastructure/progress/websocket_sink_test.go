package progress

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"brokle/internal/core/domain/grading"
	"brokle/pkg/websocket"
)

func TestWebsocketSink_PublishIsBestEffortWithNoSubscribers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := websocket.NewHub(logger)
	go hub.Run()

	sink := NewWebsocketSink(hub, logger)
	err := sink.Publish("batch-1", grading.ProgressEvent{Type: grading.ProgressAgentUpdate, BatchID: "batch-1"})
	if err != nil {
		t.Fatalf("expected publish with no subscribers to succeed, got %v", err)
	}
}

func TestWebsocketSink_Publish_MarshalsEventIntoMessage(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := websocket.NewHub(logger)
	go hub.Run()

	sink := NewWebsocketSink(hub, logger)
	msg := websocket.NewEventMessage(string(grading.ProgressAgentUpdate), grading.ProgressEvent{Type: grading.ProgressAgentUpdate, BatchID: "b1"})
	msg.SetChannel("b1")
	raw, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("expected valid JSON message envelope, got error: %v", err)
	}
	if decoded["channel"] != "b1" {
		t.Fatalf("expected channel b1 on the message envelope, got %v", decoded["channel"])
	}

	if err := sink.Publish("b1", grading.ProgressEvent{Type: grading.ProgressAgentUpdate, BatchID: "b1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
