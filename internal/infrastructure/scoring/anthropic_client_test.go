package scoring

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
)

func TestDecodeOrExtract_StrictJSON(t *testing.T) {
	var out map[string]any
	if err := decodeOrExtract(`{"total_score": 10}`, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["total_score"] != float64(10) {
		t.Fatalf("expected total_score 10, got %v", out["total_score"])
	}
}

func TestDecodeOrExtract_ProseWrappedJSON(t *testing.T) {
	var out map[string]any
	raw := "Sure, here is the rubric:\n```json\n{\"total_score\": 10}\n```\nLet me know if you need anything else."
	if err := decodeOrExtract(raw, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["total_score"] != float64(10) {
		t.Fatalf("expected total_score 10 extracted from prose, got %v", out["total_score"])
	}
}

func TestDecodeOrExtract_NoJSONReturnsOriginalError(t *testing.T) {
	var out map[string]any
	if err := decodeOrExtract("no json here at all", &out); err == nil {
		t.Fatalf("expected an error when no JSON object is present")
	}
}

func TestTextOf_ConcatenatesTextBlocks(t *testing.T) {
	msg := &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: "hello "},
			{Type: "text", Text: "world"},
		},
	}
	if got := textOf(msg); got != "hello world" {
		t.Fatalf("expected concatenated text blocks, got %q", got)
	}
}
