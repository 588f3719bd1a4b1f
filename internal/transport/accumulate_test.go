package transport

import (
	"encoding/json"
	"math"
	"testing"

	"delegate/internal/protocol"
)

func TestAccumulatorPrefersStreamedText(t *testing.T) {
	var acc accumulator
	acc.Add("Hel")
	acc.Add("lo ")

	text, _ := acc.Finalize([]protocol.Message{
		{Role: "assistant", Content: json.RawMessage(`"something else"`)},
	})
	if text != "Hello" {
		t.Fatalf("expected trimmed streamed text, got %q", text)
	}
}

func TestAccumulatorFallsBackWhenStreamBlank(t *testing.T) {
	var acc accumulator
	acc.Add("   \n\t")

	text, _ := acc.Finalize([]protocol.Message{
		{Role: "assistant", Content: json.RawMessage(`"early draft"`)},
		{Role: "assistant", Content: json.RawMessage(`[{"type":"text","text":"Answer: 42"}]`)},
	})
	if text != "Answer: 42" {
		t.Fatalf("expected last assistant content, got %q", text)
	}
}

func TestAccumulatorFallbackUnknownShapeYieldsEmpty(t *testing.T) {
	var acc accumulator
	text, _ := acc.Finalize([]protocol.Message{
		{Role: "assistant", Content: json.RawMessage(`{"opaque":true}`)},
	})
	if text != "" {
		t.Fatalf("expected empty text for unknown content shape, got %q", text)
	}
}

func TestAccumulatorSumsEveryAssistantUsage(t *testing.T) {
	var acc accumulator
	_, usage := acc.Finalize([]protocol.Message{
		{Role: "assistant", Usage: &protocol.Usage{Input: 10, Output: 5, Cost: protocol.Cost{Total: 0.01}}},
		{Role: "user"},
		{Role: "assistant", Usage: &protocol.Usage{Input: 20, Output: 8, Cost: protocol.Cost{Total: 0.02}}},
	})
	if usage == nil {
		t.Fatal("expected usage summary")
	}
	if usage.Input != 30 || usage.Output != 13 {
		t.Fatalf("unexpected token totals: %+v", usage)
	}
	if math.Abs(usage.Cost.Total-0.03) > 1e-9 {
		t.Fatalf("unexpected cost total: %v", usage.Cost.Total)
	}
}

func TestAccumulatorNoAssistantMessages(t *testing.T) {
	var acc accumulator
	text, usage := acc.Finalize([]protocol.Message{{Role: "user", Content: json.RawMessage(`"hi"`)}})
	if text != "" || usage != nil {
		t.Fatalf("expected empty result, got %q %+v", text, usage)
	}
}
