package usagelog_test

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"delegate/internal/usagelog"
)

func openTestStore(t *testing.T) *usagelog.Store {
	t.Helper()
	store, err := usagelog.Open(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndTotals(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entries := []usagelog.Entry{
		{SessionID: "a", Model: "anthropic:claude", InputTokens: 10, OutputTokens: 5, Cost: 0.01, Duration: time.Second},
		{SessionID: "a", Model: "anthropic:claude", InputTokens: 20, OutputTokens: 8, Cost: 0.02, Duration: 2 * time.Second},
		{SessionID: "b", Model: "openai:gpt", InputTokens: 1, OutputTokens: 1, Cost: 0.5, Duration: time.Second},
	}
	for _, entry := range entries {
		if err := store.Record(ctx, entry); err != nil {
			t.Fatalf("Record returned error: %v", err)
		}
	}

	totals, err := store.Totals(ctx, "")
	if err != nil {
		t.Fatalf("Totals returned error: %v", err)
	}
	if len(totals) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(totals))
	}
	// Ordered by cost, highest first.
	if totals[0].SessionID != "b" {
		t.Fatalf("expected session b first, got %q", totals[0].SessionID)
	}
	second := totals[1]
	if second.SessionID != "a" || second.Turns != 2 || second.InputTokens != 30 || second.OutputTokens != 13 {
		t.Fatalf("unexpected aggregate: %+v", second)
	}
	if math.Abs(second.Cost-0.03) > 1e-9 {
		t.Fatalf("unexpected cost: %v", second.Cost)
	}
}

func TestTotalsFiltersBySession(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, usagelog.Entry{SessionID: "a", Model: "m:x", Cost: 0.1}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if err := store.Record(ctx, usagelog.Entry{SessionID: "b", Model: "m:y", Cost: 0.2}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	totals, err := store.Totals(ctx, "a")
	if err != nil {
		t.Fatalf("Totals returned error: %v", err)
	}
	if len(totals) != 1 || totals[0].SessionID != "a" {
		t.Fatalf("expected only session a, got %+v", totals)
	}
}

func TestTotalsEmptyLedger(t *testing.T) {
	store := openTestStore(t)
	totals, err := store.Totals(context.Background(), "")
	if err != nil {
		t.Fatalf("Totals returned error: %v", err)
	}
	if len(totals) != 0 {
		t.Fatalf("expected empty totals, got %+v", totals)
	}
}
