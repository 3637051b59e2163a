package analysis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"murmur/internal/logging"
	"murmur/internal/testsupport"
)

type summaryPayload struct {
	Headline string   `json:"headline"`
	Points   []string `json:"points"`
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	return NewCache(db, logging.NewNop())
}

func mustEnvelope(t *testing.T, mode Mode, payload any) Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return NewEnvelope(mode, "test-model", 120*time.Millisecond, raw)
}

func TestGetMissesWithoutRecord(t *testing.T) {
	cache := newTestCache(t)
	if _, ok := Get[summaryPayload](context.Background(), cache, "memo-1", ModeSummary); ok {
		t.Fatal("expected miss on empty cache")
	}
}

func TestSaveThenGetRoundTrips(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	want := summaryPayload{Headline: "standup notes", Points: []string{"ship it"}}

	if err := cache.Save(ctx, "memo-1", mustEnvelope(t, ModeSummary, want)); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok := Get[summaryPayload](ctx, cache, "memo-1", ModeSummary)
	if !ok {
		t.Fatal("expected hit")
	}
	if got.Headline != want.Headline || len(got.Points) != 1 {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestClearThenGetFallsThroughToStore(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	want := summaryPayload{Headline: "grocery list"}

	if err := cache.Save(ctx, "memo-1", mustEnvelope(t, ModeSummary, want)); err != nil {
		t.Fatalf("save: %v", err)
	}
	cache.Clear()
	if cache.Size() != 0 {
		t.Fatalf("expected empty memory tier, size %d", cache.Size())
	}

	got, ok := Get[summaryPayload](ctx, cache, "memo-1", ModeSummary)
	if !ok {
		t.Fatal("expected store fallback hit")
	}
	if got.Headline != want.Headline {
		t.Fatalf("got %q, want %q", got.Headline, want.Headline)
	}
	if cache.Size() != 1 {
		t.Fatalf("expected repopulated memory tier, size %d", cache.Size())
	}
}

func TestRepeatedSaveAppendsHistoryKeepsLatest(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if err := cache.Save(ctx, "memo-1", mustEnvelope(t, ModeSummary, summaryPayload{Headline: "first"})); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := cache.Save(ctx, "memo-1", mustEnvelope(t, ModeSummary, summaryPayload{Headline: "second"})); err != nil {
		t.Fatalf("save second: %v", err)
	}

	history, err := cache.History(ctx, "memo-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	for _, entry := range history {
		if entry.Mode != ModeSummary {
			t.Fatalf("unexpected history mode %q", entry.Mode)
		}
	}

	got, ok := Get[summaryPayload](ctx, cache, "memo-1", ModeSummary)
	if !ok || got.Headline != "second" {
		t.Fatalf("expected latest payload, got %+v ok=%v", got, ok)
	}

	// The store fallback must also resolve to the latest row.
	cache.Clear()
	got, ok = Get[summaryPayload](ctx, cache, "memo-1", ModeSummary)
	if !ok || got.Headline != "second" {
		t.Fatalf("store fallback returned %+v ok=%v", got, ok)
	}
}

func TestUndecodablePayloadIsAbsent(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	env := NewEnvelope(ModeSummary, "test-model", 0, json.RawMessage(`"just a string"`))
	if err := cache.Save(ctx, "memo-1", env); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, ok := Get[summaryPayload](ctx, cache, "memo-1", ModeSummary); ok {
		t.Fatal("expected decode mismatch to read as absent")
	}
	// Existence check still succeeds: it never decodes.
	if !cache.Has(ctx, "memo-1", ModeSummary) {
		t.Fatal("expected Has to report the record")
	}
}

func TestHasChecksBothTiers(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if cache.Has(ctx, "memo-1", ModeSummary) {
		t.Fatal("expected absent")
	}
	if err := cache.Save(ctx, "memo-1", mustEnvelope(t, ModeSummary, summaryPayload{})); err != nil {
		t.Fatalf("save: %v", err)
	}
	cache.Clear()
	if !cache.Has(ctx, "memo-1", ModeSummary) {
		t.Fatal("expected store-tier hit")
	}
}

func TestDeletePrunesHistory(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if err := cache.Save(ctx, "memo-1", mustEnvelope(t, ModeSummary, summaryPayload{Headline: "a"})); err != nil {
		t.Fatalf("save summary: %v", err)
	}
	if err := cache.Save(ctx, "memo-1", mustEnvelope(t, ModeInsights, summaryPayload{Headline: "b"})); err != nil {
		t.Fatalf("save insights: %v", err)
	}

	if err := cache.Delete(ctx, "memo-1", ModeSummary); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if cache.Has(ctx, "memo-1", ModeSummary) {
		t.Fatal("deleted mode still present")
	}
	if !cache.Has(ctx, "memo-1", ModeInsights) {
		t.Fatal("sibling mode lost")
	}

	history, err := cache.History(ctx, "memo-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Mode != ModeInsights {
		t.Fatalf("expected pruned history, got %+v", history)
	}

	if err := cache.DeleteAll(ctx, "memo-1"); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	history, err = cache.History(ctx, "memo-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if history != nil {
		t.Fatalf("expected empty ledger to vanish, got %+v", history)
	}
}

func TestGetAllMixesValuesAndMarkers(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if err := cache.Save(ctx, "memo-1", mustEnvelope(t, ModeSummary, summaryPayload{Headline: "cached"})); err != nil {
		t.Fatalf("save summary: %v", err)
	}
	if err := cache.Save(ctx, "memo-1", mustEnvelope(t, ModeInsights, summaryPayload{Headline: "evicted"})); err != nil {
		t.Fatalf("save insights: %v", err)
	}

	// Drop the memory tier, then rehydrate only the summary slot.
	cache.Clear()
	if _, ok := Get[summaryPayload](ctx, cache, "memo-1", ModeSummary); !ok {
		t.Fatal("expected summary rehydration")
	}

	all := cache.GetAll(ctx, "memo-1")
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	if all[ModeSummary].Envelope == nil {
		t.Fatal("expected decoded summary envelope")
	}
	if all[ModeInsights].Envelope != nil || !all[ModeInsights].InStore {
		t.Fatalf("expected store marker for insights, got %+v", all[ModeInsights])
	}
}
