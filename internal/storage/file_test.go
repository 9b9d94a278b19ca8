package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileRecorder_AppendAndLoad(t *testing.T) {
	ctx := context.Background()
	p := filepath.Join(t.TempDir(), "data", "transcripts.jsonl")
	rec, err := NewFileRecorder(p)
	if err != nil {
		t.Fatalf("init recorder: %v", err)
	}

	e1 := Entry{Timestamp: time.Unix(1, 0).UTC(), ConversationID: "c1", UserMessage: "hi", AssistantResponse: "hello"}
	e2 := Entry{Timestamp: time.Unix(2, 0).UTC(), ConversationID: "c2", UserMessage: "deal?", AssistantResponse: "ok [Bought]", Bought: true}
	if err := rec.AppendEntry(ctx, e1); err != nil {
		t.Fatalf("append1: %v", err)
	}
	if err := rec.AppendEntry(ctx, e2); err != nil {
		t.Fatalf("append2: %v", err)
	}

	entries, err := rec.LoadEntries(ctx, time.Unix(0, 0), time.Unix(10, 0))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("want 2, got %d", len(entries))
	}
	if entries[0].ConversationID != "c1" || entries[1].ConversationID != "c2" || !entries[1].Bought {
		t.Fatalf("order or fields mismatch: %+v", entries)
	}

	st, err := os.Stat(p)
	if err != nil || st.Size() == 0 {
		t.Fatalf("file not written")
	}
}

func TestFileRecorder_SkipsMalformedLines(t *testing.T) {
	p := filepath.Join(t.TempDir(), "log.jsonl")
	line := `{"timestamp":"2026-05-01T10:00:00Z","conversation_id":"ok"}`
	if err := os.WriteFile(p, []byte("not json\n\n"+line+"\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rec, err := NewFileRecorder(p)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	from, to := DayRange(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	entries, err := rec.LoadEntries(context.Background(), from, to)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 1 || entries[0].ConversationID != "ok" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestFileRecorder_LoadKeepsRangeInTimeOrder(t *testing.T) {
	ctx := context.Background()
	rec, err := NewFileRecorder(filepath.Join(t.TempDir(), "t.jsonl"))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for _, e := range []Entry{
		{Timestamp: day.Add(-time.Minute), ConversationID: "yesterday"},
		{Timestamp: day.Add(2 * time.Hour), ConversationID: "late"},
		{Timestamp: day.Add(time.Hour), ConversationID: "early"},
		{Timestamp: day.AddDate(0, 0, 1), ConversationID: "tomorrow"},
	} {
		if err := rec.AppendEntry(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	from, to := DayRange(day.Add(12 * time.Hour))
	entries, err := rec.LoadEntries(ctx, from, to)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 2 || entries[0].ConversationID != "early" || entries[1].ConversationID != "late" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}
