package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stockroom.org/internal/obs"
	"stockroom.org/internal/store"
	"stockroom.org/internal/store/memstore"
)

func TestAppendPersistsAndLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.NewLogger(obs.Options{ServiceName: "test", Level: zerolog.InfoLevel, Format: "json", Output: &buf})
	s := memstore.New()
	trail := NewTrail(s, logger)

	ctx := logger.WithRequestID(context.Background(), "req-123")
	rec, err := trail.Append(ctx, Record{
		Action:   ActionAddCatalog,
		ActorID:  "user-42",
		TargetID: "Laptop_1",
		Details:  "Added catalog entry Laptop",
		Fields:   map[string]any{"catalogName": "Laptop"},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if rec.ID == "" || rec.Timestamp.IsZero() {
		t.Fatalf("id/timestamp not assigned: %+v", rec)
	}

	stored, err := store.GetJSON[Record](ctx, s, store.AuditLog, rec.ID)
	if err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if stored.Action != ActionAddCatalog || stored.ActorID != "user-42" || stored.TargetID != "Laptop_1" {
		t.Fatalf("unexpected stored record: %+v", stored)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" || entry["event"] != "ADD_CATALOG" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
	if entry["request_id"] != "req-123" || entry["actor_id"] != "user-42" {
		t.Fatalf("context fields missing: %v", entry)
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["catalogName"] != "Laptop" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestAppendRequiresActionAndActor(t *testing.T) {
	trail := NewTrail(memstore.New(), nil)
	if _, err := trail.Append(context.Background(), Record{ActorID: "u"}); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord without action, got %v", err)
	}
	if _, err := trail.Append(context.Background(), Record{Action: ActionCreateOrder, ActorID: " "}); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord without actor, got %v", err)
	}
}

func TestListNewestFirstWithLimit(t *testing.T) {
	trail := NewTrail(memstore.New(), nil)
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	step := 0
	trail.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}
	ctx := context.Background()
	for _, action := range []Action{ActionAddCatalog, ActionCreateOrder, ActionDeleteOrder} {
		if _, err := trail.Append(ctx, Record{Action: action, ActorID: "u1"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	all, err := trail.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].Action != ActionDeleteOrder || all[2].Action != ActionAddCatalog {
		t.Fatalf("unexpected order: %+v", all)
	}

	top, err := trail.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(top) != 2 || top[0].Action != ActionDeleteOrder || top[1].Action != ActionCreateOrder {
		t.Fatalf("unexpected limited list: %+v", top)
	}
}

func TestSameMillisecondRecordsGetDistinctIDs(t *testing.T) {
	trail := NewTrail(memstore.New(), nil)
	fixed := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	trail.now = func() time.Time { return fixed }
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		rec, err := trail.Append(ctx, Record{Action: ActionCreateOrder, ActorID: "u1"})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if seen[rec.ID] {
			t.Fatalf("duplicate id %s", rec.ID)
		}
		seen[rec.ID] = true
	}
	all, _ := trail.List(ctx, 0)
	if len(all) != 50 {
		t.Fatalf("expected 50 records, got %d", len(all))
	}
}

func TestWithClockStampsRecords(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	trail := NewTrail(memstore.New(), nil, WithClock(func() time.Time { return fixed }))
	rec, err := trail.Append(context.Background(), Record{Action: ActionCreateOrder, ActorID: "u1"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !rec.Timestamp.Equal(fixed) {
		t.Fatalf("timestamp=%v, want %v", rec.Timestamp, fixed)
	}
}
