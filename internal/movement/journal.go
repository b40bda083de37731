package movement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"stockroom.org/internal/ids"
	"stockroom.org/internal/store"
)

// Action names the cause of a stock change.
type Action string

const (
	ActionInitialReceipt Action = "INITIAL_RECEIPT"
	ActionUpdate         Action = "UPDATE"
	ActionEditEntry      Action = "EDIT_ENTRY"
	ActionDeleteEntry    Action = "DELETE_ENTRY"
)

var (
	ErrInvalidRecord = errors.New("invalid movement record")
	// ErrUnpaired indicates a movement without the audit record of its mutation.
	ErrUnpaired = errors.New("movement record has no audit record")
)

// Record is one write-once stock delta stored under MovementHistory/{id}.
type Record struct {
	ID          string    `json:"id"`
	CatalogName string    `json:"catalogName"`
	EntryID     string    `json:"entryId,omitempty"`
	OldStock    int64     `json:"oldStock"`
	NewStock    int64     `json:"newStock"`
	Change      int64     `json:"change"`
	Action      Action    `json:"action"`
	AuditID     string    `json:"auditId"`
	ActorID     string    `json:"actorId"`
	Timestamp   time.Time `json:"timestamp"`
}

// Journal appends movement records. It never updates or deletes.
type Journal struct {
	store store.Store
	now   func() time.Time
}

// Option configures Journal.
type Option func(*Journal)

// WithClock overrides the time source of ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) {
		if now != nil {
			j.now = now
		}
	}
}

func NewJournal(s store.Store, opts ...Option) *Journal {
	j := &Journal{store: s, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Append derives Change from the stock values, assigns id and timestamp and
// persists the record.
func (j *Journal) Append(ctx context.Context, rec Record) (Record, error) {
	rec.CatalogName = strings.TrimSpace(rec.CatalogName)
	if rec.CatalogName == "" || rec.Action == "" {
		return Record{}, fmt.Errorf("%w: catalog name and action are required", ErrInvalidRecord)
	}
	if strings.TrimSpace(rec.AuditID) == "" {
		return Record{}, ErrUnpaired
	}
	now := j.now()
	rec.ID = ids.NewAt(now)
	rec.Timestamp = now
	rec.Change = rec.NewStock - rec.OldStock

	if err := store.SetJSON(ctx, j.store, store.MovementHistory, rec.ID, rec); err != nil {
		return Record{}, fmt.Errorf("append movement %s: %w", rec.CatalogName, err)
	}
	return rec, nil
}

// List returns up to limit records, most recent first. limit <= 0 returns all.
func (j *Journal) List(ctx context.Context, limit int) ([]Record, error) {
	return j.list(ctx, "", limit)
}

// ListByCatalog is List restricted to one catalog item.
func (j *Journal) ListByCatalog(ctx context.Context, catalogName string, limit int) ([]Record, error) {
	return j.list(ctx, strings.TrimSpace(catalogName), limit)
}

func (j *Journal) list(ctx context.Context, catalogName string, limit int) ([]Record, error) {
	var (
		records []Record
		err     error
	)
	if catalogName != "" {
		records, err = store.ListJSONByField[Record](ctx, j.store, store.MovementHistory, "catalogName", catalogName)
	} else {
		records, err = store.ListJSON[Record](ctx, j.store, store.MovementHistory)
	}
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(a, b int) bool {
		if !records[a].Timestamp.Equal(records[b].Timestamp) {
			return records[a].Timestamp.After(records[b].Timestamp)
		}
		return records[a].ID > records[b].ID
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
