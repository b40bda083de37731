package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"stockroom.org/internal/ids"
	"stockroom.org/internal/obs"
	"stockroom.org/internal/store"
)

// Action names an audited mutation.
type Action string

const (
	ActionAddCatalog        Action = "ADD_CATALOG"
	ActionUpdateCatalog     Action = "UPDATE_CATALOG"
	ActionDeleteCatalog     Action = "DELETE_CATALOG"
	ActionCreateOrder       Action = "CREATE_ORDER"
	ActionUpdateOrder       Action = "UPDATE_ORDER"
	ActionDeleteOrder       Action = "DELETE_ORDER"
	ActionUpdatePermissions Action = "update_permissions"
	ActionCreateUser        Action = "create_auth_user"
	ActionDeactivateUser    Action = "deactivate_user"
)

// ErrInvalidRecord indicates a record missing its action or actor.
var ErrInvalidRecord = errors.New("invalid audit record")

// Record is one write-once audit entry stored under AuditLog/{id}.
type Record struct {
	ID         string         `json:"id"`
	Action     Action         `json:"action"`
	ActorID    string         `json:"actorId"`
	ActorEmail string         `json:"actorEmail,omitempty"`
	TargetID   string         `json:"targetId,omitempty"`
	Details    string         `json:"details"`
	Fields     map[string]any `json:"fields,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Trail appends audit records synchronously. It never updates or deletes.
type Trail struct {
	store store.Store
	log   *obs.Logger
	now   func() time.Time
}

// Option configures Trail.
type Option func(*Trail)

// WithClock overrides the time source of ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Trail) {
		if now != nil {
			t.now = now
		}
	}
}

func NewTrail(s store.Store, log *obs.Logger, opts ...Option) *Trail {
	if log == nil {
		log = obs.Nop()
	}
	t := &Trail{
		store: s,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Append assigns the id and timestamp, persists the record and emits a
// structured audit log line. The returned record is what was stored.
func (t *Trail) Append(ctx context.Context, rec Record) (Record, error) {
	rec.Action = Action(strings.TrimSpace(string(rec.Action)))
	rec.ActorID = strings.TrimSpace(rec.ActorID)
	if rec.Action == "" {
		return Record{}, fmt.Errorf("%w: action is required", ErrInvalidRecord)
	}
	if rec.ActorID == "" {
		return Record{}, fmt.Errorf("%w: actor is required", ErrInvalidRecord)
	}
	now := t.now()
	rec.ID = ids.NewAt(now)
	rec.Timestamp = now

	if err := store.SetJSON(ctx, t.store, store.AuditLog, rec.ID, rec); err != nil {
		return Record{}, fmt.Errorf("append audit %s: %w", rec.Action, err)
	}

	event := t.log.Entry(ctx).Info().
		Str("type", "audit").
		Str("event", string(rec.Action)).
		Str("audit_id", rec.ID).
		Str("actor_id", rec.ActorID).
		Str("target_id", rec.TargetID)
	if len(rec.Fields) > 0 {
		event = event.Interface("fields", rec.Fields)
	}
	event.Msg(rec.Details)
	return rec, nil
}

// List returns up to limit records, most recent first. limit <= 0 returns all.
func (t *Trail) List(ctx context.Context, limit int) ([]Record, error) {
	records, err := store.ListJSON[Record](ctx, t.store, store.AuditLog)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		return records[i].ID > records[j].ID
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
