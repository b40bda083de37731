package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"stockroom.org/internal/store"
	"stockroom.org/internal/stream"
)

const (
	getQuery    = `select body from documents where collection = $1 and id = $2`
	setQuery    = `insert into documents(collection, id, body, updated_at) values ($1, $2, $3::jsonb, now()) on conflict (collection, id) do update set body = excluded.body, updated_at = now()`
	updateQuery = `update documents set body = body || $3::jsonb, updated_at = now() where collection = $1 and id = $2 returning body`
	removeQuery = `delete from documents where collection = $1 and id = $2`
	listQuery   = `select id, body from documents where collection = $1 order by id`
)

var fieldName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// listByFieldQuery inlines the field name. A bound parameter would not match
// the expression index on body ->> 'catalogName'.
func listByFieldQuery(field string) string {
	return fmt.Sprintf(`select id, body from documents where collection = $1 and body ->> '%s' = $2 order by id`, field)
}

// Options tunes the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Store keeps documents in a single jsonb table keyed by (collection, id).
// Subscribe delivers changes committed through this Store value.
type Store struct {
	db  *sql.DB
	hub *stream.Hub
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func Open(dsn string, opts Options) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if opts.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
	return New(db), nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store {
	return &Store{
		db:  db,
		hub: stream.NewHub(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Get(ctx context.Context, c store.Collection, id string) (json.RawMessage, error) {
	if err := store.ValidateKey(c, id); err != nil {
		return nil, err
	}
	var body []byte
	err := s.db.QueryRowContext(ctx, getQuery, string(c), id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, store.Path(c, id))
	}
	if err != nil {
		return nil, classify(err)
	}
	return json.RawMessage(body), nil
}

func (s *Store) Set(ctx context.Context, c store.Collection, id string, value json.RawMessage) error {
	if err := store.ValidateKey(c, id); err != nil {
		return err
	}
	if !json.Valid(value) {
		return fmt.Errorf("%w: %s is not valid JSON", store.ErrInvalidDocument, store.Path(c, id))
	}
	if _, err := s.db.ExecContext(ctx, setQuery, string(c), id, []byte(value)); err != nil {
		return classify(err)
	}
	s.publish(c, id, store.OpSet, value)
	return nil
}

func (s *Store) Update(ctx context.Context, c store.Collection, id string, fields map[string]any) error {
	if err := store.ValidateKey(c, id); err != nil {
		return err
	}
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidDocument, err)
	}
	var body []byte
	err = s.db.QueryRowContext(ctx, updateQuery, string(c), id, patch).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", store.ErrNotFound, store.Path(c, id))
	}
	if err != nil {
		return classify(err)
	}
	s.publish(c, id, store.OpUpdate, body)
	return nil
}

func (s *Store) Remove(ctx context.Context, c store.Collection, id string) error {
	if err := store.ValidateKey(c, id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, removeQuery, string(c), id)
	if err != nil {
		return classify(err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.publish(c, id, store.OpRemove, nil)
	}
	return nil
}

func (s *Store) List(ctx context.Context, c store.Collection) ([]store.Document, error) {
	return s.query(ctx, listQuery, string(c))
}

// ListByField filters c on a top-level string field in SQL.
func (s *Store) ListByField(ctx context.Context, c store.Collection, field, value string) ([]store.Document, error) {
	if !fieldName.MatchString(field) {
		return nil, fmt.Errorf("%w: field %q", store.ErrInvalidDocument, field)
	}
	return s.query(ctx, listByFieldQuery(field), string(c), value)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]store.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []store.Document
	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, classify(err)
		}
		out = append(out, store.Document{ID: id, Value: json.RawMessage(body)})
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (s *Store) Subscribe(ctx context.Context, c store.Collection) (<-chan store.Event, error) {
	return s.hub.Subscribe(ctx, c), nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) publish(c store.Collection, id string, op store.Op, value []byte) {
	s.hub.Publish(store.Event{
		Collection: c,
		ID:         id,
		Op:         op,
		Value:      json.RawMessage(value),
		Timestamp:  s.now(),
	})
}
