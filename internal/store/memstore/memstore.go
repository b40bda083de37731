package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"stockroom.org/internal/store"
	"stockroom.org/internal/stream"
)

// Store keeps documents in process memory. It is the default backend for
// local runs and the fixture backend for service tests.
type Store struct {
	mu   sync.RWMutex
	docs map[store.Collection]map[string]json.RawMessage
	hub  *stream.Hub
	now  func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		docs: make(map[store.Collection]map[string]json.RawMessage),
		hub:  stream.NewHub(),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Get(ctx context.Context, c store.Collection, id string) (json.RawMessage, error) {
	if err := store.ValidateKey(c, id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.docs[c][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, store.Path(c, id))
	}
	return clone(raw), nil
}

func (s *Store) Set(ctx context.Context, c store.Collection, id string, value json.RawMessage) error {
	if err := store.ValidateKey(c, id); err != nil {
		return err
	}
	if !json.Valid(value) {
		return fmt.Errorf("%w: %s is not valid JSON", store.ErrInvalidDocument, store.Path(c, id))
	}
	s.mu.Lock()
	coll, ok := s.docs[c]
	if !ok {
		coll = make(map[string]json.RawMessage)
		s.docs[c] = coll
	}
	coll[id] = clone(value)
	s.mu.Unlock()

	s.publish(c, id, store.OpSet, value)
	return nil
}

func (s *Store) Update(ctx context.Context, c store.Collection, id string, fields map[string]any) error {
	if err := store.ValidateKey(c, id); err != nil {
		return err
	}
	s.mu.Lock()
	current, ok := s.docs[c][id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", store.ErrNotFound, store.Path(c, id))
	}
	merged, err := store.MergeFields(current, fields)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.docs[c][id] = merged
	s.mu.Unlock()

	s.publish(c, id, store.OpUpdate, merged)
	return nil
}

func (s *Store) Remove(ctx context.Context, c store.Collection, id string) error {
	if err := store.ValidateKey(c, id); err != nil {
		return err
	}
	s.mu.Lock()
	_, ok := s.docs[c][id]
	if ok {
		delete(s.docs[c], id)
	}
	s.mu.Unlock()

	if ok {
		s.publish(c, id, store.OpRemove, nil)
	}
	return nil
}

// List returns the documents of c ordered by id.
func (s *Store) List(ctx context.Context, c store.Collection) ([]store.Document, error) {
	s.mu.RLock()
	coll := s.docs[c]
	out := make([]store.Document, 0, len(coll))
	for id, raw := range coll {
		out = append(out, store.Document{ID: id, Value: clone(raw)})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Subscribe(ctx context.Context, c store.Collection) (<-chan store.Event, error) {
	return s.hub.Subscribe(ctx, c), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) publish(c store.Collection, id string, op store.Op, value json.RawMessage) {
	s.hub.Publish(store.Event{
		Collection: c,
		ID:         id,
		Op:         op,
		Value:      clone(value),
		Timestamp:  s.now(),
	})
}

func clone(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
