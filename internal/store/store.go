package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("store: document not found")
	// ErrUnavailable indicates the backend could not serve the request.
	ErrUnavailable = errors.New("store: backend unavailable")
	// ErrInvalidDocument indicates a malformed key or body.
	ErrInvalidDocument = errors.New("store: invalid document")
)

// Collection names a top-level document collection.
type Collection string

const (
	Users           Collection = "Users"
	UserPermissions Collection = "UserPermissions"
	Catalogs        Collection = "Catalogs"
	Orders          Collection = "Orders"
	AuditLog        Collection = "AuditLog"
	MovementHistory Collection = "MovementHistory"
	StockCache      Collection = "StockCache"
)

// Path renders the slash separated address of a document.
func Path(c Collection, id string) string {
	return string(c) + "/" + id
}

// Document is one stored value together with its key.
type Document struct {
	ID    string          `json:"id"`
	Value json.RawMessage `json:"value"`
}

// Op identifies the kind of change carried by an Event.
type Op string

const (
	OpSet    Op = "set"
	OpUpdate Op = "update"
	OpRemove Op = "remove"
)

// Event describes a committed change to a document.
type Event struct {
	Collection Collection      `json:"collection"`
	ID         string          `json:"id"`
	Op         Op              `json:"op"`
	Value      json.RawMessage `json:"value,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Store is a keyed JSON document store with last-writer-wins semantics per key.
type Store interface {
	Get(ctx context.Context, c Collection, id string) (json.RawMessage, error)
	Set(ctx context.Context, c Collection, id string, value json.RawMessage) error
	// Update merges fields into the top level of an existing document.
	Update(ctx context.Context, c Collection, id string, fields map[string]any) error
	// Remove deletes a document. Removing a missing document is not an error.
	Remove(ctx context.Context, c Collection, id string) error
	List(ctx context.Context, c Collection) ([]Document, error)
	// Subscribe streams committed changes of c until ctx ends. An empty
	// collection subscribes to every collection.
	Subscribe(ctx context.Context, c Collection) (<-chan Event, error)
	Ping(ctx context.Context) error
}

// ValidateKey rejects empty identifiers and identifiers containing a path separator.
func ValidateKey(c Collection, id string) error {
	if strings.TrimSpace(string(c)) == "" {
		return fmt.Errorf("%w: collection is required", ErrInvalidDocument)
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDocument)
	}
	if strings.Contains(id, "/") {
		return fmt.Errorf("%w: id %q contains '/'", ErrInvalidDocument, id)
	}
	return nil
}

// GetJSON loads the document c/id and decodes it into T.
func GetJSON[T any](ctx context.Context, s Store, c Collection, id string) (T, error) {
	var out T
	raw, err := s.Get(ctx, c, id)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", Path(c, id), err)
	}
	return out, nil
}

// SetJSON encodes v and stores it at c/id.
func SetJSON(ctx context.Context, s Store, c Collection, id string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", Path(c, id), err)
	}
	return s.Set(ctx, c, id, raw)
}

// FieldLister is implemented by stores that filter a collection on a
// top-level string field themselves.
type FieldLister interface {
	ListByField(ctx context.Context, c Collection, field, value string) ([]Document, error)
}

// ListByField returns the documents of c whose top-level string field equals
// value, ordered like List. Stores without FieldLister are filtered here.
func ListByField(ctx context.Context, s Store, c Collection, field, value string) ([]Document, error) {
	if fl, ok := s.(FieldLister); ok {
		return fl.ListByField(ctx, c, field, value)
	}
	docs, err := s.List(ctx, c)
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(doc.Value, &obj); err != nil {
			return nil, fmt.Errorf("decode %s: %w", Path(c, doc.ID), err)
		}
		var got string
		if raw, ok := obj[field]; ok && json.Unmarshal(raw, &got) == nil && got == value {
			out = append(out, doc)
		}
	}
	return out, nil
}

// ListJSON decodes every document of c into T, preserving the store's order.
func ListJSON[T any](ctx context.Context, s Store, c Collection) ([]T, error) {
	docs, err := s.List(ctx, c)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](c, docs)
}

// ListJSONByField is ListByField decoded into T.
func ListJSONByField[T any](ctx context.Context, s Store, c Collection, field, value string) ([]T, error) {
	docs, err := ListByField(ctx, s, c, field, value)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](c, docs)
}

func decodeAll[T any](c Collection, docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var item T
		if err := json.Unmarshal(doc.Value, &item); err != nil {
			return nil, fmt.Errorf("decode %s: %w", Path(c, doc.ID), err)
		}
		out = append(out, item)
	}
	return out, nil
}

// MergeFields applies a shallow merge of fields onto the JSON object base.
func MergeFields(base json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	obj := map[string]json.RawMessage{}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &obj); err != nil {
			return nil, fmt.Errorf("%w: document is not an object", ErrInvalidDocument)
		}
	}
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrInvalidDocument, k, err)
		}
		obj[k] = raw
	}
	return json.Marshal(obj)
}
