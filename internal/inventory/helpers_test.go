package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"stockroom.org/internal/audit"
	"stockroom.org/internal/auth"
	"stockroom.org/internal/ledger"
	"stockroom.org/internal/movement"
	"stockroom.org/internal/store"
	"stockroom.org/internal/store/memstore"
)

var errBackend = errors.New("backend offline")

// spyStore counts writes per collection and fails writes on demand. Like a
// networked store, it refuses writes on a cancelled context.
type spyStore struct {
	store.Store

	mu     sync.Mutex
	writes map[store.Collection]int
	fail   map[store.Collection]error
	onSet  func(store.Collection)
}

func newSpyStore() *spyStore {
	return &spyStore{
		Store:  memstore.New(),
		writes: map[store.Collection]int{},
		fail:   map[store.Collection]error{},
	}
}

func (s *spyStore) failWrites(c store.Collection, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[c] = err
}

func (s *spyStore) before(ctx context.Context, c store.Collection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[c]; err != nil {
		return err
	}
	s.writes[c]++
	return nil
}

func (s *spyStore) totalWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.writes {
		n += v
	}
	return n
}

func (s *spyStore) Set(ctx context.Context, c store.Collection, id string, v json.RawMessage) error {
	if err := s.before(ctx, c); err != nil {
		return err
	}
	if err := s.Store.Set(ctx, c, id, v); err != nil {
		return err
	}
	if s.onSet != nil {
		s.onSet(c)
	}
	return nil
}

func (s *spyStore) Update(ctx context.Context, c store.Collection, id string, fields map[string]any) error {
	if err := s.before(ctx, c); err != nil {
		return err
	}
	return s.Store.Update(ctx, c, id, fields)
}

func (s *spyStore) Remove(ctx context.Context, c store.Collection, id string) error {
	if err := s.before(ctx, c); err != nil {
		return err
	}
	return s.Store.Remove(ctx, c, id)
}

type fixture struct {
	store *spyStore
	svc   *Service
	admin auth.Principal
	clerk auth.Principal
	user  auth.Principal
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st := newSpyStore()
	svc, err := New(st, nil, opts...)
	require.NoError(t, err)

	f := &fixture{
		store: st,
		svc:   svc,
		admin: auth.Principal{ID: "admin-1", Email: "admin@example.com", Role: auth.RoleAdmin, IsActive: true},
		clerk: auth.Principal{ID: "clerk-1", Email: "clerk@example.com", Role: auth.RoleUser, IsActive: true},
		user:  auth.Principal{ID: "user-1", Email: "user@example.com", Role: auth.RoleUser, IsActive: true},
	}
	override := auth.Matrix{
		auth.ResourceCatalogEntries: {auth.ActionCreate: true, auth.ActionUpdate: true, auth.ActionDelete: true},
		auth.ResourceOrderEntries:   {auth.ActionUpdate: true, auth.ActionDelete: true},
	}
	require.NoError(t, store.SetJSON(context.Background(), st.Store, store.UserPermissions, f.clerk.ID, auth.PermissionRecord{
		UserID:      f.clerk.ID,
		Permissions: auth.Merge(auth.DefaultUserMatrix(), override),
	}))
	return f
}

func (f *fixture) audits(t *testing.T) []audit.Record {
	t.Helper()
	recs, err := store.ListJSON[audit.Record](context.Background(), f.store.Store, store.AuditLog)
	require.NoError(t, err)
	return recs
}

func (f *fixture) movements(t *testing.T) []movement.Record {
	t.Helper()
	recs, err := store.ListJSON[movement.Record](context.Background(), f.store.Store, store.MovementHistory)
	require.NoError(t, err)
	return recs
}

func (f *fixture) add(t *testing.T, receipt string, in, out int64) Result {
	t.Helper()
	res, err := f.svc.CreateCatalogEntry(context.Background(), f.admin, "", newEntry("Laptop", receipt, in, out))
	require.NoError(t, err)
	return res
}

func newEntry(name, receipt string, in, out int64) ledger.Entry {
	return ledger.Entry{
		CatalogName:             name,
		ReceiptDate:             receipt,
		QuantityReceived:        in,
		DeliveryDate:            receipt,
		IssueQuantity:           out,
		DistributionDestination: "Warehouse B",
		Requester:               "ops",
	}
}
