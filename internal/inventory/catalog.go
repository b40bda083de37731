package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"stockroom.org/internal/audit"
	"stockroom.org/internal/auth"
	"stockroom.org/internal/ids"
	"stockroom.org/internal/ledger"
	"stockroom.org/internal/movement"
	"stockroom.org/internal/store"
)

func catalogEntryPoint(via auth.Resource) (auth.Resource, error) {
	return entryPoint(via, auth.ResourceCatalogEntries, auth.ResourceCatalogEntries, auth.ResourceManageCatalog)
}

func checkCatalogName(name string) error {
	if name == "" {
		return invalid("catalogName is required")
	}
	if strings.Contains(name, "/") {
		return invalid("catalogName must not contain '/'")
	}
	return nil
}

// CreateCatalogEntry records a receipt or issue for a catalog item. The entry
// is rejected when it would drive any balance of the item below zero.
func (s *Service) CreateCatalogEntry(ctx context.Context, p auth.Principal, via auth.Resource, entry ledger.Entry) (res Result, err error) {
	defer func() { s.observe("create_catalog_entry", res, err) }()

	resource, err := catalogEntryPoint(via)
	if err != nil {
		return Result{}, err
	}
	if err := s.authorize(ctx, p, resource, auth.ActionCreate); err != nil {
		return Result{}, err
	}
	entry = ledger.Normalize(entry)
	if err := ledger.ValidateNewEntry(entry); err != nil {
		return Result{}, classify(err)
	}
	if err := checkCatalogName(entry.CatalogName); err != nil {
		return Result{}, err
	}

	unlock, err := s.locker.Lock(ctx, entry.CatalogName)
	if err != nil {
		return Result{}, classify(err)
	}
	defer unlock()

	siblings, err := s.entriesOf(ctx, entry.CatalogName)
	if err != nil {
		return Result{}, classify(err)
	}
	now := s.now()
	entry.ID = ids.NewAt(now)
	entry.CreatedAt = now
	entry.CreatedBy = p.ID
	entry.UpdatedAt = time.Time{}
	entry.UpdatedBy = ""
	if err := ledger.CheckAvailability(siblings, entry); err != nil {
		return Result{}, classify(err)
	}

	oldTail := ledger.Tail(siblings)
	all := append(siblings, entry)
	newTail := ledger.Tail(all)
	entry.StockQuantity = balanceAfter(all, entry.ID)
	if err := store.SetJSON(ctx, s.store, store.Catalogs, entry.ID, entry); err != nil {
		return Result{}, classify(err)
	}

	res = Result{
		Status: StatusOK,
		ID:     entry.ID,
		Stock:  &StockChange{CatalogName: entry.CatalogName, Old: oldTail, New: newTail},
	}
	action := movement.ActionUpdate
	if len(siblings) == 0 {
		action = movement.ActionInitialReceipt
	}
	s.recordTrail(ctx, "create_catalog_entry", &res, audit.Record{
		Action:     audit.ActionAddCatalog,
		ActorID:    p.ID,
		ActorEmail: p.Email,
		TargetID:   entry.ID,
		Details:    fmt.Sprintf("Added: %s (received %d, issued %d)", entry.CatalogName, entry.QuantityReceived, entry.IssueQuantity),
		Fields: map[string]any{
			"catalogName": entry.CatalogName,
			"via":         string(resource),
		},
	}, &movement.Record{
		CatalogName: entry.CatalogName,
		EntryID:     entry.ID,
		OldStock:    oldTail,
		NewStock:    newTail,
		Action:      action,
		ActorID:     p.ID,
	})
	s.refreshCache(ctx, entry.CatalogName, newTail)
	return res, nil
}

// UpdateCatalogEntry edits an entry in place and re-balances the whole item.
func (s *Service) UpdateCatalogEntry(ctx context.Context, p auth.Principal, via auth.Resource, entryID string, patch EntryPatch) (res Result, err error) {
	defer func() { s.observe("update_catalog_entry", res, err) }()

	resource, err := catalogEntryPoint(via)
	if err != nil {
		return Result{}, err
	}
	if err := s.authorize(ctx, p, resource, auth.ActionUpdate); err != nil {
		return Result{}, err
	}
	changed := patch.Changed()
	if len(changed) == 0 {
		return Result{}, invalid("no fields to update")
	}
	current, err := s.entry(ctx, entryID)
	if err != nil {
		return Result{}, err
	}

	unlock, err := s.locker.Lock(ctx, current.CatalogName)
	if err != nil {
		return Result{}, classify(err)
	}
	defer unlock()

	siblings, err := s.entriesOf(ctx, current.CatalogName)
	if err != nil {
		return Result{}, classify(err)
	}
	idx := indexOf(siblings, current.ID)
	if idx < 0 {
		return Result{}, classify(fmt.Errorf("catalog entry %s: %w", current.ID, store.ErrNotFound))
	}
	updated := patch.Apply(siblings[idx])
	if err := ledger.ValidateNewEntry(updated); err != nil {
		return Result{}, classify(err)
	}
	updated.UpdatedAt = s.now()
	updated.UpdatedBy = p.ID
	if err := ledger.CheckAvailability(siblings, updated); err != nil {
		return Result{}, classify(err)
	}

	oldTail := ledger.Tail(siblings)
	next := make([]ledger.Entry, len(siblings))
	copy(next, siblings)
	next[idx] = updated
	newTail := ledger.Tail(next)
	updated.StockQuantity = balanceAfter(next, updated.ID)
	if err := store.SetJSON(ctx, s.store, store.Catalogs, updated.ID, updated); err != nil {
		return Result{}, classify(err)
	}

	res = Result{
		Status: StatusOK,
		ID:     updated.ID,
		Stock:  &StockChange{CatalogName: updated.CatalogName, Old: oldTail, New: newTail},
	}
	s.recordTrail(ctx, "update_catalog_entry", &res, audit.Record{
		Action:     audit.ActionUpdateCatalog,
		ActorID:    p.ID,
		ActorEmail: p.Email,
		TargetID:   updated.ID,
		Details:    fmt.Sprintf("Updated: %s (%s)", updated.CatalogName, strings.Join(changed, ", ")),
		Fields: map[string]any{
			"catalogName": updated.CatalogName,
			"changed":     changed,
			"via":         string(resource),
		},
	}, &movement.Record{
		CatalogName: updated.CatalogName,
		EntryID:     updated.ID,
		OldStock:    oldTail,
		NewStock:    newTail,
		Action:      movement.ActionEditEntry,
		ActorID:     p.ID,
	})
	s.refreshCache(ctx, updated.CatalogName, newTail)
	return res, nil
}

// DeleteCatalogEntry removes an entry and re-balances the item.
func (s *Service) DeleteCatalogEntry(ctx context.Context, p auth.Principal, via auth.Resource, entryID string) (res Result, err error) {
	defer func() { s.observe("delete_catalog_entry", res, err) }()

	resource, err := catalogEntryPoint(via)
	if err != nil {
		return Result{}, err
	}
	if err := s.authorize(ctx, p, resource, auth.ActionDelete); err != nil {
		return Result{}, err
	}
	current, err := s.entry(ctx, entryID)
	if err != nil {
		return Result{}, err
	}

	unlock, err := s.locker.Lock(ctx, current.CatalogName)
	if err != nil {
		return Result{}, classify(err)
	}
	defer unlock()

	siblings, err := s.entriesOf(ctx, current.CatalogName)
	if err != nil {
		return Result{}, classify(err)
	}
	idx := indexOf(siblings, current.ID)
	if idx < 0 {
		return Result{}, classify(fmt.Errorf("catalog entry %s: %w", current.ID, store.ErrNotFound))
	}
	oldTail := ledger.Tail(siblings)
	remaining := make([]ledger.Entry, 0, len(siblings)-1)
	remaining = append(remaining, siblings[:idx]...)
	remaining = append(remaining, siblings[idx+1:]...)
	newTail := ledger.Tail(remaining)

	if err := s.store.Remove(ctx, store.Catalogs, current.ID); err != nil {
		return Result{}, classify(err)
	}

	res = Result{
		Status: StatusOK,
		ID:     current.ID,
		Stock:  &StockChange{CatalogName: current.CatalogName, Old: oldTail, New: newTail},
	}
	s.recordTrail(ctx, "delete_catalog_entry", &res, audit.Record{
		Action:     audit.ActionDeleteCatalog,
		ActorID:    p.ID,
		ActorEmail: p.Email,
		TargetID:   current.ID,
		Details:    fmt.Sprintf("Deleted: %s entry of %s", current.CatalogName, current.ReceiptDate),
		Fields: map[string]any{
			"catalogName": current.CatalogName,
			"via":         string(resource),
		},
	}, &movement.Record{
		CatalogName: current.CatalogName,
		EntryID:     current.ID,
		OldStock:    oldTail,
		NewStock:    newTail,
		Action:      movement.ActionDeleteEntry,
		ActorID:     p.ID,
	})
	s.refreshCache(ctx, current.CatalogName, newTail)
	return res, nil
}

// GetStockBalance derives the current stock of a catalog item from its
// entries. An item without entries has stock 0.
func (s *Service) GetStockBalance(ctx context.Context, p auth.Principal, catalogName string) (int64, error) {
	if err := s.authorize(ctx, p, auth.ResourceCatalogEntries, auth.ActionRead); err != nil {
		return 0, err
	}
	catalogName = strings.TrimSpace(catalogName)
	if err := checkCatalogName(catalogName); err != nil {
		return 0, err
	}
	entries, err := s.entriesOf(ctx, catalogName)
	if err != nil {
		return 0, classify(err)
	}
	return ledger.Tail(entries), nil
}

// ListCatalogEntries returns the entries of an item in fold order with the
// running balance after each.
func (s *Service) ListCatalogEntries(ctx context.Context, p auth.Principal, catalogName string) ([]ledger.Balance, error) {
	if err := s.authorize(ctx, p, auth.ResourceCatalogEntries, auth.ActionRead); err != nil {
		return nil, err
	}
	catalogName = strings.TrimSpace(catalogName)
	if err := checkCatalogName(catalogName); err != nil {
		return nil, err
	}
	entries, err := s.entriesOf(ctx, catalogName)
	if err != nil {
		return nil, classify(err)
	}
	return ledger.ComputeBalances(entries), nil
}

// ListCatalogs summarises every catalog item, sorted by name.
func (s *Service) ListCatalogs(ctx context.Context, p auth.Principal) ([]CatalogSummary, error) {
	if err := s.authorize(ctx, p, auth.ResourceCatalogEntries, auth.ActionRead); err != nil {
		return nil, err
	}
	groups, err := s.catalogGroups(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return summarize(groups), nil
}

// RefreshStockCache rewrites every StockCache document from freshly derived
// tails and drops documents of items that no longer have entries. It runs as
// the system and is not permission-gated.
func (s *Service) RefreshStockCache(ctx context.Context) (int, error) {
	groups, err := s.catalogGroups(ctx)
	if err != nil {
		s.metrics.ObserveCacheRefresh("error")
		return 0, classify(err)
	}
	now := s.now()
	for _, sum := range summarize(groups) {
		if store.ValidateKey(store.StockCache, sum.CatalogName) != nil {
			continue
		}
		if err := store.SetJSON(ctx, s.store, store.StockCache, sum.CatalogName, CachedStock{
			CatalogName: sum.CatalogName,
			Stock:       sum.Stock,
			UpdatedAt:   now,
		}); err != nil {
			s.metrics.ObserveCacheRefresh("error")
			return 0, classify(err)
		}
	}
	cached, err := s.store.List(ctx, store.StockCache)
	if err != nil {
		s.metrics.ObserveCacheRefresh("error")
		return 0, classify(err)
	}
	for _, doc := range cached {
		if _, ok := groups[doc.ID]; ok {
			continue
		}
		if err := s.store.Remove(ctx, store.StockCache, doc.ID); err != nil {
			s.metrics.ObserveCacheRefresh("error")
			return 0, classify(err)
		}
	}
	s.metrics.ObserveCacheRefresh("ok")
	return len(groups), nil
}

// refreshCache stores the display tail of one item. Failure only warns.
func (s *Service) refreshCache(ctx context.Context, catalogName string, tail int64) {
	ctx = context.WithoutCancel(ctx)
	err := store.SetJSON(ctx, s.store, store.StockCache, catalogName, CachedStock{
		CatalogName: catalogName,
		Stock:       tail,
		UpdatedAt:   s.now(),
	})
	if err != nil {
		s.metrics.ObserveCacheRefresh("error")
		s.log.Warn(s.log.WithField(ctx, "catalog", catalogName), "stock cache refresh failed", err)
		return
	}
	s.metrics.ObserveCacheRefresh("ok")
}

func (s *Service) entry(ctx context.Context, entryID string) (ledger.Entry, error) {
	entryID = strings.TrimSpace(entryID)
	if entryID == "" {
		return ledger.Entry{}, invalid("entry id is required")
	}
	e, err := store.GetJSON[ledger.Entry](ctx, s.store, store.Catalogs, entryID)
	if err != nil {
		return ledger.Entry{}, classify(err)
	}
	return e, nil
}

func (s *Service) entriesOf(ctx context.Context, catalogName string) ([]ledger.Entry, error) {
	return store.ListJSONByField[ledger.Entry](ctx, s.store, store.Catalogs, "catalogName", catalogName)
}

func (s *Service) catalogGroups(ctx context.Context) (map[string][]ledger.Entry, error) {
	all, err := store.ListJSON[ledger.Entry](ctx, s.store, store.Catalogs)
	if err != nil {
		return nil, err
	}
	return GroupByCatalog(all), nil
}

// GroupByCatalog buckets entries by catalog name.
func GroupByCatalog(entries []ledger.Entry) map[string][]ledger.Entry {
	groups := make(map[string][]ledger.Entry)
	for _, e := range entries {
		groups[e.CatalogName] = append(groups[e.CatalogName], e)
	}
	return groups
}

func summarize(groups map[string][]ledger.Entry) []CatalogSummary {
	out := make([]CatalogSummary, 0, len(groups))
	for name, entries := range groups {
		out = append(out, CatalogSummary{CatalogName: name, Entries: len(entries), Stock: ledger.Tail(entries)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CatalogName < out[j].CatalogName })
	return out
}

func indexOf(entries []ledger.Entry, id string) int {
	for i, e := range entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func balanceAfter(entries []ledger.Entry, id string) int64 {
	for _, b := range ledger.ComputeBalances(entries) {
		if b.Entry.ID == id {
			return b.BalanceAfter
		}
	}
	return 0
}
