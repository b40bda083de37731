package inventory

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockroom.org/internal/apperr"
	"stockroom.org/internal/audit"
	"stockroom.org/internal/auth"
	"stockroom.org/internal/ledger"
	"stockroom.org/internal/movement"
	"stockroom.org/internal/store"
)

func TestCreateCatalogEntryRecordsTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.add(t, "2024-01-01", 10, 0)
	assert.Equal(t, StatusOK, first.Status)
	assert.Equal(t, &StockChange{CatalogName: "Laptop", Old: 0, New: 10}, first.Stock)

	second := f.add(t, "2024-01-03", 0, 4)
	assert.Equal(t, &StockChange{CatalogName: "Laptop", Old: 10, New: 6}, second.Stock)

	bal, err := f.svc.GetStockBalance(ctx, f.admin, "Laptop")
	require.NoError(t, err)
	assert.Equal(t, int64(6), bal)

	audits := f.audits(t)
	require.Len(t, audits, 2)
	byID := map[string]audit.Record{}
	for _, a := range audits {
		assert.Equal(t, audit.ActionAddCatalog, a.Action)
		assert.Equal(t, f.admin.ID, a.ActorID)
		byID[a.ID] = a
	}

	moves, err := f.svc.ListMovements(ctx, f.admin, "Laptop", 0)
	require.NoError(t, err)
	require.Len(t, moves, 2)
	// Newest first.
	assert.Equal(t, movement.ActionUpdate, moves[0].Action)
	assert.Equal(t, int64(-4), moves[0].Change)
	assert.Equal(t, movement.ActionInitialReceipt, moves[1].Action)
	assert.Equal(t, int64(10), moves[1].Change)
	for _, m := range moves {
		assert.Equal(t, m.NewStock-m.OldStock, m.Change)
		_, paired := byID[m.AuditID]
		assert.True(t, paired, "movement %s has no audit record", m.ID)
	}
	assert.Equal(t, first.MovementID, moves[1].ID)
	assert.Equal(t, second.AuditID, moves[0].AuditID)

	cached, err := store.GetJSON[CachedStock](ctx, f.store, store.StockCache, "Laptop")
	require.NoError(t, err)
	assert.Equal(t, int64(6), cached.Stock)
}

func TestBackdatedEntryRebalances(t *testing.T) {
	f := newFixture(t)
	f.add(t, "2024-01-01", 10, 0)
	f.add(t, "2024-01-03", 0, 4)
	res := f.add(t, "2024-01-02", 5, 0)
	assert.Equal(t, &StockChange{CatalogName: "Laptop", Old: 6, New: 11}, res.Stock)

	balances, err := f.svc.ListCatalogEntries(context.Background(), f.admin, "Laptop")
	require.NoError(t, err)
	got := make([]int64, len(balances))
	for i, b := range balances {
		got[i] = b.BalanceAfter
	}
	assert.Equal(t, []int64{10, 15, 11}, got)
	assert.Equal(t, res.ID, balances[1].Entry.ID)
	assert.Equal(t, int64(15), balances[1].Entry.StockQuantity)
}

func TestCatalogMutationsShortCircuit(t *testing.T) {
	f := newFixture(t)
	f.add(t, "2024-01-01", 10, 0)
	ctx := context.Background()
	before := f.store.totalWrites()

	_, err := f.svc.CreateCatalogEntry(ctx, f.user, "", newEntry("Laptop", "2024-01-02", 1, 0))
	assert.Equal(t, apperr.CodePermissionDenied, apperr.CodeOf(err))

	_, err = f.svc.CreateCatalogEntry(ctx, f.clerk, auth.ResourceManageCatalog, newEntry("Laptop", "2024-01-02", 1, 0))
	assert.Equal(t, apperr.CodePermissionDenied, apperr.CodeOf(err), "clerk has no manageCatalog create")

	_, err = f.svc.CreateCatalogEntry(ctx, f.admin, auth.ResourceReports, newEntry("Laptop", "2024-01-02", 1, 0))
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	missing := newEntry("Laptop", "2024-01-02", 1, 0)
	missing.Requester = " "
	_, err = f.svc.CreateCatalogEntry(ctx, f.admin, "", missing)
	require.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"requester"}, verr.Missing)

	_, err = f.svc.CreateCatalogEntry(ctx, f.admin, "", newEntry("Laptop", "2024-01-02", 0, 11))
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)

	_, err = f.svc.CreateCatalogEntry(ctx, f.admin, "", newEntry("a/b", "2024-01-02", 1, 0))
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	assert.Equal(t, before, f.store.totalWrites(), "rejected calls must not write")
	assert.Len(t, f.audits(t), 1)
}

func TestInactivePrincipalIsDenied(t *testing.T) {
	f := newFixture(t)
	inactive := f.admin
	inactive.IsActive = false
	_, err := f.svc.CreateCatalogEntry(context.Background(), inactive, "", newEntry("Laptop", "2024-01-01", 1, 0))
	require.Equal(t, apperr.CodePermissionDenied, apperr.CodeOf(err))
	var denied *auth.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, auth.ReasonInactive, denied.Reason)
	assert.Zero(t, f.store.totalWrites())
}

func TestAuditFailureDegradesWithoutMovement(t *testing.T) {
	f := newFixture(t)
	f.add(t, "2024-01-01", 10, 0)
	f.store.failWrites(store.AuditLog, errBackend)

	res, err := f.svc.CreateCatalogEntry(context.Background(), f.clerk, "", newEntry("Laptop", "2024-01-02", 0, 3))
	require.NoError(t, err)
	assert.True(t, res.Degraded())
	assert.Equal(t, apperr.CodeDegradedSuccess, res.Code)
	assert.Empty(t, res.AuditID)
	assert.Empty(t, res.MovementID)
	assert.ErrorIs(t, res.TrailErr(), errBackend)
	assert.NotEmpty(t, res.TrailError)

	_, err = store.GetJSON[ledger.Entry](context.Background(), f.store, store.Catalogs, res.ID)
	require.NoError(t, err, "primary write must stand")
	assert.Len(t, f.movements(t), 1, "no movement without its audit record")
	assert.Len(t, f.audits(t), 1)
}

func TestMovementFailureDegrades(t *testing.T) {
	f := newFixture(t)
	f.store.failWrites(store.MovementHistory, errBackend)

	res, err := f.svc.CreateCatalogEntry(context.Background(), f.admin, "", newEntry("Laptop", "2024-01-01", 4, 0))
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, res.Status)
	assert.NotEmpty(t, res.AuditID)
	assert.Empty(t, res.MovementID)
}

func TestPrimaryWriteFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.store.failWrites(store.Catalogs, store.ErrUnavailable)

	_, err := f.svc.CreateCatalogEntry(context.Background(), f.admin, "", newEntry("Laptop", "2024-01-01", 4, 0))
	assert.Equal(t, apperr.CodeStoreUnavailable, apperr.CodeOf(err))
	assert.Empty(t, f.audits(t))
	assert.Empty(t, f.movements(t))
}

func TestCacheFailureDoesNotDegrade(t *testing.T) {
	f := newFixture(t)
	f.store.failWrites(store.StockCache, errBackend)
	res := f.add(t, "2024-01-01", 4, 0)
	assert.Equal(t, StatusOK, res.Status)
}

func TestUpdateCatalogEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receipt := f.add(t, "2024-01-01", 10, 0)
	f.add(t, "2024-01-03", 0, 4)

	qty := int64(12)
	res, err := f.svc.UpdateCatalogEntry(ctx, f.clerk, "", receipt.ID, EntryPatch{QuantityReceived: &qty})
	require.NoError(t, err)
	assert.Equal(t, &StockChange{CatalogName: "Laptop", Old: 6, New: 8}, res.Stock)

	moves, err := f.svc.ListMovements(ctx, f.admin, "Laptop", 1)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, movement.ActionEditEntry, moves[0].Action)
	assert.Equal(t, int64(2), moves[0].Change)

	stored, err := store.GetJSON[ledger.Entry](ctx, f.store, store.Catalogs, receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), stored.QuantityReceived)
	assert.Equal(t, f.clerk.ID, stored.UpdatedBy)

	small := int64(3)
	_, err = f.svc.UpdateCatalogEntry(ctx, f.clerk, "", receipt.ID, EntryPatch{QuantityReceived: &small})
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err), "later issue of 4 would go negative")

	_, err = f.svc.UpdateCatalogEntry(ctx, f.clerk, "", receipt.ID, EntryPatch{})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, err = f.svc.UpdateCatalogEntry(ctx, f.clerk, "", "missing", EntryPatch{QuantityReceived: &qty})
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestDeleteCatalogEntryRebalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "2024-01-01", 10, 0)
	issue := f.add(t, "2024-01-03", 0, 4)

	res, err := f.svc.DeleteCatalogEntry(ctx, f.clerk, "", issue.ID)
	require.NoError(t, err)
	assert.Equal(t, &StockChange{CatalogName: "Laptop", Old: 6, New: 10}, res.Stock)
	assert.NotEmpty(t, res.AuditID)

	bal, err := f.svc.GetStockBalance(ctx, f.admin, "Laptop")
	require.NoError(t, err)
	assert.Equal(t, int64(10), bal)

	audits, err := f.svc.ListAudit(ctx, f.admin, 1)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, audit.ActionDeleteCatalog, audits[0].Action)
	assert.Equal(t, issue.ID, audits[0].TargetID)

	_, err = f.svc.DeleteCatalogEntry(ctx, f.clerk, "", issue.ID)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
	_, err = f.svc.DeleteCatalogEntry(ctx, f.user, "", "whatever")
	assert.Equal(t, apperr.CodePermissionDenied, apperr.CodeOf(err))
}

func TestConcurrentIssuesNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	f.add(t, "2024-01-01", 10, 0)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateCatalogEntry(context.Background(), f.admin, "", newEntry("Laptop", "2024-01-02", 0, 1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperr.CodeOf(err) == apperr.CodeConflict:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 15, conflicts)

	bal, err := f.svc.GetStockBalance(context.Background(), f.admin, "Laptop")
	require.NoError(t, err)
	assert.Zero(t, bal)
	assert.Len(t, f.movements(t), 11)
	assert.Len(t, f.audits(t), 11)
}

func TestEmptyCatalogBalanceIsZero(t *testing.T) {
	f := newFixture(t)
	bal, err := f.svc.GetStockBalance(context.Background(), f.user, "Unknown")
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func TestRefreshStockCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "2024-01-01", 10, 0)
	_, err := f.svc.CreateCatalogEntry(ctx, f.admin, "", newEntry("Mouse", "2024-01-01", 3, 0))
	require.NoError(t, err)
	require.NoError(t, store.SetJSON(ctx, f.store, store.StockCache, "Retired", CachedStock{CatalogName: "Retired", Stock: 9}))
	require.NoError(t, store.SetJSON(ctx, f.store, store.StockCache, "Laptop", CachedStock{CatalogName: "Laptop", Stock: 999}))

	n, err := f.svc.RefreshStockCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	laptop, err := store.GetJSON[CachedStock](ctx, f.store, store.StockCache, "Laptop")
	require.NoError(t, err)
	assert.Equal(t, int64(10), laptop.Stock)
	_, err = f.store.Get(ctx, store.StockCache, "Retired")
	assert.ErrorIs(t, err, store.ErrNotFound)

	summaries, err := f.svc.ListCatalogs(ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, []CatalogSummary{
		{CatalogName: "Laptop", Entries: 1, Stock: 10},
		{CatalogName: "Mouse", Entries: 1, Stock: 3},
	}, summaries)
}

func TestReceiptAcceptedAfterDeleteLeavesDeficit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receipt := f.add(t, "2024-01-01", 10, 0)
	f.add(t, "2024-01-05", 0, 8)

	_, err := f.svc.DeleteCatalogEntry(ctx, f.admin, "", receipt.ID)
	require.NoError(t, err)
	bal, err := f.svc.GetStockBalance(ctx, f.admin, "Laptop")
	require.NoError(t, err)
	require.Equal(t, int64(-8), bal)

	res := f.add(t, "2024-01-10", 5, 0)
	assert.Equal(t, &StockChange{CatalogName: "Laptop", Old: -8, New: -3}, res.Stock)

	_, err = f.svc.CreateCatalogEntry(ctx, f.admin, "", newEntry("Laptop", "2024-01-11", 0, 1))
	require.Equal(t, apperr.CodeConflict, apperr.CodeOf(err), "an issue may not deepen the deficit")
	assert.Equal(t, 1, strings.Count(err.Error(), "insufficient stock"), err.Error())
}

func TestCallerCancellationAfterPrimaryWriteKeepsTrail(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.store.onSet = func(c store.Collection) {
		if c == store.Catalogs {
			cancel()
		}
	}

	res, err := f.svc.CreateCatalogEntry(ctx, f.admin, "", newEntry("Laptop", "2024-01-01", 7, 0))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Empty(t, res.Code)
	assert.NotEmpty(t, res.AuditID)
	assert.NotEmpty(t, res.MovementID)
	require.Error(t, ctx.Err())

	assert.Len(t, f.audits(t), 1)
	assert.Len(t, f.movements(t), 1)
	cached, err := store.GetJSON[CachedStock](context.Background(), f.store, store.StockCache, "Laptop")
	require.NoError(t, err)
	assert.Equal(t, int64(7), cached.Stock)
}

func TestTrailUsesServiceClock(t *testing.T) {
	fixed := time.Date(2024, 4, 1, 9, 30, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return fixed }))
	f.add(t, "2024-04-01", 3, 0)

	audits := f.audits(t)
	require.Len(t, audits, 1)
	assert.True(t, audits[0].Timestamp.Equal(fixed), "audit at %v", audits[0].Timestamp)
	moves := f.movements(t)
	require.Len(t, moves, 1)
	assert.True(t, moves[0].Timestamp.Equal(fixed), "movement at %v", moves[0].Timestamp)
}
