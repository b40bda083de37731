package reports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockroom.org/internal/apperr"
	"stockroom.org/internal/auth"
	"stockroom.org/internal/inventory"
	"stockroom.org/internal/ledger"
	"stockroom.org/internal/store"
	"stockroom.org/internal/store/memstore"
)

func entry(id, name, delivery string, in, out int64) ledger.Entry {
	return ledger.Entry{ID: id, CatalogName: name, ReceiptDate: "2024-01-01", DeliveryDate: delivery, QuantityReceived: in, IssueQuantity: out}
}

func TestBuildDerivesKPIsAndAlerts(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	entries := []ledger.Entry{
		entry("1", "Laptop", "2024-01-02", 10, 0),
		entry("2", "Laptop", "2024-07-01", 0, 7),
		entry("3", "Mouse", "2024-01-02", 4, 4),
		entry("4", "Printer", "2024-08-01", 12, 0),
		entry("5", "Cable", "2024-01-02", 2, 0),
	}
	orders := []inventory.Order{
		{ID: "o1", Status: inventory.OrderPending},
		{ID: "o2", Status: inventory.OrderShipped},
		{ID: "o3"},
	}

	sum := Build(entries, orders, now)
	assert.Equal(t, KPIs{
		CatalogItems:            4,
		TotalStock:              3 + 0 + 12 + 2,
		PendingDistributions:    2,
		MostDistributed:         "Laptop",
		MostDistributedQuantity: 7,
	}, sum.KPIs)
	assert.Equal(t, []Alert{
		{CatalogName: "Mouse", Severity: SeverityCritical, Stock: 0, Message: "Mouse has no items left"},
		{CatalogName: "Cable", Severity: SeverityWarning, Stock: 2, Message: "Cable has only 2 items"},
		{CatalogName: "Laptop", Severity: SeverityWarning, Stock: 3, Message: "Laptop has only 3 items"},
	}, sum.Alerts)
	assert.Equal(t, map[string]int{"Pending": 2, "Shipped": 1}, sum.OrdersByStatus)
}

func TestBuildEmpty(t *testing.T) {
	sum := Build(nil, nil, time.Now())
	assert.Zero(t, sum.KPIs)
	assert.Empty(t, sum.Alerts)
	assert.NotNil(t, sum.Alerts)
}

func TestSummaryRequiresReportsRead(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	require.NoError(t, store.SetJSON(ctx, st, store.Catalogs, "1", entry("1", "Laptop", "2024-01-02", 3, 0)))
	require.NoError(t, store.SetJSON(ctx, st, store.UserPermissions, "u2", auth.PermissionRecord{
		UserID:      "u2",
		Permissions: auth.Matrix{auth.ResourceReports: {auth.ActionRead: false}},
	}))
	svc := New(st, nil)

	sum, err := svc.Summary(ctx, auth.Principal{ID: "u1", Role: auth.RoleUser, IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.KPIs.TotalStock)

	_, err = svc.Summary(ctx, auth.Principal{ID: "u2", Role: auth.RoleUser, IsActive: true})
	assert.Equal(t, apperr.CodePermissionDenied, apperr.CodeOf(err))
}
