package reports

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"stockroom.org/internal/apperr"
	"stockroom.org/internal/auth"
	"stockroom.org/internal/inventory"
	"stockroom.org/internal/ledger"
	"stockroom.org/internal/store"
)

// LowStockThreshold is the tail below which an item raises a warning.
const LowStockThreshold = 5

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Alert flags a catalog item whose derived stock is low or exhausted.
type Alert struct {
	CatalogName string   `json:"catalogName"`
	Severity    Severity `json:"severity"`
	Stock       int64    `json:"stock"`
	Message     string   `json:"message"`
}

// KPIs are the dashboard headline figures. Stock figures are derived from
// the entry fold, never from cached values.
type KPIs struct {
	CatalogItems            int    `json:"catalogItems"`
	TotalStock              int64  `json:"totalStock"`
	PendingDistributions    int    `json:"pendingDistributions"`
	MostDistributed         string `json:"mostDistributed,omitempty"`
	MostDistributedQuantity int64  `json:"mostDistributedQuantity"`
}

type Summary struct {
	KPIs           KPIs           `json:"kpis"`
	Alerts         []Alert        `json:"alerts"`
	OrdersByStatus map[string]int `json:"ordersByStatus"`
	GeneratedAt    time.Time      `json:"generatedAt"`
}

// Service builds read-only reports over the document store.
type Service struct {
	store  store.Store
	engine *auth.Engine
	now    func() time.Time
}

func New(st store.Store, engine *auth.Engine) *Service {
	if engine == nil {
		engine = auth.NewEngine(auth.StoreOverrides{Store: st})
	}
	return &Service{store: st, engine: engine, now: func() time.Time { return time.Now().UTC() }}
}

// Summary loads catalog entries and orders concurrently and derives the
// dashboard figures.
func (s *Service) Summary(ctx context.Context, p auth.Principal) (Summary, error) {
	if err := s.require(ctx, p, auth.ResourceReports); err != nil {
		return Summary{}, err
	}
	entries, orders, err := s.load(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Build(entries, orders, s.now()), nil
}

func (s *Service) require(ctx context.Context, p auth.Principal, resource auth.Resource) error {
	err := s.engine.Require(ctx, p, resource, auth.ActionRead)
	if err == nil {
		return nil
	}
	wrapped := apperr.Wrap(apperr.CodePermissionDenied, err, "access denied")
	var denied *auth.DeniedError
	if errors.As(err, &denied) {
		wrapped = wrapped.WithDetails(map[string]string{
			"resource": string(denied.Resource),
			"action":   string(denied.Action),
			"reason":   string(denied.Reason),
		})
	}
	return wrapped
}

func (s *Service) load(ctx context.Context) ([]ledger.Entry, []inventory.Order, error) {
	var (
		entries []ledger.Entry
		orders  []inventory.Order
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = store.ListJSON[ledger.Entry](gctx, s.store, store.Catalogs)
		return err
	})
	g.Go(func() error {
		var err error
		orders, err = store.ListJSON[inventory.Order](gctx, s.store, store.Orders)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, apperr.Wrap(apperr.CodeStoreUnavailable, err, "load report data")
	}
	return entries, orders, nil
}

// Build derives a Summary from raw entries and orders as of now.
func Build(entries []ledger.Entry, orders []inventory.Order, now time.Time) Summary {
	groups := inventory.GroupByCatalog(entries)
	sum := Summary{
		Alerts:         []Alert{},
		OrdersByStatus: map[string]int{},
		GeneratedAt:    now,
	}
	sum.KPIs.CatalogItems = len(groups)

	issued := make(map[string]int64, len(groups))
	for name, group := range groups {
		tail := ledger.Tail(group)
		sum.KPIs.TotalStock += tail
		if alert, ok := alertFor(name, tail); ok {
			sum.Alerts = append(sum.Alerts, alert)
		}
		for _, e := range group {
			issued[name] += e.IssueQuantity
			if d, ok := ledger.ParseDate(e.DeliveryDate); ok && d.After(now) {
				sum.KPIs.PendingDistributions++
			}
		}
	}
	for name, qty := range issued {
		if qty == 0 {
			continue
		}
		if qty > sum.KPIs.MostDistributedQuantity ||
			(qty == sum.KPIs.MostDistributedQuantity && name < sum.KPIs.MostDistributed) {
			sum.KPIs.MostDistributed = name
			sum.KPIs.MostDistributedQuantity = qty
		}
	}
	sort.Slice(sum.Alerts, func(i, j int) bool {
		if sum.Alerts[i].Stock != sum.Alerts[j].Stock {
			return sum.Alerts[i].Stock < sum.Alerts[j].Stock
		}
		return sum.Alerts[i].CatalogName < sum.Alerts[j].CatalogName
	})

	for _, o := range orders {
		status := string(o.Status)
		if status == "" {
			status = string(inventory.OrderPending)
		}
		sum.OrdersByStatus[status]++
	}
	return sum
}

func alertFor(name string, stock int64) (Alert, bool) {
	switch {
	case stock <= 0:
		return Alert{CatalogName: name, Severity: SeverityCritical, Stock: stock, Message: fmt.Sprintf("%s has no items left", name)}, true
	case stock < LowStockThreshold:
		return Alert{CatalogName: name, Severity: SeverityWarning, Stock: stock, Message: fmt.Sprintf("%s has only %d items", name, stock)}, true
	default:
		return Alert{}, false
	}
}
