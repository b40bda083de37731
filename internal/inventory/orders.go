package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"stockroom.org/internal/audit"
	"stockroom.org/internal/auth"
	"stockroom.org/internal/ids"
	"stockroom.org/internal/store"
)

const orderDateLayout = "2006-01-02"

// CreateOrder stores a new order. Orders default to Pending and today's date.
func (s *Service) CreateOrder(ctx context.Context, p auth.Principal, via auth.Resource, order Order) (res Result, err error) {
	defer func() { s.observe("create_order", res, err) }()

	resource, err := entryPoint(via, auth.ResourcePlaceOrder, auth.ResourcePlaceOrder, auth.ResourceOrderEntries)
	if err != nil {
		return Result{}, err
	}
	if err := s.authorize(ctx, p, resource, auth.ActionCreate); err != nil {
		return Result{}, err
	}

	order.CatalogName = strings.TrimSpace(order.CatalogName)
	order.Requester = strings.TrimSpace(order.Requester)
	order.Message = strings.TrimSpace(order.Message)
	order.OrderDate = strings.TrimSpace(order.OrderDate)
	if err := validateStruct(order); err != nil {
		return Result{}, err
	}
	if err := checkCatalogName(order.CatalogName); err != nil {
		return Result{}, err
	}
	if order.Status == "" {
		order.Status = OrderPending
	} else {
		st, err := ParseOrderStatus(string(order.Status))
		if err != nil {
			return Result{}, invalid("%v", err)
		}
		order.Status = st
	}
	now := s.now()
	if order.OrderDate == "" {
		order.OrderDate = now.Format(orderDateLayout)
	}
	order.ID = ids.NewAt(now)
	order.CreatedAt = now
	order.CreatedBy = p.ID
	order.UpdatedAt = nil
	order.UpdatedBy = ""

	if err := store.SetJSON(ctx, s.store, store.Orders, order.ID, order); err != nil {
		return Result{}, classify(err)
	}
	res = Result{Status: StatusOK, ID: order.ID}
	s.recordTrail(ctx, "create_order", &res, audit.Record{
		Action:     audit.ActionCreateOrder,
		ActorID:    p.ID,
		ActorEmail: p.Email,
		TargetID:   order.ID,
		Details:    fmt.Sprintf("Order: %s x %d", order.CatalogName, order.OrderQuantity),
		Fields: map[string]any{
			"catalogName":   order.CatalogName,
			"orderQuantity": order.OrderQuantity,
			"via":           string(resource),
		},
	}, nil)
	return res, nil
}

// DeleteOrder removes an order.
func (s *Service) DeleteOrder(ctx context.Context, p auth.Principal, via auth.Resource, orderID string) (res Result, err error) {
	defer func() { s.observe("delete_order", res, err) }()

	resource, err := entryPoint(via, auth.ResourceOrderEntries, auth.ResourcePlaceOrder, auth.ResourceOrderEntries)
	if err != nil {
		return Result{}, err
	}
	if err := s.authorize(ctx, p, resource, auth.ActionDelete); err != nil {
		return Result{}, err
	}
	order, err := s.order(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if err := s.store.Remove(ctx, store.Orders, order.ID); err != nil {
		return Result{}, classify(err)
	}
	res = Result{Status: StatusOK, ID: order.ID}
	s.recordTrail(ctx, "delete_order", &res, audit.Record{
		Action:     audit.ActionDeleteOrder,
		ActorID:    p.ID,
		ActorEmail: p.Email,
		TargetID:   order.ID,
		Details:    fmt.Sprintf("Deleted order: %s x %d", order.CatalogName, order.OrderQuantity),
		Fields: map[string]any{
			"catalogName": order.CatalogName,
			"via":         string(resource),
		},
	}, nil)
	return res, nil
}

// UpdateOrderStatus moves an order to status.
func (s *Service) UpdateOrderStatus(ctx context.Context, p auth.Principal, orderID string, status OrderStatus) (res Result, err error) {
	defer func() { s.observe("update_order_status", res, err) }()

	if err := s.authorize(ctx, p, auth.ResourceOrderEntries, auth.ActionUpdate); err != nil {
		return Result{}, err
	}
	next, err := ParseOrderStatus(string(status))
	if err != nil {
		return Result{}, invalid("%v", err)
	}
	order, err := s.order(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	now := s.now()
	if err := s.store.Update(ctx, store.Orders, order.ID, map[string]any{
		"status":    next,
		"updatedAt": now,
		"updatedBy": p.ID,
	}); err != nil {
		return Result{}, classify(err)
	}
	res = Result{Status: StatusOK, ID: order.ID}
	s.recordTrail(ctx, "update_order_status", &res, audit.Record{
		Action:     audit.ActionUpdateOrder,
		ActorID:    p.ID,
		ActorEmail: p.Email,
		TargetID:   order.ID,
		Details:    fmt.Sprintf("Order %s: %s -> %s", order.CatalogName, order.Status, next),
		Fields: map[string]any{
			"from": string(order.Status),
			"to":   string(next),
		},
	}, nil)
	return res, nil
}

// ListOrders returns every order, newest order date first.
func (s *Service) ListOrders(ctx context.Context, p auth.Principal) ([]Order, error) {
	if err := s.authorize(ctx, p, auth.ResourceOrderEntries, auth.ActionRead); err != nil {
		return nil, err
	}
	orders, err := store.ListJSON[Order](ctx, s.store, store.Orders)
	if err != nil {
		return nil, classify(err)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].OrderDate != orders[j].OrderDate {
			return orders[i].OrderDate > orders[j].OrderDate
		}
		return orders[i].ID > orders[j].ID
	})
	return orders, nil
}

func (s *Service) order(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, invalid("order id is required")
	}
	o, err := store.GetJSON[Order](ctx, s.store, store.Orders, orderID)
	if err != nil {
		return Order{}, classify(err)
	}
	return o, nil
}
