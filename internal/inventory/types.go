package inventory

import (
	"fmt"
	"strings"
	"time"

	"stockroom.org/internal/apperr"
	"stockroom.org/internal/auth"
	"stockroom.org/internal/ledger"
)

// Status reports whether a committed mutation also reached its trail.
type Status string

const (
	StatusOK Status = "ok"
	// StatusDegraded means the primary record was written but its audit or
	// movement record was not. The primary write is never rolled back.
	StatusDegraded Status = "degraded"
)

// StockChange is the catalog tail before and after a stock-affecting mutation.
type StockChange struct {
	CatalogName string `json:"catalogName"`
	Old         int64  `json:"old"`
	New         int64  `json:"new"`
}

// Result describes a committed mutation. Code is DEGRADED_SUCCESS when the
// trail write failed.
type Result struct {
	Status     Status       `json:"status"`
	Code       apperr.Code  `json:"code,omitempty"`
	ID         string       `json:"id"`
	AuditID    string       `json:"auditId,omitempty"`
	MovementID string       `json:"movementId,omitempty"`
	Stock      *StockChange `json:"stock,omitempty"`
	TrailError string       `json:"trailError,omitempty"`

	trailErr error
}

func (r Result) Degraded() bool { return r.Status == StatusDegraded }

// TrailErr returns the append failure behind a degraded result.
func (r Result) TrailErr() error { return r.trailErr }

// OrderStatus tracks an order through fulfilment.
type OrderStatus string

const (
	OrderPending   OrderStatus = "Pending"
	OrderConfirmed OrderStatus = "Confirmed"
	OrderShipped   OrderStatus = "Shipped"
	OrderCancelled OrderStatus = "Cancelled"
)

var orderStatuses = []OrderStatus{OrderPending, OrderConfirmed, OrderShipped, OrderCancelled}

// ParseOrderStatus matches s case-insensitively against the known statuses.
func ParseOrderStatus(s string) (OrderStatus, error) {
	s = strings.TrimSpace(s)
	for _, st := range orderStatuses {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// Order is a request for stock stored under Orders/{id}. Orders do not take
// part in the stock fold.
type Order struct {
	ID            string      `json:"id"`
	CatalogName   string      `json:"catalogName" validate:"required"`
	OrderQuantity int64       `json:"orderQuantity" validate:"gt=0"`
	Requester     string      `json:"requester" validate:"required"`
	Message       string      `json:"message,omitempty"`
	OrderDate     string      `json:"orderDate"`
	Status        OrderStatus `json:"status"`
	CreatedAt     time.Time   `json:"createdAt"`
	CreatedBy     string      `json:"createdBy,omitempty"`
	UpdatedAt     *time.Time  `json:"updatedAt,omitempty"`
	UpdatedBy     string      `json:"updatedBy,omitempty"`
}

// EntryPatch carries the editable fields of a catalog entry. Nil fields are
// left unchanged. The catalog name is fixed once an entry exists.
type EntryPatch struct {
	ReceiptDate             *string `json:"receiptDate,omitempty"`
	QuantityReceived        *int64  `json:"quantityReceived,omitempty"`
	DeliveryDate            *string `json:"deliveryDate,omitempty"`
	IssueQuantity           *int64  `json:"issueQuantity,omitempty"`
	DistributionDestination *string `json:"distributionDestination,omitempty"`
	Requester               *string `json:"requester,omitempty"`
	Remarks                 *string `json:"remarks,omitempty"`
}

// Apply returns e with the set fields of p.
func (p EntryPatch) Apply(e ledger.Entry) ledger.Entry {
	if p.ReceiptDate != nil {
		e.ReceiptDate = *p.ReceiptDate
	}
	if p.QuantityReceived != nil {
		e.QuantityReceived = *p.QuantityReceived
	}
	if p.DeliveryDate != nil {
		e.DeliveryDate = *p.DeliveryDate
	}
	if p.IssueQuantity != nil {
		e.IssueQuantity = *p.IssueQuantity
	}
	if p.DistributionDestination != nil {
		e.DistributionDestination = *p.DistributionDestination
	}
	if p.Requester != nil {
		e.Requester = *p.Requester
	}
	if p.Remarks != nil {
		e.Remarks = *p.Remarks
	}
	return ledger.Normalize(e)
}

// Changed lists the json names of the fields p sets.
func (p EntryPatch) Changed() []string {
	var out []string
	if p.ReceiptDate != nil {
		out = append(out, "receiptDate")
	}
	if p.QuantityReceived != nil {
		out = append(out, "quantityReceived")
	}
	if p.DeliveryDate != nil {
		out = append(out, "deliveryDate")
	}
	if p.IssueQuantity != nil {
		out = append(out, "issueQuantity")
	}
	if p.DistributionDestination != nil {
		out = append(out, "distributionDestination")
	}
	if p.Requester != nil {
		out = append(out, "requester")
	}
	if p.Remarks != nil {
		out = append(out, "remarks")
	}
	return out
}

// NewUser is the input of CreateUser.
type NewUser struct {
	Email       string    `json:"email" validate:"required,email"`
	Password    string    `json:"password" validate:"required,min=8"`
	DisplayName string    `json:"displayName,omitempty"`
	Role        auth.Role `json:"role,omitempty"`
}

// CatalogSummary is the derived state of one catalog item.
type CatalogSummary struct {
	CatalogName string `json:"catalogName"`
	Entries     int    `json:"entries"`
	Stock       int64  `json:"stock"`
}

// CachedStock is the display copy of a catalog tail stored under
// StockCache/{catalogName}. It is never read for correctness.
type CachedStock struct {
	CatalogName string    `json:"catalogName"`
	Stock       int64     `json:"stock"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
