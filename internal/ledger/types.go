package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Entry is one receipt/issue transaction for a catalog item. Quantities are
// whole units. StockQuantity is a display cache written at save time; it is
// never read back for correctness.
type Entry struct {
	ID                      string    `json:"id"`
	CatalogName             string    `json:"catalogName" validate:"required"`
	ReceiptDate             string    `json:"receiptDate" validate:"required"`
	QuantityReceived        int64     `json:"quantityReceived" validate:"gte=0"`
	DeliveryDate            string    `json:"deliveryDate" validate:"required"`
	IssueQuantity           int64     `json:"issueQuantity" validate:"gte=0"`
	DistributionDestination string    `json:"distributionDestination" validate:"required"`
	Requester               string    `json:"requester" validate:"required"`
	Remarks                 string    `json:"remarks,omitempty"`
	StockQuantity           int64     `json:"stockQuantity"`
	CreatedAt               time.Time `json:"createdAt"`
	CreatedBy               string    `json:"createdBy,omitempty"`
	UpdatedAt               time.Time `json:"updatedAt,omitempty"`
	UpdatedBy               string    `json:"updatedBy,omitempty"`
}

// Net is the stock delta contributed by the entry.
func (e Entry) Net() int64 {
	return e.QuantityReceived - e.IssueQuantity
}

// Balance is an entry together with the running balance after it.
type Balance struct {
	Entry        Entry `json:"entry"`
	BalanceAfter int64 `json:"balanceAfter"`
}

var (
	// ErrInvalidEntry is the sentinel behind *ValidationError.
	ErrInvalidEntry = errors.New("invalid ledger entry")
	// ErrInsufficientStock indicates an entry would drive a balance below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ValidationError lists the fields that made an entry unacceptable.
type ValidationError struct {
	Missing  []string `json:"missing,omitempty"`
	Negative []string `json:"negative,omitempty"`
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Negative) > 0 {
		parts = append(parts, "negative "+strings.Join(e.Negative, ", "))
	}
	return fmt.Sprintf("%s: %s", ErrInvalidEntry, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidEntry }

// ShortfallError reports the first entry whose balance would go negative.
type ShortfallError struct {
	CatalogName string `json:"catalogName"`
	EntryID     string `json:"entryId"`
	ReceiptDate string `json:"receiptDate"`
	Balance     int64  `json:"balance"`
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("%s would reach %d after entry %s (%s)",
		e.CatalogName, e.Balance, e.EntryID, e.ReceiptDate)
}

func (e *ShortfallError) Unwrap() error { return ErrInsufficientStock }
