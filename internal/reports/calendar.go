package reports

import (
	"context"
	"sort"
	"time"

	"stockroom.org/internal/apperr"
	"stockroom.org/internal/auth"
	"stockroom.org/internal/inventory"
	"stockroom.org/internal/ledger"
	"stockroom.org/internal/store"
)

// CalendarEvent places one catalog entry on its delivery day.
type CalendarEvent struct {
	EntryID                 string `json:"entryId"`
	CatalogName             string `json:"catalogName"`
	Date                    string `json:"date"`
	QuantityReceived        int64  `json:"quantityReceived"`
	IssueQuantity           int64  `json:"issueQuantity"`
	Stock                   int64  `json:"stock"`
	Requester               string `json:"requester"`
	DistributionDestination string `json:"distributionDestination"`
}

// Calendar lists entries by delivery day between from and to, both
// inclusive. A zero bound leaves that side open. Entries without a parseable
// delivery date are left out.
func (s *Service) Calendar(ctx context.Context, p auth.Principal, from, to time.Time) ([]CalendarEvent, error) {
	if err := s.require(ctx, p, auth.ResourceStockCalendar); err != nil {
		return nil, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, apperr.New(apperr.CodeValidation, "to must not be before from")
	}
	entries, err := store.ListJSON[ledger.Entry](ctx, s.store, store.Catalogs)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStoreUnavailable, err, "load calendar data")
	}
	return BuildCalendar(entries, from, to), nil
}

// BuildCalendar derives calendar events. Stock is the running balance after
// the entry in its item's fold.
func BuildCalendar(entries []ledger.Entry, from, to time.Time) []CalendarEvent {
	from, to = day(from), day(to)
	events := []CalendarEvent{}
	for name, group := range inventory.GroupByCatalog(entries) {
		for _, b := range ledger.ComputeBalances(group) {
			d, ok := ledger.ParseDate(b.Entry.DeliveryDate)
			if !ok {
				continue
			}
			d = day(d)
			if (!from.IsZero() && d.Before(from)) || (!to.IsZero() && d.After(to)) {
				continue
			}
			events = append(events, CalendarEvent{
				EntryID:                 b.Entry.ID,
				CatalogName:             name,
				Date:                    d.Format("2006-01-02"),
				QuantityReceived:        b.Entry.QuantityReceived,
				IssueQuantity:           b.Entry.IssueQuantity,
				Stock:                   b.BalanceAfter,
				Requester:               b.Entry.Requester,
				DistributionDestination: b.Entry.DistributionDestination,
			})
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].Date != events[j].Date {
			return events[i].Date < events[j].Date
		}
		if events[i].CatalogName != events[j].CatalogName {
			return events[i].CatalogName < events[j].CatalogName
		}
		return events[i].EntryID < events[j].EntryID
	})
	return events
}

func day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
