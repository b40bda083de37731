package reports

import (
	"context"
	"sort"

	"stockroom.org/internal/auth"
	"stockroom.org/internal/inventory"
	"stockroom.org/internal/ledger"
)

// TopDemandSize caps the demand ranking.
const TopDemandSize = 5

// Demand is the total issued quantity of one catalog item.
type Demand struct {
	CatalogName string `json:"catalogName"`
	Issued      int64  `json:"issued"`
}

// Analytics are the chart figures of the analytics screen. AverageOrderQuantity
// is nil when there are no orders.
type Analytics struct {
	TotalStock           int64            `json:"totalStock"`
	TotalOrders          int              `json:"totalOrders"`
	AverageOrderQuantity *float64         `json:"averageOrderQuantity"`
	StockByItem          map[string]int64 `json:"stockByItem"`
	OrdersByItem         map[string]int   `json:"ordersByItem"`
	TopDemand            []Demand         `json:"topDemand"`
}

// Analytics loads entries and orders and derives the analytics figures.
func (s *Service) Analytics(ctx context.Context, p auth.Principal) (Analytics, error) {
	if err := s.require(ctx, p, auth.ResourceAnalytics); err != nil {
		return Analytics{}, err
	}
	entries, orders, err := s.load(ctx)
	if err != nil {
		return Analytics{}, err
	}
	return BuildAnalytics(entries, orders), nil
}

// BuildAnalytics derives Analytics. Stock per item is the derived tail.
// Items that were never issued are not ranked.
func BuildAnalytics(entries []ledger.Entry, orders []inventory.Order) Analytics {
	out := Analytics{
		StockByItem:  map[string]int64{},
		OrdersByItem: map[string]int{},
		TopDemand:    []Demand{},
	}
	for name, group := range inventory.GroupByCatalog(entries) {
		tail := ledger.Tail(group)
		out.StockByItem[name] = tail
		out.TotalStock += tail

		var issued int64
		for _, e := range group {
			issued += e.IssueQuantity
		}
		if issued > 0 {
			out.TopDemand = append(out.TopDemand, Demand{CatalogName: name, Issued: issued})
		}
	}
	sort.Slice(out.TopDemand, func(i, j int) bool {
		if out.TopDemand[i].Issued != out.TopDemand[j].Issued {
			return out.TopDemand[i].Issued > out.TopDemand[j].Issued
		}
		return out.TopDemand[i].CatalogName < out.TopDemand[j].CatalogName
	})
	if len(out.TopDemand) > TopDemandSize {
		out.TopDemand = out.TopDemand[:TopDemandSize]
	}

	var ordered int64
	for _, o := range orders {
		out.OrdersByItem[o.CatalogName]++
		ordered += o.OrderQuantity
	}
	out.TotalOrders = len(orders)
	if len(orders) > 0 {
		avg := float64(ordered) / float64(len(orders))
		out.AverageOrderQuantity = &avg
	}
	return out
}
