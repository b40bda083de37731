package ledger

import (
	"sort"
	"strings"
	"time"
)

var dateLayouts = []string{"2006-01-02", time.RFC3339, time.RFC3339Nano}

// ParseDate parses a receipt or delivery date. ok is false for blank or
// unparseable input.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// sortKey places unknown dates at the epoch so they sort as oldest.
func sortKey(e Entry) time.Time {
	if t, ok := ParseDate(e.ReceiptDate); ok {
		return t
	}
	return time.Unix(0, 0).UTC()
}

// Sorted returns a copy of entries ordered by receipt date. Ties keep
// creation order (CreatedAt, then the monotonic ID).
func Sorted(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := sortKey(out[i]), sortKey(out[j])
		if !ki.Equal(kj) {
			return ki.Before(kj)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ComputeBalances sorts entries and folds them into running balances
// starting from zero. The input slice is not modified.
func ComputeBalances(entries []Entry) []Balance {
	sorted := Sorted(entries)
	out := make([]Balance, len(sorted))
	var running int64
	for i, e := range sorted {
		running += e.Net()
		out[i] = Balance{Entry: e, BalanceAfter: running}
	}
	return out
}

// Tail is the current stock: the balance after the last sorted entry, or
// zero when there are no entries.
func Tail(entries []Entry) int64 {
	balances := ComputeBalances(entries)
	if len(balances) == 0 {
		return 0
	}
	return balances[len(balances)-1].BalanceAfter
}

// CheckAvailability rejects candidate when placing it into existing would
// leave a balance at or after its position below zero and lower than it was
// without the candidate. An existing entry with the candidate's ID is
// replaced, so edits are checked the same way. Deficits the candidate did
// not deepen, such as those left by a deletion, are not held against it.
func CheckAvailability(existing []Entry, candidate Entry) error {
	baseline := make(map[string]int64, len(existing))
	for _, b := range ComputeBalances(existing) {
		baseline[b.Entry.ID] = b.BalanceAfter
	}

	combined := make([]Entry, 0, len(existing)+1)
	for _, e := range existing {
		if candidate.ID != "" && e.ID == candidate.ID {
			continue
		}
		combined = append(combined, e)
	}
	combined = append(combined, candidate)

	seen := false
	for _, b := range ComputeBalances(combined) {
		isCandidate := b.Entry.ID == candidate.ID
		if isCandidate {
			seen = true
		}
		if !seen || b.BalanceAfter >= 0 {
			continue
		}
		before, ok := baseline[b.Entry.ID]
		if isCandidate && !ok {
			before = b.BalanceAfter - candidate.Net()
		}
		if b.BalanceAfter < before {
			return &ShortfallError{
				CatalogName: candidate.CatalogName,
				EntryID:     b.Entry.ID,
				ReceiptDate: b.Entry.ReceiptDate,
				Balance:     b.BalanceAfter,
			}
		}
	}
	return nil
}
