package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"stockroom.org/internal/ledger"
	"stockroom.org/internal/movement"
)

func (a *API) listMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parsePositiveInt(q.Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	records, err := a.inv.ListMovements(r.Context(), principalOf(r), strings.TrimSpace(q.Get("catalog")), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if records == nil {
		records = []movement.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": records})
}

func (a *API) reportSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.reports.Summary(r.Context(), principalOf(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) reportCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDateParam(q.Get("from"), "from")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseDateParam(q.Get("to"), "to")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	events, err := a.reports.Calendar(r.Context(), principalOf(r), from, to)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (a *API) reportAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := a.reports.Analytics(r.Context(), principalOf(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

// parseDateParam reads an optional date query parameter. Blank is zero.
func parseDateParam(raw, name string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	t, ok := ledger.ParseDate(raw)
	if !ok {
		return time.Time{}, fmt.Errorf("%s must be a date (YYYY-MM-DD)", name)
	}
	return t, nil
}
