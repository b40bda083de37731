package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"stockroom.org/internal/apperr"
	"stockroom.org/internal/auth"
	"stockroom.org/internal/store"
)

const heartbeatInterval = 25 * time.Second

// streamGates maps each streamable collection to the read permission it
// needs. Users and UserPermissions are never streamed.
var streamGates = map[store.Collection]auth.Resource{
	store.Catalogs:        auth.ResourceCatalogEntries,
	store.StockCache:      auth.ResourceCatalogEntries,
	store.Orders:          auth.ResourceOrderEntries,
	store.MovementHistory: auth.ResourceReports,
	store.AuditLog:        auth.ResourceUserManagement,
}

// Stream relays committed store changes as Server-Sent Events. The optional
// collection query parameter narrows the feed to one collection.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := principalOf(r)

	collection := store.Collection(strings.TrimSpace(r.URL.Query().Get("collection")))
	if collection != "" {
		if _, ok := streamGates[collection]; !ok {
			writeError(w, r, http.StatusBadRequest, fmt.Sprintf("collection %q cannot be streamed", collection))
			return
		}
	}

	allowed := make(map[store.Collection]bool, len(streamGates))
	for c, resource := range streamGates {
		if collection != "" && c != collection {
			continue
		}
		allowed[c] = a.inv.Authorize(ctx, p, resource, auth.ActionRead).Allowed
	}
	if !anyAllowed(allowed) {
		a.fail(w, r, apperr.New(apperr.CodePermissionDenied, "no streamable collection is readable"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, err := a.store.Subscribe(ctx, collection)
	if err != nil {
		a.fail(w, r, apperr.Wrap(apperr.CodeStoreUnavailable, err, "subscription failed"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			if !allowed[event.Collection] {
				continue
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", event.Collection, event.ID, payload)
			flusher.Flush()
		}
	}
}

func anyAllowed(m map[store.Collection]bool) bool {
	for _, ok := range m {
		if ok {
			return true
		}
	}
	return false
}
