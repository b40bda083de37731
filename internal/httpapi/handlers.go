package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"stockroom.org/internal/apperr"
	"stockroom.org/internal/auth"
	"stockroom.org/internal/inventory"
	"stockroom.org/internal/obs"
	"stockroom.org/internal/reports"
	"stockroom.org/internal/store"
)

const (
	defaultMaxBody    = 1 << 20
	trailStatusHeader = "X-Trail-Status"
)

// Deps are the services the HTTP layer fronts.
type Deps struct {
	Inventory *inventory.Service
	Reports   *reports.Service
	Tokens    *auth.TokenIssuer
	Store     store.Store
	Metrics   *obs.Metrics
	Logger    *obs.Logger
	Version   string
}

// Options tunes the transport limits.
type Options struct {
	RateBurst    int
	RatePerSec   float64
	MaxBodyBytes int64
	CORSOrigins  []string
}

// API is the HTTP surface.
type API struct {
	inv       *inventory.Service
	reports   *reports.Service
	tokens    *auth.TokenIssuer
	store     store.Store
	directory auth.Directory
	metrics   *obs.Metrics
	log       *obs.Logger
	version   string
	opts      Options
}

func New(d Deps, opts Options) (*API, error) {
	if d.Inventory == nil || d.Tokens == nil || d.Store == nil {
		return nil, errors.New("httpapi: inventory, tokens and store are required")
	}
	if d.Logger == nil {
		d.Logger = obs.Nop()
	}
	if d.Reports == nil {
		d.Reports = reports.New(d.Store, d.Inventory.Engine())
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 40
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 20
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBody
	}
	return &API{
		inv:       d.Inventory,
		reports:   d.Reports,
		tokens:    d.Tokens,
		store:     d.Store,
		directory: auth.Directory{Store: d.Store},
		metrics:   d.Metrics,
		log:       d.Logger,
		version:   d.Version,
		opts:      opts,
	}, nil
}

// Handler builds the router.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		Recoverer(a.log),
		RequestID(a.log),
		Logging(a.log),
		a.metrics.Instrument,
		SecurityHeaders,
		CORS(a.opts.CORSOrigins),
		func(next http.Handler) http.Handler { return RateLimit(next, a.opts.RateBurst, a.opts.RatePerSec) },
		func(next http.Handler) http.Handler { return MaxBodyBytes(next, a.opts.MaxBodyBytes) },
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", a.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/token", a.IssueToken)

		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)

			r.Get("/me", a.Me)
			r.Post("/authorize", a.Authorize)

			r.Get("/catalogs", a.listCatalogs)
			r.Get("/catalogs/{name}/entries", a.listEntries)
			r.Get("/catalogs/{name}/balance", a.getBalance)
			r.Post("/catalog-entries", a.createEntry)
			r.Patch("/catalog-entries/{id}", a.updateEntry)
			r.Delete("/catalog-entries/{id}", a.deleteEntry)

			r.Get("/orders", a.listOrders)
			r.Post("/orders", a.createOrder)
			r.Delete("/orders/{id}", a.deleteOrder)
			r.Patch("/orders/{id}/status", a.updateOrderStatus)

			r.Get("/users", a.listUsers)
			r.Post("/users", a.createUser)
			r.Post("/users/{id}/deactivate", a.deactivateUser)
			r.Get("/users/{id}/permissions", a.getPermissions)
			r.Put("/users/{id}/permissions", a.updatePermissions)

			r.Get("/audit", a.listAudit)
			r.Get("/movements", a.listMovements)
			r.Get("/reports/summary", a.reportSummary)
			r.Get("/reports/calendar", a.reportCalendar)
			r.Get("/reports/analytics", a.reportAnalytics)
			r.Get("/stream", a.Stream)
		})
	})
	return r
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "stockroom-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Details   any    `json:"details,omitempty"`
}

var codeByStatus = map[int]apperr.Code{
	http.StatusBadRequest:          apperr.CodeValidation,
	http.StatusUnauthorized:        apperr.CodeUnauthenticated,
	http.StatusForbidden:           apperr.CodePermissionDenied,
	http.StatusNotFound:            apperr.CodeNotFound,
	http.StatusConflict:            apperr.CodeConflict,
	http.StatusServiceUnavailable:  apperr.CodeStoreUnavailable,
	http.StatusInternalServerError: apperr.CodeInternal,
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders a transport-level failure.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      string(codeByStatus[status]),
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// fail renders a service error using its apperr metadata.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	typed := apperr.As(err)
	if typed == nil {
		typed = apperr.Wrap(apperr.CodeInternal, err, "unexpected error")
	}
	meta := apperr.MetadataFor(typed.Code())
	resp := errorResponse{
		Error:     meta.PublicMessage,
		Code:      string(typed.Code()),
		RequestID: RequestIDFromContext(r.Context()),
	}
	if meta.DetailsAllowed || typed.Code() == apperr.CodeNotFound {
		if m := typed.Message(); m != "" {
			resp.Error = m
		}
	}
	if meta.DetailsAllowed {
		resp.Details = typed.Details()
	}

	ctx := a.log.WithField(r.Context(), "error_code", string(typed.Code()))
	if meta.HTTPStatus >= http.StatusInternalServerError {
		a.log.Error(ctx, "request.error", err)
	} else {
		a.log.Entry(ctx).Debug().Err(err).Msg("request.rejected")
	}
	if meta.Retryable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, meta.HTTPStatus, resp)
}

// writeResult renders a committed mutation. A degraded trail is flagged in
// a header as well as in the body.
func writeResult(w http.ResponseWriter, status int, res inventory.Result) {
	if res.Degraded() {
		w.Header().Set(trailStatusHeader, string(inventory.StatusDegraded))
	}
	writeJSON(w, status, res)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, defaultMaxBody)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit must be between 1 and 1000")
	}
	return val, nil
}

func viaParam(r *http.Request) auth.Resource {
	return auth.Resource(strings.TrimSpace(r.URL.Query().Get("via")))
}
