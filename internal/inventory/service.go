package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"stockroom.org/internal/apperr"
	"stockroom.org/internal/audit"
	"stockroom.org/internal/auth"
	"stockroom.org/internal/lock"
	"stockroom.org/internal/movement"
	"stockroom.org/internal/obs"
	"stockroom.org/internal/store"
)

// Service is the only mutator of catalog, order and user data. Every call is
// authorized against the principal it receives; nothing is read from
// process-wide session state.
type Service struct {
	store   store.Store
	engine  *auth.Engine
	trail   *audit.Trail
	journal *movement.Journal
	locker  lock.Locker
	log     *obs.Logger
	metrics *obs.Metrics
	now     func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithLocker replaces the in-process per-catalog lock.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

func WithLogger(l *obs.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m *obs.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source used for ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a Service over st. A nil engine resolves overrides from st.
func New(st store.Store, engine *auth.Engine, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("inventory: store is required")
	}
	s := &Service{
		store:  st,
		engine: engine,
		locker: lock.NewKeyedMutex(),
		log:    obs.Nop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = auth.NewEngine(auth.StoreOverrides{Store: st}, auth.WithLogger(s.log), auth.WithRecorder(s.metrics))
	}
	s.trail = audit.NewTrail(st, s.log, audit.WithClock(s.now))
	s.journal = movement.NewJournal(st, movement.WithClock(s.now))
	return s, nil
}

// Engine exposes the permission engine for read-only queries.
func (s *Service) Engine() *auth.Engine { return s.engine }

// Authorize answers a permission query without performing anything.
func (s *Service) Authorize(ctx context.Context, p auth.Principal, resource auth.Resource, action auth.Action) auth.Decision {
	return s.engine.Authorize(ctx, p, resource, action)
}

func (s *Service) authorize(ctx context.Context, p auth.Principal, resource auth.Resource, action auth.Action) error {
	if err := s.engine.Require(ctx, p, resource, action); err != nil {
		return classify(err)
	}
	return nil
}

// requireAdmin applies the matrix check and then insists on the admin role.
func (s *Service) requireAdmin(ctx context.Context, p auth.Principal, resource auth.Resource, action auth.Action) error {
	if err := s.authorize(ctx, p, resource, action); err != nil {
		return err
	}
	if !p.IsAdmin() {
		return classify(&auth.DeniedError{Resource: resource, Action: action, Reason: auth.ReasonAdminRequired})
	}
	return nil
}

// entryPoint picks the resource a call is authorized against. Operations
// reachable from two screens accept either; empty means def.
func entryPoint(via, def auth.Resource, allowed ...auth.Resource) (auth.Resource, error) {
	if strings.TrimSpace(string(via)) == "" {
		return def, nil
	}
	for _, r := range allowed {
		if via == r {
			return via, nil
		}
	}
	return "", invalid("entry point %q is not valid for this operation", via)
}

// recordTrail appends the audit record and, for stock changes, the paired
// movement. It runs after the primary write on a context detached from the
// caller, and failures degrade res instead of failing the call.
func (s *Service) recordTrail(ctx context.Context, op string, res *Result, rec audit.Record, mv *movement.Record) {
	ctx = context.WithoutCancel(ctx)
	appended, err := s.trail.Append(ctx, rec)
	if err != nil {
		s.degrade(ctx, op, res, err)
		return
	}
	res.AuditID = appended.ID
	if mv == nil {
		return
	}
	mv.AuditID = appended.ID
	moved, err := s.journal.Append(ctx, *mv)
	if err != nil {
		s.degrade(ctx, op, res, err)
		return
	}
	res.MovementID = moved.ID
}

func (s *Service) degrade(ctx context.Context, op string, res *Result, err error) {
	res.Status = StatusDegraded
	res.Code = apperr.CodeDegradedSuccess
	res.TrailError = err.Error()
	res.trailErr = err
	ctx = s.log.WithFields(ctx, map[string]any{"op": op, "target_id": res.ID})
	s.log.Warn(ctx, "mutation applied; trail write failed", err)
}

func (s *Service) observe(op string, res Result, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = strings.ToLower(string(apperr.CodeOf(err)))
	case res.Degraded():
		outcome = "degraded"
	}
	s.metrics.ObserveOperation(op, outcome)
}

func limitOrDefault(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}
