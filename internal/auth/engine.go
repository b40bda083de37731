package auth

import (
	"context"
	"errors"
	"fmt"

	"stockroom.org/internal/obs"
	"stockroom.org/internal/store"
)

// Reason explains an authorization decision.
type Reason string

const (
	ReasonAdmin             Reason = "admin"
	ReasonGranted           Reason = "granted"
	ReasonNotGranted        Reason = "not_granted"
	ReasonInactive          Reason = "inactive_principal"
	ReasonUnknownResource   Reason = "unknown_resource"
	ReasonUnknownAction     Reason = "unknown_action"
	ReasonMatrixUnavailable Reason = "matrix_unavailable"
	ReasonAdminRequired     Reason = "admin_required"
)

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
}

// OverrideSource loads stored per-user permission overrides.
type OverrideSource interface {
	// LoadOverride returns found=false when the user has no stored override.
	LoadOverride(ctx context.Context, userID string) (Matrix, bool, error)
}

// Recorder observes decisions.
type Recorder interface {
	ObserveAuthz(resource, action string, allowed bool)
}

// Engine resolves effective permission matrices and answers authorization
// queries. It never writes.
type Engine struct {
	overrides OverrideSource
	log       *obs.Logger
	rec       Recorder
}

// EngineOption configures Engine.
type EngineOption func(*Engine)

func WithLogger(l *obs.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) { e.rec = r }
}

func NewEngine(src OverrideSource, opts ...EngineOption) *Engine {
	e := &Engine{overrides: src, log: obs.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Authorize decides whether principal may perform action on resource.
// Inactive principals and unknown resources or actions are denied before
// the admin shortcut; a failed override lookup denies.
func (e *Engine) Authorize(ctx context.Context, principal Principal, resource Resource, action Action) Decision {
	d := e.decide(ctx, principal, resource, action)
	if e.rec != nil {
		e.rec.ObserveAuthz(string(resource), string(action), d.Allowed)
	}
	e.log.Entry(ctx).Debug().
		Str("principal", principal.ID).
		Str("resource", string(resource)).
		Str("action", string(action)).
		Bool("allowed", d.Allowed).
		Str("reason", string(d.Reason)).
		Msg("authorize")
	return d
}

func (e *Engine) decide(ctx context.Context, principal Principal, resource Resource, action Action) Decision {
	if !principal.IsActive {
		return Decision{Reason: ReasonInactive}
	}
	if !resource.Valid() {
		return Decision{Reason: ReasonUnknownResource}
	}
	if !action.Valid() {
		return Decision{Reason: ReasonUnknownAction}
	}
	if principal.IsAdmin() {
		return Decision{Allowed: true, Reason: ReasonAdmin}
	}
	matrix, err := e.resolve(ctx, principal)
	if err != nil {
		e.log.Warn(e.log.WithUserID(ctx, principal.ID), "permission override unavailable", err)
		return Decision{Reason: ReasonMatrixUnavailable}
	}
	if matrix.Allows(resource, action) {
		return Decision{Allowed: true, Reason: ReasonGranted}
	}
	return Decision{Reason: ReasonNotGranted}
}

// Require returns a *DeniedError when Authorize denies.
func (e *Engine) Require(ctx context.Context, principal Principal, resource Resource, action Action) error {
	d := e.Authorize(ctx, principal, resource, action)
	if d.Allowed {
		return nil
	}
	return &DeniedError{Resource: resource, Action: action, Reason: d.Reason}
}

// EffectiveMatrix returns the merged matrix for principal. Admins always get
// the computed full-access matrix; inactive principals get nothing.
func (e *Engine) EffectiveMatrix(ctx context.Context, principal Principal) (Matrix, error) {
	if !principal.IsActive {
		return Matrix{}, nil
	}
	if principal.IsAdmin() {
		return AdminMatrix(), nil
	}
	return e.resolve(ctx, principal)
}

// ReadableResources lists the resources principal may read, in display order.
func (e *Engine) ReadableResources(ctx context.Context, principal Principal) ([]Resource, error) {
	m, err := e.EffectiveMatrix(ctx, principal)
	if err != nil {
		return nil, err
	}
	var out []Resource
	for _, r := range resources {
		if m.Allows(r, ActionRead) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (e *Engine) resolve(ctx context.Context, principal Principal) (Matrix, error) {
	template := DefaultForRole(principal.Role)
	if e.overrides == nil {
		return template, nil
	}
	override, found, err := e.overrides.LoadOverride(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	if !found {
		return template, nil
	}
	return Merge(template, override), nil
}

// StoreOverrides reads PermissionRecord documents from UserPermissions.
type StoreOverrides struct {
	Store store.Store
}

func (o StoreOverrides) LoadOverride(ctx context.Context, userID string) (Matrix, bool, error) {
	rec, err := store.GetJSON[PermissionRecord](ctx, o.Store, store.UserPermissions, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load permissions for %s: %w", userID, err)
	}
	return rec.Permissions, true, nil
}
