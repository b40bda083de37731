package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"stockroom.org/internal/apperr"
	"stockroom.org/internal/audit"
	"stockroom.org/internal/auth"
	"stockroom.org/internal/ids"
	"stockroom.org/internal/movement"
	"stockroom.org/internal/store"
)

// SystemActor is the actor id recorded for bootstrap mutations.
const SystemActor = "system"

func (s *Service) directory() auth.Directory {
	return auth.Directory{Store: s.store}
}

// CreateUser registers an account with the default permissions of its role.
func (s *Service) CreateUser(ctx context.Context, p auth.Principal, in NewUser) (res Result, err error) {
	defer func() { s.observe("create_user", res, err) }()

	if err := s.requireAdmin(ctx, p, auth.ResourceUserManagement, auth.ActionCreate); err != nil {
		return Result{}, err
	}
	return s.createUser(ctx, p.ID, p.Email, in)
}

func (s *Service) createUser(ctx context.Context, actorID, actorEmail string, in NewUser) (Result, error) {
	in.Email = auth.NormalizeEmail(in.Email)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if err := validateStruct(in); err != nil {
		return Result{}, err
	}
	role := auth.RoleUser
	if in.Role != "" {
		parsed, err := auth.ParseRole(string(in.Role))
		if err != nil {
			return Result{}, classify(err)
		}
		role = parsed
	}
	if _, found, err := s.directory().FindByEmail(ctx, in.Email); err != nil {
		return Result{}, classify(err)
	} else if found {
		return Result{}, apperr.Newf(apperr.CodeConflict, "email %s is already registered", in.Email)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return Result{}, classify(err)
	}

	now := s.now()
	user := auth.User{
		ID:           ids.NewAt(now),
		Email:        in.Email,
		DisplayName:  in.DisplayName,
		Role:         role,
		IsActive:     true,
		PasswordHash: hash,
		CreatedAt:    now,
		CreatedBy:    actorID,
	}
	if err := store.SetJSON(ctx, s.store, store.Users, user.ID, user); err != nil {
		return Result{}, classify(err)
	}
	// A missing permission record resolves to the same template, so a failure
	// here leaves the account fully usable.
	if err := store.SetJSON(context.WithoutCancel(ctx), s.store, store.UserPermissions, user.ID, auth.PermissionRecord{
		UserID:      user.ID,
		Permissions: auth.DefaultForRole(role),
		UpdatedAt:   now,
		UpdatedBy:   actorID,
	}); err != nil {
		s.log.Warn(s.log.WithUserID(ctx, user.ID), "default permissions not stored", err)
	}

	res := Result{Status: StatusOK, ID: user.ID}
	s.recordTrail(ctx, "create_user", &res, audit.Record{
		Action:     audit.ActionCreateUser,
		ActorID:    actorID,
		ActorEmail: actorEmail,
		TargetID:   user.ID,
		Details:    fmt.Sprintf("Created user %s (%s)", user.Email, user.Role),
		Fields: map[string]any{
			"email": user.Email,
			"role":  string(user.Role),
		},
	}, nil)
	return res, nil
}

// EnsureAdmin creates an admin account when no active admin exists. It runs
// as the system and reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	users, err := store.ListJSON[auth.User](ctx, s.store, store.Users)
	if err != nil {
		return false, classify(err)
	}
	for _, u := range users {
		if u.IsActive && u.Role == auth.RoleAdmin {
			return false, nil
		}
	}
	res, err := s.createUser(ctx, SystemActor, "", NewUser{
		Email:       email,
		Password:    password,
		DisplayName: "Administrator",
		Role:        auth.RoleAdmin,
	})
	if err != nil {
		return false, err
	}
	s.log.Info(s.log.WithUserID(ctx, res.ID), "bootstrap admin created")
	return true, nil
}

// DeactivateUser soft-deletes an account. Its audit and movement records
// are kept.
func (s *Service) DeactivateUser(ctx context.Context, p auth.Principal, targetID string) (res Result, err error) {
	defer func() { s.observe("deactivate_user", res, err) }()

	if err := s.requireAdmin(ctx, p, auth.ResourceUserManagement, auth.ActionUpdate); err != nil {
		return Result{}, err
	}
	target, err := s.user(ctx, targetID)
	if err != nil {
		return Result{}, err
	}
	if target.ID == p.ID {
		return Result{}, invalid("cannot deactivate your own account")
	}
	if !target.IsActive {
		return Result{}, apperr.Newf(apperr.CodeConflict, "user %s is already inactive", target.ID)
	}
	now := s.now()
	if err := s.store.Update(ctx, store.Users, target.ID, map[string]any{
		"isActive":      false,
		"deactivatedAt": now,
		"deactivatedBy": p.ID,
	}); err != nil {
		return Result{}, classify(err)
	}
	res = Result{Status: StatusOK, ID: target.ID}
	s.recordTrail(ctx, "deactivate_user", &res, audit.Record{
		Action:     audit.ActionDeactivateUser,
		ActorID:    p.ID,
		ActorEmail: p.Email,
		TargetID:   target.ID,
		Details:    fmt.Sprintf("Deactivated user %s", target.Email),
		Fields:     map[string]any{"email": target.Email},
	}, nil)
	return res, nil
}

// UpdateUserPermissions stores the override of a user, merged against the
// template of the target's role so the stored matrix is total.
func (s *Service) UpdateUserPermissions(ctx context.Context, p auth.Principal, targetID string, override auth.Matrix) (res Result, err error) {
	defer func() { s.observe("update_permissions", res, err) }()

	if err := s.requireAdmin(ctx, p, auth.ResourceUserManagement, auth.ActionUpdate); err != nil {
		return Result{}, err
	}
	if len(override) == 0 {
		return Result{}, invalid("permissions are required")
	}
	target, err := s.user(ctx, targetID)
	if err != nil {
		return Result{}, err
	}
	merged := auth.Merge(auth.DefaultForRole(target.Role), override)
	if err := store.SetJSON(ctx, s.store, store.UserPermissions, target.ID, auth.PermissionRecord{
		UserID:      target.ID,
		Permissions: merged,
		UpdatedAt:   s.now(),
		UpdatedBy:   p.ID,
	}); err != nil {
		return Result{}, classify(err)
	}
	res = Result{Status: StatusOK, ID: target.ID}
	s.recordTrail(ctx, "update_permissions", &res, audit.Record{
		Action:     audit.ActionUpdatePermissions,
		ActorID:    p.ID,
		ActorEmail: p.Email,
		TargetID:   target.ID,
		Details:    fmt.Sprintf("Updated permissions for %s", target.Email),
		Fields:     map[string]any{"permissions": merged},
	}, nil)
	return res, nil
}

// UserPermissions returns the effective matrix of a user.
func (s *Service) UserPermissions(ctx context.Context, p auth.Principal, targetID string) (auth.Matrix, error) {
	if err := s.authorize(ctx, p, auth.ResourceUserManagement, auth.ActionRead); err != nil {
		return nil, err
	}
	target, err := s.user(ctx, targetID)
	if err != nil {
		return nil, err
	}
	m, err := s.engine.EffectiveMatrix(ctx, target.Principal())
	if err != nil {
		return nil, classify(err)
	}
	return m, nil
}

// ListUsers returns every account without password hashes, sorted by email.
func (s *Service) ListUsers(ctx context.Context, p auth.Principal) ([]auth.User, error) {
	if err := s.authorize(ctx, p, auth.ResourceUserManagement, auth.ActionRead); err != nil {
		return nil, err
	}
	users, err := store.ListJSON[auth.User](ctx, s.store, store.Users)
	if err != nil {
		return nil, classify(err)
	}
	for i := range users {
		users[i] = users[i].Public()
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

// ListAudit returns up to limit audit records, newest first.
func (s *Service) ListAudit(ctx context.Context, p auth.Principal, limit int) ([]audit.Record, error) {
	if err := s.authorize(ctx, p, auth.ResourceUserManagement, auth.ActionRead); err != nil {
		return nil, err
	}
	records, err := s.trail.List(ctx, limitOrDefault(limit))
	if err != nil {
		return nil, classify(err)
	}
	return records, nil
}

// ListMovements returns up to limit movement records, newest first,
// optionally restricted to one catalog item.
func (s *Service) ListMovements(ctx context.Context, p auth.Principal, catalogName string, limit int) ([]movement.Record, error) {
	if err := s.authorize(ctx, p, auth.ResourceReports, auth.ActionRead); err != nil {
		return nil, err
	}
	var (
		records []movement.Record
		err     error
	)
	if name := strings.TrimSpace(catalogName); name != "" {
		records, err = s.journal.ListByCatalog(ctx, name, limitOrDefault(limit))
	} else {
		records, err = s.journal.List(ctx, limitOrDefault(limit))
	}
	if err != nil {
		return nil, classify(err)
	}
	return records, nil
}

func (s *Service) user(ctx context.Context, id string) (auth.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return auth.User{}, invalid("user id is required")
	}
	u, err := s.directory().User(ctx, id)
	if err != nil {
		return auth.User{}, classify(err)
	}
	return u, nil
}
