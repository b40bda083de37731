package auth

import (
	"fmt"
	"strings"
)

// Role classifies a principal. The set is open; unknown roles get the
// user template.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole normalises a textual role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
}

// Resource is a permission-gated area of the system.
type Resource string

const (
	ResourceManageCatalog  Resource = "manageCatalog"
	ResourcePlaceOrder     Resource = "placeOrder"
	ResourceCatalogEntries Resource = "catalogEntries"
	ResourceOrderEntries   Resource = "orderEntries"
	ResourceReports        Resource = "reports"
	ResourceStockCalendar  Resource = "stockCalendar"
	ResourceAnalytics      Resource = "analytics"
	ResourceUserManagement Resource = "userManagement"
)

// Action is an operation kind on a resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

var (
	resources = []Resource{
		ResourceManageCatalog,
		ResourcePlaceOrder,
		ResourceCatalogEntries,
		ResourceOrderEntries,
		ResourceReports,
		ResourceStockCalendar,
		ResourceAnalytics,
		ResourceUserManagement,
	}
	actions = []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}

	// Read-only resources expose only the read action.
	readOnly = map[Resource]bool{
		ResourceReports:       true,
		ResourceStockCalendar: true,
		ResourceAnalytics:     true,
	}
)

// Resources returns the fixed resource set in display order.
func Resources() []Resource {
	out := make([]Resource, len(resources))
	copy(out, resources)
	return out
}

// Actions returns the four actions.
func Actions() []Action {
	out := make([]Action, len(actions))
	copy(out, actions)
	return out
}

func (r Resource) Valid() bool {
	for _, known := range resources {
		if r == known {
			return true
		}
	}
	return false
}

func (a Action) Valid() bool {
	for _, known := range actions {
		if a == known {
			return true
		}
	}
	return false
}

// actionsFor lists the actions a resource carries in a matrix.
func actionsFor(r Resource) []Action {
	if readOnly[r] {
		return []Action{ActionRead}
	}
	return actions
}

// Grants maps an action to whether it is allowed.
type Grants map[Action]bool

// Matrix maps every resource to its grants.
type Matrix map[Resource]Grants

// Allows reports matrix[r][a]; absent entries deny.
func (m Matrix) Allows(r Resource, a Action) bool {
	return m[r][a]
}

// Clone returns a deep copy.
func (m Matrix) Clone() Matrix {
	out := make(Matrix, len(m))
	for r, g := range m {
		cp := make(Grants, len(g))
		for a, v := range g {
			cp[a] = v
		}
		out[r] = cp
	}
	return out
}

// AdminMatrix is full access on every action each resource carries.
func AdminMatrix() Matrix {
	m := make(Matrix, len(resources))
	for _, r := range resources {
		g := make(Grants)
		for _, a := range actionsFor(r) {
			g[a] = true
		}
		m[r] = g
	}
	return m
}

// DefaultUserMatrix is the template applied to non-admin principals.
func DefaultUserMatrix() Matrix {
	return Matrix{
		ResourceManageCatalog:  {ActionCreate: false, ActionRead: true, ActionUpdate: false, ActionDelete: false},
		ResourcePlaceOrder:     {ActionCreate: true, ActionRead: true, ActionUpdate: false, ActionDelete: false},
		ResourceCatalogEntries: {ActionCreate: false, ActionRead: true, ActionUpdate: false, ActionDelete: false},
		ResourceOrderEntries:   {ActionCreate: false, ActionRead: true, ActionUpdate: false, ActionDelete: false},
		ResourceReports:        {ActionRead: true},
		ResourceStockCalendar:  {ActionRead: true},
		ResourceAnalytics:      {ActionRead: false},
		ResourceUserManagement: {ActionCreate: false, ActionRead: false, ActionUpdate: false, ActionDelete: false},
	}
}

// DefaultForRole returns the template for role.
func DefaultForRole(role Role) Matrix {
	if role == RoleAdmin {
		return AdminMatrix()
	}
	return DefaultUserMatrix()
}

// Merge overlays override onto template. Every (resource, action) of the
// template is present in the result; override values win where present.
// Override entries outside the template are dropped.
func Merge(template, override Matrix) Matrix {
	out := template.Clone()
	for r, grants := range out {
		for a := range grants {
			if v, ok := override[r][a]; ok {
				grants[a] = v
			}
		}
	}
	return out
}
