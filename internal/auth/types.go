package auth

import "time"

// Principal is the acting identity passed into every service call.
type Principal struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	IsActive bool   `json:"isActive"`
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// User is the stored account record under Users/{id}. Users are never
// hard-deleted; deactivation clears IsActive.
type User struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"displayName,omitempty"`
	Role          Role       `json:"role"`
	IsActive      bool       `json:"isActive"`
	PasswordHash  string     `json:"passwordHash,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	CreatedBy     string     `json:"createdBy,omitempty"`
	DeactivatedAt *time.Time `json:"deactivatedAt,omitempty"`
	DeactivatedBy string     `json:"deactivatedBy,omitempty"`
}

// Principal projects the identity fields of u.
func (u User) Principal() Principal {
	return Principal{ID: u.ID, Email: u.Email, Role: u.Role, IsActive: u.IsActive}
}

// Public strips the password hash.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

// PermissionRecord is the stored override under UserPermissions/{id}.
type PermissionRecord struct {
	UserID      string    `json:"userId"`
	Permissions Matrix    `json:"permissions"`
	UpdatedAt   time.Time `json:"updatedAt"`
	UpdatedBy   string    `json:"updatedBy,omitempty"`
}
