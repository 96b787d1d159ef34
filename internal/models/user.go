package models

import "time"

// Well-known role names. Roles are stored as rows, not an enum, so these
// constants only cover the names the code itself branches on.
const (
	RoleAdmin   = "Admin"
	RoleManager = "Manager"
	RoleUser    = "User"
)

// User represents an application user stored in the users table.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Name         string    `db:"name" json:"name"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	CreatedBy    *string   `db:"created_by" json:"created_by,omitempty"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
	UpdatedBy    *string   `db:"updated_by" json:"updated_by,omitempty"`
}

// Role is a named permission bucket assigned to users via user_roles.
type Role struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
}

// Permission is a single named capability granted to roles.
type Permission struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
}

// UserWithRoles is the user list/detail shape with role names aggregated.
type UserWithRoles struct {
	User
	Roles []Role `json:"roles"`
}

// CreateUserRequest is the admin payload for provisioning an account.
type CreateUserRequest struct {
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required,min=6"`
	Name     string   `json:"name" validate:"required"`
	Active   bool     `json:"active"`
	RoleIDs  []string `json:"role_ids" validate:"dive,uuid4"`
}

// UpdateUserRequest updates profile fields and the active flag.
type UpdateUserRequest struct {
	Email  string `json:"email" validate:"required,email"`
	Name   string `json:"name" validate:"required"`
	Active bool   `json:"active"`
}

// AssignRolesRequest replaces a user's role set.
type AssignRolesRequest struct {
	RoleIDs []string `json:"role_ids" validate:"required,dive,uuid4"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
