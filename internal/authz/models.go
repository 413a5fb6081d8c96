package authz

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrRoleNotFound            = errors.New("role not found")
	ErrRoleAlreadyExists       = errors.New("role already exists")
	ErrAssignmentNotFound      = errors.New("assignment not found")
	ErrAssignmentAlreadyExists = errors.New("assignment already exists")
	ErrInvalidRoleName         = errors.New("invalid role name")
)

// Role is a realm role (ClientID empty) or a role owned by one client.
type Role struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Ref returns the value reference for the role.
func (r *Role) Ref() RoleRef {
	return RoleRef{ClientID: r.ClientID, Name: r.Name}
}

// Assignment represents a role granted to a user
type Assignment struct {
	UserID    string
	Role      RoleRef
	GrantedAt time.Time
	GrantedBy string
}

// RoleRepository defines the interface for role persistence
type RoleRepository interface {
	// Create creates a new role
	Create(ctx context.Context, role *Role) error

	// Get retrieves a role by reference
	Get(ctx context.Context, ref RoleRef) (*Role, error)

	// List retrieves all roles
	List(ctx context.Context) ([]*Role, error)
}

// AssignmentRepository defines the interface for user role assignments
type AssignmentRepository interface {
	// Grant assigns a role to a user
	Grant(ctx context.Context, assignment *Assignment) error

	// Revoke removes a role assignment
	Revoke(ctx context.Context, userID string, ref RoleRef) error

	// ListForUser retrieves every role assigned to a user
	ListForUser(ctx context.Context, userID string) ([]RoleRef, error)
}
