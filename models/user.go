package models

import (
	"time"
)

// Role constants
const (
	RoleCustomer  = "customer"
	RoleBartender = "bartender"
	RoleAdmin     = "admin"
)

// User mirrors the identity provider's account and role claim
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     *string   `json:"email,omitempty" db:"email"`
	Phone     *string   `json:"phone,omitempty" db:"phone"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=customer bartender admin"`
}

// ValidRole reports whether role is one of the known roles
func ValidRole(role string) bool {
	switch role {
	case RoleCustomer, RoleBartender, RoleAdmin:
		return true
	}
	return false
}
