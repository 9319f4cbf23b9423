// Package org holds the organization and membership domain model.
package org

import "time"

// Role grants a member a fixed permission tier within an organization.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

// Roles lists every valid role.
func Roles() []Role {
	return []Role{RoleOwner, RoleAdmin, RoleManager, RoleMember}
}

// Valid reports whether the role is one of the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleManager, RoleMember:
		return true
	}
	return false
}

// Organization is a tenant; all contacts, deals and tasks hang off one.
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership grants a user a role within an organization. The
// (organization_id, user_id) pair is unique.
type Membership struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	UserID         int64     `json:"user_id"`
	Role           Role      `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserMembership pairs an organization with the role a user holds in it.
type UserMembership struct {
	Organization Organization `json:"organization"`
	Role         Role         `json:"role"`
}
