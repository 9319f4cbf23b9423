// Package policy centralizes role-based permission checks. Every predicate
// is a pure function over the actor's membership role so that no service
// reimplements ad-hoc role comparisons.
package policy

import "github.com/ridgeline-labs/minicrm/internal/app/domain/org"

// Actor is the authenticated caller resolved against one organization.
// Services receive it with every scoped operation.
type Actor struct {
	UserID         int64
	OrganizationID int64
	Role           org.Role
}

// CanFilterByOwner reports whether the role may scope list queries to an
// arbitrary owner. Members cannot; their owner filter is silently dropped
// rather than rejected.
func CanFilterByOwner(role org.Role) bool {
	return role != org.RoleMember
}

// CanActOnResource reports whether an actor may mutate a resource owned by
// resourceOwnerID. Privileged roles act on anything in the organization;
// members only on resources they own.
func CanActOnResource(role org.Role, actorID, resourceOwnerID int64) bool {
	if role != org.RoleMember {
		return true
	}
	return actorID == resourceOwnerID
}

// CanAssignOwner reports whether the role may designate another user as a
// resource owner. Members are always assigned as their own owner on create
// and rejected on update.
func CanAssignOwner(role org.Role) bool {
	return role != org.RoleMember
}

// CanRetreatStage reports whether the role may move a deal to a lower
// pipeline stage.
func CanRetreatStage(role org.Role) bool {
	return role == org.RoleOwner || role == org.RoleAdmin
}
