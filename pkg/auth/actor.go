package auth

import (
	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/pkg/enums"
)

// Actor is the authenticated identity services receive from the HTTP layer.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

// IsAdmin reports whether the actor holds the administrator role.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.RoleAdmin
}

// Owns reports whether the actor may read a record owned by ownerID.
func (a Actor) Owns(ownerID uuid.UUID) bool {
	return a.IsAdmin() || (a.UserID != uuid.Nil && a.UserID == ownerID)
}
