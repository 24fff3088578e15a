package service

import (
	"context"

	"pos-service/internal/apperr"
	"pos-service/internal/models"
)

// StaffDirectory looks up staff members. GetStaffUser returns nil, nil when the id is unknown.
type StaffDirectory interface {
	GetStaffUser(ctx context.Context, id string) (*models.StaffUser, error)
}

var allRoles = []models.Role{models.RoleAdmin, models.RoleCashier, models.RoleKitchen, models.RoleWaiter}

// RoleGuard checks that a caller is an active staff member with an allowed role
type RoleGuard struct {
	staff StaffDirectory
}

// NewRoleGuard creates a new role guard
func NewRoleGuard(staff StaffDirectory) *RoleGuard {
	return &RoleGuard{staff: staff}
}

// Authorize returns the caller's staff record when uid is an active member holding one of allowed
func (g *RoleGuard) Authorize(ctx context.Context, uid string, allowed ...models.Role) (*models.StaffUser, error) {
	if uid == "" {
		return nil, apperr.New(apperr.Unauthenticated, "authentication required")
	}

	user, err := g.staff.GetStaffUser(ctx, uid)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to load staff record", err)
	}
	if user == nil {
		return nil, apperr.New(apperr.PermissionDenied, "caller is not a staff member")
	}
	if !user.Active {
		return nil, apperr.New(apperr.PermissionDenied, "staff account is inactive")
	}
	if !hasRole(user, allowed) {
		return nil, apperr.New(apperr.PermissionDenied, "role "+string(user.Role)+" is not allowed")
	}

	return user, nil
}

func hasRole(user *models.StaffUser, roles []models.Role) bool {
	for _, r := range roles {
		if user.Role == r {
			return true
		}
	}
	return false
}
