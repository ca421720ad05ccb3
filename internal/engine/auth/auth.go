package auth

import (
	"fmt"
	"strings"
)

const RoleAdmin = "admin"

// Permissions checked by the engine.
const (
	PermStateRead       = "state.read"
	PermStateEvaluate   = "state.evaluate"
	PermDecisionWrite   = "decision.write"
	PermReflectionWrite = "reflection.write"
	PermHistoryRead     = "history.read"
	PermCycleReset      = "cycle.reset"
	PermCycleSweep      = "cycle.sweep"
	PermKeysManage      = "keys.manage"
	PermUserRead        = "user.read"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Roles  []string
}

// System is the principal used by the scheduler and local CLI maintenance commands.
var System = Principal{UserID: "system", Roles: []string{RoleAdmin}}

func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if strings.EqualFold(strings.TrimSpace(r), role) {
			return true
		}
	}
	return false
}

// Service applies the owner-or-admin rule: a caller may act on their own
// user's data, admins on anyone's. Sweeping every cycle is admin only.
type Service struct{}

func (Service) Authorize(p Principal, userID, perm string) error {
	if p.HasRole(RoleAdmin) {
		return nil
	}
	if perm == PermCycleSweep {
		return ForbiddenError{Permission: perm}
	}
	if p.UserID != "" && userID != "" && p.UserID == userID {
		return nil
	}
	return ForbiddenError{Permission: perm}
}
