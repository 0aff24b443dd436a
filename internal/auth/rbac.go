// Package auth decides what an authenticated principal may do and extracts
// principals from bearer tokens.
package auth

import (
	"errors"
	"strings"

	"github.com/fimlm/myidmji/internal/model"
)

// ErrForbidden is returned by Require when the principal lacks the capability.
var ErrForbidden = errors.New("not enough permissions")

// Capability names a group of core operations gated by the same roles.
type Capability string

const (
	// CapRegister covers registering, checking in, deleting and looking up attendees.
	CapRegister Capability = "register"
	// CapSupervise covers stats, invitations and event administration.
	CapSupervise Capability = "supervise"
	// CapAdminister covers churches, duplicate cleanup and reconciliation.
	CapAdminister Capability = "administer"
)

var capabilityRoles = map[Capability][]model.Role{
	CapRegister:   {model.RoleDigiter, model.RoleSupervisor, model.RoleAdmin},
	CapSupervise:  {model.RoleSupervisor, model.RoleAdmin},
	CapAdminister: {model.RoleAdmin},
}

func NormalizeRole(role string) model.Role {
	switch model.Role(strings.ToLower(strings.TrimSpace(role))) {
	case model.RoleAdmin:
		return model.RoleAdmin
	case model.RoleSupervisor:
		return model.RoleSupervisor
	case model.RoleDigiter:
		return model.RoleDigiter
	default:
		return model.RoleUser
	}
}

func HasRole(role model.Role, allowed ...model.Role) bool {
	current := NormalizeRole(string(role))
	for _, candidate := range allowed {
		if current == candidate {
			return true
		}
	}
	return false
}

// Require returns nil when p may exercise c. Superusers may exercise everything.
func Require(p *model.Principal, c Capability) error {
	if p == nil {
		return ErrForbidden
	}
	if p.IsSuperuser {
		return nil
	}
	if HasRole(p.Role, capabilityRoles[c]...) {
		return nil
	}
	return ErrForbidden
}

// SeesAllChurches reports whether p may read attendees of every church.
func SeesAllChurches(p *model.Principal) bool {
	return Require(p, CapSupervise) == nil
}
