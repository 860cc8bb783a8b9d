// Package actor holds the fixed catalogue of actor kinds, their roles, and
// the permissions each role carries. There is no grant or revoke API:
// the tables are constants and every lookup returns a copy.
package actor

import (
	"errors"
	"fmt"

	"github.com/ppiankov/humanloop/internal/model"
)

// Role is the role an actor kind maps to.
type Role string

const (
	RoleOperator Role = "OPERATOR"
	RoleExecutor Role = "EXECUTOR"
)

// Permission is a capability held by a role.
type Permission string

const (
	PermInitiate Permission = "INITIATE"
	PermConfirm  Permission = "CONFIRM"
	PermOverride Permission = "OVERRIDE"
	PermAudit    Permission = "AUDIT"
	PermExecute  Permission = "EXECUTE"
)

// AllPermissions returns every permission any role may hold.
func AllPermissions() []Permission {
	return []Permission{PermInitiate, PermConfirm, PermOverride, PermAudit, PermExecute}
}

// Actor is the fixed profile of an actor kind.
type Actor struct {
	Kind            model.ActorKind `json:"kind"`
	Role            Role            `json:"role"`
	TrustLevel      int             `json:"trust_level"`
	IsAuthoritative bool            `json:"is_authoritative"`
	CanInitiate     bool            `json:"can_initiate"`
	CanConfirm      bool            `json:"can_confirm"`
	CanBeOverridden bool            `json:"can_be_overridden"`
}

var (
	human = Actor{
		Kind:            model.ActorHuman,
		Role:            RoleOperator,
		TrustLevel:      100,
		IsAuthoritative: true,
		CanInitiate:     true,
		CanConfirm:      true,
		CanBeOverridden: false,
	}
	system = Actor{
		Kind:            model.ActorSystem,
		Role:            RoleExecutor,
		TrustLevel:      0,
		IsAuthoritative: false,
		CanInitiate:     false,
		CanConfirm:      false,
		CanBeOverridden: true,
	}
)

// Lookup returns the profile for kind. Unknown kinds return false.
func Lookup(kind model.ActorKind) (Actor, bool) {
	switch kind {
	case model.ActorHuman:
		return human, true
	case model.ActorSystem:
		return system, true
	default:
		return Actor{}, false
	}
}

// RoleOf returns the role for kind, or "" for unknown kinds.
func RoleOf(kind model.ActorKind) Role {
	a, _ := Lookup(kind)
	return a.Role
}

// Permissions returns the permissions held by role, in catalogue order.
func Permissions(role Role) []Permission {
	switch role {
	case RoleOperator:
		return []Permission{PermInitiate, PermConfirm, PermOverride, PermAudit}
	case RoleExecutor:
		return []Permission{PermExecute, PermAudit}
	default:
		return nil
	}
}

// CheckPermission reports whether kind's role holds perm.
// Unknown kinds hold nothing.
func CheckPermission(kind model.ActorKind, perm Permission) bool {
	for _, p := range Permissions(RoleOf(kind)) {
		if p == perm {
			return true
		}
	}
	return false
}

// ErrUnauthorized matches every UnauthorizedActorError via errors.Is.
var ErrUnauthorized = errors.New("unauthorized actor")

// UnauthorizedActorError reports a permission check that failed.
type UnauthorizedActorError struct {
	Actor  model.ActorKind
	Action Permission
}

func (e *UnauthorizedActorError) Error() string {
	return fmt.Sprintf("actor %s (role %s) lacks permission %s", e.Actor, roleLabel(e.Actor), e.Action)
}

// Is makes errors.Is(err, ErrUnauthorized) succeed.
func (e *UnauthorizedActorError) Is(target error) bool {
	return target == ErrUnauthorized
}

// RequirePermission is the fail-fast variant of CheckPermission.
func RequirePermission(kind model.ActorKind, perm Permission) error {
	if CheckPermission(kind, perm) {
		return nil
	}
	return &UnauthorizedActorError{Actor: kind, Action: perm}
}

func roleLabel(kind model.ActorKind) string {
	if r := RoleOf(kind); r != "" {
		return string(r)
	}
	return "none"
}
