package policy

import (
	"fmt"

	"backend/internal/model"

	"github.com/google/uuid"
)

// Actor carries the attributes of the acting user that the permission rules
// consume: identity, canonical role, and department scope.
type Actor struct {
	ID           uuid.UUID
	Role         string
	DepartmentID *uuid.UUID
}

// SameDepartment reports whether the actor is scoped to the given department.
func (a Actor) SameDepartment(departmentID uuid.UUID) bool {
	return a.DepartmentID != nil && *a.DepartmentID == departmentID
}

// CanApprove decides whether the actor may approve a request. ownerRole is
// the role of the request's owner; requests authored by a manager skip the
// manager tier and require admin approval directly (peer-approval rule).
func CanApprove(status string, requestDepartmentID uuid.UUID, ownerRole string, actor Actor) Decision {
	switch actor.Role {
	case model.RoleManager:
		if !actor.SameDepartment(requestDepartmentID) {
			return deny(DenyPermission, "managers may only approve requests from their own department")
		}
		if ownerRole == model.RoleManager {
			return deny(DenyPermission, "requests created by a manager require admin approval")
		}
		if status != model.RequestStatusDraft && status != model.RequestStatusSubmitted {
			return deny(DenyStatus, fmt.Sprintf("a manager cannot approve a request in status %s", status))
		}
		return allow()
	case model.RoleAdmin:
		if status != model.RequestStatusSemiApproved {
			return deny(DenyStatus, fmt.Sprintf("an admin can only approve a manager-approved request; current status is %s", status))
		}
		return allow()
	default:
		return deny(DenyPermission, fmt.Sprintf("role %s cannot approve requests", actor.Role))
	}
}

// CanReject decides whether the actor may reject a request. Department
// scoping applies to managers only; either role may reject a request that is
// Submitted or SemiApproved.
func CanReject(status string, requestDepartmentID uuid.UUID, actor Actor) Decision {
	switch actor.Role {
	case model.RoleManager:
		if !actor.SameDepartment(requestDepartmentID) {
			return deny(DenyPermission, "managers may only reject requests from their own department")
		}
	case model.RoleAdmin:
	default:
		return deny(DenyPermission, fmt.Sprintf("role %s cannot reject requests", actor.Role))
	}
	if status != model.RequestStatusSubmitted && status != model.RequestStatusSemiApproved {
		return deny(DenyStatus, fmt.Sprintf("cannot reject a request in status %s", status))
	}
	return allow()
}

// NextApprovalStatus maps the approving actor's role to the status the
// request moves into. The returned bool is false for roles that never reach
// the approve path through the permission policy.
func NextApprovalStatus(actorRole string) (string, bool) {
	switch actorRole {
	case model.RoleManager:
		return model.RequestStatusSemiApproved, true
	case model.RoleAdmin:
		return model.RequestStatusApproved, true
	default:
		return "", false
	}
}

// CanView implements the read/update/delete visibility gate: the owner, a
// manager scoped to the request's department, an admin, or finance.
func CanView(ownerID uuid.UUID, requestDepartmentID uuid.UUID, actor Actor) bool {
	if actor.ID == ownerID {
		return true
	}
	switch actor.Role {
	case model.RoleAdmin, model.RoleFinance:
		return true
	case model.RoleManager:
		return actor.SameDepartment(requestDepartmentID)
	}
	return false
}
