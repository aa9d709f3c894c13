package policy

import (
	"testing"

	"backend/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func actorIn(role string, dept uuid.UUID) Actor {
	return Actor{ID: uuid.New(), Role: role, DepartmentID: &dept}
}

func TestCanApproveManager(t *testing.T) {
	dept := uuid.New()
	otherDept := uuid.New()
	manager := actorIn(model.RoleManager, dept)

	t.Run("submitted request from own department", func(t *testing.T) {
		dec := CanApprove(model.RequestStatusSubmitted, dept, model.RoleEmployee, manager)
		require.True(t, dec.Allowed)
	})

	t.Run("draft request from own department", func(t *testing.T) {
		dec := CanApprove(model.RequestStatusDraft, dept, model.RoleEmployee, manager)
		require.True(t, dec.Allowed)
	})

	t.Run("other department denied", func(t *testing.T) {
		dec := CanApprove(model.RequestStatusSubmitted, otherDept, model.RoleEmployee, manager)
		require.False(t, dec.Allowed)
		assert.Equal(t, DenyPermission, dec.Code)
		assert.Contains(t, dec.Reason, "own department")
	})

	t.Run("no department assignment denied", func(t *testing.T) {
		unassigned := Actor{ID: uuid.New(), Role: model.RoleManager}
		dec := CanApprove(model.RequestStatusSubmitted, dept, model.RoleEmployee, unassigned)
		require.False(t, dec.Allowed)
		assert.Equal(t, DenyPermission, dec.Code)
	})

	t.Run("peer manager request denied regardless of department", func(t *testing.T) {
		dec := CanApprove(model.RequestStatusSubmitted, dept, model.RoleManager, manager)
		require.False(t, dec.Allowed)
		assert.Equal(t, DenyPermission, dec.Code)
		assert.Contains(t, dec.Reason, "admin approval")
	})

	t.Run("already manager-approved denied with status in reason", func(t *testing.T) {
		dec := CanApprove(model.RequestStatusSemiApproved, dept, model.RoleEmployee, manager)
		require.False(t, dec.Allowed)
		assert.Equal(t, DenyStatus, dec.Code)
		assert.Contains(t, dec.Reason, model.RequestStatusSemiApproved)
	})
}

func TestCanApproveAdmin(t *testing.T) {
	dept := uuid.New()
	admin := Actor{ID: uuid.New(), Role: model.RoleAdmin}

	t.Run("semi-approved allowed", func(t *testing.T) {
		dec := CanApprove(model.RequestStatusSemiApproved, dept, model.RoleEmployee, admin)
		require.True(t, dec.Allowed)
	})

	t.Run("auto-elevated manager request allowed", func(t *testing.T) {
		dec := CanApprove(model.RequestStatusSemiApproved, dept, model.RoleManager, admin)
		require.True(t, dec.Allowed)
	})

	t.Run("terminal statuses denied", func(t *testing.T) {
		for _, status := range []string{
			model.RequestStatusSubmitted,
			model.RequestStatusApproved,
			model.RequestStatusRejected,
			model.RequestStatusPaid,
		} {
			dec := CanApprove(status, dept, model.RoleEmployee, admin)
			require.False(t, dec.Allowed, "status %s", status)
			assert.Equal(t, DenyStatus, dec.Code)
			assert.Contains(t, dec.Reason, status)
		}
	})
}

func TestCanApproveOtherRoles(t *testing.T) {
	dept := uuid.New()
	for _, role := range []string{model.RoleEmployee, model.RoleFinance, model.RoleDepartmentHead} {
		dec := CanApprove(model.RequestStatusSubmitted, dept, model.RoleEmployee, actorIn(role, dept))
		require.False(t, dec.Allowed, "role %s", role)
		assert.Equal(t, DenyPermission, dec.Code)
	}
}

func TestCanReject(t *testing.T) {
	dept := uuid.New()
	otherDept := uuid.New()
	manager := actorIn(model.RoleManager, dept)
	admin := Actor{ID: uuid.New(), Role: model.RoleAdmin}

	t.Run("manager rejects submitted in own department", func(t *testing.T) {
		require.True(t, CanReject(model.RequestStatusSubmitted, dept, manager).Allowed)
	})

	t.Run("manager rejects semi-approved in own department", func(t *testing.T) {
		require.True(t, CanReject(model.RequestStatusSemiApproved, dept, manager).Allowed)
	})

	t.Run("manager scoped to own department", func(t *testing.T) {
		dec := CanReject(model.RequestStatusSubmitted, otherDept, manager)
		require.False(t, dec.Allowed)
		assert.Equal(t, DenyPermission, dec.Code)
	})

	t.Run("admin rejects without department scoping", func(t *testing.T) {
		require.True(t, CanReject(model.RequestStatusSubmitted, otherDept, admin).Allowed)
		require.True(t, CanReject(model.RequestStatusSemiApproved, otherDept, admin).Allowed)
	})

	t.Run("disallowed statuses named in reason", func(t *testing.T) {
		for _, status := range []string{
			model.RequestStatusDraft,
			model.RequestStatusApproved,
			model.RequestStatusRejected,
			model.RequestStatusPaid,
		} {
			dec := CanReject(status, dept, admin)
			require.False(t, dec.Allowed, "status %s", status)
			assert.Equal(t, DenyStatus, dec.Code)
			assert.Contains(t, dec.Reason, status)
		}
	})

	t.Run("other roles denied", func(t *testing.T) {
		dec := CanReject(model.RequestStatusSubmitted, dept, actorIn(model.RoleFinance, dept))
		require.False(t, dec.Allowed)
		assert.Equal(t, DenyPermission, dec.Code)
	})
}

func TestNextApprovalStatus(t *testing.T) {
	next, ok := NextApprovalStatus(model.RoleManager)
	require.True(t, ok)
	assert.Equal(t, model.RequestStatusSemiApproved, next)

	next, ok = NextApprovalStatus(model.RoleAdmin)
	require.True(t, ok)
	assert.Equal(t, model.RequestStatusApproved, next)

	_, ok = NextApprovalStatus(model.RoleEmployee)
	assert.False(t, ok)
}

func TestCanView(t *testing.T) {
	dept := uuid.New()
	owner := uuid.New()

	assert.True(t, CanView(owner, dept, Actor{ID: owner, Role: model.RoleEmployee}))
	assert.True(t, CanView(owner, dept, actorIn(model.RoleManager, dept)))
	assert.False(t, CanView(owner, dept, actorIn(model.RoleManager, uuid.New())))
	assert.True(t, CanView(owner, dept, Actor{ID: uuid.New(), Role: model.RoleAdmin}))
	assert.True(t, CanView(owner, dept, Actor{ID: uuid.New(), Role: model.RoleFinance}))
	assert.False(t, CanView(owner, dept, Actor{ID: uuid.New(), Role: model.RoleEmployee}))
	assert.False(t, CanView(owner, dept, actorIn(model.RoleDepartmentHead, dept)))
}
