package service

import (
	"context"
	"testing"

	"backend/internal/model"
	"backend/internal/policy"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type requestFixture struct {
	svc      RequestService
	requests *fakeRequestRepo
	depts    *fakeDepartmentRepo
	users    *fakeUserRepo
	audits   *fakeAuditRepo
	dept     *model.Department
}

func newRequestFixture(t *testing.T) *requestFixture {
	t.Helper()
	users := newFakeUserRepo()
	requests := newFakeRequestRepo(users)
	depts := newFakeDepartmentRepo()
	audits := &fakeAuditRepo{}
	return &requestFixture{
		svc:      NewRequestService(requests, depts, audits, fakeTxManager{}),
		requests: requests,
		depts:    depts,
		users:    users,
		audits:   audits,
		dept:     depts.add("Engineering"),
	}
}

func (f *requestFixture) actor(role string) policy.Actor {
	deptID := f.dept.ID
	user := f.users.add(&model.User{Username: role + "-user", Email: role + "@example.com", Role: role, DepartmentID: &deptID})
	return policy.Actor{ID: user.ID, Role: role, DepartmentID: &deptID}
}

func (f *requestFixture) createDTO() CreateRequestDTO {
	return CreateRequestDTO{
		Title:         "Laptop",
		ResourceName:  "MacBook Pro",
		ResourceType:  "hardware",
		Quantity:      1,
		EstimatedCost: decimal.NewFromInt(2500),
		DepartmentID:  f.dept.ID.String(),
	}
}

func TestCreateInitialStatus(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()

	t.Run("employee starts submitted", func(t *testing.T) {
		resp, err := f.svc.Create(ctx, f.actor(model.RoleEmployee), f.createDTO())
		require.NoError(t, err)
		assert.Equal(t, model.RequestStatusSubmitted, resp.Status)
	})

	t.Run("manager skips the manager tier", func(t *testing.T) {
		resp, err := f.svc.Create(ctx, f.actor(model.RoleManager), f.createDTO())
		require.NoError(t, err)
		assert.Equal(t, model.RequestStatusSemiApproved, resp.Status)
	})

	t.Run("finance starts submitted", func(t *testing.T) {
		resp, err := f.svc.Create(ctx, f.actor(model.RoleFinance), f.createDTO())
		require.NoError(t, err)
		assert.Equal(t, model.RequestStatusSubmitted, resp.Status)
	})

	t.Run("save as draft", func(t *testing.T) {
		dto := f.createDTO()
		dto.SaveAsDraft = true
		resp, err := f.svc.Create(ctx, f.actor(model.RoleManager), dto)
		require.NoError(t, err)
		assert.Equal(t, model.RequestStatusDraft, resp.Status)
	})

	t.Run("unknown department", func(t *testing.T) {
		dto := f.createDTO()
		dto.DepartmentID = uuid.New().String()
		_, err := f.svc.Create(ctx, f.actor(model.RoleEmployee), dto)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("negative cost rejected", func(t *testing.T) {
		dto := f.createDTO()
		dto.EstimatedCost = decimal.NewFromInt(-1)
		_, err := f.svc.Create(ctx, f.actor(model.RoleEmployee), dto)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})
}

func TestUpdateFieldRestrictions(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()
	owner := f.actor(model.RoleEmployee)

	created, err := f.svc.Create(ctx, owner, f.createDTO())
	require.NoError(t, err)
	require.Equal(t, model.RequestStatusSubmitted, created.Status)

	t.Run("submitted ignores everything but description", func(t *testing.T) {
		quantity := 999
		title := "Server"
		desc := "need it for the new hire"
		resp, err := f.svc.Update(ctx, owner, created.ID, UpdateRequestDTO{
			Quantity:    &quantity,
			Title:       &title,
			Description: &desc,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, resp.Quantity, "quantity must be silently ignored once submitted")
		assert.Equal(t, "Laptop", resp.Title, "title must be silently ignored once submitted")
		assert.Equal(t, desc, resp.Description)
	})

	t.Run("non-owner cannot edit", func(t *testing.T) {
		desc := "x"
		_, err := f.svc.Update(ctx, f.actor(model.RoleEmployee), created.ID, UpdateRequestDTO{Description: &desc})
		var perr *PermissionDeniedError
		require.ErrorAs(t, err, &perr)
	})

	t.Run("draft allows all editable fields", func(t *testing.T) {
		dto := f.createDTO()
		dto.SaveAsDraft = true
		draft, err := f.svc.Create(ctx, owner, dto)
		require.NoError(t, err)

		title := "Monitor"
		quantity := 3
		cost := decimal.NewFromInt(900)
		priority := model.PriorityHigh
		resp, err := f.svc.Update(ctx, owner, draft.ID, UpdateRequestDTO{
			Title:         &title,
			Quantity:      &quantity,
			EstimatedCost: &cost,
			Priority:      &priority,
		})
		require.NoError(t, err)
		assert.Equal(t, "Monitor", resp.Title)
		assert.Equal(t, 3, resp.Quantity)
		assert.Equal(t, "900.0000", resp.EstimatedCost)
		assert.Equal(t, model.PriorityHigh, resp.Priority)
	})

	t.Run("approved request is frozen", func(t *testing.T) {
		reqID := uuid.MustParse(created.ID)
		_, err := f.requests.UpdateStatus(ctx, reqID, []string{model.RequestStatusSubmitted}, model.RequestStatusApproved)
		require.NoError(t, err)

		desc := "too late"
		_, err = f.svc.Update(ctx, owner, created.ID, UpdateRequestDTO{Description: &desc})
		var terr *InvalidTransitionError
		require.ErrorAs(t, err, &terr)
		assert.Contains(t, terr.Reason, model.RequestStatusApproved)
	})
}

func TestSubmitAndResubmit(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()
	owner := f.actor(model.RoleEmployee)

	dto := f.createDTO()
	dto.SaveAsDraft = true
	draft, err := f.svc.Create(ctx, owner, dto)
	require.NoError(t, err)

	resp, err := f.svc.Submit(ctx, owner, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusSubmitted, resp.Status)

	// Submitted requests cannot be submitted again.
	_, err = f.svc.Submit(ctx, owner, draft.ID)
	var terr *InvalidTransitionError
	require.ErrorAs(t, err, &terr)

	// A rejected request may be resubmitted.
	reqID := uuid.MustParse(draft.ID)
	_, err = f.requests.UpdateStatus(ctx, reqID, []string{model.RequestStatusSubmitted}, model.RequestStatusRejected)
	require.NoError(t, err)

	resp, err = f.svc.Submit(ctx, owner, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusSubmitted, resp.Status)
}

func TestCancel(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()
	owner := f.actor(model.RoleEmployee)

	created, err := f.svc.Create(ctx, owner, f.createDTO())
	require.NoError(t, err)
	reqID := uuid.MustParse(created.ID)

	t.Run("semi-approved cancels into rejected", func(t *testing.T) {
		_, err := f.requests.UpdateStatus(ctx, reqID, []string{model.RequestStatusSubmitted}, model.RequestStatusSemiApproved)
		require.NoError(t, err)

		resp, err := f.svc.Cancel(ctx, owner, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RequestStatusRejected, resp.Status)
	})

	t.Run("approved cannot be cancelled", func(t *testing.T) {
		_, err := f.requests.UpdateStatus(ctx, reqID, []string{model.RequestStatusRejected}, model.RequestStatusApproved)
		require.NoError(t, err)

		_, err = f.svc.Cancel(ctx, owner, created.ID)
		var terr *InvalidTransitionError
		require.ErrorAs(t, err, &terr)
	})
}

func TestTransitionOwnership(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()
	owner := f.actor(model.RoleEmployee)
	admin := policy.Actor{ID: uuid.New(), Role: model.RoleAdmin}

	dto := f.createDTO()
	dto.SaveAsDraft = true
	draft, err := f.svc.Create(ctx, owner, dto)
	require.NoError(t, err)

	t.Run("submit is owner-only, even for admins", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, admin, draft.ID)
		var perr *PermissionDeniedError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "only the request owner may submit it", perr.Reason)
	})

	t.Run("cancel denial names the admin escape hatch", func(t *testing.T) {
		_, err := f.svc.Cancel(ctx, f.actor(model.RoleEmployee), draft.ID)
		var perr *PermissionDeniedError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "only the request owner or an admin may cancel it", perr.Reason)
	})

	t.Run("admin may cancel on the owner's behalf", func(t *testing.T) {
		resp, err := f.svc.Cancel(ctx, admin, draft.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RequestStatusRejected, resp.Status)
	})
}

func TestTransitionConflictsWithConcurrentUpdate(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserRepo()
	base := newFakeRequestRepo(users)
	depts := newFakeDepartmentRepo()
	dept := depts.add("Engineering")

	// A decision lands between the owner's read and the conditional write,
	// so the write must refuse rather than clobber the newer status.
	requests := &contendedRequestRepo{fakeRequestRepo: base, moveTo: model.RequestStatusSemiApproved}
	svc := NewRequestService(requests, depts, &fakeAuditRepo{}, fakeTxManager{})

	user := users.add(&model.User{Username: "owner", Email: "owner@example.com", Role: model.RoleEmployee, DepartmentID: &dept.ID})
	owner := policy.Actor{ID: user.ID, Role: model.RoleEmployee, DepartmentID: &dept.ID}

	created, err := svc.Create(ctx, owner, CreateRequestDTO{
		Title:        "Laptop",
		ResourceName: "MacBook Pro",
		ResourceType: "hardware",
		Quantity:     1,
		DepartmentID: dept.ID.String(),
	})
	require.NoError(t, err)
	require.Equal(t, model.RequestStatusSubmitted, created.Status)

	_, err = svc.Cancel(ctx, owner, created.ID)
	require.ErrorIs(t, err, ErrConflict)
}

func TestDelete(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()
	owner := f.actor(model.RoleEmployee)

	created, err := f.svc.Create(ctx, owner, f.createDTO())
	require.NoError(t, err)

	t.Run("unrelated user denied", func(t *testing.T) {
		err := f.svc.Delete(ctx, f.actor(model.RoleEmployee), created.ID)
		var perr *PermissionDeniedError
		require.ErrorAs(t, err, &perr)
	})

	t.Run("paid request cannot be deleted", func(t *testing.T) {
		reqID := uuid.MustParse(created.ID)
		_, err := f.requests.UpdateStatus(ctx, reqID, []string{model.RequestStatusSubmitted}, model.RequestStatusPaid)
		require.NoError(t, err)

		err = f.svc.Delete(ctx, owner, created.ID)
		var terr *InvalidTransitionError
		require.ErrorAs(t, err, &terr)

		_, err = f.requests.UpdateStatus(ctx, reqID, []string{model.RequestStatusPaid}, model.RequestStatusSubmitted)
		require.NoError(t, err)
	})

	t.Run("owner deletes submitted request", func(t *testing.T) {
		require.NoError(t, f.svc.Delete(ctx, owner, created.ID))
		_, err := f.svc.Get(ctx, owner, created.ID)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMarkPaid(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()
	owner := f.actor(model.RoleEmployee)
	finance := f.actor(model.RoleFinance)

	created, err := f.svc.Create(ctx, owner, f.createDTO())
	require.NoError(t, err)
	reqID := uuid.MustParse(created.ID)

	t.Run("only approved requests are payable", func(t *testing.T) {
		_, err := f.svc.MarkPaid(ctx, finance, created.ID)
		var terr *InvalidTransitionError
		require.ErrorAs(t, err, &terr)
	})

	t.Run("owner cannot pay", func(t *testing.T) {
		_, err := f.svc.MarkPaid(ctx, owner, created.ID)
		var perr *PermissionDeniedError
		require.ErrorAs(t, err, &perr)
	})

	t.Run("finance pays an approved request", func(t *testing.T) {
		_, err := f.requests.UpdateStatus(ctx, reqID, []string{model.RequestStatusSubmitted}, model.RequestStatusApproved)
		require.NoError(t, err)

		resp, err := f.svc.MarkPaid(ctx, finance, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RequestStatusPaid, resp.Status)
	})
}

func TestListVisibilityScoping(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()

	employee := f.actor(model.RoleEmployee)
	otherEmployee := f.actor(model.RoleEmployee)
	manager := f.actor(model.RoleManager)
	admin := policy.Actor{ID: uuid.New(), Role: model.RoleAdmin}

	otherDept := f.depts.add("Sales")
	outsider := f.users.add(&model.User{Username: "outsider", Email: "o@example.com", Role: model.RoleEmployee, DepartmentID: &otherDept.ID})

	_, err := f.svc.Create(ctx, employee, f.createDTO())
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, otherEmployee, f.createDTO())
	require.NoError(t, err)
	dto := f.createDTO()
	dto.DepartmentID = otherDept.ID.String()
	_, err = f.svc.Create(ctx, policy.Actor{ID: outsider.ID, Role: model.RoleEmployee, DepartmentID: &otherDept.ID}, dto)
	require.NoError(t, err)

	list, total, err := f.svc.List(ctx, employee, ListRequestsFilter{Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, list, 1)

	_, total, err = f.svc.List(ctx, manager, ListRequestsFilter{Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total, "manager sees own department only")

	_, total, err = f.svc.List(ctx, admin, ListRequestsFilter{Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total, "admin sees everything")
}

func TestGetVisibility(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()
	owner := f.actor(model.RoleEmployee)

	created, err := f.svc.Create(ctx, owner, f.createDTO())
	require.NoError(t, err)

	otherDept := uuid.New()
	_, err = f.svc.Get(ctx, policy.Actor{ID: uuid.New(), Role: model.RoleManager, DepartmentID: &otherDept}, created.ID)
	var perr *PermissionDeniedError
	require.ErrorAs(t, err, &perr)

	_, err = f.svc.Get(ctx, policy.Actor{ID: uuid.New(), Role: model.RoleFinance}, created.ID)
	require.NoError(t, err)
}
