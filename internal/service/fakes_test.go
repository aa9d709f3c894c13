package service

import (
	"context"
	"sort"
	"sync"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// In-memory fakes for the repository interfaces so the services can be
// exercised without a database.

type fakeTxManager struct{}

func (fakeTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[uuid.UUID]*model.User{}}
}

func (r *fakeUserRepo) add(user *model.User) *model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	r.users[user.ID] = user
	return user
}

func (r *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	r.add(user)
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) List(ctx context.Context, page, limit int) ([]model.User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, int64(len(out)), nil
}

func (r *fakeUserRepo) Update(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	return nil
}

type fakeRequestRepo struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*model.ResourceRequest
	order    []uuid.UUID
	users    *fakeUserRepo // owner role lookups for ExcludeOwnerRole
}

func newFakeRequestRepo(users *fakeUserRepo) *fakeRequestRepo {
	return &fakeRequestRepo{requests: map[uuid.UUID]*model.ResourceRequest{}, users: users}
}

func (r *fakeRequestRepo) Create(ctx context.Context, req *model.ResourceRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	cp := *req
	r.requests[req.ID] = &cp
	r.order = append(r.order, req.ID)
	return nil
}

func (r *fakeRequestRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.ResourceRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req, ok := r.requests[id]; ok {
		cp := *req
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRequestRepo) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ResourceRequest, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeRequestRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ResourceRequest, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeRequestRepo) matches(req *model.ResourceRequest, filter repository.RequestFilter) bool {
	if filter.Status != "" && req.Status != filter.Status {
		return false
	}
	if filter.DepartmentID != nil && req.DepartmentID != *filter.DepartmentID {
		return false
	}
	if filter.UserID != nil && req.UserID != *filter.UserID {
		return false
	}
	if filter.Priority != "" && req.Priority != filter.Priority {
		return false
	}
	if filter.ExcludeOwnerRole != "" {
		if owner, ok := r.users.users[req.UserID]; ok && owner.Role == filter.ExcludeOwnerRole {
			return false
		}
	}
	return true
}

func (r *fakeRequestRepo) List(ctx context.Context, filter repository.RequestFilter, page, limit int) ([]model.ResourceRequest, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ResourceRequest
	for _, id := range r.order {
		req, ok := r.requests[id]
		if !ok {
			continue
		}
		if r.matches(req, filter) {
			out = append(out, *req)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeRequestRepo) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for key, value := range fields {
		switch key {
		case "title":
			req.Title = value.(string)
		case "resource_name":
			req.ResourceName = value.(string)
		case "resource_type":
			req.ResourceType = value.(string)
		case "description":
			req.Description = value.(string)
		case "quantity":
			req.Quantity = value.(int)
		case "estimated_cost":
			req.EstimatedCost = value.(decimal.Decimal)
		case "priority":
			req.Priority = value.(string)
		}
	}
	return nil
}

func (r *fakeRequestRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from []string, to string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if req.Status == s {
			req.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRequestRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, id)
	return nil
}

// contendedRequestRepo simulates a concurrent writer: after every read the
// services base a policy decision on, it moves the request to moveTo, so the
// subsequent conditional UpdateStatus sees a stale `from` and reports false.
type contendedRequestRepo struct {
	*fakeRequestRepo
	moveTo string
}

func (r *contendedRequestRepo) intervene(ctx context.Context, req *model.ResourceRequest) {
	_, _ = r.fakeRequestRepo.UpdateStatus(ctx, req.ID, []string{req.Status}, r.moveTo)
}

func (r *contendedRequestRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.ResourceRequest, error) {
	req, err := r.fakeRequestRepo.FindByID(ctx, id)
	if err == nil {
		r.intervene(ctx, req)
	}
	return req, err
}

func (r *contendedRequestRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ResourceRequest, error) {
	req, err := r.fakeRequestRepo.FindByIDForUpdate(ctx, id)
	if err == nil {
		r.intervene(ctx, req)
	}
	return req, err
}

type fakeApprovalRepo struct {
	mu        sync.Mutex
	approvals []model.Approval
}

func (r *fakeApprovalRepo) Create(ctx context.Context, approval *model.Approval) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if approval.ID == uuid.Nil {
		approval.ID = uuid.New()
	}
	r.approvals = append(r.approvals, *approval)
	return nil
}

func (r *fakeApprovalRepo) ListByRequest(ctx context.Context, requestID uuid.UUID, page, limit int) ([]model.Approval, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Approval
	for _, a := range r.approvals {
		if a.RequestID == requestID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DecidedAt.After(out[j].DecidedAt) })
	return out, int64(len(out)), nil
}

func (r *fakeApprovalRepo) forRequest(requestID uuid.UUID) []model.Approval {
	out, _, _ := r.ListByRequest(context.Background(), requestID, 1, 100)
	return out
}

type fakeDepartmentRepo struct {
	mu    sync.Mutex
	depts map[uuid.UUID]*model.Department
}

func newFakeDepartmentRepo() *fakeDepartmentRepo {
	return &fakeDepartmentRepo{depts: map[uuid.UUID]*model.Department{}}
}

func (r *fakeDepartmentRepo) add(name string) *model.Department {
	r.mu.Lock()
	defer r.mu.Unlock()
	dept := &model.Department{ID: uuid.New(), Name: name}
	r.depts[dept.ID] = dept
	return dept
}

func (r *fakeDepartmentRepo) Create(ctx context.Context, dept *model.Department) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if dept.ID == uuid.Nil {
		dept.ID = uuid.New()
	}
	r.depts[dept.ID] = dept
	return nil
}

func (r *fakeDepartmentRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Department, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.depts[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeDepartmentRepo) FindByName(ctx context.Context, name string) (*model.Department, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.depts {
		if d.Name == name {
			cp := *d
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeDepartmentRepo) List(ctx context.Context, page, limit int) ([]model.Department, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Department, 0, len(r.depts))
	for _, d := range r.depts {
		out = append(out, *d)
	}
	return out, int64(len(out)), nil
}

func (r *fakeDepartmentRepo) Update(ctx context.Context, dept *model.Department) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.depts[dept.ID] = dept
	return nil
}

func (r *fakeDepartmentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.depts, id)
	return nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []model.AuditLog
}

func (r *fakeAuditRepo) Create(ctx context.Context, entry *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeAuditRepo) List(ctx context.Context, page, limit int) ([]model.AuditLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.AuditLog, len(r.entries))
	copy(out, r.entries)
	return out, int64(len(out)), nil
}

type sentMail struct {
	To      string
	Subject string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (n *fakeNotifier) Notify(to, subject, textBody, htmlBody string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{To: to, Subject: subject})
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}
