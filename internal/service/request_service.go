package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend/internal/model"
	"backend/internal/policy"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateRequestDTO struct {
	Title         string          `json:"title" binding:"required"`
	ResourceName  string          `json:"resource_name" binding:"required"`
	ResourceType  string          `json:"resource_type" binding:"required"`
	Description   string          `json:"description"`
	Quantity      int             `json:"quantity" binding:"required,min=1"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
	Priority      string          `json:"priority" binding:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	DepartmentID  string          `json:"department_id" binding:"required"`
	// SaveAsDraft keeps the request out of the approval pipeline until an
	// explicit submit.
	SaveAsDraft bool `json:"save_as_draft"`
}

// UpdateRequestDTO uses pointers so absent fields are distinguishable from
// zero values. Once a request is Submitted only the description may change;
// every other field in the payload is silently ignored.
type UpdateRequestDTO struct {
	Title         *string          `json:"title"`
	ResourceName  *string          `json:"resource_name"`
	ResourceType  *string          `json:"resource_type"`
	Description   *string          `json:"description"`
	Quantity      *int             `json:"quantity"`
	EstimatedCost *decimal.Decimal `json:"estimated_cost"`
	Priority      *string          `json:"priority"`
}

type ListRequestsFilter struct {
	Status   string
	Priority string
	Page     int
	Limit    int
}

type RequestResponse struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	OwnerName      string `json:"owner_name,omitempty"`
	DepartmentID   string `json:"department_id"`
	DepartmentName string `json:"department_name,omitempty"`
	Title          string `json:"title"`
	ResourceName   string `json:"resource_name"`
	ResourceType   string `json:"resource_type"`
	Description    string `json:"description"`
	Quantity       int    `json:"quantity"`
	EstimatedCost  string `json:"estimated_cost"`
	Priority       string `json:"priority"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// --- Interface ---

// RequestService orchestrates the request lifecycle: creation, field edits,
// deletion, submission, cancellation, and payment. Approval decisions live in
// ApprovalService.
type RequestService interface {
	Create(ctx context.Context, actor policy.Actor, req CreateRequestDTO) (*RequestResponse, error)
	Get(ctx context.Context, actor policy.Actor, id string) (*RequestResponse, error)
	List(ctx context.Context, actor policy.Actor, filter ListRequestsFilter) ([]RequestResponse, int64, error)
	Update(ctx context.Context, actor policy.Actor, id string, req UpdateRequestDTO) (*RequestResponse, error)
	Delete(ctx context.Context, actor policy.Actor, id string) error
	Submit(ctx context.Context, actor policy.Actor, id string) (*RequestResponse, error)
	Cancel(ctx context.Context, actor policy.Actor, id string) (*RequestResponse, error)
	MarkPaid(ctx context.Context, actor policy.Actor, id string) (*RequestResponse, error)
}

type requestService struct {
	requests    repository.RequestRepository
	departments repository.DepartmentRepository
	audits      repository.AuditRepository
	tx          repository.TransactionManager
}

func NewRequestService(
	requests repository.RequestRepository,
	departments repository.DepartmentRepository,
	audits repository.AuditRepository,
	tx repository.TransactionManager,
) RequestService {
	return &requestService{requests: requests, departments: departments, audits: audits, tx: tx}
}

// --- Implementation ---

// initialStatus derives the status a freshly created request starts in.
// Manager-authored requests skip the manager-review tier entirely and enter
// the pipeline already SemiApproved (peer-approval rule).
func initialStatus(creatorRole string, saveAsDraft bool) string {
	if saveAsDraft {
		return model.RequestStatusDraft
	}
	if creatorRole == model.RoleManager {
		return model.RequestStatusSemiApproved
	}
	return model.RequestStatusSubmitted
}

func (s *requestService) Create(ctx context.Context, actor policy.Actor, req CreateRequestDTO) (*RequestResponse, error) {
	deptID, err := uuid.Parse(req.DepartmentID)
	if err != nil {
		return nil, &ValidationError{Reason: "invalid department_id"}
	}
	if req.EstimatedCost.IsNegative() {
		return nil, &ValidationError{Reason: "estimated_cost must not be negative"}
	}
	priority := req.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}

	if _, err := s.departments.FindByID(ctx, deptID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("department")
		}
		return nil, fmt.Errorf("failed to load department: %w", err)
	}

	request := &model.ResourceRequest{
		UserID:        actor.ID,
		DepartmentID:  deptID,
		Title:         req.Title,
		ResourceName:  req.ResourceName,
		ResourceType:  req.ResourceType,
		Description:   req.Description,
		Quantity:      req.Quantity,
		EstimatedCost: req.EstimatedCost,
		Priority:      priority,
		Status:        initialStatus(actor.Role, req.SaveAsDraft),
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.requests.Create(txCtx, request); createErr != nil {
			return fmt.Errorf("failed to create request: %w", createErr)
		}
		return s.writeAudit(txCtx, actor.ID, model.ActionCreateRequest, request, map[string]interface{}{
			"status": request.Status,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, request.ID)
}

func (s *requestService) Get(ctx context.Context, actor policy.Actor, id string) (*RequestResponse, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanView(request.UserID, request.DepartmentID, actor) {
		return nil, &PermissionDeniedError{Reason: "you do not have access to this request"}
	}
	return toRequestResponse(request), nil
}

func (s *requestService) List(ctx context.Context, actor policy.Actor, filter ListRequestsFilter) ([]RequestResponse, int64, error) {
	repoFilter := repository.RequestFilter{
		Status:   filter.Status,
		Priority: filter.Priority,
	}

	// Visibility scoping mirrors CanView: admin and finance see everything,
	// managers see their department, everyone else their own requests.
	switch actor.Role {
	case model.RoleAdmin, model.RoleFinance:
	case model.RoleManager:
		if actor.DepartmentID == nil {
			return []RequestResponse{}, 0, nil
		}
		repoFilter.DepartmentID = actor.DepartmentID
	default:
		ownerID := actor.ID
		repoFilter.UserID = &ownerID
	}

	requests, total, err := s.requests.List(ctx, repoFilter, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list requests: %w", err)
	}

	result := make([]RequestResponse, 0, len(requests))
	for i := range requests {
		result = append(result, *toRequestResponse(&requests[i]))
	}
	return result, total, nil
}

func (s *requestService) Update(ctx context.Context, actor policy.Actor, id string, req UpdateRequestDTO) (*RequestResponse, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	// Content edits are exclusive to the owner; approvers only ever change status.
	if request.UserID != actor.ID {
		return nil, &PermissionDeniedError{Reason: "only the request owner may edit it"}
	}
	if dec := policy.CanTransition(request.Status, policy.ActionUpdate); !dec.Allowed {
		return nil, &InvalidTransitionError{Reason: dec.Reason}
	}

	fields, err := buildUpdateFields(request.Status, req)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return toRequestResponse(request), nil
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if updateErr := s.requests.UpdateFields(txCtx, request.ID, fields); updateErr != nil {
			return fmt.Errorf("failed to update request: %w", updateErr)
		}
		return s.writeAudit(txCtx, actor.ID, model.ActionUpdateRequest, request, fields)
	})
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, request.ID)
}

// buildUpdateFields applies the field-level edit restrictions: in Submitted
// only the description is editable and every other provided field is dropped
// without error; in Draft/Rejected all editable fields may change.
func buildUpdateFields(status string, req UpdateRequestDTO) (map[string]interface{}, error) {
	fields := map[string]interface{}{}

	if status == model.RequestStatusSubmitted {
		if req.Description != nil {
			fields["description"] = *req.Description
		}
		return fields, nil
	}

	if req.Title != nil {
		fields["title"] = *req.Title
	}
	if req.ResourceName != nil {
		fields["resource_name"] = *req.ResourceName
	}
	if req.ResourceType != nil {
		fields["resource_type"] = *req.ResourceType
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.Quantity != nil {
		if *req.Quantity < 1 {
			return nil, &ValidationError{Reason: "quantity must be at least 1"}
		}
		fields["quantity"] = *req.Quantity
	}
	if req.EstimatedCost != nil {
		if req.EstimatedCost.IsNegative() {
			return nil, &ValidationError{Reason: "estimated_cost must not be negative"}
		}
		fields["estimated_cost"] = *req.EstimatedCost
	}
	if req.Priority != nil {
		if !model.ValidPriority(*req.Priority) {
			return nil, &ValidationError{Reason: "invalid priority"}
		}
		fields["priority"] = *req.Priority
	}
	return fields, nil
}

func (s *requestService) Delete(ctx context.Context, actor policy.Actor, id string) error {
	request, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if request.UserID != actor.ID && actor.Role != model.RoleAdmin {
		return &PermissionDeniedError{Reason: "only the request owner or an admin may delete it"}
	}
	if dec := policy.CanTransition(request.Status, policy.ActionDelete); !dec.Allowed {
		return &InvalidTransitionError{Reason: dec.Reason}
	}

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if deleteErr := s.requests.Delete(txCtx, request.ID); deleteErr != nil {
			return fmt.Errorf("failed to delete request: %w", deleteErr)
		}
		return s.writeAudit(txCtx, actor.ID, model.ActionDeleteRequest, request, nil)
	})
}

func (s *requestService) Submit(ctx context.Context, actor policy.Actor, id string) (*RequestResponse, error) {
	return s.transition(ctx, actor, id, policy.ActionSubmit, model.RequestStatusSubmitted, model.ActionSubmitRequest, false)
}

// Cancel terminates a request. Cancellation shares the Rejected terminal
// status with approver rejection rather than introducing a separate one.
func (s *requestService) Cancel(ctx context.Context, actor policy.Actor, id string) (*RequestResponse, error) {
	return s.transition(ctx, actor, id, policy.ActionCancel, model.RequestStatusRejected, model.ActionCancelRequest, true)
}

// transition performs an owner-driven status move gated by the transition
// table. The status write is conditional on the status the policy was checked
// against, so a concurrent approval cannot be silently overwritten.
func (s *requestService) transition(ctx context.Context, actor policy.Actor, id string, action policy.Action, to string, auditAction string, adminAllowed bool) (*RequestResponse, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.UserID != actor.ID && !(adminAllowed && actor.Role == model.RoleAdmin) {
		reason := fmt.Sprintf("only the request owner may %s it", action)
		if adminAllowed {
			reason = fmt.Sprintf("only the request owner or an admin may %s it", action)
		}
		return nil, &PermissionDeniedError{Reason: reason}
	}
	if dec := policy.CanTransition(request.Status, action); !dec.Allowed {
		return nil, &InvalidTransitionError{Reason: dec.Reason}
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		updated, updateErr := s.requests.UpdateStatus(txCtx, request.ID, []string{request.Status}, to)
		if updateErr != nil {
			return fmt.Errorf("failed to update request status: %w", updateErr)
		}
		if !updated {
			return fmt.Errorf("request status changed concurrently: %w", ErrConflict)
		}
		return s.writeAudit(txCtx, actor.ID, auditAction, request, map[string]interface{}{
			"from": request.Status,
			"to":   to,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, request.ID)
}

// MarkPaid moves an Approved request to Paid. Route-gated to finance/admin;
// the conditional write enforces the Approved precondition.
func (s *requestService) MarkPaid(ctx context.Context, actor policy.Actor, id string) (*RequestResponse, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.RoleFinance && actor.Role != model.RoleAdmin {
		return nil, &PermissionDeniedError{Reason: "only finance may process payment"}
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		updated, updateErr := s.requests.UpdateStatus(txCtx, request.ID, []string{model.RequestStatusApproved}, model.RequestStatusPaid)
		if updateErr != nil {
			return fmt.Errorf("failed to update request status: %w", updateErr)
		}
		if !updated {
			return &InvalidTransitionError{Reason: fmt.Sprintf("cannot pay a request in status %s", request.Status)}
		}
		return s.writeAudit(txCtx, actor.ID, model.ActionPayRequest, request, map[string]interface{}{
			"from": request.Status,
			"to":   model.RequestStatusPaid,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, request.ID)
}

// --- Helpers ---

func (s *requestService) load(ctx context.Context, id string) (*model.ResourceRequest, error) {
	requestID, err := uuid.Parse(id)
	if err != nil {
		return nil, notFound("request")
	}
	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("request")
		}
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	return request, nil
}

func (s *requestService) reload(ctx context.Context, id uuid.UUID) (*RequestResponse, error) {
	request, err := s.requests.FindByIDWithRelations(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload request: %w", err)
	}
	return toRequestResponse(request), nil
}

func (s *requestService) writeAudit(ctx context.Context, userID uuid.UUID, action string, request *model.ResourceRequest, details map[string]interface{}) error {
	payload, _ := json.Marshal(details)
	entry := &model.AuditLog{
		UserID:     &userID,
		Action:     action,
		EntityID:   request.ID.String(),
		EntityName: request.Title,
		Details:    string(payload),
	}
	if err := s.audits.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func toRequestResponse(r *model.ResourceRequest) *RequestResponse {
	resp := &RequestResponse{
		ID:            r.ID.String(),
		UserID:        r.UserID.String(),
		DepartmentID:  r.DepartmentID.String(),
		Title:         r.Title,
		ResourceName:  r.ResourceName,
		ResourceType:  r.ResourceType,
		Description:   r.Description,
		Quantity:      r.Quantity,
		EstimatedCost: r.EstimatedCost.StringFixed(4),
		Priority:      r.Priority,
		Status:        r.Status,
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     r.UpdatedAt.Format(time.RFC3339),
	}
	if r.User != nil {
		resp.OwnerName = r.User.Username
	}
	if r.Department != nil {
		resp.DepartmentName = r.Department.Name
	}
	return resp
}
