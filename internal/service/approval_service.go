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
	"gorm.io/gorm"
)

// --- DTOs ---

type DecideRequestDTO struct {
	Comment string `json:"comment"`
}

type ApprovalResponse struct {
	ID           string `json:"id"`
	RequestID    string `json:"request_id"`
	ApproverID   string `json:"approver_id"`
	ApproverName string `json:"approver_name,omitempty"`
	Decision     string `json:"decision"`
	Comment      string `json:"comment"`
	DecidedAt    string `json:"decided_at"`
}

type DecisionResponse struct {
	Approval ApprovalResponse `json:"approval"`
	Request  RequestResponse  `json:"request"`
}

// Notifier receives best-effort notifications about decisions. Failures are
// the notifier's problem; the approval transaction has already committed.
type Notifier interface {
	Notify(to, subject, textBody, htmlBody string)
}

// Broadcaster pushes decision events to connected realtime clients.
type Broadcaster interface {
	GetBroadcast() chan []byte
}

// --- Interface ---

// ApprovalService orchestrates approve/reject decisions: it re-reads the
// request under a row lock, consults the permission policy against the fresh
// status, appends the immutable Approval record, and conditionally moves the
// status, all inside one transaction.
type ApprovalService interface {
	Approve(ctx context.Context, actor policy.Actor, requestID string, comment string) (*DecisionResponse, error)
	Reject(ctx context.Context, actor policy.Actor, requestID string, comment string) (*DecisionResponse, error)
	History(ctx context.Context, actor policy.Actor, requestID string, page, limit int) ([]ApprovalResponse, int64, error)
	Pending(ctx context.Context, actor policy.Actor, page, limit int) ([]RequestResponse, int64, error)
}

type approvalService struct {
	requests  repository.RequestRepository
	approvals repository.ApprovalRepository
	users     repository.UserRepository
	audits    repository.AuditRepository
	tx        repository.TransactionManager
	notifier  Notifier
	hub       Broadcaster
}

func NewApprovalService(
	requests repository.RequestRepository,
	approvals repository.ApprovalRepository,
	users repository.UserRepository,
	audits repository.AuditRepository,
	tx repository.TransactionManager,
	notifier Notifier,
	hub Broadcaster,
) ApprovalService {
	return &approvalService{
		requests:  requests,
		approvals: approvals,
		users:     users,
		audits:    audits,
		tx:        tx,
		notifier:  notifier,
		hub:       hub,
	}
}

// --- Implementation ---

func (s *approvalService) Approve(ctx context.Context, actor policy.Actor, requestID string, comment string) (*DecisionResponse, error) {
	id, err := uuid.Parse(requestID)
	if err != nil {
		return nil, notFound("request")
	}
	if comment == "" {
		comment = "Approved"
	}

	var (
		approval model.Approval
		owner    *model.User
		next     string
	)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		request, findErr := s.requests.FindByIDForUpdate(txCtx, id)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return notFound("request")
			}
			return fmt.Errorf("failed to load request: %w", findErr)
		}

		var ownerErr error
		owner, ownerErr = s.users.GetByID(txCtx, request.UserID)
		if ownerErr != nil {
			return fmt.Errorf("failed to load request owner: %w", ownerErr)
		}

		if dec := policy.CanApprove(request.Status, request.DepartmentID, owner.Role, actor); !dec.Allowed {
			return denialError(dec)
		}

		var ok bool
		next, ok = policy.NextApprovalStatus(actor.Role)
		if !ok {
			// Unreachable given the policy check above.
			return &PermissionDeniedError{Reason: fmt.Sprintf("role %s cannot approve requests", actor.Role)}
		}

		approval = model.Approval{
			RequestID:  request.ID,
			ApproverID: actor.ID,
			Decision:   model.ApprovalDecisionApproved,
			Comment:    comment,
			DecidedAt:  time.Now(),
		}
		if createErr := s.approvals.Create(txCtx, &approval); createErr != nil {
			return fmt.Errorf("failed to create approval record: %w", createErr)
		}

		updated, updateErr := s.requests.UpdateStatus(txCtx, request.ID, []string{request.Status}, next)
		if updateErr != nil {
			return fmt.Errorf("failed to update request status: %w", updateErr)
		}
		if !updated {
			return fmt.Errorf("request status changed concurrently: %w", ErrConflict)
		}

		return s.writeAudit(txCtx, actor.ID, model.ActionApproveRequest, request, map[string]interface{}{
			"from":    request.Status,
			"to":      next,
			"comment": comment,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.finishDecision(ctx, id, approval, owner, "approved", comment, next)
}

func (s *approvalService) Reject(ctx context.Context, actor policy.Actor, requestID string, comment string) (*DecisionResponse, error) {
	id, err := uuid.Parse(requestID)
	if err != nil {
		return nil, notFound("request")
	}
	if comment == "" {
		comment = "Rejected"
	}

	var (
		approval model.Approval
		owner    *model.User
	)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		request, findErr := s.requests.FindByIDForUpdate(txCtx, id)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return notFound("request")
			}
			return fmt.Errorf("failed to load request: %w", findErr)
		}

		var ownerErr error
		owner, ownerErr = s.users.GetByID(txCtx, request.UserID)
		if ownerErr != nil {
			return fmt.Errorf("failed to load request owner: %w", ownerErr)
		}

		if dec := policy.CanReject(request.Status, request.DepartmentID, actor); !dec.Allowed {
			return denialError(dec)
		}

		approval = model.Approval{
			RequestID:  request.ID,
			ApproverID: actor.ID,
			Decision:   model.ApprovalDecisionRejected,
			Comment:    comment,
			DecidedAt:  time.Now(),
		}
		if createErr := s.approvals.Create(txCtx, &approval); createErr != nil {
			return fmt.Errorf("failed to create approval record: %w", createErr)
		}

		updated, updateErr := s.requests.UpdateStatus(txCtx, request.ID, []string{request.Status}, model.RequestStatusRejected)
		if updateErr != nil {
			return fmt.Errorf("failed to update request status: %w", updateErr)
		}
		if !updated {
			return fmt.Errorf("request status changed concurrently: %w", ErrConflict)
		}

		return s.writeAudit(txCtx, actor.ID, model.ActionRejectRequest, request, map[string]interface{}{
			"from":    request.Status,
			"comment": comment,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.finishDecision(ctx, id, approval, owner, "rejected", comment, model.RequestStatusRejected)
}

func (s *approvalService) History(ctx context.Context, actor policy.Actor, requestID string, page, limit int) ([]ApprovalResponse, int64, error) {
	id, err := uuid.Parse(requestID)
	if err != nil {
		return nil, 0, notFound("request")
	}
	request, err := s.requests.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, notFound("request")
		}
		return nil, 0, fmt.Errorf("failed to load request: %w", err)
	}
	if !policy.CanView(request.UserID, request.DepartmentID, actor) {
		return nil, 0, &PermissionDeniedError{Reason: "you do not have access to this request"}
	}

	approvals, total, err := s.approvals.ListByRequest(ctx, id, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list approvals: %w", err)
	}

	result := make([]ApprovalResponse, 0, len(approvals))
	for i := range approvals {
		result = append(result, toApprovalResponse(&approvals[i]))
	}
	return result, total, nil
}

// Pending returns the actor's approval queue. Managers see Submitted requests
// from their own department excluding peer-manager authored ones; admins see
// everything awaiting final sign-off. Any other role has an empty queue.
func (s *approvalService) Pending(ctx context.Context, actor policy.Actor, page, limit int) ([]RequestResponse, int64, error) {
	var filter repository.RequestFilter
	switch actor.Role {
	case model.RoleManager:
		if actor.DepartmentID == nil {
			return []RequestResponse{}, 0, nil
		}
		filter = repository.RequestFilter{
			Status:           model.RequestStatusSubmitted,
			DepartmentID:     actor.DepartmentID,
			ExcludeOwnerRole: model.RoleManager,
		}
	case model.RoleAdmin:
		filter = repository.RequestFilter{Status: model.RequestStatusSemiApproved}
	default:
		return []RequestResponse{}, 0, nil
	}

	requests, total, err := s.requests.List(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pending approvals: %w", err)
	}

	result := make([]RequestResponse, 0, len(requests))
	for i := range requests {
		result = append(result, *toRequestResponse(&requests[i]))
	}
	return result, total, nil
}

// --- Helpers ---

// denialError converts a policy denial into the error type the handlers map
// to an HTTP status: 403 for authorization, 400 for invalid transitions.
func denialError(dec policy.Decision) error {
	if dec.Code == policy.DenyStatus {
		return &InvalidTransitionError{Reason: dec.Reason}
	}
	return &PermissionDeniedError{Reason: dec.Reason}
}

// finishDecision runs after the transaction committed: reload the request,
// notify the owner, and broadcast the event. Both side channels are
// best-effort and never fail the decision.
func (s *approvalService) finishDecision(ctx context.Context, requestID uuid.UUID, approval model.Approval, owner *model.User, verb, comment, newStatus string) (*DecisionResponse, error) {
	request, err := s.requests.FindByIDWithRelations(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload request: %w", err)
	}

	if s.notifier != nil && owner != nil {
		subject := fmt.Sprintf("Your request %q was %s", request.Title, verb)
		text := fmt.Sprintf("Your request %q is now %s. Comment: %s", request.Title, newStatus, comment)
		html := fmt.Sprintf("<p>Your request <b>%s</b> is now <b>%s</b>.</p><p>Comment: %s</p>", request.Title, newStatus, comment)
		s.notifier.Notify(owner.Email, subject, text, html)
	}

	if s.hub != nil {
		event, marshalErr := json.Marshal(map[string]string{
			"type":       "request_" + verb,
			"request_id": request.ID.String(),
			"status":     newStatus,
		})
		if marshalErr == nil {
			select {
			case s.hub.GetBroadcast() <- event:
			default:
				// Hub busy or absent; realtime delivery is best-effort.
			}
		}
	}

	return &DecisionResponse{
		Approval: toApprovalResponse(&approval),
		Request:  *toRequestResponse(request),
	}, nil
}

func (s *approvalService) writeAudit(ctx context.Context, userID uuid.UUID, action string, request *model.ResourceRequest, details map[string]interface{}) error {
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

func toApprovalResponse(a *model.Approval) ApprovalResponse {
	resp := ApprovalResponse{
		ID:         a.ID.String(),
		RequestID:  a.RequestID.String(),
		ApproverID: a.ApproverID.String(),
		Decision:   a.Decision,
		Comment:    a.Comment,
		DecidedAt:  a.DecidedAt.Format(time.RFC3339),
	}
	if a.Approver != nil {
		resp.ApproverName = a.Approver.Username
	}
	return resp
}
