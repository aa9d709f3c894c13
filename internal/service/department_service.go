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

type CreateDepartmentDTO struct {
	Name      string `json:"name" binding:"required"`
	ManagerID string `json:"manager_id"`
}

type UpdateDepartmentDTO struct {
	Name      string `json:"name"`
	ManagerID string `json:"manager_id"`
}

type DepartmentResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ManagerID   string `json:"manager_id,omitempty"`
	ManagerName string `json:"manager_name,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type DepartmentService interface {
	Create(ctx context.Context, actor policy.Actor, req CreateDepartmentDTO) (*DepartmentResponse, error)
	Get(ctx context.Context, id string) (*DepartmentResponse, error)
	List(ctx context.Context, page, limit int) ([]DepartmentResponse, int64, error)
	Update(ctx context.Context, actor policy.Actor, id string, req UpdateDepartmentDTO) (*DepartmentResponse, error)
	Delete(ctx context.Context, actor policy.Actor, id string) error
}

type departmentService struct {
	departments repository.DepartmentRepository
	users       repository.UserRepository
	audits      repository.AuditRepository
	tx          repository.TransactionManager
}

func NewDepartmentService(
	departments repository.DepartmentRepository,
	users repository.UserRepository,
	audits repository.AuditRepository,
	tx repository.TransactionManager,
) DepartmentService {
	return &departmentService{departments: departments, users: users, audits: audits, tx: tx}
}

func (s *departmentService) Create(ctx context.Context, actor policy.Actor, req CreateDepartmentDTO) (*DepartmentResponse, error) {
	if _, err := s.departments.FindByName(ctx, req.Name); err == nil {
		return nil, fmt.Errorf("department name already exists: %w", ErrConflict)
	}

	managerID, err := s.resolveManager(ctx, req.ManagerID)
	if err != nil {
		return nil, err
	}

	dept := &model.Department{Name: req.Name, ManagerID: managerID}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.departments.Create(txCtx, dept); createErr != nil {
			return fmt.Errorf("failed to create department: %w", createErr)
		}
		return s.writeAudit(txCtx, actor.ID, model.ActionCreateDepartment, dept)
	})
	if err != nil {
		return nil, err
	}

	return toDepartmentResponse(dept), nil
}

func (s *departmentService) Get(ctx context.Context, id string) (*DepartmentResponse, error) {
	deptID, err := uuid.Parse(id)
	if err != nil {
		return nil, notFound("department")
	}
	dept, err := s.departments.FindByID(ctx, deptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("department")
		}
		return nil, fmt.Errorf("failed to load department: %w", err)
	}
	return toDepartmentResponse(dept), nil
}

func (s *departmentService) List(ctx context.Context, page, limit int) ([]DepartmentResponse, int64, error) {
	depts, total, err := s.departments.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list departments: %w", err)
	}
	result := make([]DepartmentResponse, 0, len(depts))
	for i := range depts {
		result = append(result, *toDepartmentResponse(&depts[i]))
	}
	return result, total, nil
}

func (s *departmentService) Update(ctx context.Context, actor policy.Actor, id string, req UpdateDepartmentDTO) (*DepartmentResponse, error) {
	deptID, err := uuid.Parse(id)
	if err != nil {
		return nil, notFound("department")
	}
	dept, err := s.departments.FindByID(ctx, deptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("department")
		}
		return nil, fmt.Errorf("failed to load department: %w", err)
	}

	if req.Name != "" && req.Name != dept.Name {
		if _, err := s.departments.FindByName(ctx, req.Name); err == nil {
			return nil, fmt.Errorf("department name already exists: %w", ErrConflict)
		}
		dept.Name = req.Name
	}
	if req.ManagerID != "" {
		managerID, resolveErr := s.resolveManager(ctx, req.ManagerID)
		if resolveErr != nil {
			return nil, resolveErr
		}
		dept.ManagerID = managerID
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if updateErr := s.departments.Update(txCtx, dept); updateErr != nil {
			return fmt.Errorf("failed to update department: %w", updateErr)
		}
		return s.writeAudit(txCtx, actor.ID, model.ActionUpdateDepartment, dept)
	})
	if err != nil {
		return nil, err
	}

	return toDepartmentResponse(dept), nil
}

func (s *departmentService) Delete(ctx context.Context, actor policy.Actor, id string) error {
	deptID, err := uuid.Parse(id)
	if err != nil {
		return notFound("department")
	}
	dept, err := s.departments.FindByID(ctx, deptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("department")
		}
		return fmt.Errorf("failed to load department: %w", err)
	}

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if deleteErr := s.departments.Delete(txCtx, deptID); deleteErr != nil {
			return fmt.Errorf("failed to delete department: %w", deleteErr)
		}
		return s.writeAudit(txCtx, actor.ID, model.ActionDeleteDepartment, dept)
	})
}

// resolveManager validates an optional manager assignment: the user must
// exist and hold the manager role.
func (s *departmentService) resolveManager(ctx context.Context, managerID string) (*uuid.UUID, error) {
	if managerID == "" {
		return nil, nil
	}
	parsed, err := uuid.Parse(managerID)
	if err != nil {
		return nil, &ValidationError{Reason: "invalid manager_id"}
	}
	user, err := s.users.GetByID(ctx, parsed)
	if err != nil {
		return nil, notFound("manager")
	}
	if user.Role != model.RoleManager {
		return nil, &ValidationError{Reason: "assigned manager must hold the manager role"}
	}
	return &parsed, nil
}

func (s *departmentService) writeAudit(ctx context.Context, userID uuid.UUID, action string, dept *model.Department) error {
	details, _ := json.Marshal(map[string]string{"name": dept.Name})
	entry := &model.AuditLog{
		UserID:     &userID,
		Action:     action,
		EntityID:   dept.ID.String(),
		EntityName: dept.Name,
		Details:    string(details),
	}
	if err := s.audits.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func toDepartmentResponse(d *model.Department) *DepartmentResponse {
	resp := &DepartmentResponse{
		ID:        d.ID.String(),
		Name:      d.Name,
		CreatedAt: d.CreatedAt.Format(time.RFC3339),
	}
	if d.ManagerID != nil {
		resp.ManagerID = d.ManagerID.String()
	}
	if d.Manager != nil {
		resp.ManagerName = d.Manager.Username
	}
	return resp
}
