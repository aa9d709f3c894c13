package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RequestFilter narrows List/Count queries. Zero-value fields are ignored.
type RequestFilter struct {
	Status       string
	DepartmentID *uuid.UUID
	UserID       *uuid.UUID
	Priority     string
	// ExcludeOwnerRole drops requests whose owner has the given role. Used by
	// the manager pending queue, where peer-manager requests never appear.
	ExcludeOwnerRole string
}

type RequestRepository interface {
	Create(ctx context.Context, req *model.ResourceRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ResourceRequest, error)
	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ResourceRequest, error)
	// FindByIDForUpdate locks the row for the duration of the surrounding
	// transaction so concurrent approvals serialize on the fresh status.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ResourceRequest, error)
	List(ctx context.Context, filter RequestFilter, page, limit int) ([]model.ResourceRequest, int64, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	// UpdateStatus performs a conditional write: the status changes to `to`
	// only if the persisted status is still one of `from`. Returns false when
	// the row was concurrently moved to another status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from []string, to string) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type requestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, req *model.ResourceRequest) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *requestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ResourceRequest, error) {
	var req model.ResourceRequest
	if err := GetDB(ctx, r.db).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ResourceRequest, error) {
	var req model.ResourceRequest
	if err := GetDB(ctx, r.db).Preload("User").Preload("Department").First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ResourceRequest, error) {
	var req model.ResourceRequest
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) applyFilter(db *gorm.DB, filter RequestFilter) *gorm.DB {
	query := db.Model(&model.ResourceRequest{})
	if filter.Status != "" {
		query = query.Where("resource_requests.status = ?", filter.Status)
	}
	if filter.DepartmentID != nil {
		query = query.Where("resource_requests.department_id = ?", *filter.DepartmentID)
	}
	if filter.UserID != nil {
		query = query.Where("resource_requests.user_id = ?", *filter.UserID)
	}
	if filter.Priority != "" {
		query = query.Where("resource_requests.priority = ?", filter.Priority)
	}
	if filter.ExcludeOwnerRole != "" {
		query = query.Joins("JOIN users ON users.id = resource_requests.user_id").
			Where("users.role <> ?", filter.ExcludeOwnerRole)
	}
	return query
}

func (r *requestRepository) List(ctx context.Context, filter RequestFilter, page, limit int) ([]model.ResourceRequest, int64, error) {
	db := GetDB(ctx, r.db)

	var total int64
	if err := r.applyFilter(db, filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	var requests []model.ResourceRequest
	if err := r.applyFilter(db, filter).
		Preload("User").
		Preload("Department").
		Order("resource_requests.created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&requests).Error; err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

func (r *requestRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	return GetDB(ctx, r.db).Model(&model.ResourceRequest{}).Where("id = ?", id).Updates(fields).Error
}

func (r *requestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from []string, to string) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.ResourceRequest{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *requestRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.ResourceRequest{}).Error
}
