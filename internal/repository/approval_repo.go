package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ApprovalRepository is append-only: approval rows are an immutable audit
// trail and are never updated or deleted by normal flow.
type ApprovalRepository interface {
	Create(ctx context.Context, approval *model.Approval) error
	ListByRequest(ctx context.Context, requestID uuid.UUID, page, limit int) ([]model.Approval, int64, error)
}

type approvalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) Create(ctx context.Context, approval *model.Approval) error {
	return GetDB(ctx, r.db).Create(approval).Error
}

func (r *approvalRepository) ListByRequest(ctx context.Context, requestID uuid.UUID, page, limit int) ([]model.Approval, int64, error) {
	db := GetDB(ctx, r.db)

	var total int64
	if err := db.Model(&model.Approval{}).Where("request_id = ?", requestID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	var approvals []model.Approval
	if err := db.Preload("Approver").
		Where("request_id = ?", requestID).
		Order("decided_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&approvals).Error; err != nil {
		return nil, 0, err
	}

	return approvals, total, nil
}
