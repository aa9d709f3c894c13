package repository

import (
	"context"
	"time"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OTPRepository stores one-time login codes. Codes are matched only while
// unconsumed and unexpired, and consumed exactly once.
type OTPRepository interface {
	Create(ctx context.Context, otp *model.OTPCode) error
	FindValid(ctx context.Context, userID uuid.UUID, code string) (*model.OTPCode, error)
	Consume(ctx context.Context, id uuid.UUID) error
}

type otpRepository struct {
	db *gorm.DB
}

func NewOTPRepository(db *gorm.DB) OTPRepository {
	return &otpRepository{db: db}
}

func (r *otpRepository) Create(ctx context.Context, otp *model.OTPCode) error {
	return GetDB(ctx, r.db).Create(otp).Error
}

func (r *otpRepository) FindValid(ctx context.Context, userID uuid.UUID, code string) (*model.OTPCode, error) {
	var otp model.OTPCode
	err := GetDB(ctx, r.db).
		Where("user_id = ? AND code = ? AND consumed_at IS NULL AND expires_at > ?", userID, code, time.Now()).
		First(&otp).Error
	if err != nil {
		return nil, err
	}
	return &otp, nil
}

func (r *otpRepository) Consume(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	return GetDB(ctx, r.db).Model(&model.OTPCode{}).Where("id = ?", id).Update("consumed_at", &now).Error
}

// RefreshTokenRepository manages long-lived refresh tokens.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	FindByToken(ctx context.Context, token string) (*model.RefreshToken, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
}

type refreshTokenRepository struct {
	db *gorm.DB
}

func NewRefreshTokenRepository(db *gorm.DB) RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

func (r *refreshTokenRepository) Create(ctx context.Context, token *model.RefreshToken) error {
	return GetDB(ctx, r.db).Create(token).Error
}

func (r *refreshTokenRepository) FindByToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	var rt model.RefreshToken
	if err := GetDB(ctx, r.db).First(&rt, "token = ?", token).Error; err != nil {
		return nil, err
	}
	return &rt, nil
}

func (r *refreshTokenRepository) DeleteByToken(ctx context.Context, token string) error {
	return GetDB(ctx, r.db).Where("token = ?", token).Delete(&model.RefreshToken{}).Error
}

func (r *refreshTokenRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	return GetDB(ctx, r.db).Where("user_id = ?", userID).Delete(&model.RefreshToken{}).Error
}
