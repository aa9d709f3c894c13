package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	otpTTL          = 5 * time.Minute
	accessTokenTTL  = 24 * time.Hour
	refreshTokenTTL = 7 * 24 * time.Hour
)

// DTOs for Request validation
type CreateUserRequest struct {
	Username     string `json:"username" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=6"`
	Role         string `json:"role" binding:"required"`
	DepartmentID string `json:"department_id"`
}

type UpdateUserRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email" binding:"omitempty,email"`
	Role         string `json:"role"`
	DepartmentID string `json:"department_id"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type VerifyOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LoginChallengeResponse tells the client a one-time code was emailed.
type LoginChallengeResponse struct {
	OTPRequired bool   `json:"otp_required"`
	Email       string `json:"email"`
}

type TokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	DepartmentID string    `json:"department_id,omitempty"`
	CreatedAt    string    `json:"created_at"`
	UpdatedAt    string    `json:"updated_at"`
}

// UserService defines the interface for business logic related to User
type UserService interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*LoginChallengeResponse, error)
	VerifyOTP(ctx context.Context, req VerifyOTPRequest) (*TokenResponse, error)
	RefreshToken(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	GetUserByID(ctx context.Context, id string) (*UserResponse, error)
	ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error)
	DeleteUser(ctx context.Context, id string) error
}

type userService struct {
	users       repository.UserRepository
	departments repository.DepartmentRepository
	otps        repository.OTPRepository
	refresh     repository.RefreshTokenRepository
	notifier    Notifier
}

// NewUserService returns a new instance of UserService
func NewUserService(
	users repository.UserRepository,
	departments repository.DepartmentRepository,
	otps repository.OTPRepository,
	refresh repository.RefreshTokenRepository,
	notifier Notifier,
) UserService {
	return &userService{users: users, departments: departments, otps: otps, refresh: refresh, notifier: notifier}
}

// Helper: parse model to standard json API response
func mapToResponse(user *model.User) *UserResponse {
	resp := &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
	if user.DepartmentID != nil {
		resp.DepartmentID = user.DepartmentID.String()
	}
	return resp
}

func (s *userService) CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	role := model.NormalizeRole(req.Role)
	if !model.ValidRole(role) {
		return nil, &ValidationError{Reason: "invalid role: must be employee, manager, department_head, finance, or admin"}
	}

	var deptID *uuid.UUID
	if req.DepartmentID != "" {
		parsed, err := uuid.Parse(req.DepartmentID)
		if err != nil {
			return nil, &ValidationError{Reason: "invalid department_id"}
		}
		if _, err := s.departments.FindByID(ctx, parsed); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, notFound("department")
			}
			return nil, fmt.Errorf("failed to load department: %w", err)
		}
		deptID = &parsed
	}

	if _, err := s.users.GetByUsername(ctx, req.Username); err == nil {
		return nil, fmt.Errorf("username already exists: %w", ErrConflict)
	}
	if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
		return nil, fmt.Errorf("email already exists: %w", ErrConflict)
	}

	// Hash password automatically
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.New("failed to hash password")
	}

	user := &model.User{
		Username:     req.Username,
		Email:        req.Email,
		Password:     string(hashedPassword),
		Role:         role,
		DepartmentID: deptID,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	return mapToResponse(user), nil
}

// Login verifies the password and emails a one-time code. Tokens are issued
// only after VerifyOTP.
func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*LoginChallengeResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, errors.New("invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, errors.New("invalid email or password")
	}

	code, err := generateOTP()
	if err != nil {
		return nil, errors.New("failed to generate login code")
	}
	otp := &model.OTPCode{
		UserID:    user.ID,
		Code:      code,
		ExpiresAt: time.Now().Add(otpTTL),
	}
	if err := s.otps.Create(ctx, otp); err != nil {
		return nil, fmt.Errorf("failed to store login code: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Notify(user.Email,
			"Your login code",
			fmt.Sprintf("Your one-time login code is %s. It expires in %d minutes.", code, int(otpTTL.Minutes())),
			fmt.Sprintf("<p>Your one-time login code is <b>%s</b>. It expires in %d minutes.</p>", code, int(otpTTL.Minutes())),
		)
	}

	return &LoginChallengeResponse{OTPRequired: true, Email: user.Email}, nil
}

func (s *userService) VerifyOTP(ctx context.Context, req VerifyOTPRequest) (*TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, errors.New("invalid email or code")
	}

	otp, err := s.otps.FindValid(ctx, user.ID, req.Code)
	if err != nil {
		return nil, errors.New("invalid email or code")
	}
	if err := s.otps.Consume(ctx, otp.ID); err != nil {
		return nil, fmt.Errorf("failed to consume login code: %w", err)
	}

	return s.issueTokens(ctx, user)
}

func (s *userService) RefreshToken(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error) {
	stored, err := s.refresh.FindByToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, errors.New("invalid refresh token")
	}
	if time.Now().After(stored.ExpiresAt) {
		_ = s.refresh.DeleteByToken(ctx, req.RefreshToken)
		return nil, errors.New("refresh token expired")
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		return nil, errors.New("user not found")
	}

	// Rotate: old token is single use.
	if err := s.refresh.DeleteByToken(ctx, req.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	return s.issueTokens(ctx, user)
}

func (s *userService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.refresh.DeleteByToken(ctx, refreshToken)
}

func (s *userService) issueTokens(ctx context.Context, user *model.User) (*TokenResponse, error) {
	claims := jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.Role,
		"exp":  time.Now().Add(accessTokenTTL).Unix(),
	}
	if user.DepartmentID != nil {
		claims["dept"] = user.DepartmentID.String()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	// Use same fallback strategy as middleware for simplicity here or get from env centrally
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "default_super_secret_key"
	}
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return nil, errors.New("failed to generate token")
	}

	refreshValue, err := generateRefreshToken()
	if err != nil {
		return nil, errors.New("failed to generate refresh token")
	}
	refreshRecord := &model.RefreshToken{
		UserID:    user.ID,
		Token:     refreshValue,
		ExpiresAt: time.Now().Add(refreshTokenTTL),
	}
	if err := s.refresh.Create(ctx, refreshRecord); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &TokenResponse{Token: tokenString, RefreshToken: refreshValue}, nil
}

func (s *userService) GetUserByID(ctx context.Context, id string) (*UserResponse, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return nil, notFound("user")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound("user")
	}
	return mapToResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	users, total, err := s.users.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *mapToResponse(&users[i]))
	}
	return responses, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return nil, notFound("user")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound("user")
	}

	if req.Role != "" {
		role := model.NormalizeRole(req.Role)
		if !model.ValidRole(role) {
			return nil, &ValidationError{Reason: "invalid role: must be employee, manager, department_head, finance, or admin"}
		}
		user.Role = role
	}

	if req.Username != "" && req.Username != user.Username {
		if _, err := s.users.GetByUsername(ctx, req.Username); err == nil {
			return nil, fmt.Errorf("username already exists: %w", ErrConflict)
		}
		user.Username = req.Username
	}

	if req.Email != "" && req.Email != user.Email {
		if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
			return nil, fmt.Errorf("email already exists: %w", ErrConflict)
		}
		user.Email = req.Email
	}

	if req.DepartmentID != "" {
		parsed, err := uuid.Parse(req.DepartmentID)
		if err != nil {
			return nil, &ValidationError{Reason: "invalid department_id"}
		}
		if _, err := s.departments.FindByID(ctx, parsed); err != nil {
			return nil, notFound("department")
		}
		user.DepartmentID = &parsed
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return mapToResponse(user), nil
}

func (s *userService) DeleteUser(ctx context.Context, id string) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return notFound("user")
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return notFound("user")
	}
	// Revoke any live sessions along with the account.
	if err := s.refresh.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return s.users.Delete(ctx, userID)
}

// generateOTP returns a uniformly random 6-digit code.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func generateRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
