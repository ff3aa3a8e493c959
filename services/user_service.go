package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rentscore/models"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// UserService keeps the local mirror of identities issued by the identity service
type UserService struct {
	db        *gorm.DB
	validator *validator.Validate
}

// ProfileDTO is the part of the profile the user edits
type ProfileDTO struct {
	FirstName     string `json:"firstName" validate:"required,min=1,max=50"`
	LastName      string `json:"lastName" validate:"required,min=1,max=50"`
	Phone         string `json:"phone" validate:"max=30"`
	MonthlyIncome int64  `json:"monthlyIncome" validate:"gte=0"`
}

// UserResponse is the profile as returned to callers
type UserResponse struct {
	ID            uint            `json:"id"`
	FirstName     string          `json:"firstName"`
	LastName      string          `json:"lastName"`
	Email         string          `json:"email"`
	Phone         string          `json:"phone,omitempty"`
	Role          models.UserRole `json:"role"`
	MonthlyIncome int64           `json:"monthlyIncome"`
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db, validator: validator.New()}
}

// UpsertProfile creates or updates the caller's profile. Identity fields come
// from the verified token, the rest from dto.
func (s *UserService) UpsertProfile(ctx context.Context, userID uint, email string, role models.UserRole, dto ProfileDTO) (*UserResponse, error) {
	if err := s.validator.Struct(dto); err != nil {
		return nil, validationError(err)
	}
	if role == "" {
		role = models.UserRoleTenant
	}

	db := s.db.WithContext(ctx)
	user, err := s.getByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if other, err := s.FindByEmail(ctx, email); err == nil && other.ID != userID {
		return nil, fmt.Errorf("%w: e-mail is registered to another user", ErrConflict)
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if user == nil {
		user = &models.User{ID: userID}
	}
	user.Email = strings.ToLower(strings.TrimSpace(email))
	user.Role = role
	user.FirstName = strings.TrimSpace(dto.FirstName)
	user.LastName = strings.TrimSpace(dto.LastName)
	user.Phone = strings.TrimSpace(dto.Phone)
	user.MonthlyIncome = dto.MonthlyIncome

	if err := db.Save(user).Error; err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}

	resp := toUserResponse(*user)
	return &resp, nil
}

// GetProfile returns the user's profile
func (s *UserService) GetProfile(ctx context.Context, userID uint) (*UserResponse, error) {
	user, err := s.findByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp := toUserResponse(*user)
	return &resp, nil
}

// findByID returns ErrNotFound for unknown users
func (s *UserService) findByID(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.getByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return user, nil
}

// getByID returns nil for unknown users
func (s *UserService) getByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

// FindByEmail looks a user up by e-mail, ignoring case and surrounding spaces
func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("LOWER(TRIM(email)) = LOWER(TRIM(?))", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

func toUserResponse(u models.User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Email:         u.Email,
		Phone:         u.Phone,
		Role:          u.Role,
		MonthlyIncome: u.MonthlyIncome,
	}
}
