package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rentscore/models"
	"rentscore/utils"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RegisterPropertyDTO registers a rented property and the caller's tenancy
type RegisterPropertyDTO struct {
	AddressLine1  string     `json:"addressLine1" validate:"required,max=120"`
	AddressLine2  string     `json:"addressLine2" validate:"max=120"`
	City          string     `json:"city" validate:"required,max=80"`
	Postcode      string     `json:"postcode" validate:"required,max=10"`
	MonthlyRent   int64      `json:"monthlyRent" validate:"gt=0"`
	RentDueDay    int        `json:"rentDueDay" validate:"min=1,max=28"`
	LandlordName  string     `json:"landlordName" validate:"max=100"`
	LandlordEmail string     `json:"landlordEmail" validate:"omitempty,email,max=100"`
	StartDate     time.Time  `json:"startDate" validate:"required"`
	EndDate       *time.Time `json:"endDate"`
}

// TenancyDTO is a tenancy with its property as returned to callers
type TenancyDTO struct {
	ID                 uint                 `json:"id"`
	TenantID           uint                 `json:"tenantId"`
	PropertyID         uint                 `json:"propertyId"`
	Address            string               `json:"address"`
	City               string               `json:"city"`
	Postcode           string               `json:"postcode"`
	MonthlyRent        int64                `json:"monthlyRent"`
	RentDueDay         int                  `json:"rentDueDay"`
	LandlordName       string               `json:"landlordName,omitempty"`
	LandlordEmail      string               `json:"landlordEmail,omitempty"`
	StartDate          time.Time            `json:"startDate"`
	EndDate            *time.Time           `json:"endDate,omitempty"`
	VerificationStatus models.TenancyStatus `json:"verificationStatus"`
	VerifiedAt         *time.Time           `json:"verifiedAt,omitempty"`
}

// PropertyService manages properties, tenancies and their rent schedules
type PropertyService struct {
	db        *gorm.DB
	validator *validator.Validate
	now       func() time.Time
}

// NewPropertyService creates a property service over db
func NewPropertyService(db *gorm.DB) *PropertyService {
	return &PropertyService{
		db:        db,
		validator: validator.New(),
		now:       time.Now,
	}
}

// WithClock replaces the clock used for schedule generation
func (s *PropertyService) WithClock(now func() time.Time) *PropertyService {
	s.now = now
	return s
}

// RegisterProperty stores the property and tenancy and creates the pending
// rent periods from the tenancy start up to the current month
func (s *PropertyService) RegisterProperty(ctx context.Context, tenantID uint, dto RegisterPropertyDTO) (*TenancyDTO, error) {
	if err := s.validator.Struct(dto); err != nil {
		return nil, validationError(err)
	}
	if dto.EndDate != nil && dto.EndDate.Before(dto.StartDate) {
		return nil, fmt.Errorf("%w: end date is before start date", ErrValidation)
	}

	db := s.db.WithContext(ctx)
	if err := db.Select("id").First(&models.User{}, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("tenant %d: %w", tenantID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}

	property := models.Property{
		AddressLine1:  strings.TrimSpace(dto.AddressLine1),
		AddressLine2:  strings.TrimSpace(dto.AddressLine2),
		City:          strings.TrimSpace(dto.City),
		Postcode:      strings.ToUpper(strings.TrimSpace(dto.Postcode)),
		MonthlyRent:   dto.MonthlyRent,
		RentDueDay:    dto.RentDueDay,
		LandlordName:  strings.TrimSpace(dto.LandlordName),
		LandlordEmail: strings.ToLower(strings.TrimSpace(dto.LandlordEmail)),
	}
	if property.LandlordEmail != "" {
		var landlord models.User
		err := db.Where("LOWER(email) = ? AND role = ?", property.LandlordEmail, models.UserRoleLandlord).First(&landlord).Error
		if err == nil {
			property.LandlordID = &landlord.ID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to look up landlord: %w", err)
		}
	}

	tenancy := models.Tenancy{
		TenantID:           tenantID,
		StartDate:          calendarDay(dto.StartDate),
		EndDate:            dto.EndDate,
		VerificationStatus: models.TenancyStatusPending,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&property).Error; err != nil {
			return err
		}
		tenancy.PropertyID = property.ID
		if err := tx.Omit(clause.Associations).Create(&tenancy).Error; err != nil {
			return err
		}

		schedule := generateRentSchedule(tenancy, property, s.now())
		if len(schedule) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&schedule).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register property: %w", err)
	}

	utils.LogInfo("property %d registered for tenant %d", property.ID, tenantID)
	tenancy.Property = property
	dtoOut := toTenancyDTO(tenancy)
	return &dtoOut, nil
}

// generateRentSchedule builds one pending manual period per month from the
// tenancy start through the month of now. Months whose due date falls before
// the start or after the end of the tenancy are left out.
func generateRentSchedule(tenancy models.Tenancy, property models.Property, now time.Time) []models.Payment {
	var payments []models.Payment
	start := calendarDay(tenancy.StartDate)
	last := firstOfMonth(now)

	for month := firstOfMonth(start); !month.After(last); month = month.AddDate(0, 1, 0) {
		dueDate := dueDateFor(month, property.RentDueDay)
		if dueDate.Before(start) {
			continue
		}
		if tenancy.EndDate != nil && dueDate.After(calendarDay(*tenancy.EndDate)) {
			break
		}
		payments = append(payments, models.Payment{
			TenantID:   tenancy.TenantID,
			PropertyID: property.ID,
			Period:     dueDate.Format(models.PeriodLayout),
			Source:     models.PaymentSourceManual,
			Amount:     property.MonthlyRent,
			DueDate:    dueDate,
			Status:     models.PaymentStatusPending,
		})
	}
	return payments
}

// ListTenancies returns the tenant's tenancies, oldest first
func (s *PropertyService) ListTenancies(ctx context.Context, tenantID uint) ([]TenancyDTO, error) {
	var tenancies []models.Tenancy
	if err := s.db.WithContext(ctx).
		Preload("Property").
		Where("tenant_id = ?", tenantID).
		Order("start_date, id").
		Find(&tenancies).Error; err != nil {
		return nil, fmt.Errorf("failed to load tenancies: %w", err)
	}

	out := make([]TenancyDTO, 0, len(tenancies))
	for _, t := range tenancies {
		out = append(out, toTenancyDTO(t))
	}
	return out, nil
}

// ListLandlordTenancies returns the tenancies of properties naming the landlord
func (s *PropertyService) ListLandlordTenancies(ctx context.Context, landlordID uint) ([]TenancyDTO, error) {
	landlord, err := s.landlord(ctx, landlordID)
	if err != nil {
		return nil, err
	}

	var tenancies []models.Tenancy
	if err := s.db.WithContext(ctx).
		Joins("Property").
		Where(`"Property"."landlord_id" = ? OR LOWER("Property"."landlord_email") = ?`, landlord.ID, strings.ToLower(landlord.Email)).
		Order("tenancies.start_date, tenancies.id").
		Find(&tenancies).Error; err != nil {
		return nil, fmt.Errorf("failed to load tenancies: %w", err)
	}

	out := make([]TenancyDTO, 0, len(tenancies))
	for _, t := range tenancies {
		out = append(out, toTenancyDTO(t))
	}
	return out, nil
}

// VerifyTenancy records the landlord's decision on a tenancy
func (s *PropertyService) VerifyTenancy(ctx context.Context, landlordID, tenancyID uint, approve bool) (*TenancyDTO, error) {
	landlord, err := s.landlord(ctx, landlordID)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var tenancy models.Tenancy
	if err := db.Preload("Property").First(&tenancy, tenancyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("tenancy %d: %w", tenancyID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load tenancy: %w", err)
	}
	if !landlordOwns(tenancy.Property, *landlord) {
		return nil, ErrForbidden
	}

	status := models.TenancyStatusRejected
	if approve {
		status = models.TenancyStatusVerified
	}
	now := s.now().UTC()
	if err := db.Model(&models.Tenancy{}).Where("id = ?", tenancy.ID).Updates(map[string]interface{}{
		"verification_status": status,
		"verified_at":         now,
		"verified_by_id":      landlord.ID,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to update tenancy: %w", err)
	}

	if tenancy.Property.LandlordID == nil {
		if err := db.Model(&models.Property{}).Where("id = ?", tenancy.PropertyID).
			Update("landlord_id", landlord.ID).Error; err != nil {
			return nil, fmt.Errorf("failed to link landlord: %w", err)
		}
		tenancy.Property.LandlordID = &landlord.ID
	}

	tenancy.VerificationStatus = status
	tenancy.VerifiedAt = &now
	tenancy.VerifiedByID = &landlord.ID
	utils.LogInfo("tenancy %d set to %s by landlord %d", tenancy.ID, status, landlord.ID)

	out := toTenancyDTO(tenancy)
	return &out, nil
}

func (s *PropertyService) landlord(ctx context.Context, landlordID uint) (*models.User, error) {
	var landlord models.User
	if err := s.db.WithContext(ctx).First(&landlord, landlordID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("landlord %d: %w", landlordID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load landlord: %w", err)
	}
	if landlord.Role != models.UserRoleLandlord {
		return nil, ErrForbidden
	}
	return &landlord, nil
}

// landlordOwns matches a landlord to a property by link or by e-mail
func landlordOwns(p models.Property, landlord models.User) bool {
	if landlord.Role != models.UserRoleLandlord {
		return false
	}
	if p.LandlordID != nil && *p.LandlordID == landlord.ID {
		return true
	}
	return p.LandlordEmail != "" && strings.EqualFold(strings.TrimSpace(p.LandlordEmail), strings.TrimSpace(landlord.Email))
}

func toTenancyDTO(t models.Tenancy) TenancyDTO {
	return TenancyDTO{
		ID:                 t.ID,
		TenantID:           t.TenantID,
		PropertyID:         t.PropertyID,
		Address:            t.Property.Address(),
		City:               t.Property.City,
		Postcode:           t.Property.Postcode,
		MonthlyRent:        t.Property.MonthlyRent,
		RentDueDay:         t.Property.RentDueDay,
		LandlordName:       t.Property.LandlordName,
		LandlordEmail:      t.Property.LandlordEmail,
		StartDate:          t.StartDate,
		EndDate:            t.EndDate,
		VerificationStatus: t.VerificationStatus,
		VerifiedAt:         t.VerifiedAt,
	}
}
