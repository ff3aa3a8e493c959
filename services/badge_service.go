package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rentscore/models"
	"rentscore/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BadgeService persists earned badges. Each badge type is stored at most once
// per tenant; a writer that loses the insert race gets a silent no-op.
type BadgeService struct {
	db        *gorm.DB
	catalog   BadgeCatalog
	locker    TenantLocker
	publisher EventPublisher
}

// NewBadgeService creates a badge service. A nil locker falls back to an
// in-process one.
func NewBadgeService(db *gorm.DB, catalog BadgeCatalog, locker TenantLocker, publisher EventPublisher) *BadgeService {
	if locker == nil {
		locker = NewLocalTenantLocker()
	}
	return &BadgeService{
		db:        db,
		catalog:   catalog,
		locker:    locker,
		publisher: publisher,
	}
}

// Catalog returns the badge table in use
func (s *BadgeService) Catalog() BadgeCatalog {
	return s.catalog
}

// ListBadges returns the tenant's badges in the order they were earned
func (s *BadgeService) ListBadges(ctx context.Context, tenantID uint) ([]Badge, error) {
	var rows []models.TenantBadge
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("earned_at, id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load badges: %w", err)
	}

	badges := make([]Badge, 0, len(rows))
	for _, row := range rows {
		badges = append(badges, toBadge(row))
	}
	return badges, nil
}

// Award stores the badges the history newly qualifies for and returns the
// ones this call inserted
func (s *BadgeService) Award(ctx context.Context, tenantID uint, metrics Metrics, history []PaymentEvent, opts ScoringOptions) ([]Badge, error) {
	unlock, err := s.locker.Lock(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock tenant %d: %w", tenantID, err)
	}
	defer unlock()

	prior, err := s.ListBadges(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	candidates := EvaluateBadges(s.catalog, prior, metrics, history, opts)
	if len(candidates) == 0 {
		return []Badge{}, nil
	}

	awarded := make([]Badge, 0, len(candidates))
	for _, badge := range candidates {
		stored, err := s.insert(ctx, tenantID, badge)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				utils.LogInfo("badge %s for tenant %d already issued by a concurrent writer", badge.BadgeType, tenantID)
				utils.GetMetrics().RecordBadge(true)
				continue
			}
			return awarded, err
		}
		utils.GetMetrics().RecordBadge(false)
		awarded = append(awarded, stored)
	}

	if len(awarded) > 0 {
		s.announce(ctx, tenantID, awarded)
	}
	return awarded, nil
}

// insert writes one badge row. ErrConflict means the row already exists.
func (s *BadgeService) insert(ctx context.Context, tenantID uint, badge Badge) (Badge, error) {
	row := models.TenantBadge{
		TenantID:    tenantID,
		BadgeType:   string(badge.BadgeType),
		Title:       badge.Title,
		Description: badge.Description,
		IconName:    string(badge.IconName),
		EarnedAt:    badge.EarnedAt,
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "badge_type"}},
			DoNothing: true,
		}).
		Create(&row)
	if result.Error != nil {
		return Badge{}, fmt.Errorf("failed to store badge %s: %w", badge.BadgeType, result.Error)
	}
	if result.RowsAffected == 0 {
		return Badge{}, ErrConflict
	}
	return toBadge(row), nil
}

func (s *BadgeService) announce(ctx context.Context, tenantID uint, awarded []Badge) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, tenantID).Error; err != nil {
		utils.LogError("badge events for tenant %d: failed to load user: %v", tenantID, err)
	}
	for _, b := range awarded {
		publishEvent(ctx, s.publisher, EventBadgeEarned, tenantID, BadgeEarnedEvent{
			TenantID:  tenantID,
			Email:     user.Email,
			Name:      user.FullName(),
			BadgeType: b.BadgeType,
			Title:     b.Title,
			EarnedAt:  b.EarnedAt,
		})
	}
}

func toBadge(row models.TenantBadge) Badge {
	return Badge{
		ID:          row.ID,
		BadgeType:   BadgeType(row.BadgeType),
		Title:       row.Title,
		Description: row.Description,
		EarnedAt:    row.EarnedAt.UTC().Truncate(time.Second),
		IconName:    IconFor(BadgeType(row.BadgeType)),
	}
}
