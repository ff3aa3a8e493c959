package services

import (
	"context"
	"fmt"
	"time"

	"rentscore/models"
	"rentscore/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentSchedulerService keeps every active tenancy's rent schedule rolled
// forward to the current month. It only adds pending placeholders and never
// changes the status of an existing period.
type PaymentSchedulerService struct {
	db       *gorm.DB
	interval time.Duration
	now      func() time.Time
}

// NewPaymentSchedulerService creates a scheduler that runs every interval
func NewPaymentSchedulerService(db *gorm.DB, interval time.Duration) *PaymentSchedulerService {
	return &PaymentSchedulerService{
		db:       db,
		interval: interval,
		now:      time.Now,
	}
}

// WithClock replaces the scheduler clock
func (s *PaymentSchedulerService) WithClock(now func() time.Time) *PaymentSchedulerService {
	s.now = now
	return s
}

// Start runs the roller once and then on every tick until ctx is done
func (s *PaymentSchedulerService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			if created, err := s.RollSchedules(ctx); err != nil {
				utils.LogError("failed to roll rent schedules: %v", err)
			} else if created > 0 {
				utils.LogInfo("rent schedules rolled: %d new periods", created)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// RollSchedules adds the current month's placeholder to every active tenancy
// that has no record for it yet. It returns how many periods were created.
func (s *PaymentSchedulerService) RollSchedules(ctx context.Context) (int, error) {
	now := s.now()
	db := s.db.WithContext(ctx)

	var tenancies []models.Tenancy
	if err := db.Preload("Property").Find(&tenancies).Error; err != nil {
		return 0, fmt.Errorf("failed to load tenancies: %w", err)
	}

	created := 0
	for _, t := range tenancies {
		if !t.ActiveAt(now) {
			continue
		}
		dueDate := dueDateFor(firstOfMonth(now), t.Property.RentDueDay)
		if dueDate.Before(calendarDay(t.StartDate)) {
			continue
		}
		period := dueDate.Format(models.PeriodLayout)

		var existing int64
		if err := db.Model(&models.Payment{}).
			Where("property_id = ? AND period = ?", t.PropertyID, period).
			Count(&existing).Error; err != nil {
			return created, fmt.Errorf("failed to check period %s of property %d: %w", period, t.PropertyID, err)
		}
		if existing > 0 {
			continue
		}

		placeholder := models.Payment{
			TenantID:   t.TenantID,
			PropertyID: t.PropertyID,
			Period:     period,
			Source:     models.PaymentSourceManual,
			Amount:     t.Property.MonthlyRent,
			DueDate:    dueDate,
			Status:     models.PaymentStatusPending,
		}
		result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&placeholder)
		if result.Error != nil {
			return created, fmt.Errorf("failed to create period %s of property %d: %w", period, t.PropertyID, result.Error)
		}
		created += int(result.RowsAffected)
	}

	return created, nil
}
