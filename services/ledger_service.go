package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"rentscore/models"
	"rentscore/utils"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// PaymentEvent is one merged rent period as seen by scoring and reports
type PaymentEvent struct {
	ID         uint                 `json:"id"`
	PropertyID uint                 `json:"propertyId"`
	Period     string               `json:"period"`
	Amount     int64                `json:"amount"`
	DueDate    time.Time            `json:"dueDate"`
	PaidDate   *time.Time           `json:"paidDate,omitempty"`
	Status     models.PaymentStatus `json:"status"`
	Verified   bool                 `json:"verified"`
	Source     models.PaymentSource `json:"source"`
}

// BankPaymentDTO is a payment reported by the bank connection
type BankPaymentDTO struct {
	TenantID   uint       `json:"tenantId" validate:"required"`
	PropertyID uint       `json:"propertyId" validate:"required"`
	DueDate    time.Time  `json:"dueDate" validate:"required"`
	PaidDate   *time.Time `json:"paidDate"`
	Amount     int64      `json:"amount" validate:"gt=0"`
	Reference  string     `json:"reference" validate:"max=100"`
}

// LogPaymentDTO is a payment entered by the tenant
type LogPaymentDTO struct {
	Period    string     `json:"period" validate:"required,len=7"`
	PaidDate  *time.Time `json:"paidDate"`
	Amount    int64      `json:"amount" validate:"gte=0"`
	Reference string     `json:"reference" validate:"max=100"`
}

// LedgerService reads and writes the payment ledger
type LedgerService struct {
	db        *gorm.DB
	validator *validator.Validate
	graceDays int
	now       func() time.Time
}

// NewLedgerService creates a ledger over db
func NewLedgerService(db *gorm.DB, graceDays int) *LedgerService {
	return &LedgerService{
		db:        db,
		validator: validator.New(),
		graceDays: graceDays,
		now:       time.Now,
	}
}

// WithClock replaces the clock used for status derivation
func (s *LedgerService) WithClock(now func() time.Time) *LedgerService {
	s.now = now
	return s
}

// LoadPaymentHistory returns the tenant's merged payment events in due date
// order, one per property and period. propertyID 0 reads every tenancy of the
// tenant. Records that fail integrity checks are logged and skipped. A
// tenancy month with no record is reported like a stored placeholder, and
// unpaid periods past their grace window are reported as missed.
func (s *LedgerService) LoadPaymentHistory(ctx context.Context, tenantID, propertyID uint) ([]PaymentEvent, error) {
	events, _, err := s.history(ctx, tenantID, propertyID)
	return events, err
}

// history is LoadPaymentHistory plus the number of skipped records
func (s *LedgerService) history(ctx context.Context, tenantID, propertyID uint) ([]PaymentEvent, int, error) {
	db := s.db.WithContext(ctx)

	if err := db.Select("id").First(&models.User{}, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, fmt.Errorf("tenant %d: %w", tenantID, ErrNotFound)
		}
		return nil, 0, fmt.Errorf("failed to load tenant: %w", err)
	}

	query := db.Where("tenant_id = ?", tenantID)
	if propertyID != 0 {
		query = query.Where("property_id = ?", propertyID)
	}
	var tenancies []models.Tenancy
	if err := query.Preload("Property").Find(&tenancies).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to load tenancies: %w", err)
	}
	if propertyID != 0 && len(tenancies) == 0 {
		return nil, 0, fmt.Errorf("property %d: %w", propertyID, ErrNotFound)
	}
	if len(tenancies) == 0 {
		return []PaymentEvent{}, 0, nil
	}

	starts := make(map[uint]time.Time, len(tenancies))
	propertyIDs := make([]uint, 0, len(tenancies))
	for _, t := range tenancies {
		starts[t.PropertyID] = t.StartDate
		propertyIDs = append(propertyIDs, t.PropertyID)
	}

	var records []models.Payment
	if err := db.Where("tenant_id = ? AND property_id IN ?", tenantID, propertyIDs).
		Order("due_date, id").
		Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to load payments: %w", err)
	}

	events, issues := mergeLedger(records, starts)
	for _, issue := range issues {
		utils.LogError("ledger: skipping record for tenant %d: %v", tenantID, issue)
	}
	now := s.now()
	events = withScheduledPeriods(events, tenancies, now)
	for i := range events {
		events[i].Status = s.currentStatus(events[i].Status, events[i].DueDate, events[i].PaidDate, now)
	}
	return events, len(issues), nil
}

// currentStatus resolves a stored pending period once its grace has passed
func (s *LedgerService) currentStatus(stored models.PaymentStatus, dueDate time.Time, paidDate *time.Time, now time.Time) models.PaymentStatus {
	if stored != models.PaymentStatusPending {
		return stored
	}
	return DeriveStatus(dueDate, paidDate, now, s.graceDays)
}

// periodKey identifies one rent period of one property
type periodKey struct {
	propertyID uint
	period     string
}

// withScheduledPeriods adds a placeholder for every scheduled tenancy month up
// to now that has no event, so an unlogged month is a gap rather than absent
func withScheduledPeriods(events []PaymentEvent, tenancies []models.Tenancy, now time.Time) []PaymentEvent {
	seen := make(map[periodKey]bool, len(events))
	for _, e := range events {
		seen[periodKey{e.PropertyID, e.Period}] = true
	}

	added := false
	for _, t := range tenancies {
		for _, p := range generateRentSchedule(t, t.Property, now) {
			if seen[periodKey{p.PropertyID, p.Period}] {
				continue
			}
			events = append(events, toPaymentEvent(p))
			added = true
		}
	}
	if added {
		sortLedger(events)
	}
	return events
}

// mergeLedger validates records and keeps one event per property and period.
// A bank record beats a manual one; among records of the same source the
// lowest id wins.
func mergeLedger(records []models.Payment, tenancyStart map[uint]time.Time) ([]PaymentEvent, []*DataIntegrityError) {
	var issues []*DataIntegrityError
	chosen := make(map[periodKey]models.Payment)

	for _, r := range records {
		if issue := checkRecord(r, tenancyStart); issue != nil {
			issues = append(issues, issue)
			continue
		}
		key := periodKey{r.PropertyID, r.Period}
		current, ok := chosen[key]
		if !ok || precedes(r, current) {
			chosen[key] = r
		}
	}

	events := make([]PaymentEvent, 0, len(chosen))
	for _, r := range chosen {
		events = append(events, toPaymentEvent(r))
	}
	sortLedger(events)
	return events, issues
}

// sortLedger orders events by due date, then property, then id
func sortLedger(events []PaymentEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].DueDate.Equal(events[j].DueDate) {
			return events[i].DueDate.Before(events[j].DueDate)
		}
		if events[i].PropertyID != events[j].PropertyID {
			return events[i].PropertyID < events[j].PropertyID
		}
		return events[i].ID < events[j].ID
	})
}

// precedes reports whether a should replace b for the same period
func precedes(a, b models.Payment) bool {
	if a.Source != b.Source {
		return a.Source == models.PaymentSourceBank
	}
	return a.ID < b.ID
}

func checkRecord(r models.Payment, tenancyStart map[uint]time.Time) *DataIntegrityError {
	switch {
	case r.DueDate.IsZero():
		return &DataIntegrityError{PaymentID: r.ID, Reason: "missing due date"}
	case r.Period != r.DueDate.UTC().Format(models.PeriodLayout):
		return &DataIntegrityError{PaymentID: r.ID, Reason: fmt.Sprintf("period %q does not match due date %s", r.Period, r.DueDate.Format(time.DateOnly))}
	case !r.Status.Valid():
		return &DataIntegrityError{PaymentID: r.ID, Reason: fmt.Sprintf("unknown status %q", r.Status)}
	case r.Source != models.PaymentSourceBank && r.Source != models.PaymentSourceManual:
		return &DataIntegrityError{PaymentID: r.ID, Reason: fmt.Sprintf("unknown source %q", r.Source)}
	case (r.Status == models.PaymentStatusPaid || r.Status == models.PaymentStatusLate) && r.PaidDate == nil:
		return &DataIntegrityError{PaymentID: r.ID, Reason: "settled without a paid date"}
	}
	if start, ok := tenancyStart[r.PropertyID]; ok && r.PaidDate != nil && calendarDay(*r.PaidDate).Before(calendarDay(start)) {
		return &DataIntegrityError{PaymentID: r.ID, Reason: "paid before tenancy start"}
	}
	return nil
}

func toPaymentEvent(r models.Payment) PaymentEvent {
	return PaymentEvent{
		ID:         r.ID,
		PropertyID: r.PropertyID,
		Period:     r.Period,
		Amount:     r.Amount,
		DueDate:    r.DueDate,
		PaidDate:   r.PaidDate,
		Status:     r.Status,
		Verified:   r.Verified || r.Source == models.PaymentSourceBank,
		Source:     r.Source,
	}
}

// DeriveStatus classifies a period from its dates. Without a paid date the
// period stays pending until the grace window has passed.
func DeriveStatus(dueDate time.Time, paidDate *time.Time, now time.Time, graceDays int) models.PaymentStatus {
	deadline := calendarDay(dueDate).AddDate(0, 0, graceDays)
	if paidDate == nil {
		if calendarDay(now).After(deadline) {
			return models.PaymentStatusMissed
		}
		return models.PaymentStatusPending
	}
	if calendarDay(*paidDate).After(deadline) {
		return models.PaymentStatusLate
	}
	return models.PaymentStatusPaid
}

// IngestBankPayment stores the bank record for a period. The manual record of
// the same period, if any, is marked superseded and kept.
func (s *LedgerService) IngestBankPayment(ctx context.Context, dto BankPaymentDTO) (*PaymentEvent, error) {
	if err := s.validator.Struct(dto); err != nil {
		return nil, validationError(err)
	}

	tenancy, err := s.tenancy(ctx, dto.TenantID, dto.PropertyID)
	if err != nil {
		return nil, err
	}
	if dto.PaidDate != nil && calendarDay(*dto.PaidDate).Before(calendarDay(tenancy.StartDate)) {
		return nil, fmt.Errorf("%w: paid date is before the tenancy start", ErrValidation)
	}

	dueDate := calendarDay(dto.DueDate)
	period := dueDate.Format(models.PeriodLayout)
	status := DeriveStatus(dueDate, dto.PaidDate, s.now(), s.graceDays)

	var stored models.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("property_id = ? AND period = ? AND source = ?", dto.PropertyID, period, models.PaymentSourceBank).
			First(&stored).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			stored = models.Payment{
				TenantID:   dto.TenantID,
				PropertyID: dto.PropertyID,
				Period:     period,
				Source:     models.PaymentSourceBank,
			}
		case err != nil:
			return err
		}

		stored.Amount = dto.Amount
		stored.DueDate = dueDate
		stored.PaidDate = dto.PaidDate
		stored.Status = status
		stored.Verified = true
		stored.Reference = dto.Reference
		if err := tx.Save(&stored).Error; err != nil {
			return err
		}

		return tx.Model(&models.Payment{}).
			Where("property_id = ? AND period = ? AND source = ?", dto.PropertyID, period, models.PaymentSourceManual).
			Updates(map[string]interface{}{"superseded": true, "superseded_by_id": stored.ID}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store bank payment: %w", err)
	}

	utils.LogInfo("bank payment stored: tenant=%d property=%d period=%s status=%s", dto.TenantID, dto.PropertyID, period, status)
	event := toPaymentEvent(stored)
	return &event, nil
}

// LogManualPayment records a tenant-entered payment. A period already backed
// by a bank record or a verified manual record cannot be overwritten.
func (s *LedgerService) LogManualPayment(ctx context.Context, tenantID, propertyID uint, dto LogPaymentDTO) (*PaymentEvent, error) {
	if err := s.validator.Struct(dto); err != nil {
		return nil, validationError(err)
	}

	month, err := time.Parse(models.PeriodLayout, dto.Period)
	if err != nil {
		return nil, fmt.Errorf("%w: period must be YYYY-MM", ErrValidation)
	}

	tenancy, err := s.tenancy(ctx, tenantID, propertyID)
	if err != nil {
		return nil, err
	}
	if month.Before(firstOfMonth(tenancy.StartDate)) {
		return nil, fmt.Errorf("%w: period is before the tenancy start", ErrValidation)
	}
	if dto.PaidDate != nil && calendarDay(*dto.PaidDate).Before(calendarDay(tenancy.StartDate)) {
		return nil, fmt.Errorf("%w: paid date is before the tenancy start", ErrValidation)
	}

	dueDate := dueDateFor(month, tenancy.Property.RentDueDay)
	amount := dto.Amount
	if amount == 0 {
		amount = tenancy.Property.MonthlyRent
	}
	status := DeriveStatus(dueDate, dto.PaidDate, s.now(), s.graceDays)

	var stored models.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bankCount int64
		if err := tx.Model(&models.Payment{}).
			Where("property_id = ? AND period = ? AND source = ?", propertyID, dto.Period, models.PaymentSourceBank).
			Count(&bankCount).Error; err != nil {
			return err
		}
		if bankCount > 0 {
			return fmt.Errorf("%w: period %s is already confirmed by the bank", ErrConflict, dto.Period)
		}

		err := tx.Where("property_id = ? AND period = ? AND source = ?", propertyID, dto.Period, models.PaymentSourceManual).
			First(&stored).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			stored = models.Payment{
				TenantID:   tenantID,
				PropertyID: propertyID,
				Period:     dto.Period,
				Source:     models.PaymentSourceManual,
			}
		case err != nil:
			return err
		case stored.Verified:
			return fmt.Errorf("%w: period %s is already verified", ErrConflict, dto.Period)
		}

		stored.Amount = amount
		stored.DueDate = dueDate
		stored.PaidDate = dto.PaidDate
		stored.Status = status
		stored.Reference = dto.Reference
		return tx.Save(&stored).Error
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to store payment: %w", err)
	}

	event := toPaymentEvent(stored)
	return &event, nil
}

// VerifyPayment marks a payment as confirmed by the property's landlord
func (s *LedgerService) VerifyPayment(ctx context.Context, landlordID, paymentID uint) (*PaymentEvent, error) {
	db := s.db.WithContext(ctx)

	var payment models.Payment
	if err := db.First(&payment, paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("payment %d: %w", paymentID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}

	var property models.Property
	if err := db.First(&property, payment.PropertyID).Error; err != nil {
		return nil, fmt.Errorf("failed to load property: %w", err)
	}
	var landlord models.User
	if err := db.First(&landlord, landlordID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("landlord %d: %w", landlordID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load landlord: %w", err)
	}
	if !landlordOwns(property, landlord) {
		return nil, ErrForbidden
	}
	payment.Status = s.currentStatus(payment.Status, payment.DueDate, payment.PaidDate, s.now())
	if payment.Status == models.PaymentStatusPending {
		return nil, fmt.Errorf("%w: period %s is not resolved yet", ErrValidation, payment.Period)
	}

	if err := db.Model(&payment).Updates(map[string]interface{}{
		"verified":       true,
		"verified_by_id": landlordID,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to verify payment: %w", err)
	}
	payment.Verified = true
	payment.VerifiedByID = &landlordID

	event := toPaymentEvent(payment)
	return &event, nil
}

func (s *LedgerService) tenancy(ctx context.Context, tenantID, propertyID uint) (*models.Tenancy, error) {
	var tenancy models.Tenancy
	err := s.db.WithContext(ctx).
		Preload("Property").
		Where("tenant_id = ? AND property_id = ?", tenantID, propertyID).
		First(&tenancy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("property %d: %w", propertyID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load tenancy: %w", err)
	}
	return &tenancy, nil
}

func firstOfMonth(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// dueDateFor returns the rent due date inside month
func dueDateFor(month time.Time, dueDay int) time.Time {
	if dueDay < 1 || dueDay > 28 {
		dueDay = 1
	}
	return firstOfMonth(month).AddDate(0, 0, dueDay-1)
}
