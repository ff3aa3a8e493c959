package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rentscore/models"
	"rentscore/utils"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// VerificationStatus summarises landlord verification across tenancies
type VerificationStatus string

const (
	VerificationNone       VerificationStatus = "none"
	VerificationUnverified VerificationStatus = "unverified"
	VerificationPartial    VerificationStatus = "partial"
	VerificationVerified   VerificationStatus = "verified"
)

// ScoreResult is the outcome of a recompute pass
type ScoreResult struct {
	Metrics   Metrics `json:"metrics"`
	NewBadges []Badge `json:"newBadges"`
}

// Streak is the streak part of the achievements view
type Streak struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// Achievements is the badges and streak view
type Achievements struct {
	Badges []Badge `json:"badges"`
	Streak Streak  `json:"streak"`
}

// DashboardStats is the tenant dashboard aggregate. Money is in pounds.
type DashboardStats struct {
	PaymentStreak      int                `json:"paymentStreak"`
	LongestStreak      int                `json:"longestStreak"`
	TotalPaid          string             `json:"totalPaid"`
	TotalAwaiting      string             `json:"totalAwaiting"`
	RentScore          int                `json:"rentScore"`
	OnTimeScore        float64            `json:"onTimeScore"`
	VerificationScore  float64            `json:"verificationScore"`
	RentToIncomeScore  int                `json:"rentToIncomeScore"`
	VerificationStatus VerificationStatus `json:"verificationStatus"`
	PropertyCount      int                `json:"propertyCount"`
	BadgesEarned       int                `json:"badgesEarned"`
	NextPaymentDue     *time.Time         `json:"nextPaymentDue,omitempty"`
}

// scorePass carries everything one recompute produced
type scorePass struct {
	history   []PaymentEvent
	metrics   Metrics
	newBadges []Badge
	opts      ScoringOptions
}

// ScoreService runs the ledger, the score engine and badge awarding together
type ScoreService struct {
	db                      *gorm.DB
	ledger                  *LedgerService
	badges                  *BadgeService
	graceDays               int
	excludeUnverifiedManual bool
	now                     func() time.Time
}

// NewScoreService wires a score service. When countUnverifiedManual is false,
// manual entries without verification are left out of scoring.
func NewScoreService(db *gorm.DB, ledger *LedgerService, badges *BadgeService, graceDays int, countUnverifiedManual bool) *ScoreService {
	return &ScoreService{
		db:                      db,
		ledger:                  ledger,
		badges:                  badges,
		graceDays:               graceDays,
		excludeUnverifiedManual: !countUnverifiedManual,
		now:                     time.Now,
	}
}

// WithClock replaces the clock used as "now" for scoring
func (s *ScoreService) WithClock(now func() time.Time) *ScoreService {
	s.now = now
	return s
}

// Options returns the scoring options for the current time
func (s *ScoreService) Options() ScoringOptions {
	return ScoringOptions{
		GraceDays:               s.graceDays,
		Now:                     s.now(),
		ExcludeUnverifiedManual: s.excludeUnverifiedManual,
	}
}

// Recompute derives the tenant's metrics and stores any newly earned badges
func (s *ScoreService) Recompute(ctx context.Context, tenantID, propertyID uint) (*ScoreResult, error) {
	pass, err := s.evaluate(ctx, tenantID, propertyID)
	if err != nil {
		return nil, err
	}
	return &ScoreResult{Metrics: pass.metrics, NewBadges: pass.newBadges}, nil
}

// evaluate awards badges from the tenant-wide history and returns the
// history and metrics of propertyID, or of every property when it is 0
func (s *ScoreService) evaluate(ctx context.Context, tenantID, propertyID uint) (*scorePass, error) {
	opts := s.Options()

	var scoped []PaymentEvent
	if propertyID != 0 {
		var err error
		scoped, _, err = s.ledger.history(ctx, tenantID, propertyID)
		if err != nil {
			return nil, err
		}
	}

	history, skipped, err := s.ledger.history(ctx, tenantID, 0)
	if err != nil {
		return nil, err
	}
	metrics := ComputeMetrics(history, opts)
	utils.GetMetrics().RecordScoreComputation(skipped)

	newBadges, err := s.badges.Award(ctx, tenantID, metrics, history, opts)
	if err != nil {
		return nil, err
	}

	if propertyID != 0 {
		history = scoped
		metrics = ComputeMetrics(scoped, opts)
	}
	return &scorePass{history: history, metrics: metrics, newBadges: newBadges, opts: opts}, nil
}

// Achievements returns the tenant's badges and streak across all properties
func (s *ScoreService) Achievements(ctx context.Context, tenantID uint) (*Achievements, error) {
	pass, err := s.evaluate(ctx, tenantID, 0)
	if err != nil {
		return nil, err
	}
	badges, err := s.badges.ListBadges(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &Achievements{
		Badges: badges,
		Streak: Streak{Current: pass.metrics.CurrentStreak, Longest: pass.metrics.LongestStreak},
	}, nil
}

// DashboardStats builds the dashboard aggregate across all properties
func (s *ScoreService) DashboardStats(ctx context.Context, tenantID uint) (*DashboardStats, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("tenant %d: %w", tenantID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}

	pass, err := s.evaluate(ctx, tenantID, 0)
	if err != nil {
		return nil, err
	}

	var tenancies []models.Tenancy
	if err := s.db.WithContext(ctx).Preload("Property").Where("tenant_id = ?", tenantID).Find(&tenancies).Error; err != nil {
		return nil, fmt.Errorf("failed to load tenancies: %w", err)
	}

	badges, err := s.badges.ListBadges(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := pass.opts.Now
	paid, awaiting := settledTotals(pass.history, now)

	var activeRent int64
	for _, t := range tenancies {
		if t.ActiveAt(now) {
			activeRent += t.Property.MonthlyRent
		}
	}

	return &DashboardStats{
		PaymentStreak:      pass.metrics.CurrentStreak,
		LongestStreak:      pass.metrics.LongestStreak,
		TotalPaid:          penceToPounds(paid),
		TotalAwaiting:      penceToPounds(awaiting),
		RentScore:          pass.metrics.RentScore,
		OnTimeScore:        pass.metrics.OnTimeRate,
		VerificationScore:  pass.metrics.VerificationRate,
		RentToIncomeScore:  RentToIncomeScore(activeRent, user.MonthlyIncome),
		VerificationStatus: tenancyVerificationStatus(tenancies),
		PropertyCount:      len(tenancies),
		BadgesEarned:       len(badges),
		NextPaymentDue:     nextPaymentDue(tenancies, pass.history, now),
	}, nil
}

// settledTotals sums paid and late periods as paid, and unpaid periods already
// due as awaiting. Amounts are in pence.
func settledTotals(history []PaymentEvent, now time.Time) (paid, awaiting int64) {
	today := calendarDay(now)
	for _, e := range history {
		switch e.Status {
		case models.PaymentStatusPaid, models.PaymentStatusLate:
			paid += e.Amount
		case models.PaymentStatusPending, models.PaymentStatusMissed:
			if !calendarDay(e.DueDate).After(today) {
				awaiting += e.Amount
			}
		}
	}
	return paid, awaiting
}

var (
	affordableRatio   = decimal.RequireFromString("0.30")
	unaffordableRatio = decimal.RequireFromString("0.60")
)

// RentToIncomeScore is 100 when rent is at most 30% of income, falling
// linearly to 0 at 60%. Without income or rent the score is 0.
func RentToIncomeScore(monthlyRent, monthlyIncome int64) int {
	if monthlyIncome <= 0 || monthlyRent <= 0 {
		return 0
	}
	ratio := decimal.NewFromInt(monthlyRent).Div(decimal.NewFromInt(monthlyIncome))
	switch {
	case ratio.LessThanOrEqual(affordableRatio):
		return 100
	case ratio.GreaterThanOrEqual(unaffordableRatio):
		return 0
	}
	score := unaffordableRatio.Sub(ratio).Div(unaffordableRatio.Sub(affordableRatio)).Mul(decimal.NewFromInt(100))
	return int(score.Round(0).IntPart())
}

func tenancyVerificationStatus(tenancies []models.Tenancy) VerificationStatus {
	if len(tenancies) == 0 {
		return VerificationNone
	}
	verified := 0
	for _, t := range tenancies {
		if t.VerificationStatus == models.TenancyStatusVerified {
			verified++
		}
	}
	switch {
	case verified == len(tenancies):
		return VerificationVerified
	case verified > 0:
		return VerificationPartial
	default:
		return VerificationUnverified
	}
}

// nextPaymentDue is the earliest unsettled due date from today on across
// active tenancies
func nextPaymentDue(tenancies []models.Tenancy, history []PaymentEvent, now time.Time) *time.Time {
	settled := make(map[periodKey]bool, len(history))
	for _, e := range history {
		if e.Status != models.PaymentStatusPending {
			settled[periodKey{e.PropertyID, e.Period}] = true
		}
	}

	today := calendarDay(now)
	var next *time.Time
	for _, t := range tenancies {
		if !t.ActiveAt(now) {
			continue
		}
		for i := 0; i < 2; i++ {
			due := dueDateFor(firstOfMonth(today).AddDate(0, i, 0), t.Property.RentDueDay)
			if due.Before(today) || settled[periodKey{t.PropertyID, due.Format(models.PeriodLayout)}] {
				continue
			}
			if next == nil || due.Before(*next) {
				d := due
				next = &d
			}
			break
		}
	}
	return next
}

// penceToPounds renders minor units as a fixed two-decimal amount
func penceToPounds(pence int64) string {
	return decimal.New(pence, -2).StringFixed(2)
}
