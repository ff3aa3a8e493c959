package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"rentscore/database"
	"rentscore/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an in-memory SQLite database with the full schema
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// one connection, so every query sees the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func createUser(t *testing.T, db *gorm.DB, id uint, email string, role models.UserRole) models.User {
	t.Helper()
	user := models.User{
		ID:            id,
		FirstName:     "Test",
		LastName:      "User",
		Email:         email,
		Role:          role,
		MonthlyIncome: 300000,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// monthly builds consecutive periods due on the 1st starting at start.
// Each entry of delays is the paid delay in days; -1 means missed.
func monthly(start time.Time, verified bool, delays ...int) []PaymentEvent {
	events := make([]PaymentEvent, 0, len(delays))
	for i, delay := range delays {
		due := start.AddDate(0, i, 0)
		e := PaymentEvent{
			ID:         uint(i + 1),
			PropertyID: 1,
			Period:     due.Format(models.PeriodLayout),
			Amount:     95000,
			DueDate:    due,
			Verified:   verified,
			Source:     models.PaymentSourceManual,
		}
		switch {
		case delay < 0:
			e.Status = models.PaymentStatusMissed
		case delay > DefaultGraceDays:
			paid := due.AddDate(0, 0, delay)
			e.PaidDate = &paid
			e.Status = models.PaymentStatusLate
		default:
			paid := due.AddDate(0, 0, delay)
			e.PaidDate = &paid
			e.Status = models.PaymentStatusPaid
		}
		events = append(events, e)
	}
	return events
}

// recordingPublisher keeps published events in memory
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return p.err
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == eventType {
			n++
		}
	}
	return n
}

// testStack wires the services over one database and one movable clock
type testStack struct {
	db         *gorm.DB
	now        time.Time
	publisher  *recordingPublisher
	properties *PropertyService
	ledger     *LedgerService
	badges     *BadgeService
	score      *ScoreService
	reports    *ReportService
}

func newTestStack(t *testing.T, now time.Time) *testStack {
	t.Helper()
	s := &testStack{db: newTestDB(t), now: now, publisher: &recordingPublisher{}}
	clock := func() time.Time { return s.now }

	s.properties = NewPropertyService(s.db).WithClock(clock)
	s.ledger = NewLedgerService(s.db, DefaultGraceDays).WithClock(clock)
	s.badges = NewBadgeService(s.db, DefaultBadgeCatalog(), NewLocalTenantLocker(), s.publisher)
	s.score = NewScoreService(s.db, s.ledger, s.badges, DefaultGraceDays, true).WithClock(clock)
	s.reports = NewReportService(s.db, s.score, s.badges, s.publisher, "https://rentscore.test").WithClock(clock)
	return s
}

// payMonths logs a payment on the due date for each period in periods
func (s *testStack) payMonths(t *testing.T, tenantID, propertyID uint, periods ...string) {
	t.Helper()
	for _, period := range periods {
		month, err := time.Parse(models.PeriodLayout, period)
		if err != nil {
			t.Fatalf("bad period %q: %v", period, err)
		}
		paid := month
		if _, err := s.ledger.LogManualPayment(context.Background(), tenantID, propertyID, LogPaymentDTO{Period: period, PaidDate: &paid}); err != nil {
			t.Fatalf("LogManualPayment %s: %v", period, err)
		}
	}
}

// forProperty copies events onto propertyID with ids starting at firstID
func forProperty(events []PaymentEvent, propertyID, firstID uint) []PaymentEvent {
	out := make([]PaymentEvent, len(events))
	for i, e := range events {
		e.PropertyID = propertyID
		e.ID = firstID + uint(i)
		out[i] = e
	}
	return out
}
