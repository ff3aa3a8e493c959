package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"rentscore/models"
)

// registerTenancy registers a property due on the 1st for tenantID starting at start
func registerTenancy(t *testing.T, props *PropertyService, tenantID uint, start time.Time, landlordEmail string) *TenancyDTO {
	t.Helper()
	tenancy, err := props.RegisterProperty(context.Background(), tenantID, RegisterPropertyDTO{
		AddressLine1:  "12 Acacia Avenue",
		City:          "Leeds",
		Postcode:      "ls1 4ap",
		MonthlyRent:   95000,
		RentDueDay:    1,
		LandlordName:  "Jane Landlord",
		LandlordEmail: landlordEmail,
		StartDate:     start,
	})
	if err != nil {
		t.Fatalf("RegisterProperty: %v", err)
	}
	return tenancy
}

func ptr(t time.Time) *time.Time { return &t }

func TestMergeLedgerPrecedence(t *testing.T) {
	due := day(2024, time.March, 1)
	paid := due.AddDate(0, 0, 1)
	records := []models.Payment{
		{TenantID: 1, PropertyID: 1, Period: "2024-03", Source: models.PaymentSourceManual, DueDate: due, PaidDate: &paid, Status: models.PaymentStatusPaid},
		{TenantID: 1, PropertyID: 1, Period: "2024-03", Source: models.PaymentSourceBank, DueDate: due, PaidDate: ptr(due.AddDate(0, 0, 9)), Status: models.PaymentStatusLate},
		{TenantID: 1, PropertyID: 2, Period: "2024-03", Source: models.PaymentSourceManual, DueDate: due, PaidDate: &paid, Status: models.PaymentStatusPaid},
		{TenantID: 1, PropertyID: 2, Period: "2024-03", Source: models.PaymentSourceManual, DueDate: due, Status: models.PaymentStatusMissed},
	}
	for i := range records {
		records[i].ID = uint(i + 1)
	}

	events, issues := mergeLedger(records, nil)
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if len(events) != 2 {
		t.Fatalf("expected one event per property and period, got %d", len(events))
	}
	if events[0].Source != models.PaymentSourceBank || events[0].Status != models.PaymentStatusLate || !events[0].Verified {
		t.Errorf("property 1 should use the verified bank record, got %+v", events[0])
	}
	if events[1].ID != 3 {
		t.Errorf("property 2 should use the lowest id, got %d", events[1].ID)
	}
}

func TestMergeLedgerSkipsBadRecords(t *testing.T) {
	due := day(2024, time.March, 1)
	start := map[uint]time.Time{1: day(2024, time.February, 15)}

	tests := []struct {
		name   string
		record models.Payment
	}{
		{"missing due date", models.Payment{Period: "2024-03", Status: models.PaymentStatusMissed, Source: models.PaymentSourceManual}},
		{"period mismatch", models.Payment{Period: "2024-04", DueDate: due, Status: models.PaymentStatusMissed, Source: models.PaymentSourceManual}},
		{"unknown status", models.Payment{Period: "2024-03", DueDate: due, Status: "bounced", Source: models.PaymentSourceManual}},
		{"unknown source", models.Payment{Period: "2024-03", DueDate: due, Status: models.PaymentStatusMissed, Source: "csv"}},
		{"paid without date", models.Payment{Period: "2024-03", DueDate: due, Status: models.PaymentStatusPaid, Source: models.PaymentSourceManual}},
		{"paid before start", models.Payment{Period: "2024-03", DueDate: due, PaidDate: ptr(day(2024, time.February, 1)), Status: models.PaymentStatusPaid, Source: models.PaymentSourceManual}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.record.ID = 7
			tt.record.PropertyID = 1
			events, issues := mergeLedger([]models.Payment{tt.record}, start)
			if len(events) != 0 {
				t.Errorf("record should be skipped, got %+v", events)
			}
			if len(issues) != 1 || issues[0].PaymentID != 7 {
				t.Errorf("expected one issue for payment 7, got %v", issues)
			}
		})
	}
}

func TestDeriveStatus(t *testing.T) {
	due := day(2024, time.March, 1)
	tests := []struct {
		name string
		paid *time.Time
		now  time.Time
		want models.PaymentStatus
	}{
		{"unpaid inside grace", nil, due.AddDate(0, 0, 3), models.PaymentStatusPending},
		{"unpaid after grace", nil, due.AddDate(0, 0, 4), models.PaymentStatusMissed},
		{"paid on time", ptr(due.AddDate(0, 0, 3)), due.AddDate(0, 1, 0), models.PaymentStatusPaid},
		{"paid late", ptr(due.AddDate(0, 0, 4)), due.AddDate(0, 1, 0), models.PaymentStatusLate},
		{"paid early", ptr(due.AddDate(0, 0, -5)), due, models.PaymentStatusPaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveStatus(due, tt.paid, tt.now, DefaultGraceDays); got != tt.want {
				t.Errorf("DeriveStatus = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLoadPaymentHistoryUnknownTenantOrProperty(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ledger := NewLedgerService(db, DefaultGraceDays)

	if _, err := ledger.LoadPaymentHistory(ctx, 42, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown tenant: expected ErrNotFound, got %v", err)
	}

	createUser(t, db, 1, "tenant@example.com", models.UserRoleTenant)
	events, err := ledger.LoadPaymentHistory(ctx, 1, 0)
	if err != nil || len(events) != 0 {
		t.Errorf("tenant without tenancies: got %v, %v", events, err)
	}
	if _, err := ledger.LoadPaymentHistory(ctx, 1, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown property: expected ErrNotFound, got %v", err)
	}
}

func TestRegisterPropertyCreatesSchedule(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createUser(t, db, 1, "tenant@example.com", models.UserRoleTenant)

	now := day(2024, time.June, 2)
	props := NewPropertyService(db).WithClock(fixedClock(now))
	tenancy := registerTenancy(t, props, 1, day(2024, time.January, 1), "")
	if tenancy.Postcode != "LS1 4AP" || tenancy.VerificationStatus != models.TenancyStatusPending {
		t.Errorf("unexpected tenancy %+v", tenancy)
	}

	events, err := NewLedgerService(db, DefaultGraceDays).WithClock(fixedClock(now)).LoadPaymentHistory(ctx, 1, tenancy.PropertyID)
	if err != nil {
		t.Fatalf("LoadPaymentHistory: %v", err)
	}
	if len(events) != 6 {
		t.Fatalf("expected 6 scheduled periods, got %d", len(events))
	}
	for i, e := range events {
		want := models.PaymentStatusMissed
		if i == 5 {
			want = models.PaymentStatusPending
		}
		if e.Status != want || e.Amount != 95000 {
			t.Errorf("period %d: status %s, want %s (%+v)", i, e.Status, want, e)
		}
		if want := day(2024, time.Month(i+1), 1); !e.DueDate.Equal(want) {
			t.Errorf("period %d due %v, want %v", i, e.DueDate, want)
		}
	}
}

func TestGenerateRentScheduleSkipsDueDateBeforeStart(t *testing.T) {
	tenancy := models.Tenancy{TenantID: 1, StartDate: day(2024, time.January, 10)}
	property := models.Property{ID: 1, RentDueDay: 5, MonthlyRent: 1000}

	schedule := generateRentSchedule(tenancy, property, day(2024, time.March, 2))
	if len(schedule) != 2 {
		t.Fatalf("expected February and March, got %d periods", len(schedule))
	}
	if schedule[0].Period != "2024-02" || !schedule[0].DueDate.Equal(day(2024, time.February, 5)) {
		t.Errorf("first period = %s due %v", schedule[0].Period, schedule[0].DueDate)
	}

	end := day(2024, time.February, 20)
	tenancy.EndDate = &end
	if got := generateRentSchedule(tenancy, property, day(2024, time.June, 1)); len(got) != 1 {
		t.Errorf("ended tenancy: expected 1 period, got %d", len(got))
	}
}

func TestLedgerManualThenBank(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := day(2024, time.April, 10)
	createUser(t, db, 1, "tenant@example.com", models.UserRoleTenant)
	tenancy := registerTenancy(t, NewPropertyService(db).WithClock(fixedClock(now)), 1, day(2024, time.January, 1), "")

	ledger := NewLedgerService(db, DefaultGraceDays).WithClock(fixedClock(now))

	manual, err := ledger.LogManualPayment(ctx, 1, tenancy.PropertyID, LogPaymentDTO{
		Period:   "2024-02",
		PaidDate: ptr(day(2024, time.February, 2)),
	})
	if err != nil {
		t.Fatalf("LogManualPayment: %v", err)
	}
	if manual.Status != models.PaymentStatusPaid || manual.Verified || manual.Amount != 95000 {
		t.Errorf("unexpected manual event %+v", manual)
	}

	bank, err := ledger.IngestBankPayment(ctx, BankPaymentDTO{
		TenantID:   1,
		PropertyID: tenancy.PropertyID,
		DueDate:    day(2024, time.February, 1),
		PaidDate:   ptr(day(2024, time.February, 9)),
		Amount:     95000,
		Reference:  "FPS-123",
	})
	if err != nil {
		t.Fatalf("IngestBankPayment: %v", err)
	}
	if bank.Status != models.PaymentStatusLate || !bank.Verified {
		t.Errorf("unexpected bank event %+v", bank)
	}

	var stored models.Payment
	if err := db.First(&stored, manual.ID).Error; err != nil {
		t.Fatalf("manual record: %v", err)
	}
	if !stored.Superseded || stored.SupersededByID == nil || *stored.SupersededByID != bank.ID {
		t.Errorf("manual record not superseded: %+v", stored)
	}

	events, err := ledger.LoadPaymentHistory(ctx, 1, tenancy.PropertyID)
	if err != nil {
		t.Fatalf("LoadPaymentHistory: %v", err)
	}
	for _, e := range events {
		if e.Period == "2024-02" && e.ID != bank.ID {
			t.Errorf("February should resolve to the bank record, got %+v", e)
		}
	}

	_, err = ledger.LogManualPayment(ctx, 1, tenancy.PropertyID, LogPaymentDTO{Period: "2024-02", PaidDate: ptr(day(2024, time.February, 1))})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("manual entry over bank record: expected ErrConflict, got %v", err)
	}
}

func TestLogManualPaymentValidation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := day(2024, time.April, 10)
	createUser(t, db, 1, "tenant@example.com", models.UserRoleTenant)
	tenancy := registerTenancy(t, NewPropertyService(db).WithClock(fixedClock(now)), 1, day(2024, time.February, 1), "")
	ledger := NewLedgerService(db, DefaultGraceDays).WithClock(fixedClock(now))

	tests := []struct {
		name string
		dto  LogPaymentDTO
	}{
		{"bad period", LogPaymentDTO{Period: "2024/03"}},
		{"period before start", LogPaymentDTO{Period: "2024-01"}},
		{"paid before start", LogPaymentDTO{Period: "2024-02", PaidDate: ptr(day(2024, time.January, 30))}},
		{"negative amount", LogPaymentDTO{Period: "2024-02", Amount: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ledger.LogManualPayment(ctx, 1, tenancy.PropertyID, tt.dto); !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}

	if _, err := ledger.LogManualPayment(ctx, 1, 999, LogPaymentDTO{Period: "2024-02"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown property: expected ErrNotFound, got %v", err)
	}
}

func TestVerifyPayment(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := day(2024, time.April, 2)
	createUser(t, db, 1, "tenant@example.com", models.UserRoleTenant)
	createUser(t, db, 2, "Owner@Example.com", models.UserRoleLandlord)
	createUser(t, db, 3, "other@example.com", models.UserRoleLandlord)
	tenancy := registerTenancy(t, NewPropertyService(db).WithClock(fixedClock(now)), 1, day(2024, time.January, 1), "owner@example.com")
	ledger := NewLedgerService(db, DefaultGraceDays).WithClock(fixedClock(now))

	logged, err := ledger.LogManualPayment(ctx, 1, tenancy.PropertyID, LogPaymentDTO{Period: "2024-03", PaidDate: ptr(day(2024, time.March, 1))})
	if err != nil {
		t.Fatalf("LogManualPayment: %v", err)
	}

	if _, err := ledger.VerifyPayment(ctx, 3, logged.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("other landlord: expected ErrForbidden, got %v", err)
	}
	verified, err := ledger.VerifyPayment(ctx, 2, logged.ID)
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if !verified.Verified {
		t.Errorf("payment not verified: %+v", verified)
	}

	_, err = ledger.LogManualPayment(ctx, 1, tenancy.PropertyID, LogPaymentDTO{Period: "2024-03", PaidDate: ptr(day(2024, time.March, 2))})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("overwriting verified entry: expected ErrConflict, got %v", err)
	}

	var pending models.Payment
	if err := db.Where("property_id = ? AND period = ?", tenancy.PropertyID, "2024-04").First(&pending).Error; err != nil {
		t.Fatalf("April placeholder: %v", err)
	}
	if _, err := ledger.VerifyPayment(ctx, 2, pending.ID); !errors.Is(err, ErrValidation) {
		t.Errorf("pending period: expected ErrValidation, got %v", err)
	}
}
