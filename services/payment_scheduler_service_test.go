package services

import (
	"context"
	"testing"
	"time"

	"rentscore/models"
)

func TestRollSchedules(t *testing.T) {
	s := newTestStack(t, day(2024, time.March, 10))
	ctx := context.Background()
	createUser(t, s.db, 1, "tenant@example.com", models.UserRoleTenant)
	tenancy := registerTenancy(t, s.properties, 1, jan2024, "")

	scheduler := NewPaymentSchedulerService(s.db, time.Hour).WithClock(fixedClock(day(2024, time.March, 20)))
	created, err := scheduler.RollSchedules(ctx)
	if err != nil {
		t.Fatalf("RollSchedules: %v", err)
	}
	if created != 0 {
		t.Errorf("March already scheduled at registration, created %d", created)
	}

	scheduler.WithClock(fixedClock(day(2024, time.April, 1)))
	created, err = scheduler.RollSchedules(ctx)
	if err != nil {
		t.Fatalf("RollSchedules: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected April placeholder, created %d", created)
	}

	created, err = scheduler.RollSchedules(ctx)
	if err != nil || created != 0 {
		t.Errorf("second roll in April: created %d, err %v", created, err)
	}

	var april models.Payment
	if err := s.db.Where("property_id = ? AND period = ?", tenancy.PropertyID, "2024-04").First(&april).Error; err != nil {
		t.Fatalf("April placeholder: %v", err)
	}
	if april.Status != models.PaymentStatusPending || april.Source != models.PaymentSourceManual || april.Amount != 95000 {
		t.Errorf("unexpected placeholder %+v", april)
	}
}

func TestRollSchedulesSkipsEndedTenancy(t *testing.T) {
	s := newTestStack(t, day(2024, time.January, 5))
	createUser(t, s.db, 1, "tenant@example.com", models.UserRoleTenant)
	end := day(2024, time.February, 28)
	if _, err := s.properties.RegisterProperty(context.Background(), 1, RegisterPropertyDTO{
		AddressLine1: "1 High Street",
		City:         "York",
		Postcode:     "YO1 7HH",
		MonthlyRent:  80000,
		RentDueDay:   1,
		StartDate:    jan2024,
		EndDate:      &end,
	}); err != nil {
		t.Fatalf("RegisterProperty: %v", err)
	}

	scheduler := NewPaymentSchedulerService(s.db, time.Hour).WithClock(fixedClock(day(2024, time.May, 2)))
	created, err := scheduler.RollSchedules(context.Background())
	if err != nil || created != 0 {
		t.Errorf("ended tenancy rolled: created %d, err %v", created, err)
	}
}
