package services

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"rentscore/models"
)

var jan2024 = day(2024, time.January, 1)

func TestComputeMetricsEmptyHistory(t *testing.T) {
	m := ComputeMetrics(nil, ScoringOptions{GraceDays: DefaultGraceDays})
	if !reflect.DeepEqual(m, Metrics{}) {
		t.Errorf("expected zero metrics, got %+v", m)
	}
}

func TestComputeMetricsThreeOnTimeVerified(t *testing.T) {
	history := monthly(jan2024, true, 0, 1, 2)

	m := ComputeMetrics(history, ScoringOptions{GraceDays: DefaultGraceDays})

	if m.CurrentStreak != 3 || m.LongestStreak != 3 {
		t.Errorf("streaks = %d/%d, want 3/3", m.CurrentStreak, m.LongestStreak)
	}
	if m.OnTimeRate != 100 || m.VerificationRate != 100 {
		t.Errorf("rates = %v/%v, want 100/100", m.OnTimeRate, m.VerificationRate)
	}
	// 0.6*1000 + 0.2*1000 + 0.2*(3/12*1000)
	if m.RentScore != 850 {
		t.Errorf("rentScore = %d, want 850", m.RentScore)
	}
	if m.Components.Streak != 250 {
		t.Errorf("streak component = %v, want 250", m.Components.Streak)
	}
}

func TestComputeMetricsMissedResetsStreak(t *testing.T) {
	history := monthly(jan2024, false, 0, 0, 0, 0, 0, -1, 0, 0)

	m := ComputeMetrics(history, ScoringOptions{GraceDays: DefaultGraceDays})

	if m.CurrentStreak != 2 {
		t.Errorf("currentStreak = %d, want 2", m.CurrentStreak)
	}
	if m.LongestStreak != 5 {
		t.Errorf("longestStreak = %d, want 5", m.LongestStreak)
	}
	if m.OnTimeRate != 87.5 {
		t.Errorf("onTimeRate = %v, want 87.5", m.OnTimeRate)
	}
	if m.VerificationRate != 0 {
		t.Errorf("verificationRate = %v, want 0", m.VerificationRate)
	}
}

func TestComputeMetricsGraceWindow(t *testing.T) {
	tests := []struct {
		name   string
		delay  int
		onTime bool
	}{
		{"same day", 0, true},
		{"last grace day", DefaultGraceDays, true},
		{"one day past grace", DefaultGraceDays + 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			due := jan2024
			paid := due.AddDate(0, 0, tt.delay).Add(23 * time.Hour)
			e := PaymentEvent{DueDate: due, PaidDate: &paid, Status: models.PaymentStatusPaid}
			if got := IsOnTime(e, DefaultGraceDays); got != tt.onTime {
				t.Errorf("IsOnTime = %v, want %v", got, tt.onTime)
			}
		})
	}
}

func TestComputeMetricsPendingExcluded(t *testing.T) {
	history := monthly(jan2024, true, 0, 0)
	pending := PaymentEvent{
		ID:       99,
		Period:   "2024-03",
		DueDate:  day(2024, time.March, 1),
		Status:   models.PaymentStatusPending,
		Verified: false,
		Source:   models.PaymentSourceManual,
	}

	withPending := ComputeMetrics(append(history, pending), ScoringOptions{GraceDays: DefaultGraceDays})
	without := ComputeMetrics(history, ScoringOptions{GraceDays: DefaultGraceDays})
	if !reflect.DeepEqual(withPending, without) {
		t.Errorf("pending period changed metrics: %+v vs %+v", withPending, without)
	}

	only := ComputeMetrics([]PaymentEvent{pending}, ScoringOptions{GraceDays: DefaultGraceDays})
	if only.RentScore != 0 || only.ResolvedPeriods != 0 {
		t.Errorf("single pending period should score 0, got %+v", only)
	}
}

func TestComputeMetricsFuturePeriodsExcluded(t *testing.T) {
	history := monthly(jan2024, true, 0, 0, 0, 0)
	opts := ScoringOptions{GraceDays: DefaultGraceDays, Now: day(2024, time.February, 15)}

	m := ComputeMetrics(history, opts)
	if m.ResolvedPeriods != 2 {
		t.Errorf("resolvedPeriods = %d, want 2", m.ResolvedPeriods)
	}
}

func TestComputeMetricsExcludeUnverifiedManual(t *testing.T) {
	history := monthly(jan2024, false, 0, 0, 0)
	history[1].Verified = true

	m := ComputeMetrics(history, ScoringOptions{GraceDays: DefaultGraceDays, ExcludeUnverifiedManual: true})
	if m.ResolvedPeriods != 1 || m.CurrentStreak != 1 {
		t.Errorf("expected only the verified period to count, got %+v", m)
	}
}

func TestComputeMetricsOrderIndependent(t *testing.T) {
	history := monthly(jan2024, true, 0, 5, -1, 0, 1, 2)
	shuffled := append([]PaymentEvent{}, history...)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	before := append([]PaymentEvent{}, shuffled...)

	a := ComputeMetrics(history, ScoringOptions{GraceDays: DefaultGraceDays})
	b := ComputeMetrics(shuffled, ScoringOptions{GraceDays: DefaultGraceDays})
	if !reflect.DeepEqual(a, b) {
		t.Errorf("metrics depend on input order: %+v vs %+v", a, b)
	}
	if !reflect.DeepEqual(before, shuffled) {
		t.Error("ComputeMetrics modified its input")
	}
}

func TestComputeMetricsProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	opts := ScoringOptions{GraceDays: DefaultGraceDays}

	for i := 0; i < 500; i++ {
		delays := make([]int, rng.Intn(40))
		for j := range delays {
			delays[j] = rng.Intn(12) - 1
		}
		history := monthly(jan2024, rng.Intn(2) == 0, delays...)
		for j := range history {
			if rng.Intn(3) == 0 {
				history[j].Verified = !history[j].Verified
			}
		}

		m := ComputeMetrics(history, opts)
		if m.RentScore < 0 || m.RentScore > MaxRentScore {
			t.Fatalf("rentScore %d out of range for %v", m.RentScore, delays)
		}
		if m.CurrentStreak > m.LongestStreak {
			t.Fatalf("currentStreak %d > longestStreak %d for %v", m.CurrentStreak, m.LongestStreak, delays)
		}
		if again := ComputeMetrics(history, opts); !reflect.DeepEqual(m, again) {
			t.Fatalf("not idempotent for %v", delays)
		}

		next := jan2024.AddDate(0, len(history), 0)
		paid := next
		onTime := append(append([]PaymentEvent{}, history...), PaymentEvent{
			ID: 1000, PropertyID: 1, Period: next.Format(models.PeriodLayout),
			DueDate: next, PaidDate: &paid, Status: models.PaymentStatusPaid,
		})
		if grown := ComputeMetrics(onTime, opts); grown.CurrentStreak != m.CurrentStreak+1 {
			t.Fatalf("on-time period moved streak %d -> %d", m.CurrentStreak, grown.CurrentStreak)
		}

		missed := append(append([]PaymentEvent{}, history...), PaymentEvent{
			ID: 1000, PropertyID: 1, Period: next.Format(models.PeriodLayout),
			DueDate: next, Status: models.PaymentStatusMissed,
		})
		if reset := ComputeMetrics(missed, opts); reset.CurrentStreak != 0 {
			t.Fatalf("missed period left streak at %d", reset.CurrentStreak)
		}
	}
}

func TestComputeMetricsStreakComponentCapped(t *testing.T) {
	delays := make([]int, 20)
	m := ComputeMetrics(monthly(jan2024, true, delays...), ScoringOptions{GraceDays: DefaultGraceDays})
	if m.Components.Streak != MaxRentScore {
		t.Errorf("streak component = %v, want %d", m.Components.Streak, MaxRentScore)
	}
	if m.RentScore != MaxRentScore {
		t.Errorf("rentScore = %d, want %d", m.RentScore, MaxRentScore)
	}
}

func TestComputeMetricsCountsEachMonthOnce(t *testing.T) {
	first := monthly(jan2024, true, 0, 0, 0, 0, 0, 0)
	second := forProperty(monthly(jan2024, true, 0, 0, 0, 0, 0, 0), 2, 100)

	m := ComputeMetrics(append(first, second...), ScoringOptions{GraceDays: DefaultGraceDays})

	if m.CurrentStreak != 6 || m.LongestStreak != 6 || m.ResolvedPeriods != 6 {
		t.Errorf("two properties over six months gave %+v", m)
	}
	if single := ComputeMetrics(first, ScoringOptions{GraceDays: DefaultGraceDays}); m != single {
		t.Errorf("second on-time property changed metrics: %+v vs %+v", m, single)
	}
}

func TestComputeMetricsMonthNeedsEveryPropertyOnTime(t *testing.T) {
	first := monthly(jan2024, true, 0, 0, 0, 0)
	second := forProperty(monthly(jan2024, true, 0, 0, 10, 0), 2, 100)

	m := ComputeMetrics(append(first, second...), ScoringOptions{GraceDays: DefaultGraceDays})

	if m.CurrentStreak != 1 || m.LongestStreak != 2 {
		t.Errorf("streaks = %d/%d, want 1/2", m.CurrentStreak, m.LongestStreak)
	}
	if m.OnTimePeriods != 3 || m.ResolvedPeriods != 4 {
		t.Errorf("on time %d of %d, want 3 of 4", m.OnTimePeriods, m.ResolvedPeriods)
	}
}

func TestComputeMetricsMonthWaitsForEveryProperty(t *testing.T) {
	first := monthly(jan2024, true, 0, 0, 0)
	second := forProperty(monthly(jan2024, true, 0, 0), 2, 100)
	second = append(second, PaymentEvent{
		ID: 200, PropertyID: 2, Period: "2024-03",
		DueDate: day(2024, time.March, 15), Status: models.PaymentStatusPending,
	})

	m := ComputeMetrics(append(first, second...), ScoringOptions{GraceDays: DefaultGraceDays})
	if m.ResolvedPeriods != 2 || m.CurrentStreak != 2 {
		t.Errorf("March should stay open while one property is pending, got %+v", m)
	}
}

func TestComputeMetricsMissedCountsWhenExcludingUnverified(t *testing.T) {
	history := monthly(jan2024, true, 0, 0, -1)
	history[2].Verified = false

	m := ComputeMetrics(history, ScoringOptions{GraceDays: DefaultGraceDays, ExcludeUnverifiedManual: true})
	if m.ResolvedPeriods != 3 || m.CurrentStreak != 0 {
		t.Errorf("unverified missed period was dropped: %+v", m)
	}
}
