package services

import (
	"math"
	"sort"
	"time"

	"rentscore/models"
)

const (
	// DefaultGraceDays is how many days after the due date a payment still counts as on time
	DefaultGraceDays = 3
	// StreakCap is the streak length that earns the full streak component
	StreakCap = 12
	// MaxRentScore is the top of the rent score scale
	MaxRentScore = 1000

	paymentHistoryWeight = 0.6
	verificationWeight   = 0.2
	streakWeight         = 0.2
)

// ScoringOptions tunes a metrics pass
type ScoringOptions struct {
	GraceDays int
	// Now excludes periods due after it. The zero value disables the check.
	Now time.Time
	// ExcludeUnverifiedManual treats unverified manual entries as unresolved
	ExcludeUnverifiedManual bool
}

// ComponentBreakdown holds the three score components, each on a 0-1000 scale
type ComponentBreakdown struct {
	PaymentHistory float64 `json:"paymentHistory"`
	Verification   float64 `json:"verification"`
	Streak         float64 `json:"streak"`
}

// Metrics is the output of one scoring pass
type Metrics struct {
	CurrentStreak    int                `json:"currentStreak"`
	LongestStreak    int                `json:"longestStreak"`
	OnTimeRate       float64            `json:"onTimeRate"`
	VerificationRate float64            `json:"verificationRate"`
	RentScore        int                `json:"rentScore"`
	Components       ComponentBreakdown `json:"componentBreakdown"`
	ResolvedPeriods  int                `json:"resolvedPeriods"`
	OnTimePeriods    int                `json:"onTimePeriods"`
	VerifiedPeriods  int                `json:"verifiedPeriods"`
}

// ComputeMetrics derives streaks, rates and the rent score from a payment
// history. Every calendar month counts once however many properties fall due
// in it. It is a pure function of its arguments; the input slice is not
// modified and need not be sorted.
func ComputeMetrics(history []PaymentEvent, opts ScoringOptions) Metrics {
	var m Metrics

	resolved := resolvedMonths(history, opts)
	if len(resolved) == 0 {
		return m
	}

	run := 0
	for _, month := range resolved {
		if month.OnTime {
			m.OnTimePeriods++
			run++
			if run > m.LongestStreak {
				m.LongestStreak = run
			}
		} else {
			run = 0
		}
		if month.Verified {
			m.VerifiedPeriods++
		}
	}

	m.CurrentStreak = run
	m.ResolvedPeriods = len(resolved)

	onTime := float64(m.OnTimePeriods) / float64(m.ResolvedPeriods)
	verified := float64(m.VerifiedPeriods) / float64(m.ResolvedPeriods)
	m.OnTimeRate = round2(onTime * 100)
	m.VerificationRate = round2(verified * 100)

	m.Components = ComponentBreakdown{
		PaymentHistory: onTime * MaxRentScore,
		Verification:   verified * MaxRentScore,
		Streak:         float64(min(m.CurrentStreak, StreakCap)) / StreakCap * MaxRentScore,
	}
	m.RentScore = weightedScore(m.Components)

	return m
}

// IsOnTime reports whether e is a paid period settled within the grace window.
// Dates are compared as UTC calendar days.
func IsOnTime(e PaymentEvent, graceDays int) bool {
	if e.Status != models.PaymentStatusPaid || e.PaidDate == nil {
		return false
	}
	deadline := calendarDay(e.DueDate).AddDate(0, 0, graceDays)
	return !calendarDay(*e.PaidDate).After(deadline)
}

// rentMonth is one calendar month of rent across every property due in it
type rentMonth struct {
	Period string
	// DueDate is the last due date in the month
	DueDate  time.Time
	OnTime   bool
	Verified bool
	// firstPaid is the earliest due date settled as paid, zero when none was
	firstPaid time.Time
}

// isResolved reports whether e has an outcome at opts.Now
func isResolved(e PaymentEvent, opts ScoringOptions) bool {
	if e.Status == models.PaymentStatusPending {
		return false
	}
	return opts.Now.IsZero() || !calendarDay(e.DueDate).After(opts.Now)
}

// isExcluded reports whether e is left out of scoring altogether. Only a
// claimed payment can be excluded; a missed period always counts.
func isExcluded(e PaymentEvent, opts ScoringOptions) bool {
	return opts.ExcludeUnverifiedManual &&
		e.Source == models.PaymentSourceManual &&
		!e.Verified &&
		e.PaidDate != nil
}

// resolvedMonths folds history into calendar months in chronological order.
// A month is on time only when every property due in it was paid on time,
// and it is left out while any of its periods is still unresolved.
func resolvedMonths(history []PaymentEvent, opts ScoringOptions) []rentMonth {
	months := make(map[string]*rentMonth)
	open := make(map[string]bool)

	for _, e := range history {
		if isExcluded(e, opts) {
			continue
		}
		period := e.Period
		if period == "" {
			period = e.DueDate.UTC().Format(models.PeriodLayout)
		}
		if !isResolved(e, opts) {
			open[period] = true
			continue
		}

		month, ok := months[period]
		if !ok {
			month = &rentMonth{Period: period, DueDate: e.DueDate, OnTime: true, Verified: true}
			months[period] = month
		}
		if e.DueDate.After(month.DueDate) {
			month.DueDate = e.DueDate
		}
		month.OnTime = month.OnTime && IsOnTime(e, opts.GraceDays)
		month.Verified = month.Verified && e.Verified
		if e.Status == models.PaymentStatusPaid && (month.firstPaid.IsZero() || e.DueDate.Before(month.firstPaid)) {
			month.firstPaid = e.DueDate
		}
	}

	resolved := make([]rentMonth, 0, len(months))
	for period, month := range months {
		if !open[period] {
			resolved = append(resolved, *month)
		}
	}
	sort.Slice(resolved, func(i, j int) bool {
		return resolved[i].Period < resolved[j].Period
	})
	return resolved
}

func sortChronologically(events []PaymentEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].DueDate.Equal(events[j].DueDate) {
			return events[i].DueDate.Before(events[j].DueDate)
		}
		return events[i].PropertyID < events[j].PropertyID
	})
}

func weightedScore(c ComponentBreakdown) int {
	score := math.Round(paymentHistoryWeight*c.PaymentHistory +
		verificationWeight*c.Verification +
		streakWeight*c.Streak)
	return int(math.Max(0, math.Min(MaxRentScore, score)))
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
