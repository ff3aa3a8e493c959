package services

import (
	"fmt"
	"time"

	"rentscore/models"
)

// ReportType selects a report template
type ReportType string

const (
	ReportTypeCredit   ReportType = "credit"
	ReportTypeRental   ReportType = "rental"
	ReportTypeLandlord ReportType = "landlord"
)

// Valid reports whether t names a known template
func (t ReportType) Valid() bool {
	switch t {
	case ReportTypeCredit, ReportTypeRental, ReportTypeLandlord:
		return true
	}
	return false
}

// ShareTTL is how long a share link stays valid
const ShareTTL = 30 * 24 * time.Hour

type reportTemplate struct {
	title    string
	validity time.Duration // zero means no expiry
}

var reportTemplates = map[ReportType]reportTemplate{
	ReportTypeCredit:   {title: "Rent Credit Report", validity: 90 * 24 * time.Hour},
	ReportTypeRental:   {title: "Rental History Report"},
	ReportTypeLandlord: {title: "Landlord Verification Report", validity: 180 * 24 * time.Hour},
}

// UserInfo identifies the tenant on a report
type UserInfo struct {
	TenantID uint   `json:"tenantId"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
}

// PropertyInfo describes one tenancy on a report
type PropertyInfo struct {
	PropertyID         uint                 `json:"propertyId"`
	Address            string               `json:"address"`
	Postcode           string               `json:"postcode"`
	MonthlyRent        string               `json:"monthlyRent"`
	TenancyStart       time.Time            `json:"tenancyStart"`
	TenancyEnd         *time.Time           `json:"tenancyEnd,omitempty"`
	LandlordName       string               `json:"landlordName,omitempty"`
	VerificationStatus models.TenancyStatus `json:"verificationStatus"`
	VerifiedAt         *time.Time           `json:"verifiedAt,omitempty"`
}

// PaymentLine is one period in a report's payment history
type PaymentLine struct {
	PropertyID uint                 `json:"propertyId"`
	Period     string               `json:"period"`
	DueDate    time.Time            `json:"dueDate"`
	PaidDate   *time.Time           `json:"paidDate,omitempty"`
	Amount     string               `json:"amount"`
	Status     models.PaymentStatus `json:"status"`
	Verified   bool                 `json:"verified"`
	Source     models.PaymentSource `json:"source"`
}

// PaymentSummary counts periods by outcome
type PaymentSummary struct {
	MonthsReported int    `json:"monthsReported"`
	OnTime         int    `json:"onTime"`
	Late           int    `json:"late"`
	Missed         int    `json:"missed"`
	Pending        int    `json:"pending"`
	TotalPaid      string `json:"totalPaid"`
}

// CreditSection is specific to credit reports
type CreditSection struct {
	ScoreBand      string  `json:"scoreBand"`
	OnTimeRate     float64 `json:"onTimeRate"`
	CurrentStreak  int     `json:"currentStreak"`
	LongestStreak  int     `json:"longestStreak"`
	MonthsOfRecord int     `json:"monthsOfRecord"`
}

// RentalSection is specific to rental history reports
type RentalSection struct {
	Tenancies []TenancySummary `json:"tenancies"`
}

// TenancySummary is the per-property outcome in a rental history report
type TenancySummary struct {
	PropertyID uint   `json:"propertyId"`
	Address    string `json:"address"`
	Months     int    `json:"months"`
	OnTime     int    `json:"onTime"`
	Late       int    `json:"late"`
	Missed     int    `json:"missed"`
}

// LandlordSection is specific to landlord verification reports
type LandlordSection struct {
	VerifiedTenancies int                   `json:"verifiedTenancies"`
	TotalTenancies    int                   `json:"totalTenancies"`
	VerifiedPayments  int                   `json:"verifiedPayments"`
	VerificationRate  float64               `json:"verificationRate"`
	Attestations      []LandlordAttestation `json:"attestations"`
}

// LandlordAttestation is one landlord decision on a tenancy
type LandlordAttestation struct {
	PropertyID   uint                 `json:"propertyId"`
	LandlordName string               `json:"landlordName,omitempty"`
	Status       models.TenancyStatus `json:"status"`
	VerifiedAt   *time.Time           `json:"verifiedAt,omitempty"`
}

// Report is an immutable point-in-time snapshot
type Report struct {
	ReportID       string           `json:"reportId"`
	ReportType     ReportType       `json:"reportType"`
	Title          string           `json:"title"`
	GeneratedDate  time.Time        `json:"generatedDate"`
	ExpiresAt      *time.Time       `json:"expiresAt,omitempty"`
	UserInfo       UserInfo         `json:"userInfo"`
	Properties     []PropertyInfo   `json:"properties"`
	PaymentHistory []PaymentLine    `json:"paymentHistory"`
	RentScore      int              `json:"rentScore"`
	Metrics        Metrics          `json:"metrics"`
	Badges         []Badge          `json:"badges"`
	Summary        PaymentSummary   `json:"summary"`
	Credit         *CreditSection   `json:"credit,omitempty"`
	Rental         *RentalSection   `json:"rental,omitempty"`
	Landlord       *LandlordSection `json:"landlord,omitempty"`
}

// ReportInput is everything a report is assembled from
type ReportInput struct {
	Type       ReportType
	User       UserInfo
	Properties []PropertyInfo
	History    []PaymentEvent
	Metrics    Metrics
	Badges     []Badge
}

// AssembleReport fills the template of in.Type. The report owns copies of
// every slice, so later changes to in do not reach it.
func AssembleReport(in ReportInput, generatedAt time.Time, reportID string) (Report, error) {
	if !in.Type.Valid() {
		return Report{}, fmt.Errorf("%w: unknown report type %q", ErrValidation, in.Type)
	}
	tmpl := reportTemplates[in.Type]
	if reportID == "" {
		return Report{}, fmt.Errorf("%w: report id is required", ErrValidation)
	}

	generatedAt = generatedAt.UTC()
	due := dueEvents(in.History, generatedAt)
	report := Report{
		ReportID:       reportID,
		ReportType:     in.Type,
		Title:          tmpl.title,
		GeneratedDate:  generatedAt,
		UserInfo:       in.User,
		Properties:     append([]PropertyInfo{}, in.Properties...),
		PaymentHistory: paymentLines(due),
		RentScore:      in.Metrics.RentScore,
		Metrics:        in.Metrics,
		Badges:         append([]Badge{}, in.Badges...),
	}
	if tmpl.validity > 0 {
		expires := generatedAt.Add(tmpl.validity)
		report.ExpiresAt = &expires
	}
	report.Summary = summarise(due)

	switch in.Type {
	case ReportTypeCredit:
		report.Credit = &CreditSection{
			ScoreBand:      ScoreBand(in.Metrics.RentScore),
			OnTimeRate:     in.Metrics.OnTimeRate,
			CurrentStreak:  in.Metrics.CurrentStreak,
			LongestStreak:  in.Metrics.LongestStreak,
			MonthsOfRecord: in.Metrics.ResolvedPeriods,
		}
	case ReportTypeRental:
		report.Rental = &RentalSection{Tenancies: tenancySummaries(report.Properties, report.PaymentHistory)}
	case ReportTypeLandlord:
		report.Landlord = landlordSection(report.Properties, report.PaymentHistory, in.Metrics)
	}

	return report, nil
}

// ScoreBand names the range a rent score falls in
func ScoreBand(score int) string {
	switch {
	case score >= 800:
		return "Excellent"
	case score >= 650:
		return "Good"
	case score >= 500:
		return "Fair"
	case score > 0:
		return "Building"
	default:
		return "No history"
	}
}

// dueEvents returns the periods due by generatedAt in due date order
func dueEvents(history []PaymentEvent, generatedAt time.Time) []PaymentEvent {
	events := make([]PaymentEvent, 0, len(history))
	for _, e := range history {
		if !calendarDay(e.DueDate).After(generatedAt) {
			events = append(events, e)
		}
	}
	sortChronologically(events)
	return events
}

func paymentLines(events []PaymentEvent) []PaymentLine {
	lines := make([]PaymentLine, 0, len(events))
	for _, e := range events {
		var paid *time.Time
		if e.PaidDate != nil {
			p := *e.PaidDate
			paid = &p
		}
		lines = append(lines, PaymentLine{
			PropertyID: e.PropertyID,
			Period:     e.Period,
			DueDate:    e.DueDate,
			PaidDate:   paid,
			Amount:     penceToPounds(e.Amount),
			Status:     e.Status,
			Verified:   e.Verified,
			Source:     e.Source,
		})
	}
	return lines
}

func summarise(events []PaymentEvent) PaymentSummary {
	var s PaymentSummary
	var paidPence int64
	for _, e := range events {
		switch e.Status {
		case models.PaymentStatusPaid:
			s.OnTime++
		case models.PaymentStatusLate:
			s.Late++
		case models.PaymentStatusMissed:
			s.Missed++
		case models.PaymentStatusPending:
			s.Pending++
			continue
		}
		s.MonthsReported++
		if e.Status != models.PaymentStatusMissed {
			paidPence += e.Amount
		}
	}
	s.TotalPaid = penceToPounds(paidPence)
	return s
}

func tenancySummaries(properties []PropertyInfo, lines []PaymentLine) []TenancySummary {
	byProperty := make(map[uint]*TenancySummary, len(properties))
	out := make([]TenancySummary, len(properties))
	for i, p := range properties {
		out[i] = TenancySummary{PropertyID: p.PropertyID, Address: p.Address}
		byProperty[p.PropertyID] = &out[i]
	}
	for _, l := range lines {
		ts, ok := byProperty[l.PropertyID]
		if !ok || l.Status == models.PaymentStatusPending {
			continue
		}
		ts.Months++
		switch l.Status {
		case models.PaymentStatusPaid:
			ts.OnTime++
		case models.PaymentStatusLate:
			ts.Late++
		case models.PaymentStatusMissed:
			ts.Missed++
		}
	}
	return out
}

func landlordSection(properties []PropertyInfo, lines []PaymentLine, metrics Metrics) *LandlordSection {
	section := &LandlordSection{
		TotalTenancies:   len(properties),
		VerificationRate: metrics.VerificationRate,
		Attestations:     make([]LandlordAttestation, 0, len(properties)),
	}
	for _, p := range properties {
		if p.VerificationStatus == models.TenancyStatusVerified {
			section.VerifiedTenancies++
		}
		section.Attestations = append(section.Attestations, LandlordAttestation{
			PropertyID:   p.PropertyID,
			LandlordName: p.LandlordName,
			Status:       p.VerificationStatus,
			VerifiedAt:   p.VerifiedAt,
		})
	}
	for _, l := range lines {
		if l.Verified && l.Status != models.PaymentStatusPending {
			section.VerifiedPayments++
		}
	}
	return section
}
