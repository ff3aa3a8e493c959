package services

import (
	"strconv"
	"time"

	"github.com/beevik/etree"
)

// ExportReportXML renders a report as an XML document for download
func ExportReportXML(r Report) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("rentReport")
	root.CreateAttr("id", r.ReportID)
	root.CreateAttr("type", string(r.ReportType))
	root.CreateElement("title").SetText(r.Title)
	root.CreateElement("generatedDate").SetText(r.GeneratedDate.UTC().Format(time.RFC3339))
	if r.ExpiresAt != nil {
		root.CreateElement("expiresAt").SetText(r.ExpiresAt.UTC().Format(time.RFC3339))
	}

	tenant := root.CreateElement("tenant")
	tenant.CreateElement("name").SetText(r.UserInfo.FullName)
	tenant.CreateElement("email").SetText(r.UserInfo.Email)

	score := root.CreateElement("score")
	score.CreateAttr("value", strconv.Itoa(r.RentScore))
	score.CreateElement("currentStreak").SetText(strconv.Itoa(r.Metrics.CurrentStreak))
	score.CreateElement("longestStreak").SetText(strconv.Itoa(r.Metrics.LongestStreak))
	score.CreateElement("onTimeRate").SetText(formatRate(r.Metrics.OnTimeRate))
	score.CreateElement("verificationRate").SetText(formatRate(r.Metrics.VerificationRate))
	components := score.CreateElement("components")
	components.CreateAttr("paymentHistory", formatRate(r.Metrics.Components.PaymentHistory))
	components.CreateAttr("verification", formatRate(r.Metrics.Components.Verification))
	components.CreateAttr("streak", formatRate(r.Metrics.Components.Streak))

	properties := root.CreateElement("properties")
	for _, p := range r.Properties {
		el := properties.CreateElement("property")
		el.CreateAttr("id", strconv.FormatUint(uint64(p.PropertyID), 10))
		el.CreateAttr("verification", string(p.VerificationStatus))
		el.CreateElement("address").SetText(p.Address)
		el.CreateElement("monthlyRent").SetText(p.MonthlyRent)
		el.CreateElement("tenancyStart").SetText(p.TenancyStart.UTC().Format(time.DateOnly))
	}

	history := root.CreateElement("payments")
	for _, l := range r.PaymentHistory {
		el := history.CreateElement("payment")
		el.CreateAttr("period", l.Period)
		el.CreateAttr("propertyId", strconv.FormatUint(uint64(l.PropertyID), 10))
		el.CreateAttr("status", string(l.Status))
		el.CreateAttr("source", string(l.Source))
		el.CreateAttr("verified", strconv.FormatBool(l.Verified))
		el.CreateElement("dueDate").SetText(l.DueDate.UTC().Format(time.DateOnly))
		if l.PaidDate != nil {
			el.CreateElement("paidDate").SetText(l.PaidDate.UTC().Format(time.DateOnly))
		}
		el.CreateElement("amount").SetText(l.Amount)
	}

	badges := root.CreateElement("badges")
	for _, b := range r.Badges {
		el := badges.CreateElement("badge")
		el.CreateAttr("type", string(b.BadgeType))
		el.CreateAttr("icon", string(b.IconName))
		el.CreateAttr("earnedAt", b.EarnedAt.UTC().Format(time.DateOnly))
		el.SetText(b.Title)
	}

	summary := root.CreateElement("summary")
	summary.CreateAttr("monthsReported", strconv.Itoa(r.Summary.MonthsReported))
	summary.CreateAttr("onTime", strconv.Itoa(r.Summary.OnTime))
	summary.CreateAttr("late", strconv.Itoa(r.Summary.Late))
	summary.CreateAttr("missed", strconv.Itoa(r.Summary.Missed))
	summary.CreateAttr("totalPaid", r.Summary.TotalPaid)

	if r.Credit != nil {
		root.CreateElement("scoreBand").SetText(r.Credit.ScoreBand)
	}
	if r.Landlord != nil {
		el := root.CreateElement("landlordVerification")
		el.CreateAttr("verifiedTenancies", strconv.Itoa(r.Landlord.VerifiedTenancies))
		el.CreateAttr("totalTenancies", strconv.Itoa(r.Landlord.TotalTenancies))
		el.CreateAttr("verifiedPayments", strconv.Itoa(r.Landlord.VerifiedPayments))
	}

	doc.Indent(2)
	return doc.WriteToBytes()
}

func formatRate(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
