package models

import (
	"time"

	"gorm.io/gorm"
)

// PaymentStatus is the state of one rent period
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending" // not resolved yet
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusLate    PaymentStatus = "late"
	PaymentStatusMissed  PaymentStatus = "missed"
)

// Valid reports whether s is a known status
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusLate, PaymentStatusMissed:
		return true
	}
	return false
}

// PaymentSource says where a payment record came from
type PaymentSource string

const (
	PaymentSourceBank   PaymentSource = "bank"
	PaymentSourceManual PaymentSource = "manual"
)

// PeriodLayout formats the due period of a payment
const PeriodLayout = "2006-01"

// Payment is one rent period of a tenancy. There is at most one record per
// property, period and source; the ledger merges bank and manual records.
type Payment struct {
	gorm.Model
	TenantID       uint          `gorm:"not null;index"`
	PropertyID     uint          `gorm:"not null;uniqueIndex:idx_payment_period_source"`
	Period         string        `gorm:"type:varchar(7);not null;uniqueIndex:idx_payment_period_source"`
	Source         PaymentSource `gorm:"type:varchar(10);not null;uniqueIndex:idx_payment_period_source"`
	Amount         int64         `gorm:"not null"` // pence
	DueDate        time.Time     `gorm:"not null;index"`
	PaidDate       *time.Time
	Status         PaymentStatus `gorm:"type:varchar(10);not null;default:'pending'"`
	Verified       bool          `gorm:"not null;default:false"`
	VerifiedByID   *uint
	Superseded     bool `gorm:"not null;default:false"`
	SupersededByID *uint
	Reference      string `gorm:"size:100"`
}

func (Payment) TableName() string {
	return "payments"
}
