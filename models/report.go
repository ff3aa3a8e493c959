package models

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrReportImmutable is returned when something tries to change a stored report
var ErrReportImmutable = errors.New("reports are immutable once generated")

// Report is a point-in-time snapshot of a tenant's history. Payload holds
// the full rendered report body.
type Report struct {
	ID          string         `gorm:"primaryKey;type:varchar(36)"`
	TenantID    uint           `gorm:"not null;index"`
	PropertyID  *uint          `gorm:"index"`
	ReportType  string         `gorm:"type:varchar(20);not null"`
	RentScore   int            `gorm:"not null"`
	GeneratedAt time.Time      `gorm:"not null"`
	ExpiresAt   *time.Time     `gorm:""`
	Payload     datatypes.JSON `gorm:"not null"`
	CreatedAt   time.Time
}

func (Report) TableName() string {
	return "reports"
}

// BeforeUpdate refuses every update
func (r *Report) BeforeUpdate(tx *gorm.DB) error {
	return ErrReportImmutable
}

// BeforeDelete refuses every delete
func (r *Report) BeforeDelete(tx *gorm.DB) error {
	return ErrReportImmutable
}

// ReportShare is a time-limited public link to a report. The link secret is
// stored only as a bcrypt hash.
type ReportShare struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)"`
	ReportID       string     `gorm:"type:varchar(36);not null;index"`
	Report         Report     `gorm:"foreignKey:ReportID"`
	TenantID       uint       `gorm:"not null;index"`
	TokenHash      string     `gorm:"size:100;not null"`
	ExpiresAt      time.Time  `gorm:"not null"`
	RevokedAt      *time.Time
	AccessCount    int        `gorm:"not null;default:0"`
	LastAccessedAt *time.Time
	CreatedAt      time.Time
}

func (ReportShare) TableName() string {
	return "report_shares"
}
