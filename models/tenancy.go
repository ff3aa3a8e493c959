package models

import (
	"time"
)

// TenancyStatus is the landlord verification state of a tenancy
type TenancyStatus string

const (
	TenancyStatusPending  TenancyStatus = "PENDING"
	TenancyStatusVerified TenancyStatus = "VERIFIED"
	TenancyStatusRejected TenancyStatus = "REJECTED"
)

// Tenancy links a tenant to a property from StartDate
type Tenancy struct {
	ID                 uint          `gorm:"primaryKey"`
	TenantID           uint          `gorm:"column:tenant_id;not null;uniqueIndex:idx_tenancy_tenant_property"`
	Tenant             User          `gorm:"foreignKey:TenantID"`
	PropertyID         uint          `gorm:"column:property_id;not null;uniqueIndex:idx_tenancy_tenant_property"`
	Property           Property      `gorm:"foreignKey:PropertyID"`
	StartDate          time.Time     `gorm:"column:start_date;not null"`
	EndDate            *time.Time    `gorm:"column:end_date"`
	VerificationStatus TenancyStatus `gorm:"column:verification_status;type:varchar(20);not null;default:'PENDING'"`
	VerifiedAt         *time.Time    `gorm:"column:verified_at"`
	VerifiedByID       *uint         `gorm:"column:verified_by_id"`
	CreatedAt          time.Time     `gorm:"column:created_at"`
	UpdatedAt          time.Time     `gorm:"column:updated_at"`
}

func (Tenancy) TableName() string {
	return "tenancies"
}

// ActiveAt reports whether the tenancy covers t
func (t Tenancy) ActiveAt(at time.Time) bool {
	if at.Before(t.StartDate) {
		return false
	}
	return t.EndDate == nil || !at.After(*t.EndDate)
}
