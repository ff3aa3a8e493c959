package models

import (
	"time"
)

// TenantBadge is an achievement earned by a tenant. A badge type is held at
// most once per tenant and EarnedAt never changes after insert.
type TenantBadge struct {
	ID          uint      `gorm:"primaryKey"`
	TenantID    uint      `gorm:"not null;uniqueIndex:idx_tenant_badge"`
	BadgeType   string    `gorm:"type:varchar(40);not null;uniqueIndex:idx_tenant_badge"`
	Title       string    `gorm:"size:80;not null"`
	Description string    `gorm:"size:255"`
	IconName    string    `gorm:"size:40"`
	EarnedAt    time.Time `gorm:"not null"`
	CreatedAt   time.Time
}

func (TenantBadge) TableName() string {
	return "tenant_badges"
}
