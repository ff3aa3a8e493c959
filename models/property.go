package models

import (
	"time"
)

// Property is a rented home registered by a tenant
type Property struct {
	ID            uint      `gorm:"primaryKey"`
	AddressLine1  string    `gorm:"column:address_line1;not null;size:120"`
	AddressLine2  string    `gorm:"column:address_line2;size:120"`
	City          string    `gorm:"column:city;not null;size:80"`
	Postcode      string    `gorm:"column:postcode;not null;size:10"`
	MonthlyRent   int64     `gorm:"column:monthly_rent;not null"` // pence
	RentDueDay    int       `gorm:"column:rent_due_day;not null;default:1"`
	LandlordName  string    `gorm:"column:landlord_name;size:100"`
	LandlordEmail string    `gorm:"column:landlord_email;size:100;index"`
	LandlordID    *uint     `gorm:"column:landlord_id;index"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (Property) TableName() string {
	return "properties"
}

// Address renders the postal address on one line
func (p Property) Address() string {
	addr := p.AddressLine1
	if p.AddressLine2 != "" {
		addr += ", " + p.AddressLine2
	}
	return addr + ", " + p.City + " " + p.Postcode
}
