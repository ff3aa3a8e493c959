package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// UserRole is the role carried by the identity token
type UserRole string

const (
	UserRoleTenant   UserRole = "TENANT"
	UserRoleLandlord UserRole = "LANDLORD"
	UserRoleAdmin    UserRole = "ADMIN"
)

// User mirrors an identity owned by the external identity service
type User struct {
	ID            uint      `gorm:"primaryKey"`
	FirstName     string    `gorm:"column:first_name;not null;size:50"`
	LastName      string    `gorm:"column:last_name;not null;size:50"`
	Email         string    `gorm:"column:email;unique;not null;size:100;index"`
	Phone         string    `gorm:"column:phone;size:30"`
	Role          UserRole  `gorm:"column:role;type:varchar(20);not null;default:'TENANT'"`
	MonthlyIncome int64     `gorm:"column:monthly_income;not null;default:0"` // pence
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (User) TableName() string {
	return "users"
}

// FullName joins first and last name
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// BeforeSave validates the record before insert or update
func (u *User) BeforeSave(tx *gorm.DB) error {
	if len(u.Email) < 3 || len(u.Email) > 100 {
		return errors.New("email must be between 3 and 100 characters")
	}
	switch u.Role {
	case UserRoleTenant, UserRoleLandlord, UserRoleAdmin:
	default:
		return errors.New("unknown user role")
	}
	if u.MonthlyIncome < 0 {
		return errors.New("monthly income must not be negative")
	}
	return nil
}
