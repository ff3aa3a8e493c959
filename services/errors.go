package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrNotFound covers unknown tenants, properties, reports and shares
	ErrNotFound = errors.New("not found")
	// ErrExpired is returned for share links past their lifetime
	ErrExpired = errors.New("link expired")
	// ErrConflict is returned when a write collides with existing state
	ErrConflict = errors.New("conflict")
	// ErrForbidden is returned when the caller does not own the resource
	ErrForbidden = errors.New("access denied")
	// ErrValidation wraps request validation failures
	ErrValidation = errors.New("validation failed")
)

// DataIntegrityError describes a stored payment record that cannot be used.
// The ledger skips such records instead of failing the read.
type DataIntegrityError struct {
	PaymentID uint
	Reason    string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("payment %d: %s", e.PaymentID, e.Reason)
}

// validationError turns validator errors into a readable ErrValidation
func validationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var messages []string
	for _, e := range validationErrors {
		switch e.Tag() {
		case "required":
			messages = append(messages, "field "+e.Field()+" is required")
		case "gt", "gte", "min":
			messages = append(messages, "field "+e.Field()+" must be at least "+e.Param())
		case "max", "lte":
			messages = append(messages, "field "+e.Field()+" must be at most "+e.Param())
		case "oneof":
			messages = append(messages, "field "+e.Field()+" must be one of: "+e.Param())
		case "email":
			messages = append(messages, "field "+e.Field()+" must be an e-mail address")
		default:
			messages = append(messages, "field "+e.Field()+" is invalid")
		}
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(messages, "; "))
}
