package httputil

import (
	"errors"

	dErrors "bobinator/pkg/domain-errors"
)

// Normalizable is implemented by request types that trim or default their fields.
type Normalizable interface {
	Normalize()
}

// Validatable is implemented by request types that check their own invariants.
type Validatable interface {
	Validate() error
}

// PrepareRequest normalizes then validates req. Non-domain validation errors
// are reported as CodeValidation.
func PrepareRequest(req any) error {
	if n, ok := req.(Normalizable); ok {
		n.Normalize()
	}
	v, ok := req.(Validatable)
	if !ok {
		return nil
	}
	err := v.Validate()
	if err == nil {
		return nil
	}
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return dErrors.New(dErrors.CodeValidation, err.Error())
}
