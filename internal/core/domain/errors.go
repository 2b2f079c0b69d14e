package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrContractViolation   = errors.New("contract violation")
	ErrFusionInput         = errors.New("fusion input corrupted")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrScenarioNotFound    = errors.New("scenario not found")
	ErrTemporary           = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

func errInvalidField(msg string) error {
	return errors.New(msg)
}
