package receipt

import (
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrReceiptNotFound is returned when no receipt has the requested id.
	ErrReceiptNotFound = errors.New("receipt not found")

	// ErrInvalidReceipt is returned when a receipt fails validation on write.
	ErrInvalidReceipt = errors.New("invalid receipt")

	// ErrDuplicateReceipt is returned when a write collides with an
	// existing line item key.
	ErrDuplicateReceipt = errors.New("duplicate receipt")

	// ErrInvalidPredicate is returned for predicates outside the allow-list.
	ErrInvalidPredicate = errors.New("invalid predicate")
)

// TranslateError converts GORM errors into the package errors.
// Unknown errors are returned unchanged.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrReceiptNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateReceipt
	case errors.Is(err, gorm.ErrInvalidData):
		return ErrInvalidReceipt
	}

	return err
}
