package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"promo-bot/sentinel"
)

// storeErr maps gorm errors onto the sentinel kinds. Anything it does not
// recognize is reported as the store being unavailable.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
	case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrConflict),
		errors.Is(err, sentinel.ErrPoolExhausted), errors.Is(err, sentinel.ErrUnavailable):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	}
}
