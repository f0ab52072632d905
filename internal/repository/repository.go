// Package repository holds the gorm data access for every aggregate.
// Repositories are bound to a *gorm.DB; WithTx rebinds them to a transaction.
package repository

import (
	"errors"

	"gorm.io/gorm"
)

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// found turns gorm.ErrRecordNotFound into (false, nil).
func found(err error) (bool, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}
