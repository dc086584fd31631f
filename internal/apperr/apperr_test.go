package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"tally/internal/apperr"
)

func TestKindAndMessage(t *testing.T) {
	t.Run("wrapped errors keep their kind", func(t *testing.T) {
		err := fmt.Errorf("register: %w", apperr.Conflict("Email already exists"))

		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		assert.Equal(t, "Email already exists", apperr.MessageOf(err, "Something went wrong"))
	})

	t.Run("plain errors are storage errors", func(t *testing.T) {
		err := errors.New("disk I/O error")

		assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
		assert.Equal(t, "Something went wrong", apperr.MessageOf(err, "Something went wrong"))
	})

	t.Run("storage errors expose their fixed message only", func(t *testing.T) {
		err := apperr.Storage("Failed to fetch top pages", errors.New("database is locked"))

		assert.Equal(t, "Failed to fetch top pages", apperr.MessageOf(err, "fallback"))
		assert.Contains(t, err.Error(), "database is locked")
		assert.ErrorContains(t, errors.Unwrap(err), "locked")
	})

	t.Run("errors.Is compares kind and message", func(t *testing.T) {
		forbidden := apperr.Authorization("Forbidden")
		err := fmt.Errorf("gate: %w", apperr.Authorization("Forbidden"))

		assert.ErrorIs(t, err, forbidden)
		assert.NotErrorIs(t, err, apperr.Authentication("Unauthorized"))
	})
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, apperr.IsUniqueViolation(errors.New("UNIQUE constraint failed: sites.public_key")))
	assert.True(t, apperr.IsUniqueViolation(fmt.Errorf("create: %w", gorm.ErrDuplicatedKey)))
	assert.False(t, apperr.IsUniqueViolation(errors.New("database is locked")))
	assert.False(t, apperr.IsUniqueViolation(nil))
}
