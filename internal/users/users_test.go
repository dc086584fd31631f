package users_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tally/internal/apperr"
	"tally/internal/testsupport"
	"tally/internal/users"
)

func TestRegister(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	t.Run("creates user with unset preferences", func(t *testing.T) {
		user, err := users.Register(db, logger, "Ada", "  Ada@Example.com ", "password123")
		require.NoError(t, err)

		assert.Equal(t, "Ada", user.Name)
		assert.Equal(t, "ada@example.com", user.Email)
		assert.NotEqual(t, "password123", user.EncryptedPassword)
		assert.False(t, user.PrefSet)
		assert.Empty(t, user.Timezone)
		assert.Empty(t, user.DateFormat)
		assert.Equal(t, "UTC", user.TimezoneOrDefault())
		assert.Equal(t, "DD-MM-YYYY", string(user.Format()))
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		_, err := users.Register(db, logger, "Ada Again", "ada@example.com", "password123")
		assert.ErrorIs(t, err, users.ErrEmailExists)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		assert.Equal(t, "Email already exists", apperr.MessageOf(err, ""))
	})

	t.Run("validates input", func(t *testing.T) {
		testCases := []struct {
			name     string
			userName string
			email    string
			password string
			expected error
		}{
			{"empty name", "  ", "a@example.com", "password123", users.ErrInvalidName},
			{"long name", strings.Repeat("x", 101), "a@example.com", "password123", users.ErrInvalidName},
			{"bad email", "Bob", "not-an-email", "password123", users.ErrInvalidEmail},
			{"short password", "Bob", "bob@example.com", "abc123", users.ErrWeakPassword},
			{"no digit", "Bob", "bob@example.com", "passwordonly", users.ErrWeakPassword},
			{"no letter", "Bob", "bob@example.com", "1234567890", users.ErrWeakPassword},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := users.Register(db, logger, tc.userName, tc.email, tc.password)
				assert.ErrorIs(t, err, tc.expected)
				assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			})
		}
	})
}

func TestAuthenticate(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	_, err := users.Register(db, logger, "Grace", "grace@example.com", "hopper1906")
	require.NoError(t, err)

	t.Run("accepts correct password", func(t *testing.T) {
		user, err := users.Authenticate(db, "GRACE@example.com", "hopper1906")
		require.NoError(t, err)
		assert.Equal(t, "grace@example.com", user.Email)
	})

	t.Run("wrong password and unknown email fail the same way", func(t *testing.T) {
		_, wrongPassword := users.Authenticate(db, "grace@example.com", "wrong-pass1")
		_, unknownEmail := users.Authenticate(db, "nobody@example.com", "hopper1906")

		assert.ErrorIs(t, wrongPassword, users.ErrInvalidCredentials)
		assert.ErrorIs(t, unknownEmail, users.ErrInvalidCredentials)
		assert.Equal(t, apperr.MessageOf(wrongPassword, ""), apperr.MessageOf(unknownEmail, ""))
	})
}

func TestSetPreferences(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	user, err := users.Register(db, logger, "Linus", "linus@example.com", "kernel2024")
	require.NoError(t, err)

	t.Run("stores preferences", func(t *testing.T) {
		updated, err := users.SetPreferences(db, logger, user.ID, "Europe/Helsinki", "YYYY-MM-DD")
		require.NoError(t, err)
		assert.True(t, updated.PrefSet)

		reloaded, err := users.FindByID(db, user.ID)
		require.NoError(t, err)
		assert.True(t, reloaded.PrefSet)
		assert.Equal(t, "Europe/Helsinki", reloaded.Timezone)
		assert.Equal(t, "YYYY-MM-DD", reloaded.DateFormat)
		assert.Equal(t, "Europe/Helsinki", reloaded.Location().String())
	})

	t.Run("accepts UTC", func(t *testing.T) {
		_, err := users.SetPreferences(db, logger, user.ID, "UTC", "MM/DD/YYYY")
		assert.NoError(t, err)
	})

	t.Run("rejects unknown timezone", func(t *testing.T) {
		_, err := users.SetPreferences(db, logger, user.ID, "Atlantis/Capital", "YYYY-MM-DD")
		assert.ErrorIs(t, err, users.ErrInvalidTimezone)
	})

	t.Run("rejects unknown date format", func(t *testing.T) {
		_, err := users.SetPreferences(db, logger, user.ID, "UTC", "YYYY.MM.DD")
		assert.ErrorIs(t, err, users.ErrInvalidDateFormat)
	})

	t.Run("rejects unknown user", func(t *testing.T) {
		_, err := users.SetPreferences(db, logger, 9999, "UTC", "YYYY-MM-DD")
		assert.ErrorIs(t, err, users.ErrUserNotFound)
	})
}

func TestChangePassword(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	_, err := users.Register(db, logger, "Ken", "ken@example.com", "unix1969a")
	require.NoError(t, err)

	t.Run("changes password successfully", func(t *testing.T) {
		require.NoError(t, users.ChangePassword(db, logger, "ken@example.com", "plan9from2"))

		_, err := users.Authenticate(db, "ken@example.com", "plan9from2")
		assert.NoError(t, err)
		_, err = users.Authenticate(db, "ken@example.com", "unix1969a")
		assert.ErrorIs(t, err, users.ErrInvalidCredentials)
	})

	t.Run("returns error for non-existent user", func(t *testing.T) {
		err := users.ChangePassword(db, logger, "nobody@example.com", "newpassword1")
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})

	t.Run("returns error for weak password", func(t *testing.T) {
		err := users.ChangePassword(db, logger, "ken@example.com", "short")
		assert.ErrorIs(t, err, users.ErrWeakPassword)
	})
}
