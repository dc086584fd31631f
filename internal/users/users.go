package users

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/karloscodes/cartridge/crypto"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"tally/internal/apperr"
	"tally/internal/timeframe"
)

const maxNameLength = 100

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// bcrypt hash of "dummy", checked when the email is unknown so both login
// failures cost the same.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

var emailPattern = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

type User struct {
	ID                uint   `gorm:"primaryKey"`
	Name              string `gorm:"not null"`
	Email             string `gorm:"uniqueIndex;not null"`
	EncryptedPassword string `gorm:"not null"`
	Timezone          string
	DateFormat        string
	PrefSet           bool      `gorm:"not null;default:false"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

var (
	ErrEmailExists        = apperr.Conflict("Email already exists")
	ErrInvalidCredentials = apperr.Authentication("Invalid credentials")
	ErrInvalidName        = apperr.Validation("Name is required and must be at most 100 characters")
	ErrInvalidEmail       = apperr.Validation("Invalid email address")
	ErrWeakPassword       = apperr.Validation("Password must be at least 8 characters and contain a letter and a digit")
	ErrInvalidTimezone    = apperr.Validation("Invalid timezone")
	ErrInvalidDateFormat  = apperr.Validation("Invalid date format")
	ErrUserNotFound       = apperr.NotFound("User not found")
)

// Location returns the user's timezone, UTC when unset or unloadable.
func (u *User) Location() *time.Location {
	loc, err := timeframe.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TimezoneOrDefault returns the stored timezone or UTC.
func (u *User) TimezoneOrDefault() string {
	if u.Timezone == "" {
		return timeframe.DefaultTimezone
	}
	return u.Timezone
}

// Format returns the stored date format or the default one.
func (u *User) Format() timeframe.DateFormat {
	return timeframe.DateFormat(u.DateFormat).OrDefault()
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return ErrWeakPassword
	}
	return nil
}

// FindByEmail retrieves a user by email.
func FindByEmail(db *gorm.DB, email string) (*User, error) {
	var user User
	if err := db.Where("email = ?", NormalizeEmail(email)).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID retrieves a user by ID.
func FindByID(db *gorm.DB, id uint) (*User, error) {
	var user User
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Register creates an account with unset preferences.
func Register(db *gorm.DB, logger *slog.Logger, name, email, password string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > maxNameLength {
		return nil, ErrInvalidName
	}

	email = NormalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return nil, ErrInvalidEmail
	}

	if err := validatePassword(password); err != nil {
		return nil, err
	}

	if _, err := FindByEmail(db, email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}

	hashedPassword, err := crypto.GeneratePasswordHash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		Name:              name,
		Email:             email,
		EncryptedPassword: string(hashedPassword),
	}

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(user).Error
	})
	if apperr.IsUniqueViolation(err) {
		return nil, ErrEmailExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logger.Info("User registered", slog.Int("userId", int(user.ID)))
	return user, nil
}

// Authenticate checks credentials. Unknown email and wrong password fail
// with the same error.
func Authenticate(db *gorm.DB, email, password string) (*User, error) {
	user, err := FindByEmail(db, email)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to look up user: %w", err)
		}
		crypto.VerifyPassword(dummyHash, password)
		return nil, ErrInvalidCredentials
	}

	if !crypto.VerifyPassword(user.EncryptedPassword, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// SetPreferences stores the timezone and date format and marks them as set.
func SetPreferences(db *gorm.DB, logger *slog.Logger, userID uint, timezone, dateFormat string) (*User, error) {
	timezone = strings.TrimSpace(timezone)
	if timezone == "" {
		return nil, ErrInvalidTimezone
	}
	if _, err := timeframe.LoadLocation(timezone); err != nil {
		return nil, ErrInvalidTimezone
	}

	format, ok := timeframe.ParseDateFormat(dateFormat)
	if !ok {
		return nil, ErrInvalidDateFormat
	}

	user, err := FindByID(db, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(user).Updates(map[string]any{
			"timezone":    timezone,
			"date_format": string(format),
			"pref_set":    true,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save preferences: %w", err)
	}

	user.Timezone = timezone
	user.DateFormat = string(format)
	user.PrefSet = true
	return user, nil
}

// ChangePassword re-hashes the password of the user with the given email.
func ChangePassword(db *gorm.DB, logger *slog.Logger, email, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}

	user, err := FindByEmail(db, email)
	if err != nil {
		return err
	}

	hashedPassword, err := crypto.GeneratePasswordHash(password)
	if err != nil {
		return err
	}

	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(user).Update("encrypted_password", string(hashedPassword)).Error
	})
}
