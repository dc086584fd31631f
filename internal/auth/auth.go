// Package auth issues and verifies bearer credentials and decides whether a
// caller may read a site's data.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"tally/internal/apperr"
	"tally/internal/config"
	"tally/internal/websites"
)

var (
	ErrUnauthorized = apperr.Authentication("Unauthorized")
	ErrForbidden    = apperr.Authorization("Forbidden")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the payload of a bearer token.
type Claims struct {
	UserID uint   `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller of a request. A nil Identity is anonymous.
type Identity struct {
	UserID uint
	Email  string
}

// IssueToken signs a token for the user valid for the configured TTL.
func IssueToken(userID uint, email string) (string, error) {
	return IssueTokenAt(userID, email, time.Now())
}

// IssueTokenAt signs a token as if issued at now.
func IssueTokenAt(userID uint, email string, now time.Time) (string, error) {
	cfg := config.GetConfig()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL())),
		},
	})

	signed, err := token.SignedString(cfg.TokenSigningKey())
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies signature and expiry and returns the claims.
func ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return config.GetConfig().TokenSigningKey(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IdentityFromHeader resolves an Authorization header value, raw or
// "Bearer "-prefixed. Anything unverifiable yields nil.
func IdentityFromHeader(header string) *Identity {
	token := strings.TrimSpace(header)
	if len(token) > 7 && strings.EqualFold(token[:7], "Bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return nil
	}

	claims, err := ParseToken(token)
	if err != nil {
		return nil
	}
	return &Identity{UserID: claims.UserID, Email: claims.Email}
}

// AssertAuthenticated returns the caller's user id or ErrUnauthorized.
func AssertAuthenticated(identity *Identity) (uint, error) {
	if identity == nil || identity.UserID == 0 {
		return 0, ErrUnauthorized
	}
	return identity.UserID, nil
}

// AssertOwnsSite fails with ErrForbidden unless userID owns siteID. Absent
// and foreign sites are indistinguishable.
func AssertOwnsSite(db *gorm.DB, userID, siteID uint) (*websites.Site, error) {
	site, err := websites.FindOwnedSite(db, userID, siteID)
	if err != nil {
		var notFound *websites.SiteNotFoundError
		if errors.As(err, &notFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	return site, nil
}

// AuthorizeSiteAccess combines AssertAuthenticated and AssertOwnsSite.
func AuthorizeSiteAccess(db *gorm.DB, identity *Identity, siteID uint) (*websites.Site, error) {
	userID, err := AssertAuthenticated(identity)
	if err != nil {
		return nil, err
	}
	return AssertOwnsSite(db, userID, siteID)
}
