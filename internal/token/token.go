// Package token encodes and decodes the signed access tokens used to prove
// identity on each request.
//
// Access tokens are HS256 JWTs carrying sub, email, type and, when minted
// alongside a refresh row, jti = the session id. Refresh tokens are opaque
// random strings and never pass through this package; the signed "refresh"
// kind survives only for backward-compatibility tests.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// TypeAccess marks a short-lived access token.
	TypeAccess = "access"
	// TypeRefresh is the legacy signed-refresh kind. Never use it for real
	// authentication; opaque refresh tokens replaced it.
	TypeRefresh = "refresh"
)

var (
	ErrMalformedToken = errors.New("malformed token")
	ErrWrongTokenType = errors.New("unexpected token type")
	ErrMissingClaim   = errors.New("required claim missing")
)

// Claims defines the custom JWT claims for this system.
type Claims struct {
	Email     string `json:"email,omitempty"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// Service signs and verifies tokens with a server-held symmetric secret.
// The algorithm is pinned to HS256 in the decoder; the token header has no
// say in algorithm selection.
type Service struct {
	secret    []byte
	accessTTL time.Duration
}

// NewService creates a token service. accessTTL defaults to 30 minutes when
// non-positive.
func NewService(secret []byte, accessTTL time.Duration) *Service {
	if accessTTL <= 0 {
		accessTTL = 30 * time.Minute
	}
	return &Service{secret: secret, accessTTL: accessTTL}
}

// AccessTTL returns the configured access-token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// MakeAccess mints a signed access token for the user. sessionID, when
// non-nil, becomes the jti claim linking the token to its refresh row.
// extra claims are reserved for callers that need additional context and may
// be nil.
func (s *Service) MakeAccess(userID uuid.UUID, email string, sessionID *uuid.UUID, extra map[string]any) (string, error) {
	return s.make(TypeAccess, userID, email, sessionID, s.accessTTL, extra)
}

// MakeRefresh mints a legacy signed refresh token.
//
// Deprecated: real refresh tokens are opaque. This exists only so old
// decoder tests keep passing.
func (s *Service) MakeRefresh(userID uuid.UUID, email string, ttl time.Duration) (string, error) {
	return s.make(TypeRefresh, userID, email, nil, ttl, nil)
}

func (s *Service) make(kind string, userID uuid.UUID, email string, sessionID *uuid.UUID, ttl time.Duration, extra map[string]any) (string, error) {
	now := time.Now()

	claims := Claims{
		Email:     email,
		TokenType: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if sessionID != nil {
		claims.ID = sessionID.String()
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if len(extra) > 0 {
		// Callers supplying extra claims get a map envelope; Decode still
		// reads the typed subset and ignores the rest.
		mc := jwt.MapClaims{
			"sub":   claims.Subject,
			"email": claims.Email,
			"type":  claims.TokenType,
			"exp":   claims.ExpiresAt.Unix(),
			"iat":   claims.IssuedAt.Unix(),
		}
		if claims.ID != "" {
			mc["jti"] = claims.ID
		}
		for k, v := range extra {
			mc[k] = v
		}
		tok = jwt.NewWithClaims(jwt.SigningMethodHS256, mc)
	}

	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Decode parses and signature-checks a token, returning its claims. Expiry
// is deliberately not enforced here — callers combine Decode with IsExpired
// so an expired-but-authentic token can still be inspected.
func (s *Service) Decode(tokenString string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrMalformedToken
	}
	return claims, nil
}

func (s *Service) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return s.secret, nil
}

// RequireType decodes the token and rejects it when the embedded type
// differs from expected. This stops an access token being replayed where a
// refresh token is required, and vice versa.
func (s *Service) RequireType(tokenString, expected string) (*Claims, error) {
	claims, err := s.Decode(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != expected {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongTokenType, claims.TokenType, expected)
	}
	return claims, nil
}

// UserIDOf extracts the subject user id.
func (s *Service) UserIDOf(tokenString string) (uuid.UUID, error) {
	claims, err := s.Decode(tokenString)
	if err != nil {
		return uuid.Nil, err
	}
	if claims.Subject == "" {
		return uuid.Nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: sub is not a uuid", ErrMissingClaim)
	}
	return id, nil
}

// SessionIDOf extracts the jti session id.
func (s *Service) SessionIDOf(tokenString string) (uuid.UUID, error) {
	claims, err := s.Decode(tokenString)
	if err != nil {
		return uuid.Nil, err
	}
	if claims.ID == "" {
		return uuid.Nil, fmt.Errorf("%w: jti", ErrMissingClaim)
	}
	id, err := uuid.Parse(claims.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: jti is not a uuid", ErrMissingClaim)
	}
	return id, nil
}

// ExpirationOf returns the exp claim, or nil when absent.
func (s *Service) ExpirationOf(tokenString string) (*time.Time, error) {
	claims, err := s.Decode(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.ExpiresAt == nil {
		return nil, nil
	}
	t := claims.ExpiresAt.Time
	return &t, nil
}

// IsExpired reports whether the token is past its expiry. The boundary is
// inclusive: exp == now counts as expired. Any decode failure also counts
// as expired.
func (s *Service) IsExpired(tokenString string) bool {
	claims, err := s.Decode(tokenString)
	if err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return !time.Now().Before(claims.ExpiresAt.Time)
}

// Validate is the request-path check: signature, type=access, not expired.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	claims, err := s.RequireType(tokenString, TypeAccess)
	if err != nil {
		return nil, err
	}
	if claims.ExpiresAt == nil || !time.Now().Before(claims.ExpiresAt.Time) {
		return nil, jwt.ErrTokenExpired
	}
	return claims, nil
}
