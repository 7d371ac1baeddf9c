package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token is a session token handed out by POST /login. The dashboard cannot verify the
// signature (it never holds the server secret); it only reads the claims it needs.
type Token struct {
	Raw       string
	Subject   string
	UserID    int64
	ExpiresAt time.Time
}

// ParseToken decodes the claims of a JWT without verifying its signature.
func ParseToken(raw string) (*Token, error) {
	if raw == "" {
		return nil, errors.New("token: empty")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}

	t := &Token{Raw: raw}
	if sub, err := claims.GetSubject(); err == nil {
		t.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t.ExpiresAt = exp.Time.UTC()
	}
	if id, ok := extractUserID(claims); ok {
		t.UserID = id
	}
	return t, nil
}

// Expired reports whether the token carries an expiry that has passed.
func (t *Token) Expired(now time.Time) bool {
	if t == nil || t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(t.ExpiresAt)
}

// Header is the Authorization value for the token.
func (t *Token) Header() string {
	return "Bearer " + t.Raw
}

func extractUserID(claims jwt.MapClaims) (int64, bool) {
	switch v := claims["user_id"].(type) {
	case float64:
		return int64(v), true
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}
