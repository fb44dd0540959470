package settlement

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/hkdf"
)

// ErrInvalidToken is returned for payment link tokens that fail
// verification or have expired.
var ErrInvalidToken = errors.New("invalid or expired payment token")

const keyInfo = "splitit payment link v1"

// LinkClaims are carried in a payment link token.
type LinkClaims struct {
	SessionID  string `json:"session_id"`
	MemberID   string `json:"member_id"`
	MemberName string `json:"member_name"`
	Amount     string `json:"amount"`
	jwt.RegisteredClaims
}

// LinkSigner signs and verifies payment link tokens.
type LinkSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewLinkSigner derives a signing key from secret. Tokens expire after ttl.
func NewLinkSigner(secret string, ttl time.Duration) (*LinkSigner, error) {
	if secret == "" {
		return nil, errors.New("settlement secret is required")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}
	return &LinkSigner{key: key, ttl: ttl, now: time.Now}, nil
}

// Generate signs a token asking memberID to pay amount.
func (s *LinkSigner) Generate(sessionID, memberID, memberName string, amount decimal.Decimal) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := &LinkClaims{
		SessionID:  sessionID,
		MemberID:   memberID,
		MemberName: memberName,
		Amount:     amount.StringFixed(2),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, expires, nil
}

// Verify parses and validates a token, returning its claims.
func (s *LinkSigner) Verify(tokenString string) (*LinkClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&LinkClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.key, nil
		},
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*LinkClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
