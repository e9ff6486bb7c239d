package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	domainauth "github.com/uvalib/tracksys2/internal/domain/auth"
)

// Issuer is stamped on tokens minted by the built-in authenticate modes.
const Issuer = "tracksys2"

// ErrNoSigningKey is returned by Mint when no key is configured.
var ErrNoSigningKey = errors.New("no jwt signing key configured")

// Claims is the JWT payload shared with the tracksys backend.
type Claims struct {
	UserID    int64  `json:"userID"`
	ComputeID string `json:"computeID"`
	Role      string `json:"role"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	jwt.RegisteredClaims
}

// Codec decodes and mints session tokens.
//
// Without a key, Decode reads the payload without verifying the signature;
// the backend still verifies every bearer token it receives.
type Codec struct {
	key []byte
	now func() time.Time
}

// NewCodec builds a codec. key may be empty.
func NewCodec(key string) *Codec {
	return &Codec{key: []byte(key), now: time.Now}
}

// Verifies reports whether Decode checks signatures.
func (c *Codec) Verifies() bool { return len(c.key) > 0 }

// Decode parses raw into a user. Any malformed, unsigned (when verifying)
// or expired (when verifying) token is an error.
func (c *Codec) Decode(raw string) (domainauth.User, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domainauth.User{}, errors.New("empty token")
	}

	var claims Claims
	if c.Verifies() {
		parser := jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(c.now),
		)
		if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
			return c.key, nil
		}); err != nil {
			return domainauth.User{}, fmt.Errorf("verify token: %w", err)
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
			return domainauth.User{}, fmt.Errorf("decode token: %w", err)
		}
	}

	return domainauth.User{
		ID:        claims.UserID,
		ComputeID: claims.ComputeID,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
		Role:      domainauth.Role(strings.ToLower(claims.Role)),
	}, nil
}

// Mint signs an HS256 token for u that expires after ttl.
func (c *Codec) Mint(u domainauth.User, ttl time.Duration) (string, error) {
	if !c.Verifies() {
		return "", ErrNoSigningKey
	}
	now := c.now()
	claims := Claims{
		UserID:    u.ID,
		ComputeID: u.ComputeID,
		Role:      string(u.Role),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   u.ComputeID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
