// Package auth verifies the bearer tokens issued by the account service.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

// TokenVerifier checks HS256 tokens whose "sub" claim is the user id and
// whose optional "name" claim is the display name.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify returns the identity carried by the token. Every failure wraps
// domain.ErrUnauthorized.
func (v *TokenVerifier) Verify(raw string) (*domain.Identity, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: token verification is not configured", domain.ErrUnauthorized)
	}

	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims", domain.ErrUnauthorized)
	}

	userID, err := subject(claims["sub"])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	name, _ := claims["name"].(string)
	if name == "" {
		name = fmt.Sprintf("user-%d", userID)
	}

	return &domain.Identity{UserID: userID, DisplayName: name}, nil
}

// FromHeader extracts and verifies a "Bearer" Authorization header value.
func (v *TokenVerifier) FromHeader(header string) (*domain.Identity, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return nil, fmt.Errorf("%w: missing bearer token", domain.ErrUnauthorized)
	}

	return v.Verify(raw)
}

// Issue signs a token for the identity. It is used by tooling and tests; the
// booking service itself never issues tokens.
func (v *TokenVerifier) Issue(identity domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now().UTC()

	claims := jwt.MapClaims{
		"sub":  strconv.Itoa(identity.UserID),
		"name": identity.DisplayName,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func subject(sub any) (int, error) {
	var (
		id  int
		err error
	)

	switch s := sub.(type) {
	case string:
		id, err = strconv.Atoi(s)
	case float64:
		id = int(s)
	default:
		err = errors.New("missing subject")
	}

	if err != nil {
		return 0, err
	}

	if id < 1 {
		return 0, fmt.Errorf("invalid subject %v", sub)
	}

	return id, nil
}
