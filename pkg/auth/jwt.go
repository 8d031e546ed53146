package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey int

const accountKey ctxKey = 1

// WithAccount adds an account ID to the context
func WithAccount(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, accountKey, id)
}

// AccountID extracts the account ID from the context, empty when anonymous
func AccountID(ctx context.Context) string {
	v := ctx.Value(accountKey)
	if v == nil {
		return ""
	}
	return v.(string)
}

// JWT wraps a signing secret for issuing/verifying tokens
type JWT struct{ secret []byte }

// New creates a new JWT signer/verifier.
func New(secret string) *JWT { return &JWT{secret: []byte(secret)} }

// Sign creates a token for the account with the given TTL. The username
// rides along as a convenience claim; the subject is the account ID.
func (j *JWT) Sign(id, username string, ttl time.Duration) (string, error) {
	if id == "" {
		return "", errors.New("empty account id")
	}
	claims := jwt.MapClaims{
		"sub":      id,
		"username": username,
		"iat":      time.Now().Unix(),
		"exp":      time.Now().Add(ttl).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(j.secret)
}

// Verify checks a token and returns the sub (account ID) claim
func (j *JWT) Verify(tok string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tok, claims, func(token *jwt.Token) (interface{}, error) {
		return j.secret, nil
	})
	if err != nil {
		return "", err
	}
	id, _ := claims["sub"].(string)
	if id == "" {
		return "", errors.New("no sub")
	}
	return id, nil
}
