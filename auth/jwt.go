package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type tokenKey struct{}

// WithToken returns a copy of ctx carrying a raw bearer token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the bearer token stored by WithToken.
func TokenFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(tokenKey{}).(string)
	return tok, ok && tok != ""
}

// JWTAuthorizer approves a principal when the context carries an
// HMAC-signed, unexpired JWT whose subject equals that principal.
type JWTAuthorizer struct {
	key    []byte
	issuer string
}

// JWTOption configures a JWTAuthorizer.
type JWTOption func(*JWTAuthorizer)

// WithIssuer requires tokens to carry the given "iss" claim.
func WithIssuer(issuer string) JWTOption {
	return func(a *JWTAuthorizer) { a.issuer = issuer }
}

// NewJWTAuthorizer creates a JWTAuthorizer verifying with key.
func NewJWTAuthorizer(key []byte, opts ...JWTOption) *JWTAuthorizer {
	a := &JWTAuthorizer{key: key}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authorized implements Authorizer.
func (a *JWTAuthorizer) Authorized(ctx context.Context, principal string) bool {
	raw, ok := TokenFromContext(ctx)
	if !ok || principal == "" {
		return false
	}
	sub, err := a.Subject(raw)
	if err != nil {
		return false
	}
	return sub == principal
}

// Subject verifies raw and returns its "sub" claim.
func (a *JWTAuthorizer) Subject(raw string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{
		jwt.SigningMethodHS256.Alg(),
		jwt.SigningMethodHS384.Alg(),
		jwt.SigningMethodHS512.Alg(),
	})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return a.key, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("auth: parse token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("auth: token not valid")
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("auth: token has no subject")
	}
	return sub, nil
}

// Sign issues an HS256 token for subject that expires after ttl. A zero ttl
// issues a token without expiry.
func (a *JWTAuthorizer) Sign(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		Issuer:   a.issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}
