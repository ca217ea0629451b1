// Package auth decides whether the caller of a vault operation is entitled
// to act as a given principal. The vault only ever asks a yes/no question;
// how a caller proves its identity is up to the Authorizer.
package auth

import (
	"context"
	"sync"
)

// Authorizer reports whether the caller carried by ctx may act as principal.
type Authorizer interface {
	Authorized(ctx context.Context, principal string) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, principal string) bool

// Authorized calls f.
func (f AuthorizerFunc) Authorized(ctx context.Context, principal string) bool {
	return f(ctx, principal)
}

// AllowAll approves every principal. Use it for trusted in-process callers
// and tests.
func AllowAll() Authorizer {
	return AuthorizerFunc(func(context.Context, string) bool { return true })
}

// Static approves a fixed, mutable set of principals regardless of ctx.
type Static struct {
	mu      sync.RWMutex
	allowed map[string]struct{}
}

// NewStatic creates a Static authorizer approving the given principals.
func NewStatic(principals ...string) *Static {
	s := &Static{allowed: make(map[string]struct{}, len(principals))}
	for _, p := range principals {
		s.allowed[p] = struct{}{}
	}
	return s
}

// Allow adds principal to the approved set.
func (s *Static) Allow(principal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowed[principal] = struct{}{}
}

// Revoke removes principal from the approved set.
func (s *Static) Revoke(principal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.allowed, principal)
}

// Authorized implements Authorizer.
func (s *Static) Authorized(_ context.Context, principal string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.allowed[principal]
	return ok
}
