// Package auth looks up the stream key a publisher is expected to present
// for a given stream name. It is a Create-time collaborator of the Manager,
// not a core component: the core only needs the Provider interface and the
// AuthenticationFailed classification below.
package auth

import (
	"context"
	"errors"
	"fmt"
)

// ErrAuthenticationFailed classifies every rejection a Provider can produce:
// unknown stream name, missing key, or mismatched key are indistinguishable
// to the caller, so a probing publisher cannot learn which case occurred.
var ErrAuthenticationFailed = errors.New("auth: authentication failed")

// AuthError carries the stream name alongside ErrAuthenticationFailed for
// logging; callers should match on ErrAuthenticationFailed via errors.Is.
type AuthError struct {
	Op         string
	StreamName string
	Err        error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth: %s %q: %v", e.Op, e.StreamName, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

func newAuthError(op, streamName string) error {
	return &AuthError{Op: op, StreamName: streamName, Err: ErrAuthenticationFailed}
}

// Provider authenticates a publisher's stream key at Create time. It is
// queried once per Create and never again for the life of the Channel.
type Provider interface {
	Authenticate(ctx context.Context, streamName, streamKey string) error
}

// NoopProvider accepts every stream key; selected when auth_enable is false.
type NoopProvider struct{}

func (NoopProvider) Authenticate(context.Context, string, string) error { return nil }
