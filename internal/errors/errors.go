package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common error types shared by the external clients and the request boundary
var (
	// Upstream errors
	ErrUpstreamTimeout = errors.New("upstream request timed out")
	ErrNotFound        = errors.New("not found")

	// Token errors
	ErrReauthenticationRequired = errors.New("reauthentication required")
	ErrRefreshRejected          = errors.New("refresh token rejected")
	ErrInvalidToken             = errors.New("invalid token")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
)

// UpstreamRejectedError is a non-2xx answer from an external service that no
// other error kind covers. Callers receive the status and body untouched.
type UpstreamRejectedError struct {
	Service     string
	Method      string
	Path        string
	Status      int
	ContentType string
	Body        []byte
}

func (e *UpstreamRejectedError) Error() string {
	return fmt.Sprintf("%s %s %s rejected with status %d: %s", e.Service, e.Method, e.Path, e.Status, truncate(e.Body, 256))
}

// Is lets errors.Is(err, ErrNotFound) match a rejected 404.
func (e *UpstreamRejectedError) Is(target error) bool {
	return target == ErrNotFound && e.Status == 404
}

// ReauthenticationError means the access token cannot be refreshed. RedirectTarget
// is set for interactive callers so they can resume after logging in again.
type ReauthenticationError struct {
	RedirectTarget string
}

func (e *ReauthenticationError) Error() string {
	if e.RedirectTarget == "" {
		return ErrReauthenticationRequired.Error()
	}
	return fmt.Sprintf("%s (resume at %s)", ErrReauthenticationRequired, e.RedirectTarget)
}

func (e *ReauthenticationError) Unwrap() error {
	return ErrReauthenticationRequired
}

// ClassifyTransport maps a transport error to ErrUpstreamTimeout when it is a timeout.
func ClassifyTransport(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	return err
}

// IsTimeout reports whether err is, or wraps, an upstream timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrUpstreamTimeout)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need a single errors import
func New(text string) error {
	return errors.New(text)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
