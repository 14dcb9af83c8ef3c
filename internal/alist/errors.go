package alist

import (
	"errors"
	"fmt"
	"strings"
)

// TransportError is a network level failure: connection refused, timeout,
// reset or a cancelled context.
type TransportError struct {
	Op   string
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("alist %s %s: transport: %v", e.Op, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError means the server answered but not with a success. HTTPStatus
// is set for non 2xx responses, Code and Message for a failing envelope.
type ProtocolError struct {
	Op         string
	Path       string
	HTTPStatus int
	Code       int
	Message    string
	Err        error
}

func (e *ProtocolError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("alist %s %s: protocol: %v", e.Op, e.Path, e.Err)
	case e.Code != 0:
		return fmt.Sprintf("alist %s %s: code %d: %s", e.Op, e.Path, e.Code, e.Message)
	default:
		return fmt.Sprintf("alist %s %s: unexpected status %d: %s", e.Op, e.Path, e.HTTPStatus, e.Message)
	}
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// AuthError is a failure that names the password. The resource exists but
// the configured password does not open it.
type AuthError struct {
	Op      string
	Path    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("alist %s %s: password rejected: %s", e.Op, e.Path, e.Message)
}

func mentionsPassword(message string) bool {
	return strings.Contains(strings.ToLower(message), "password")
}

// Classify names the error class for logs and failure reports.
func Classify(err error) string {
	var authErr *AuthError
	var protocolErr *ProtocolError
	var transportErr *TransportError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &protocolErr):
		return "protocol"
	case errors.As(err, &transportErr):
		return "transport"
	default:
		return "unexpected"
	}
}
