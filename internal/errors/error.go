package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// common errors
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrNoParser          = errors.New("no document parser configured")
	ErrStreamAborted     = errors.New("stream aborted")

	// store errors
	ErrStoreNotStarted = errors.New("sync item store not started")
)

// ConnectionFailure is implemented by every error that describes a failed
// attempt to reach or read from a remote resource.
type ConnectionFailure interface {
	error
	connectionFailure()
}

// ConnectionError is the generic network or status-code failure.
type ConnectionError struct {
	Message    string
	StatusCode int
	Cause      error
}

func NewConnectionError(message string, cause error) *ConnectionError {
	return &ConnectionError{Message: message, Cause: cause}
}

func NewStatusError(statusCode int, message string) *ConnectionError {
	return &ConnectionError{Message: message, StatusCode: statusCode}
}

func (e *ConnectionError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
	default:
		return e.Message
	}
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

func (e *ConnectionError) connectionFailure() {}

// AuthenticationRequiredError signals a 401 challenge. Realm is empty when
// the server did not announce one.
type AuthenticationRequiredError struct {
	URI   string
	Realm string
}

func (e *AuthenticationRequiredError) Error() string {
	if e.Realm != "" {
		return fmt.Sprintf("authentication required for %s (realm %q)", e.URI, e.Realm)
	}
	return fmt.Sprintf("authentication required for %s", e.URI)
}

func (e *AuthenticationRequiredError) connectionFailure() {}

type ProxyAuthenticationRequiredError struct {
	URI string
}

func (e *ProxyAuthenticationRequiredError) Error() string {
	return fmt.Sprintf("proxy authentication required for %s", e.URI)
}

func (e *ProxyAuthenticationRequiredError) connectionFailure() {}

// SyncConnectionError is raised when the aggregation service rejects the
// account itself rather than the request.
type SyncConnectionError struct {
	Code           string
	Message        string
	RemediationURL string
}

func (e *SyncConnectionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

func (e *SyncConnectionError) connectionFailure() {}

// NotModifiedError is informational: the resource did not change since the
// validators carried by the request.
type NotModifiedError struct {
	URI string
}

func (e *NotModifiedError) Error() string {
	return fmt.Sprintf("%s not modified", e.URI)
}

func (e *NotModifiedError) connectionFailure() {}

type UnknownProtocolError struct {
	Scheme string
}

func (e *UnknownProtocolError) Error() string {
	if e.Scheme == "" {
		return "unknown protocol: missing scheme"
	}
	return fmt.Sprintf("unknown protocol %q", e.Scheme)
}

type CredentialsError struct {
	Message string
	Cause   error
}

func (e *CredentialsError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CredentialsError) Unwrap() error { return e.Cause }

// EncodingError is reported by a document parser when the declared or
// detected character encoding could not be used.
type EncodingError struct {
	Cause error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding error: %v", e.Cause)
}

func (e *EncodingError) Unwrap() error { return e.Cause }

func IsConnectionFailure(err error) bool {
	var cf ConnectionFailure
	return errors.As(err, &cf)
}

// IsPlainConnectionError reports whether err is a ConnectionError and not one
// of the more specific connection failures.
func IsPlainConnectionError(err error) bool {
	var cf ConnectionFailure
	if !errors.As(err, &cf) {
		return false
	}
	_, plain := cf.(*ConnectionError)
	return plain
}

func IsNotModified(err error) bool {
	var nm *NotModifiedError
	return errors.As(err, &nm)
}

func IsAuthenticationRequired(err error) bool {
	var ar *AuthenticationRequiredError
	return errors.As(err, &ar)
}

func IsEncodingError(err error) bool {
	var ee *EncodingError
	return errors.As(err, &ee)
}
