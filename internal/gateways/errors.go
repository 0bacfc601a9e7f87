package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError is raised before any network call and is never retried.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func NewValidationError(field, reason string, err error) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Err: err}
}

func (e *ValidationError) Error() string {
	msg := "validation failed"
	if e.Field != "" {
		msg += " on " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ConfigurationError reports missing gateway credentials. It is never retried.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "sms gateway is not configured: missing " + strings.Join(e.Missing, ", ")
}

// GatewayRejection means the gateway answered but did not accept the request,
// or accepted it while refusing some destinations.
type GatewayRejection struct {
	Op       string
	Reason   string
	Body     []byte
	Rejected []DestinationStatus
}

func (e *GatewayRejection) Error() string {
	if len(e.Rejected) > 0 {
		return fmt.Sprintf("gateway %s rejected %d destination(s): %s", e.Op, len(e.Rejected), e.Reason)
	}
	return fmt.Sprintf("gateway %s rejected: %s", e.Op, e.Reason)
}

// Partial reports whether the handshake succeeded but some destinations were refused.
func (e *GatewayRejection) Partial() bool { return len(e.Rejected) > 0 }

type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s transport failure (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable is true only for gateway rejections and transport failures.
func IsRetryable(err error) bool {
	var rejection *GatewayRejection
	var transport *TransportError
	return errors.As(err, &rejection) || errors.As(err, &transport)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsConfiguration(err error) bool {
	var c *ConfigurationError
	return errors.As(err, &c)
}
