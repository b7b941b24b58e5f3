package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by stores when a conversation (or other
	// addressed entity) does not exist.
	ErrNotFound = errors.New("not found")

	// ErrWriteConflict is returned by stores when a concurrent writer
	// prevented an append from being applied consistently.
	ErrWriteConflict = errors.New("write conflict")

	// ErrInvalidMessage is returned when a message is missing its speaker or
	// conversation reference.
	ErrInvalidMessage = errors.New("invalid message")
)

// ErrorKind classifies an AgentClient failure.
type ErrorKind string

const (
	// KindMissingCredential means the vendor API key was not configured.
	KindMissingCredential ErrorKind = "missing_credential"
	// KindTimeout means the call did not complete within its deadline.
	KindTimeout ErrorKind = "timeout"
	// KindTransport means the request never produced an HTTP response.
	KindTransport ErrorKind = "transport_error"
	// KindUpstream means the vendor answered with an error payload or status.
	KindUpstream ErrorKind = "upstream_error"
	// KindMalformedResponse means the vendor answered 2xx without usable text.
	KindMalformedResponse ErrorKind = "malformed_response"
)

func (k ErrorKind) describe() string {
	switch k {
	case KindMissingCredential:
		return "missing credential"
	case KindTimeout:
		return "timed out"
	case KindTransport:
		return "transport error"
	case KindUpstream:
		return "upstream error"
	case KindMalformedResponse:
		return "malformed response"
	default:
		return string(k)
	}
}

// AgentError is the typed failure returned by every AgentClient.
type AgentError struct {
	Kind    ErrorKind
	Vendor  string
	Message string
	Err     error
}

// NewAgentError builds an AgentError for vendor with a formatted message.
func NewAgentError(kind ErrorKind, vendor string, format string, args ...any) *AgentError {
	return &AgentError{Kind: kind, Vendor: vendor, Message: fmt.Sprintf(format, args...)}
}

// Error implements error.
func (e *AgentError) Error() string {
	var b strings.Builder
	if e.Vendor != "" {
		b.WriteString(e.Vendor)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.describe())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause.
func (e *AgentError) Unwrap() error { return e.Err }

// Retryable reports whether a scheduler-level retry may succeed.
func (e *AgentError) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindTransport
}

// AsAgentError returns err as an *AgentError. Errors that are not already
// classified become timeouts (deadline exceeded) or transport errors.
func AsAgentError(err error) *AgentError {
	if err == nil {
		return nil
	}
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &AgentError{Kind: KindTimeout, Err: err}
	}
	return &AgentError{Kind: KindTransport, Err: err}
}

// Describe renders a failure as the literal reply text recorded in the
// transcript for agentName. The result is never empty.
func Describe(agentName string, err error) string {
	ae := AsAgentError(err)
	if ae == nil {
		return fmt.Sprintf("Error: %s returned no reply.", agentName)
	}
	return fmt.Sprintf("Error: %s could not respond (%s).", agentName, ae.Error())
}
