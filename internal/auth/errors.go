package auth

import (
	"errors"
	"fmt"
)

// Kind classifies authentication failures. Kinds are stable identifiers;
// callers branch on them, never on message text.
type Kind string

const (
	KindInvalidCredentials    Kind = "invalid_credentials"
	KindEmailNotConfirmed     Kind = "email_not_confirmed"
	KindNetworkUnavailable    Kind = "network_unavailable"
	KindTimeout               Kind = "timeout"
	KindProviderRejected      Kind = "provider_rejected"
	KindProfileUnavailable    Kind = "profile_unavailable"
	KindTokenExchangeFailed   Kind = "token_exchange_failed"
	KindTokenExpiredNoRefresh Kind = "token_expired_no_refresh"
	KindConflict              Kind = "conflict"
	KindValidationFailed      Kind = "validation_failed"
)

// Error is the failure type surfaced by every lifecycle operation.
// It wraps an optional cause for errors.Is/As chains.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two *Errors by kind, so errors.Is(err, &Error{Kind: k})
// works without comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// E builds an error of the given kind.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from an error chain. Unclassified errors
// report KindProviderRejected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindProviderRejected
}

// AsError normalizes err into an *Error, classifying unknown errors as
// provider rejections.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(KindProviderRejected, err.Error(), err)
}

// Retryable reports whether the failure is transient. Retryable failures
// must never tear down otherwise valid state.
func Retryable(k Kind) bool {
	switch k {
	case KindTimeout, KindNetworkUnavailable, KindTokenExchangeFailed, KindProfileUnavailable:
		return true
	}
	return false
}
