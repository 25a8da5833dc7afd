package services

import (
	"errors"
	"fmt"
)

// ErrNotFound signals an operation against a user id that does not exist.
var ErrNotFound = errors.New("user not found")

// ErrInvalidInput signals a malformed or out-of-range request value. No store
// mutation is attempted when it is returned.
var ErrInvalidInput = errors.New("invalid input")

// ErrUsernameTaken signals a signup against an already-registered username.
var ErrUsernameTaken = errors.New("username is already taken")

// InsufficientCreditsError is returned when a reservation fails because the
// balance is below the required cost. The balance reported is the one read
// after the conditional debit declined.
type InsufficientCreditsError struct {
	Balance  int
	Required int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: have %d, need %d", e.Balance, e.Required)
}

// UpstreamFailureError is returned when the upstream transport fails or the
// upstream responds with a non-success status. The reservation it follows
// has already been refunded by the time the caller sees this error.
type UpstreamFailureError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamFailureError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("upstream request failed: %v", e.Err)
	}
	return fmt.Sprintf("upstream request failed (%d)", e.StatusCode)
}

func (e *UpstreamFailureError) Unwrap() error { return e.Err }

// UpstreamTimeoutError is returned when the video polling loop exhausts its
// wall-clock budget. No refund accompanies it: the start call's cost covers
// the compute attempt.
type UpstreamTimeoutError struct {
	LastStatus string
}

func (e *UpstreamTimeoutError) Error() string {
	return fmt.Sprintf("timed out while waiting for video generation to finish (last status: %s)", e.LastStatus)
}
