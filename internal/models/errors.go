package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks malformed quotes, probabilities, or parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidQuote is returned when a quote fails validation.
	ErrInvalidQuote = fmt.Errorf("%w: invalid quote", ErrInvalidInput)

	// ErrSourceUnavailable marks a transient quote source failure.
	ErrSourceUnavailable = errors.New("quote source unavailable")

	// ErrDispatchFailure marks a failed alert delivery.
	ErrDispatchFailure = errors.New("alert dispatch failed")
)
