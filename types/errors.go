package types

import "errors"

// Error kinds shared across the interaction layers
var (
	// ErrNavigationRedirected means a guarded click kept leaving the page past its retry budget
	ErrNavigationRedirected = errors.New("navigation redirected")
	// ErrElementNotFound means every locator strategy came back empty
	ErrElementNotFound = errors.New("element not found")
	// ErrVerificationMismatch means the selected side did not match the requested side
	ErrVerificationMismatch = errors.New("direction verification mismatch")
	// ErrParseAmbiguous marks a row field that had no usable signal
	ErrParseAmbiguous = errors.New("parse ambiguous")
	// ErrFallbackFailure covers API and keystroke fallbacks that did not land
	ErrFallbackFailure = errors.New("fallback failure")
	// ErrInvalidTradeRequest rejects bad caller input before any page interaction
	ErrInvalidTradeRequest = errors.New("invalid trade request")
	// ErrMaxPositions rejects a request when the open-position cap is reached
	ErrMaxPositions = errors.New("max positions reached")
)
