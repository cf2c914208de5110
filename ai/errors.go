package ai

import (
	"context"
	"errors"
	"strings"
)

// ErrorClass categorizes relay failures for logging and metrics. Every class
// triggers failover; the class only changes how loudly we complain.
type ErrorClass int

const (
	// ErrorClassRateLimited indicates the upstream rejected us for quota
	// reasons; the forwarder is likely exhausted for the rest of its window.
	ErrorClassRateLimited ErrorClass = iota
	// ErrorClassTransient indicates a network or server hiccup that another
	// forwarder (or a later retry) would likely not hit.
	ErrorClassTransient
	// ErrorClassProtocol indicates a 2xx body that did not parse; the
	// forwarder is reachable but speaking the wrong dialect.
	ErrorClassProtocol
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassRateLimited:
		return "rate-limited"
	case ErrorClassTransient:
		return "transient"
	case ErrorClassProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// ClassifyRelayError buckets a Generate error.
//
// Rate-limited: 429, quota or rate-limit wording.
// Protocol: ErrMalformedReply (wrapped).
// Transient: everything else (timeouts, connection errors, 5xx).
func ClassifyRelayError(err error) ErrorClass {
	if err == nil {
		return ErrorClassTransient
	}
	if errors.Is(err, ErrMalformedReply) {
		return ErrorClassProtocol
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTransient
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "429") ||
		strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "quota") ||
		strings.Contains(lower, "resource_exhausted") {
		return ErrorClassRateLimited
	}
	return ErrorClassTransient
}
