package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode is a stable machine-readable oracle error code.
type ErrorCode string

const (
	ErrInvalidQuery            ErrorCode = "INVALID_QUERY"
	ErrStaleData               ErrorCode = "STALE_DATA"
	ErrLowConfidence           ErrorCode = "LOW_CONFIDENCE"
	ErrConsensusNotReached     ErrorCode = "CONSENSUS_NOT_REACHED"
	ErrSourceUnavailable       ErrorCode = "SOURCE_UNAVAILABLE"
	ErrProofGenerationFailed   ErrorCode = "PROOF_GENERATION_FAILED"
	ErrProofVerificationFailed ErrorCode = "PROOF_VERIFICATION_FAILED"
	ErrEncryptionFailed        ErrorCode = "ENCRYPTION_FAILED"
	ErrDecryptionFailed        ErrorCode = "DECRYPTION_FAILED"
	ErrCommitmentMismatch      ErrorCode = "COMMITMENT_MISMATCH"
	ErrRateLimited             ErrorCode = "RATE_LIMITED"
)

// OracleError carries a stable code plus a human-readable message and
// timestamp. Error payloads never contain raw cryptographic material or
// prices.
type OracleError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	cause     error
}

// Error returns the error message string.
func (e *OracleError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *OracleError) Unwrap() error {
	return e.cause
}

// NewOracleError creates a new OracleError with a specific code and message.
func NewOracleError(code ErrorCode, message string) *OracleError {
	return &OracleError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// NewOracleErrorf creates a new OracleError with a formatted message.
func NewOracleErrorf(code ErrorCode, format string, args ...interface{}) *OracleError {
	return NewOracleError(code, fmt.Sprintf(format, args...))
}

// WrapOracleError creates a new OracleError wrapping an underlying cause.
func WrapOracleError(code ErrorCode, message string, cause error) *OracleError {
	return &OracleError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// CodeOf extracts the oracle error code from an error chain. Unknown errors
// map to SOURCE_UNAVAILABLE at the collection boundary and are otherwise
// reported verbatim.
func CodeOf(err error) (ErrorCode, bool) {
	var oe *OracleError
	if errors.As(err, &oe) {
		return oe.Code, true
	}
	return "", false
}
