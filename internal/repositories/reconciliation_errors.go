package repositories

import "fmt"

// ReconciliationErrorCode enumerates repository error causes for settlement operations.
type ReconciliationErrorCode string

const (
	// ReconciliationErrorUnknown represents an unspecified failure.
	ReconciliationErrorUnknown ReconciliationErrorCode = "reconciliation_unknown"
	// ReconciliationErrorOrderNotFound indicates the referenced order document is missing.
	ReconciliationErrorOrderNotFound ReconciliationErrorCode = "reconciliation_order_not_found"
	// ReconciliationErrorPaymentNotFound indicates no payment matches the processor session.
	ReconciliationErrorPaymentNotFound ReconciliationErrorCode = "reconciliation_payment_not_found"
	// ReconciliationErrorInvalidState indicates the order status forbids the transition.
	ReconciliationErrorInvalidState ReconciliationErrorCode = "reconciliation_invalid_state"
)

// ReconciliationError wraps settlement failures with machine readable codes.
type ReconciliationError struct {
	Op      string
	Code    ReconciliationErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ReconciliationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *ReconciliationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewReconciliationError constructs a typed reconciliation error.
func NewReconciliationError(code ReconciliationErrorCode, message string, err error) *ReconciliationError {
	if message == "" {
		message = string(code)
	}
	return &ReconciliationError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
