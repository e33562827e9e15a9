package ledger

import "errors"

// Error is a failure at the value-transfer network boundary. Retryable
// errors are safe to retry because no escrow state is recorded unless
// the network confirms.
type Error struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	return e.Message
}

var (
	// ErrUnavailable means the network could not be reached or answered
	// with a server error
	ErrUnavailable = &Error{Code: "LEDGER_UNAVAILABLE", Message: "ledger network unavailable", Retryable: true}

	// ErrTimeout means the bounded wait for submission or confirmation
	// lapsed; the transfer may or may not have landed and must be
	// re-queried or retried with the same idempotency key
	ErrTimeout = &Error{Code: "LEDGER_TIMEOUT", Message: "ledger call timed out", Retryable: true}

	// ErrTransferRejected means the network actively refused the transfer
	ErrTransferRejected = &Error{Code: "TRANSFER_REJECTED", Message: "transfer rejected by ledger network", Retryable: false}
)

// IsRetryable reports whether err is a retryable ledger failure.
func IsRetryable(err error) bool {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Retryable
	}
	return false
}

// IsLedgerError reports whether err originated at the ledger boundary.
func IsLedgerError(err error) bool {
	var lerr *Error
	return errors.As(err, &lerr)
}
