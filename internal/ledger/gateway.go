package ledger

import (
	"context"
	"time"
)

// Transfer states reported by the value-transfer network.
const (
	TransferStatePending   = "PENDING"
	TransferStateConfirmed = "CONFIRMED"
	TransferStateFailed    = "FAILED"
)

// TransferRequest describes a value movement between two accounts on
// the external network. IdempotencyKey is caller-supplied so a retry
// after a timeout cannot double-submit.
type TransferRequest struct {
	IdempotencyKey     string `json:"idempotencyKey"`
	SourceAccount      string `json:"sourceAccount"`
	DestinationAccount string `json:"destinationAccount"`
	Amount             int64  `json:"amount"`
	Reference          string `json:"refId,omitempty"`
}

// Transfer is the network's view of a submitted transfer.
type Transfer struct {
	ID         string    `json:"id"`
	State      string    `json:"state"`
	TxHash     string    `json:"txHash,omitempty"`
	Amount     int64     `json:"amount"`
	Reference  string    `json:"refId,omitempty"`
	CreateDate time.Time `json:"createDate"`
}

// Confirmed reports whether the transfer reached a confirmed state.
func (t *Transfer) Confirmed() bool {
	return t != nil && t.State == TransferStateConfirmed
}

// Gateway is the boundary to the external value-transfer network. The
// network is treated as unreliable and asynchronous: every call is
// bounded and failures are retryable unless stated otherwise. These
// are the only operations in the system permitted to block.
type Gateway interface {
	// SubmitTransfer submits a transfer and waits, within the configured
	// bound, for the network to confirm it. A timeout is a failure, never
	// a silent success; the caller may retry with the same idempotency key.
	SubmitTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)

	// PollConfirmation fetches the current state of a submitted transfer.
	PollConfirmation(ctx context.Context, transferID string) (*Transfer, error)

	// QueryBalance returns the balance of an account on the network.
	QueryBalance(ctx context.Context, account string) (int64, error)
}
