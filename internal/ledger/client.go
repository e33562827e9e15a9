package ledger

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	httpclient "github.com/ubuntu-health/sponsorship-api/internal/clients/http"
	"github.com/ubuntu-health/sponsorship-api/internal/logger"
)

const (
	// defaultConfirmTimeout bounds a submit-and-confirm call.
	defaultConfirmTimeout = 30 * time.Second
	defaultPollInterval   = 2 * time.Second
)

// Client is the HTTP implementation of Gateway.
type Client struct {
	httpClient     *httpclient.HTTPClient
	apiKey         string
	confirmTimeout time.Duration
	pollInterval   time.Duration
	log            *zap.Logger
}

// ClientOption customizes the ledger client.
type ClientOption func(*Client)

// WithConfirmTimeout overrides the submit-and-confirm bound.
func WithConfirmTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.confirmTimeout = d }
}

// WithPollInterval overrides the confirmation polling interval.
func WithPollInterval(d time.Duration) ClientOption {
	return func(c *Client) { c.pollInterval = d }
}

// NewClient creates a ledger client against the given network endpoint.
func NewClient(baseURL, apiKey string, options ...ClientOption) *Client {
	c := &Client{
		httpClient: httpclient.NewHTTPClient(
			httpclient.WithBaseURL(baseURL),
			httpclient.WithTimeout(10*time.Second),
		),
		apiKey:         apiKey,
		confirmTimeout: defaultConfirmTimeout,
		pollInterval:   defaultPollInterval,
		log:            logger.Log,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

type transferResponse struct {
	Data struct {
		Transfer Transfer `json:"transfer"`
	} `json:"data"`
}

type balanceResponse struct {
	Data struct {
		Account string `json:"account"`
		Balance int64  `json:"balance"`
	} `json:"data"`
}

// SubmitTransfer submits a transfer and polls until the network
// confirms or the bound lapses. The whole sequence is treated as one
// capability: callers never see a submitted-but-unconfirmed success.
func (c *Client) SubmitTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	if req.IdempotencyKey == "" {
		return nil, pkgerrors.WithMessage(ErrTransferRejected, "idempotency key is required")
	}
	if req.Amount <= 0 {
		return nil, pkgerrors.WithMessage(ErrTransferRejected, "amount must be positive")
	}

	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	resp, err := c.httpClient.Post(ctx, "transfers", req, httpclient.WithBearerToken(c.apiKey))
	if err != nil {
		return nil, c.mapTransportError(ctx, err, "submit transfer")
	}
	defer resp.Body.Close()

	var submitted transferResponse
	if err := c.httpClient.ProcessJSONResponse(resp, &submitted); err != nil {
		return nil, c.mapTransportError(ctx, err, "submit transfer")
	}

	transfer := submitted.Data.Transfer
	c.log.Info("Transfer submitted",
		zap.String("transfer_id", transfer.ID),
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.Int64("amount", req.Amount))

	return c.awaitConfirmation(ctx, transfer)
}

// awaitConfirmation polls the transfer until it settles or the context
// deadline lapses.
func (c *Client) awaitConfirmation(ctx context.Context, transfer Transfer) (*Transfer, error) {
	for {
		switch transfer.State {
		case TransferStateConfirmed:
			return &transfer, nil
		case TransferStateFailed:
			return nil, pkgerrors.WithMessagef(ErrTransferRejected, "transfer %s failed on network", transfer.ID)
		}

		select {
		case <-ctx.Done():
			return nil, pkgerrors.WithMessagef(ErrTimeout, "transfer %s not confirmed in time", transfer.ID)
		case <-time.After(c.pollInterval):
		}

		polled, err := c.PollConfirmation(ctx, transfer.ID)
		if err != nil {
			return nil, err
		}
		transfer = *polled
	}
}

// PollConfirmation fetches the current state of a transfer.
func (c *Client) PollConfirmation(ctx context.Context, transferID string) (*Transfer, error) {
	if transferID == "" {
		return nil, pkgerrors.WithMessage(ErrTransferRejected, "transfer ID is required")
	}

	resp, err := c.httpClient.Get(ctx, fmt.Sprintf("transfers/%s", transferID), httpclient.WithBearerToken(c.apiKey))
	if err != nil {
		return nil, c.mapTransportError(ctx, err, "poll confirmation")
	}
	defer resp.Body.Close()

	var polled transferResponse
	if err := c.httpClient.ProcessJSONResponse(resp, &polled); err != nil {
		return nil, c.mapTransportError(ctx, err, "poll confirmation")
	}
	return &polled.Data.Transfer, nil
}

// QueryBalance returns the balance of an account on the network.
func (c *Client) QueryBalance(ctx context.Context, account string) (int64, error) {
	resp, err := c.httpClient.Get(ctx, fmt.Sprintf("accounts/%s/balance", account), httpclient.WithBearerToken(c.apiKey))
	if err != nil {
		return 0, c.mapTransportError(ctx, err, "query balance")
	}
	defer resp.Body.Close()

	var balance balanceResponse
	if err := c.httpClient.ProcessJSONResponse(resp, &balance); err != nil {
		return 0, c.mapTransportError(ctx, err, "query balance")
	}
	return balance.Data.Balance, nil
}

// mapTransportError translates transport and HTTP failures into the
// ledger error taxonomy.
func (c *Client) mapTransportError(ctx context.Context, err error, operation string) error {
	c.log.Warn("Ledger call failed",
		zap.String("operation", operation),
		zap.Error(err))

	if ctx.Err() != nil {
		return pkgerrors.WithMessage(ErrTimeout, operation)
	}

	var httpErr *httpclient.HTTPError
	if pkgerrors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
		return pkgerrors.WithMessagef(ErrTransferRejected, "%s: status %d", operation, httpErr.StatusCode)
	}
	return pkgerrors.WithMessage(ErrUnavailable, operation)
}
