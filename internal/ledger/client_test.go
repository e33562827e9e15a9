package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTransfer(w http.ResponseWriter, transfer Transfer) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data": map[string]interface{}{"transfer": transfer},
	})
}

func testRequest() TransferRequest {
	return TransferRequest{
		IdempotencyKey:     "commit:c1:a1",
		SourceAccount:      "sponsorWallet",
		DestinationAccount: "custody",
		Amount:             500,
		Reference:          "c1",
	}
}

func TestSubmitTransfer_ImmediateConfirmation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/transfers", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req TransferRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "commit:c1:a1", req.IdempotencyKey)

		writeTransfer(w, Transfer{ID: "tx-1", State: TransferStateConfirmed, Amount: req.Amount})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	transfer, err := client.SubmitTransfer(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "tx-1", transfer.ID)
	assert.True(t, transfer.Confirmed())
}

func TestSubmitTransfer_PollsUntilConfirmed(t *testing.T) {
	var polls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			writeTransfer(w, Transfer{ID: "tx-2", State: TransferStatePending})
		case r.URL.Path == "/transfers/tx-2":
			if atomic.AddInt32(&polls, 1) < 3 {
				writeTransfer(w, Transfer{ID: "tx-2", State: TransferStatePending})
				return
			}
			writeTransfer(w, Transfer{ID: "tx-2", State: TransferStateConfirmed})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", WithPollInterval(10*time.Millisecond))
	transfer, err := client.SubmitTransfer(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, transfer.Confirmed())
	assert.GreaterOrEqual(t, atomic.LoadInt32(&polls), int32(3))
}

func TestSubmitTransfer_TimesOutWhileUnconfirmed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeTransfer(w, Transfer{ID: "tx-3", State: TransferStatePending})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key",
		WithConfirmTimeout(50*time.Millisecond),
		WithPollInterval(10*time.Millisecond))

	_, err := client.SubmitTransfer(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsRetryable(err))
}

func TestSubmitTransfer_NetworkRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			writeTransfer(w, Transfer{ID: "tx-4", State: TransferStateFailed})
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	_, err := client.SubmitTransfer(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrTransferRejected)
	assert.False(t, IsRetryable(err))
}

func TestSubmitTransfer_InputValidation(t *testing.T) {
	client := NewClient("http://127.0.0.1:0", "test-key")
	ctx := context.Background()

	req := testRequest()
	req.IdempotencyKey = ""
	_, err := client.SubmitTransfer(ctx, req)
	assert.ErrorIs(t, err, ErrTransferRejected)

	req = testRequest()
	req.Amount = 0
	_, err = client.SubmitTransfer(ctx, req)
	assert.ErrorIs(t, err, ErrTransferRejected)
}

func TestSubmitTransfer_ClientErrorRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"insufficient funds"}`, http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	_, err := client.SubmitTransfer(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrTransferRejected)
	assert.False(t, IsRetryable(err))
}

func TestQueryBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/accounts/custody/balance", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"account": "custody", "balance": 12345},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	balance, err := client.QueryBalance(context.Background(), "custody")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), balance)
}
