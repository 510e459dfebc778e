package provider

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// TransferRequest describes one wallet-to-wallet movement submitted to the
// settlement provider, which is the system of record for fund movement.
type TransferRequest struct {
	FromAccount string
	ToAccount   string
	Amount      decimal.Decimal
	Currency    string
	Description string
	Reference   string
}

// TransferResponse is the provider's decision. Data is the opaque provider
// payload; the core stores it in metadata without interpreting it.
type TransferResponse struct {
	Success bool
	Message string
	Data    json.RawMessage
}

// Client executes transfers against the settlement provider. Calls are never
// retried by the core: the caller re-submits with the same idempotency key
// and the pipeline short-circuits if the first attempt landed.
type Client interface {
	Transfer(ctx context.Context, req TransferRequest) (TransferResponse, error)
}

// StaticClient approves every transfer with a canned payload. Stands in for
// the real provider in development and tests.
type StaticClient struct{}

// Transfer approves the request.
func (StaticClient) Transfer(_ context.Context, req TransferRequest) (TransferResponse, error) {
	payload, _ := json.Marshal(map[string]string{
		"transactionReference": req.Reference,
		"status":               "approved",
	})
	return TransferResponse{Success: true, Message: "approved", Data: payload}, nil
}
