package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const transferEndpoint = "/api/v1/wallets/wallet/transaction/v2/wallet-to-wallet"

// HTTPClient talks to the settlement provider's REST API, authenticated with
// an api key header.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient constructs a provider client. A nil http.Client gets a 30s
// timeout default.
func NewHTTPClient(baseURL, apiKey string, client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{baseURL: baseURL, apiKey: apiKey, client: client}
}

type transferBody struct {
	FromAccount          string `json:"fromAccount"`
	ToAccount            string `json:"toAccount"`
	Amount               string `json:"amount"`
	TransactionReference string `json:"transactionReference"`
	Remarks              string `json:"remarks"`
	TransactionTypeID    int    `json:"transactionTypeId"`
}

type transferReply struct {
	Code    string          `json:"code"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Transfer submits a wallet-to-wallet movement. A non-2xx status or transport
// failure is returned as an error; a well-formed rejection comes back as
// Success=false with the provider's message.
func (c *HTTPClient) Transfer(ctx context.Context, req TransferRequest) (TransferResponse, error) {
	reference := req.Reference
	if reference == "" {
		reference = fmt.Sprintf("TXN-%s", uuid.NewString())
	}

	body, err := json.Marshal(transferBody{
		FromAccount:          req.FromAccount,
		ToAccount:            req.ToAccount,
		Amount:               req.Amount.String(),
		TransactionReference: reference,
		Remarks:              req.Description,
		TransactionTypeID:    1,
	})
	if err != nil {
		return TransferResponse{}, fmt.Errorf("encode transfer request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+transferEndpoint, bytes.NewReader(body))
	if err != nil {
		return TransferResponse{}, fmt.Errorf("build transfer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return TransferResponse{}, fmt.Errorf("provider transfer call: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return TransferResponse{}, fmt.Errorf("read provider response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return TransferResponse{}, fmt.Errorf("provider transfer returned status %d", resp.StatusCode)
	}

	var reply transferReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		return TransferResponse{}, fmt.Errorf("decode provider response: %w", err)
	}

	return TransferResponse{
		Success: reply.Success || reply.Code == "200",
		Message: reply.Message,
		Data:    reply.Data,
	}, nil
}
