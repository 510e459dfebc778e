package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrWalletNotFound occurs when a referenced wallet does not exist.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrInsufficientBalance occurs when the sender wallet lacks available
	// balance to cover the requested amount at lock time.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrTransferNotFound indicates no transfer carries the given reference.
	ErrTransferNotFound = errors.New("transfer not found")

	// ErrDuplicateReference indicates the debit reference already exists; the
	// caller should re-read the recorded transfer and treat the request as an
	// idempotent replay.
	ErrDuplicateReference = errors.New("duplicate transfer reference")
)

// TransactionType classifies a ledger entry by the product that produced it.
type TransactionType string

const (
	TypeSpray  TransactionType = "SPRAY"
	TypePayout TransactionType = "PAYOUT"
	TypeInflow TransactionType = "INFLOW"
)

// Direction marks which side of a transfer a ledger entry sits on.
type Direction string

const (
	Debit  Direction = "DEBIT"
	Credit Direction = "CREDIT"
)

// TransactionStatus tracks settlement state. Entries written by the spray
// pipeline are SUCCESS from the start; PENDING/FAILED transitions are driven
// by external settlement collaborators.
type TransactionStatus string

const (
	StatusSuccess TransactionStatus = "SUCCESS"
	StatusPending TransactionStatus = "PENDING"
	StatusFailed  TransactionStatus = "FAILED"
)

// Wallet mirrors the provider's view of a balance-holding account. Available
// and ledger balance always move together during a transfer; the ledger
// balance may otherwise trail the provider between webhook syncs.
type Wallet struct {
	ID               string
	CustomerID       string
	Currency         string
	AvailableBalance decimal.Decimal
	LedgerBalance    decimal.Decimal
	ExternalAccount  string
	CreatedAt        time.Time
}

// Transaction is one immutable directional balance movement.
type Transaction struct {
	ID             string
	WalletID       string
	Type           TransactionType
	Direction      Direction
	Status         TransactionStatus
	Amount         decimal.Decimal
	Currency       string
	Reference      string
	GroupReference string
	Narration      string
	Metadata       json.RawMessage
	CreatedAt      time.Time
}

// Spray records one successful transfer inside an event. EventID is empty for
// direct (non-event) transfers.
type Spray struct {
	ID               string
	EventID          string
	SprayerWalletID  string
	ReceiverWalletID string
	TransactionID    string
	GroupReference   string
	TotalAmount      decimal.Decimal
	Note             string
	Metadata         json.RawMessage
	CreatedAt        time.Time
}

// LockedWallet is the sender wallet as re-read under a row lock.
type LockedWallet struct {
	ID               string
	Currency         string
	AvailableBalance decimal.Decimal
	LedgerBalance    decimal.Decimal
}

// Totals aggregates all sprays of one event.
type Totals struct {
	TotalAmount decimal.Decimal
	TotalCount  int
}

// RecordInput carries everything the recorder persists after the settlement
// provider confirmed the movement.
type RecordInput struct {
	FromWalletID   string
	ToWalletID     string
	Amount         decimal.Decimal
	Currency       string
	Note           string
	EventID        string
	Reference      string // client idempotency key, becomes the debit reference
	GroupReference string
	ProviderData   json.RawMessage
}

// RecordedTransfer is the durable outcome of a transfer: the spray row plus
// the two wallets' available balances as they stand now.
type RecordedTransfer struct {
	Spray           Spray
	SprayerBalance  decimal.Decimal
	ReceiverBalance decimal.Decimal
}

// Store is the durable home of wallets, ledger entries and sprays. It is the
// only component with multi-statement atomicity; everything else composes its
// operations.
type Store interface {
	// GetWallet fetches wallet metadata and balances without locking.
	GetWallet(ctx context.Context, id string) (Wallet, error)

	// FindTransferByReference resolves a prior transfer whose debit entry
	// carries the given reference, for idempotent replays. Balances in the
	// result are current, not as-of the original transfer.
	FindTransferByReference(ctx context.Context, reference string) (RecordedTransfer, error)

	// LockWallet acquires a row lock on the wallet inside its own short
	// transaction, re-reads the balances and fails with
	// ErrInsufficientBalance when available < amount. The lock is released
	// before the method returns; callers must not assume the balance still
	// holds by commit time (RecordTransfer re-checks).
	LockWallet(ctx context.Context, walletID string, amount decimal.Decimal) (LockedWallet, error)

	// RecordTransfer atomically debits the sender, credits the receiver,
	// writes the paired DEBIT/CREDIT entries and the spray row. All four
	// effects commit together or not at all.
	RecordTransfer(ctx context.Context, input RecordInput) (RecordedTransfer, error)

	// EventTotals recomputes amount and count across all sprays of an event.
	EventTotals(ctx context.Context, eventID string) (Totals, error)
}
