package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore is a concurrency-safe in-memory store with the same semantics
// as the Postgres implementation. Used by tests and local development.
type MemoryStore struct {
	mu           sync.Mutex
	wallets      map[string]Wallet
	transactions map[string]Transaction // keyed by reference
	sprays       map[string]Spray       // keyed by debit transaction id
	byEvent      map[string][]string    // eventID -> spray ids in commit order
	sprayByID    map[string]Spray
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:      make(map[string]Wallet),
		transactions: make(map[string]Transaction),
		sprays:       make(map[string]Spray),
		byEvent:      make(map[string][]string),
		sprayByID:    make(map[string]Spray),
	}
}

// GetWallet fetches wallet metadata and balances.
func (s *MemoryStore) GetWallet(_ context.Context, id string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

// FindTransferByReference resolves a prior transfer by its debit reference.
func (s *MemoryStore) FindTransferByReference(_ context.Context, reference string) (RecordedTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.transactions[reference]
	if !ok || txn.Direction != Debit {
		return RecordedTransfer{}, ErrTransferNotFound
	}
	spray, ok := s.sprays[txn.ID]
	if !ok {
		return RecordedTransfer{}, ErrTransferNotFound
	}
	sprayer, ok := s.wallets[spray.SprayerWalletID]
	if !ok {
		return RecordedTransfer{}, ErrWalletNotFound
	}
	receiver, ok := s.wallets[spray.ReceiverWalletID]
	if !ok {
		return RecordedTransfer{}, ErrWalletNotFound
	}
	return RecordedTransfer{
		Spray:           spray,
		SprayerBalance:  sprayer.AvailableBalance,
		ReceiverBalance: receiver.AvailableBalance,
	}, nil
}

// LockWallet verifies the wallet can cover amount. The store mutex plays the
// role of the row lock.
func (s *MemoryStore) LockWallet(_ context.Context, walletID string, amount decimal.Decimal) (LockedWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[walletID]
	if !ok {
		return LockedWallet{}, ErrWalletNotFound
	}
	if w.AvailableBalance.LessThan(amount) {
		return LockedWallet{}, ErrInsufficientBalance
	}
	return LockedWallet{
		ID:               w.ID,
		Currency:         w.Currency,
		AvailableBalance: w.AvailableBalance,
		LedgerBalance:    w.LedgerBalance,
	}, nil
}

// RecordTransfer applies the four transfer effects atomically under the store
// mutex, re-verifying the sender balance first.
func (s *MemoryStore) RecordTransfer(_ context.Context, input RecordInput) (RecordedTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[input.Reference]; exists {
		return RecordedTransfer{}, ErrDuplicateReference
	}

	sender, ok := s.wallets[input.FromWalletID]
	if !ok {
		return RecordedTransfer{}, ErrWalletNotFound
	}
	receiver, ok := s.wallets[input.ToWalletID]
	if !ok {
		return RecordedTransfer{}, ErrWalletNotFound
	}
	if sender.AvailableBalance.LessThan(input.Amount) {
		return RecordedTransfer{}, ErrInsufficientBalance
	}

	now := time.Now().UTC()
	sender.AvailableBalance = sender.AvailableBalance.Sub(input.Amount)
	sender.LedgerBalance = sender.LedgerBalance.Sub(input.Amount)
	receiver.AvailableBalance = receiver.AvailableBalance.Add(input.Amount)
	receiver.LedgerBalance = receiver.LedgerBalance.Add(input.Amount)
	s.wallets[input.FromWalletID] = sender
	s.wallets[input.ToWalletID] = receiver

	debit := Transaction{
		ID:             uuid.NewString(),
		WalletID:       input.FromWalletID,
		Type:           TypeSpray,
		Direction:      Debit,
		Status:         StatusSuccess,
		Amount:         input.Amount,
		Currency:       input.Currency,
		Reference:      input.Reference,
		GroupReference: input.GroupReference,
		Narration:      input.Note,
		CreatedAt:      now,
	}
	credit := Transaction{
		ID:             uuid.NewString(),
		WalletID:       input.ToWalletID,
		Type:           TypeSpray,
		Direction:      Credit,
		Status:         StatusSuccess,
		Amount:         input.Amount,
		Currency:       input.Currency,
		Reference:      fmt.Sprintf("SPRAY-CREDIT-%s", uuid.NewString()),
		GroupReference: input.GroupReference,
		Narration:      input.Note,
		CreatedAt:      now,
	}
	s.transactions[debit.Reference] = debit
	s.transactions[credit.Reference] = credit

	meta, _ := json.Marshal(map[string]any{
		"creditTransactionId": credit.ID,
		"providerResponse":    rawOrNull(input.ProviderData),
	})

	spray := Spray{
		ID:               uuid.NewString(),
		EventID:          input.EventID,
		SprayerWalletID:  input.FromWalletID,
		ReceiverWalletID: input.ToWalletID,
		TransactionID:    debit.ID,
		GroupReference:   input.GroupReference,
		TotalAmount:      input.Amount,
		Note:             input.Note,
		Metadata:         meta,
		CreatedAt:        now,
	}
	s.sprays[debit.ID] = spray
	s.sprayByID[spray.ID] = spray
	if spray.EventID != "" {
		s.byEvent[spray.EventID] = append(s.byEvent[spray.EventID], spray.ID)
	}

	return RecordedTransfer{
		Spray:           spray,
		SprayerBalance:  sender.AvailableBalance,
		ReceiverBalance: receiver.AvailableBalance,
	}, nil
}

// EventTotals sums all spray amounts for the event.
func (s *MemoryStore) EventTotals(_ context.Context, eventID string) (Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	ids := s.byEvent[eventID]
	for _, id := range ids {
		total = total.Add(s.sprayByID[id].TotalAmount)
	}
	return Totals{TotalAmount: total, TotalCount: len(ids)}, nil
}
