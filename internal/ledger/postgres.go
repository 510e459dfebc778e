package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// PostgresStore persists wallets, ledger entries and sprays in PostgreSQL.
// Amounts travel as NUMERIC and are scanned through their text representation
// to keep them in exact decimal form.
type PostgresStore struct {
	db            *pgxpool.Pool
	lockTimeout   time.Duration
	recordTimeout time.Duration
}

// NewPostgresStore constructs a Postgres-backed store. Zero timeouts fall back
// to 5s for the lock step and 10s for the record step.
func NewPostgresStore(db *pgxpool.Pool, lockTimeout, recordTimeout time.Duration) *PostgresStore {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	if recordTimeout <= 0 {
		recordTimeout = 10 * time.Second
	}
	return &PostgresStore{db: db, lockTimeout: lockTimeout, recordTimeout: recordTimeout}
}

// GetWallet fetches wallet metadata and balances without locking.
func (s *PostgresStore) GetWallet(ctx context.Context, id string) (Wallet, error) {
	const query = `
        SELECT id, customer_id, currency, available_balance::text, ledger_balance::text,
               COALESCE(external_account, ''), created_at
        FROM wallets WHERE id = $1`

	var w Wallet
	var avail, ledgerBal string
	err := s.db.QueryRow(ctx, query, id).Scan(
		&w.ID, &w.CustomerID, &w.Currency, &avail, &ledgerBal, &w.ExternalAccount, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, fmt.Errorf("get wallet %s: %w", id, err)
	}
	if w.AvailableBalance, err = decimal.NewFromString(avail); err != nil {
		return Wallet{}, fmt.Errorf("parse available balance: %w", err)
	}
	if w.LedgerBalance, err = decimal.NewFromString(ledgerBal); err != nil {
		return Wallet{}, fmt.Errorf("parse ledger balance: %w", err)
	}
	return w, nil
}

// FindTransferByReference resolves a prior transfer by its debit reference.
func (s *PostgresStore) FindTransferByReference(ctx context.Context, reference string) (RecordedTransfer, error) {
	const query = `
        SELECT sp.id, COALESCE(sp.event_id, ''), sp.sprayer_wallet_id, sp.receiver_wallet_id,
               sp.transaction_id, sp.group_reference, sp.total_amount::text,
               COALESCE(sp.note, ''), sp.metadata, sp.created_at,
               sw.available_balance::text, rw.available_balance::text
        FROM transactions t
        INNER JOIN sprays sp ON sp.transaction_id = t.id
        INNER JOIN wallets sw ON sw.id = sp.sprayer_wallet_id
        INNER JOIN wallets rw ON rw.id = sp.receiver_wallet_id
        WHERE t.reference = $1`

	var out RecordedTransfer
	var total, sprayerBal, receiverBal string
	err := s.db.QueryRow(ctx, query, reference).Scan(
		&out.Spray.ID, &out.Spray.EventID, &out.Spray.SprayerWalletID, &out.Spray.ReceiverWalletID,
		&out.Spray.TransactionID, &out.Spray.GroupReference, &total,
		&out.Spray.Note, &out.Spray.Metadata, &out.Spray.CreatedAt,
		&sprayerBal, &receiverBal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RecordedTransfer{}, ErrTransferNotFound
		}
		return RecordedTransfer{}, fmt.Errorf("find transfer by reference: %w", err)
	}
	if out.Spray.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return RecordedTransfer{}, fmt.Errorf("parse spray amount: %w", err)
	}
	if out.SprayerBalance, err = decimal.NewFromString(sprayerBal); err != nil {
		return RecordedTransfer{}, fmt.Errorf("parse sprayer balance: %w", err)
	}
	if out.ReceiverBalance, err = decimal.NewFromString(receiverBal); err != nil {
		return RecordedTransfer{}, fmt.Errorf("parse receiver balance: %w", err)
	}
	return out, nil
}

// LockWallet acquires a FOR UPDATE lock on the wallet row inside its own
// short-lived transaction and verifies the available balance covers amount.
// The lock is released at commit so a slow provider call never holds it.
func (s *PostgresStore) LockWallet(ctx context.Context, walletID string, amount decimal.Decimal) (LockedWallet, error) {
	ctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return LockedWallet{}, fmt.Errorf("begin lock tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	locked, err := lockWalletRow(ctx, tx, walletID)
	if err != nil {
		return LockedWallet{}, err
	}
	if locked.AvailableBalance.LessThan(amount) {
		return LockedWallet{}, ErrInsufficientBalance
	}

	if err := tx.Commit(ctx); err != nil {
		return LockedWallet{}, fmt.Errorf("commit lock tx: %w", err)
	}
	return locked, nil
}

// RecordTransfer applies the four transfer effects in one transaction. The
// sender balance is re-verified under lock here, closing the window between
// the earlier check and this commit.
func (s *PostgresStore) RecordTransfer(ctx context.Context, input RecordInput) (RecordedTransfer, error) {
	ctx, cancel := context.WithTimeout(ctx, s.recordTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return RecordedTransfer{}, fmt.Errorf("begin record tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	sender, receiver, err := lockWalletPair(ctx, tx, input.FromWalletID, input.ToWalletID)
	if err != nil {
		return RecordedTransfer{}, err
	}
	if sender.AvailableBalance.LessThan(input.Amount) {
		return RecordedTransfer{}, ErrInsufficientBalance
	}

	newSenderAvail := sender.AvailableBalance.Sub(input.Amount)
	newSenderLedger := sender.LedgerBalance.Sub(input.Amount)
	newReceiverAvail := receiver.AvailableBalance.Add(input.Amount)
	newReceiverLedger := receiver.LedgerBalance.Add(input.Amount)

	const updateBalances = `UPDATE wallets SET available_balance = $2, ledger_balance = $3 WHERE id = $1`
	if _, err := tx.Exec(ctx, updateBalances, input.FromWalletID, newSenderAvail.String(), newSenderLedger.String()); err != nil {
		return RecordedTransfer{}, fmt.Errorf("debit sender wallet: %w", err)
	}
	if _, err := tx.Exec(ctx, updateBalances, input.ToWalletID, newReceiverAvail.String(), newReceiverLedger.String()); err != nil {
		return RecordedTransfer{}, fmt.Errorf("credit receiver wallet: %w", err)
	}

	now := time.Now().UTC()
	debitID := uuid.NewString()
	creditID := uuid.NewString()
	sprayID := uuid.NewString()

	const insertTransaction = `
        INSERT INTO transactions (id, wallet_id, type, direction, status, amount, currency,
                                  reference, group_reference, narration, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	debitMeta, err := metadataJSON(map[string]any{
		"eventId":          input.EventID,
		"receiverWalletId": input.ToWalletID,
		"providerResponse": rawOrNull(input.ProviderData),
	})
	if err != nil {
		return RecordedTransfer{}, err
	}
	if _, err := tx.Exec(ctx, insertTransaction,
		debitID, input.FromWalletID, TypeSpray, Debit, StatusSuccess,
		input.Amount.String(), input.Currency, input.Reference, input.GroupReference,
		input.Note, debitMeta, now); err != nil {
		if isUniqueViolation(err) {
			return RecordedTransfer{}, ErrDuplicateReference
		}
		return RecordedTransfer{}, fmt.Errorf("insert debit entry: %w", err)
	}

	creditMeta, err := metadataJSON(map[string]any{
		"eventId":            input.EventID,
		"sprayerWalletId":    input.FromWalletID,
		"debitTransactionId": debitID,
		"providerResponse":   rawOrNull(input.ProviderData),
	})
	if err != nil {
		return RecordedTransfer{}, err
	}
	creditReference := fmt.Sprintf("SPRAY-CREDIT-%s", uuid.NewString())
	if _, err := tx.Exec(ctx, insertTransaction,
		creditID, input.ToWalletID, TypeSpray, Credit, StatusSuccess,
		input.Amount.String(), input.Currency, creditReference, input.GroupReference,
		input.Note, creditMeta, now); err != nil {
		return RecordedTransfer{}, fmt.Errorf("insert credit entry: %w", err)
	}

	sprayMeta, err := metadataJSON(map[string]any{
		"creditTransactionId": creditID,
		"providerResponse":    rawOrNull(input.ProviderData),
	})
	if err != nil {
		return RecordedTransfer{}, err
	}
	const insertSpray = `
        INSERT INTO sprays (id, event_id, sprayer_wallet_id, receiver_wallet_id, transaction_id,
                            group_reference, total_amount, note, metadata, created_at)
        VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)`
	if _, err := tx.Exec(ctx, insertSpray,
		sprayID, input.EventID, input.FromWalletID, input.ToWalletID, debitID,
		input.GroupReference, input.Amount.String(), input.Note, sprayMeta, now); err != nil {
		return RecordedTransfer{}, fmt.Errorf("insert spray: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return RecordedTransfer{}, fmt.Errorf("commit record tx: %w", err)
	}

	return RecordedTransfer{
		Spray: Spray{
			ID:               sprayID,
			EventID:          input.EventID,
			SprayerWalletID:  input.FromWalletID,
			ReceiverWalletID: input.ToWalletID,
			TransactionID:    debitID,
			GroupReference:   input.GroupReference,
			TotalAmount:      input.Amount,
			Note:             input.Note,
			Metadata:         sprayMeta,
			CreatedAt:        now,
		},
		SprayerBalance:  newSenderAvail,
		ReceiverBalance: newReceiverAvail,
	}, nil
}

// EventTotals sums all spray amounts for the event with exact decimal math on
// the database side.
func (s *PostgresStore) EventTotals(ctx context.Context, eventID string) (Totals, error) {
	const query = `
        SELECT COALESCE(SUM(total_amount), 0)::text, COUNT(*)
        FROM sprays WHERE event_id = $1`

	var total string
	var count int
	if err := s.db.QueryRow(ctx, query, eventID).Scan(&total, &count); err != nil {
		return Totals{}, fmt.Errorf("event totals: %w", err)
	}
	amount, err := decimal.NewFromString(total)
	if err != nil {
		return Totals{}, fmt.Errorf("parse event total: %w", err)
	}
	return Totals{TotalAmount: amount, TotalCount: count}, nil
}

// lockOrder sorts two wallet ids into the order their rows are locked in, so
// concurrent opposite-direction transfers between the same pair never deadlock.
func lockOrder(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// lockWalletPair locks both wallet rows in lockOrder and returns them as
// (sender, receiver) regardless of which was locked first.
func lockWalletPair(ctx context.Context, tx pgx.Tx, fromID, toID string) (LockedWallet, LockedWallet, error) {
	firstID, secondID := lockOrder(fromID, toID)
	first, err := lockWalletRow(ctx, tx, firstID)
	if err != nil {
		return LockedWallet{}, LockedWallet{}, err
	}
	second, err := lockWalletRow(ctx, tx, secondID)
	if err != nil {
		return LockedWallet{}, LockedWallet{}, err
	}
	if firstID == fromID {
		return first, second, nil
	}
	return second, first, nil
}

func lockWalletRow(ctx context.Context, tx pgx.Tx, walletID string) (LockedWallet, error) {
	const query = `
        SELECT id, currency, available_balance::text, ledger_balance::text
        FROM wallets WHERE id = $1 FOR UPDATE`

	var w LockedWallet
	var avail, ledgerBal string
	if err := tx.QueryRow(ctx, query, walletID).Scan(&w.ID, &w.Currency, &avail, &ledgerBal); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LockedWallet{}, ErrWalletNotFound
		}
		return LockedWallet{}, fmt.Errorf("lock wallet %s: %w", walletID, err)
	}
	var err error
	if w.AvailableBalance, err = decimal.NewFromString(avail); err != nil {
		return LockedWallet{}, fmt.Errorf("parse available balance: %w", err)
	}
	if w.LedgerBalance, err = decimal.NewFromString(ledgerBal); err != nil {
		return LockedWallet{}, fmt.Errorf("parse ledger balance: %w", err)
	}
	return w, nil
}

func metadataJSON(fields map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return payload, nil
}

// rawOrNull keeps the provider payload opaque; an empty payload becomes JSON null.
func rawOrNull(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage("null")
	}
	return data
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
