package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedPair(t *testing.T, s *MemoryStore) (Wallet, Wallet) {
	t.Helper()
	sender := Wallet{ID: "w-sender", CustomerID: "c1", Currency: "NGN", AvailableBalance: dec("500.00"), LedgerBalance: dec("500.00"), ExternalAccount: "1000000001"}
	receiver := Wallet{ID: "w-receiver", CustomerID: "c2", Currency: "NGN", AvailableBalance: dec("10.00"), LedgerBalance: dec("10.00"), ExternalAccount: "1000000002"}
	SeedWallet(s, sender)
	SeedWallet(s, receiver)
	return sender, receiver
}

func TestRecordTransferMovesBalancesExactly(t *testing.T) {
	s := NewMemoryStore()
	seedPair(t, s)
	ctx := context.Background()

	out, err := s.RecordTransfer(ctx, RecordInput{
		FromWalletID:   "w-sender",
		ToWalletID:     "w-receiver",
		Amount:         dec("100.50"),
		Currency:       "NGN",
		EventID:        "ev1",
		Reference:      "key-1",
		GroupReference: "grp-1",
	})
	require.NoError(t, err)

	require.True(t, out.SprayerBalance.Equal(dec("399.50")), "sprayer balance %s", out.SprayerBalance)
	require.True(t, out.ReceiverBalance.Equal(dec("110.50")), "receiver balance %s", out.ReceiverBalance)

	sender, err := s.GetWallet(ctx, "w-sender")
	require.NoError(t, err)
	require.True(t, sender.AvailableBalance.Equal(dec("399.50")))
	require.True(t, sender.LedgerBalance.Equal(dec("399.50")), "available and ledger balances move together")
}

func TestRecordTransferDuplicateReference(t *testing.T) {
	s := NewMemoryStore()
	seedPair(t, s)
	ctx := context.Background()

	input := RecordInput{
		FromWalletID: "w-sender", ToWalletID: "w-receiver",
		Amount: dec("5.00"), Currency: "NGN", EventID: "ev1",
		Reference: "key-dup", GroupReference: "grp-1",
	}
	_, err := s.RecordTransfer(ctx, input)
	require.NoError(t, err)

	_, err = s.RecordTransfer(ctx, input)
	require.ErrorIs(t, err, ErrDuplicateReference)

	// The second attempt must not have moved anything.
	sender, _ := s.GetWallet(ctx, "w-sender")
	require.True(t, sender.AvailableBalance.Equal(dec("495.00")))
}

func TestRecordTransferReVerifiesBalance(t *testing.T) {
	s := NewMemoryStore()
	seedPair(t, s)
	ctx := context.Background()

	// Lock check passes against the seeded balance...
	_, err := s.LockWallet(ctx, "w-sender", dec("400.00"))
	require.NoError(t, err)

	// ...but a competing transfer drains the wallet before the record step.
	_, err = s.RecordTransfer(ctx, RecordInput{
		FromWalletID: "w-sender", ToWalletID: "w-receiver",
		Amount: dec("450.00"), Currency: "NGN", Reference: "key-a", GroupReference: "g-a",
	})
	require.NoError(t, err)

	_, err = s.RecordTransfer(ctx, RecordInput{
		FromWalletID: "w-sender", ToWalletID: "w-receiver",
		Amount: dec("400.00"), Currency: "NGN", Reference: "key-b", GroupReference: "g-b",
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestLockWalletFailures(t *testing.T) {
	s := NewMemoryStore()
	seedPair(t, s)
	ctx := context.Background()

	_, err := s.LockWallet(ctx, "missing", dec("1.00"))
	require.ErrorIs(t, err, ErrWalletNotFound)

	_, err = s.LockWallet(ctx, "w-receiver", dec("10.01"))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	locked, err := s.LockWallet(ctx, "w-receiver", dec("10.00"))
	require.NoError(t, err)
	require.True(t, locked.AvailableBalance.Equal(dec("10.00")))
}

func TestFindTransferByReference(t *testing.T) {
	s := NewMemoryStore()
	seedPair(t, s)
	ctx := context.Background()

	_, err := s.FindTransferByReference(ctx, "nope")
	require.ErrorIs(t, err, ErrTransferNotFound)

	recorded, err := s.RecordTransfer(ctx, RecordInput{
		FromWalletID: "w-sender", ToWalletID: "w-receiver",
		Amount: dec("25.00"), Currency: "NGN", EventID: "ev1",
		Reference: "key-f", GroupReference: "g-f",
	})
	require.NoError(t, err)

	found, err := s.FindTransferByReference(ctx, "key-f")
	require.NoError(t, err)
	require.Equal(t, recorded.Spray.ID, found.Spray.ID)
	require.True(t, found.SprayerBalance.Equal(dec("475.00")))

	// A credit reference never resolves as a transfer.
	_, err = s.FindTransferByReference(ctx, "SPRAY-CREDIT-"+recorded.Spray.ID)
	require.ErrorIs(t, err, ErrTransferNotFound)
}

func TestEventTotalsExactSum(t *testing.T) {
	s := NewMemoryStore()
	seedPair(t, s)
	ctx := context.Background()

	amounts := []string{"10.10", "20.20", "0.03"}
	for i, a := range amounts {
		_, err := s.RecordTransfer(ctx, RecordInput{
			FromWalletID: "w-sender", ToWalletID: "w-receiver",
			Amount: dec(a), Currency: "NGN", EventID: "ev1",
			Reference: "key-" + a, GroupReference: "g-" + a,
		})
		require.NoError(t, err, "transfer %d", i)
	}

	totals, err := s.EventTotals(ctx, "ev1")
	require.NoError(t, err)
	require.Equal(t, 3, totals.TotalCount)
	require.True(t, totals.TotalAmount.Equal(dec("30.33")), "got %s", totals.TotalAmount)

	empty, err := s.EventTotals(ctx, "other")
	require.NoError(t, err)
	require.Equal(t, 0, empty.TotalCount)
	require.True(t, empty.TotalAmount.IsZero())
}

func TestDirectTransferHasNoEvent(t *testing.T) {
	s := NewMemoryStore()
	seedPair(t, s)
	ctx := context.Background()

	out, err := s.RecordTransfer(ctx, RecordInput{
		FromWalletID: "w-sender", ToWalletID: "w-receiver",
		Amount: dec("1.00"), Currency: "NGN",
		Reference: "key-direct", GroupReference: "g-d",
	})
	require.NoError(t, err)
	require.Empty(t, out.Spray.EventID)

	totals, err := s.EventTotals(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 0, totals.TotalCount)
}
