package spray

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/HenshawIII/Galafy/internal/customer"
	"github.com/HenshawIII/Galafy/internal/event"
	"github.com/HenshawIII/Galafy/internal/ledger"
	"github.com/HenshawIII/Galafy/internal/live"
	"github.com/HenshawIII/Galafy/internal/provider"
	"github.com/HenshawIII/Galafy/internal/ratelimit"
)

var (
	// ErrRateLimited signals too many sprays from one user inside the window.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrMissingIdempotencyKey: the Idempotency-Key header is mandatory input.
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")

	// ErrInvalidAmount covers non-positive, malformed, or >2dp amounts.
	ErrInvalidAmount = errors.New("invalid spray amount")

	// ErrAmountBelowMinimum: the event defines a minimum spray amount.
	ErrAmountBelowMinimum = errors.New("spray amount below event minimum")

	// ErrMissingReceiver: neither receiver field was provided.
	ErrMissingReceiver = errors.New("either receiverUserId or receiverParticipantId must be provided")

	// ErrEventNotLive: sprays are accepted only while the event is LIVE.
	ErrEventNotLive = errors.New("event is not live")

	// ErrNotParticipant: the caller has not joined the event.
	ErrNotParticipant = errors.New("user is not a participant in this event")

	// ErrCurrencyMismatch: sender and receiver wallets hold different currencies.
	ErrCurrencyMismatch = errors.New("sprayer and receiver wallets must have the same currency")

	// ErrWalletNotConfigured: a wallet has no external account reference, so
	// the settlement provider cannot move funds for it.
	ErrWalletNotConfigured = errors.New("wallet has no external account reference")

	// ErrProvider: the settlement call failed or was rejected. Safe to retry
	// with the same idempotency key.
	ErrProvider = errors.New("provider transfer failed")
)

// Input is one spray request as it arrives from the HTTP surface.
type Input struct {
	EventID               string
	UserID                string
	ReceiverUserID        string
	ReceiverParticipantID string
	Amount                string
	Note                  string
	IdempotencyKey        string
}

// Result is the response payload of a successful (or idempotently replayed)
// spray.
type Result struct {
	Spray           ledger.Spray
	SprayerBalance  decimal.Decimal
	ReceiverBalance decimal.Decimal
	EventTotals     ledger.Totals
}

// Service runs the spray pipeline: rate limit, idempotency, event and
// participant checks, balance lock, provider settlement, atomic recording and
// live fan-out.
type Service struct {
	limiter   ratelimit.Limiter
	store     ledger.Store
	events    event.Repository
	customers customer.Directory
	provider  provider.Client
	notifier  live.Notifier
	logger    *slog.Logger
}

// NewService wires the pipeline dependencies.
func NewService(limiter ratelimit.Limiter, store ledger.Store, events event.Repository,
	customers customer.Directory, providerClient provider.Client, notifier live.Notifier,
	logger *slog.Logger) *Service {
	return &Service{
		limiter:   limiter,
		store:     store,
		events:    events,
		customers: customers,
		provider:  providerClient,
		notifier:  notifier,
		logger:    logger,
	}
}

// Create processes one spray request end to end. Every failure before the
// record step leaves no persisted side effect; after the record step the
// transfer is final and notification failures are swallowed.
func (s *Service) Create(ctx context.Context, input Input) (Result, error) {
	allowed, err := s.limiter.Allow(ctx, input.UserID)
	if err != nil {
		// Limiters fail open; the admission decision still stands.
		s.logger.Warn("rate limiter error", "user_id", input.UserID, "error", err)
	}
	if !allowed {
		return Result{}, ErrRateLimited
	}

	if strings.TrimSpace(input.IdempotencyKey) == "" {
		return Result{}, ErrMissingIdempotencyKey
	}

	// Idempotent replay: return the previously recorded outcome verbatim,
	// with totals as they stand now, without touching balances or the
	// provider again.
	existing, err := s.store.FindTransferByReference(ctx, input.IdempotencyKey)
	if err == nil {
		s.logger.Info("idempotent spray replay", "reference", input.IdempotencyKey)
		return s.replay(ctx, input.EventID, existing)
	}
	if !errors.Is(err, ledger.ErrTransferNotFound) {
		return Result{}, fmt.Errorf("idempotency lookup: %w", err)
	}

	ev, err := s.events.GetEvent(ctx, input.EventID)
	if err != nil {
		return Result{}, err
	}
	if ev.Status != event.StatusLive {
		return Result{}, fmt.Errorf("%w: current status %s", ErrEventNotLive, ev.Status)
	}

	amount, err := parseAmount(input.Amount)
	if err != nil {
		return Result{}, err
	}
	if ev.MinSprayAmount != nil && amount.LessThan(*ev.MinSprayAmount) {
		return Result{}, fmt.Errorf("%w: minimum is %s", ErrAmountBelowMinimum, ev.MinSprayAmount)
	}

	sprayer, err := s.events.GetParticipant(ctx, input.EventID, input.UserID)
	if err != nil {
		if errors.Is(err, event.ErrParticipantNotFound) {
			return Result{}, ErrNotParticipant
		}
		return Result{}, err
	}

	receiver, err := s.resolveReceiver(ctx, input)
	if err != nil {
		return Result{}, err
	}

	sprayerWallet, err := s.resolveWallet(ctx, sprayer)
	if err != nil {
		return Result{}, err
	}
	receiverWallet, err := s.resolveWallet(ctx, receiver)
	if err != nil {
		return Result{}, err
	}

	if sprayerWallet.Currency != receiverWallet.Currency {
		return Result{}, ErrCurrencyMismatch
	}
	if sprayerWallet.ExternalAccount == "" || receiverWallet.ExternalAccount == "" {
		return Result{}, ErrWalletNotConfigured
	}

	// Lock and verify before the provider is ever called. The lock is
	// released as soon as the check passes so the settlement call never
	// holds a database lock.
	if _, err := s.store.LockWallet(ctx, sprayerWallet.ID, amount); err != nil {
		return Result{}, err
	}

	groupReference := uuid.NewString()
	note := input.Note
	if note == "" {
		note = fmt.Sprintf("Spray in event %s", input.EventID)
	}

	resp, err := s.provider.Transfer(ctx, provider.TransferRequest{
		FromAccount: sprayerWallet.ExternalAccount,
		ToAccount:   receiverWallet.ExternalAccount,
		Amount:      amount,
		Currency:    sprayerWallet.Currency,
		Description: note,
		Reference:   input.IdempotencyKey,
	})
	if err != nil {
		s.notifyFailure(input, "settlement provider unavailable")
		return Result{}, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if !resp.Success {
		s.notifyFailure(input, resp.Message)
		return Result{}, fmt.Errorf("%w: %s", ErrProvider, resp.Message)
	}

	recorded, err := s.store.RecordTransfer(ctx, ledger.RecordInput{
		FromWalletID:   sprayerWallet.ID,
		ToWalletID:     receiverWallet.ID,
		Amount:         amount,
		Currency:       sprayerWallet.Currency,
		Note:           input.Note,
		EventID:        input.EventID,
		Reference:      input.IdempotencyKey,
		GroupReference: groupReference,
		ProviderData:   resp.Data,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateReference) {
			// A concurrent retry with the same key won the race; its
			// outcome is ours.
			replayed, lookupErr := s.store.FindTransferByReference(ctx, input.IdempotencyKey)
			if lookupErr != nil {
				return Result{}, fmt.Errorf("resolve duplicate reference: %w", lookupErr)
			}
			return s.replay(ctx, input.EventID, replayed)
		}
		return Result{}, err
	}

	totals, err := s.store.EventTotals(ctx, input.EventID)
	if err != nil {
		// The transfer is committed; stale totals beat a failed request.
		s.logger.Error("event totals after commit", "event_id", input.EventID, "error", err)
		totals = ledger.Totals{TotalAmount: recorded.Spray.TotalAmount, TotalCount: 1}
	}

	s.notifySuccess(input.UserID, receiver.UserID, recorded, totals)

	return Result{
		Spray:           recorded.Spray,
		SprayerBalance:  recorded.SprayerBalance,
		ReceiverBalance: recorded.ReceiverBalance,
		EventTotals:     totals,
	}, nil
}

// Totals recomputes the running amount and count for an event.
func (s *Service) Totals(ctx context.Context, eventID string) (ledger.Totals, error) {
	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		return ledger.Totals{}, err
	}
	return s.store.EventTotals(ctx, eventID)
}

func (s *Service) replay(ctx context.Context, eventID string, recorded ledger.RecordedTransfer) (Result, error) {
	totals, err := s.store.EventTotals(ctx, eventID)
	if err != nil {
		return Result{}, fmt.Errorf("event totals: %w", err)
	}
	return Result{
		Spray:           recorded.Spray,
		SprayerBalance:  recorded.SprayerBalance,
		ReceiverBalance: recorded.ReceiverBalance,
		EventTotals:     totals,
	}, nil
}

func (s *Service) resolveReceiver(ctx context.Context, input Input) (event.Participant, error) {
	switch {
	case input.ReceiverParticipantID != "":
		p, err := s.events.GetParticipantByID(ctx, input.ReceiverParticipantID)
		if err != nil || p.EventID != input.EventID {
			return event.Participant{}, event.ErrParticipantNotFound
		}
		return p, nil
	case input.ReceiverUserID != "":
		return s.events.GetParticipant(ctx, input.EventID, input.ReceiverUserID)
	default:
		return event.Participant{}, ErrMissingReceiver
	}
}

// resolveWallet prefers the wallet attached to the participant and falls back
// to the customer's default wallet.
func (s *Service) resolveWallet(ctx context.Context, p event.Participant) (ledger.Wallet, error) {
	walletID := p.WalletID
	if walletID == "" {
		c, err := s.customers.ByUserID(ctx, p.UserID)
		if err != nil {
			return ledger.Wallet{}, err
		}
		if c.DefaultWalletID == "" {
			return ledger.Wallet{}, ledger.ErrWalletNotFound
		}
		walletID = c.DefaultWalletID
	}
	return s.store.GetWallet(ctx, walletID)
}

// notifySuccess runs synchronously after commit so per-wallet balance
// notifications keep commit order. Hub failures are logged inside the hub.
func (s *Service) notifySuccess(sprayerUserID, receiverUserID string, recorded ledger.RecordedTransfer, totals ledger.Totals) {
	sp := recorded.Spray
	s.notifier.SprayCreated(sp.EventID, live.SprayCreatedPayload{
		EventID: sp.EventID,
		Spray: live.SprayView{
			ID:               sp.ID,
			Amount:           sp.TotalAmount.String(),
			Note:             sp.Note,
			SprayerWalletID:  sp.SprayerWalletID,
			ReceiverWalletID: sp.ReceiverWalletID,
			CreatedAt:        sp.CreatedAt,
		},
		EventTotals: live.TotalsView{
			TotalAmount: totals.TotalAmount.String(),
			TotalCount:  totals.TotalCount,
		},
	})
	s.notifier.BalanceUpdated(sprayerUserID, live.BalancePayload{
		WalletID:         sp.SprayerWalletID,
		AvailableBalance: recorded.SprayerBalance.String(),
	})
	s.notifier.BalanceUpdated(receiverUserID, live.BalancePayload{
		WalletID:         sp.ReceiverWalletID,
		AvailableBalance: recorded.ReceiverBalance.String(),
	})
}

func (s *Service) notifyFailure(input Input, reason string) {
	s.notifier.SprayFailed(input.UserID, live.SprayFailedPayload{
		EventID: input.EventID,
		Reason:  reason,
	})
}

func parseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if d.LessThanOrEqual(decimal.Zero) {
		return decimal.Decimal{}, fmt.Errorf("%w: must be greater than 0", ErrInvalidAmount)
	}
	if d.Exponent() < -2 {
		return decimal.Decimal{}, fmt.Errorf("%w: at most 2 decimal places", ErrInvalidAmount)
	}
	return d, nil
}
