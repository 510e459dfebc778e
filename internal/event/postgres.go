package event

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresRepository reads events and participants from PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetEvent fetches the event fields the spray pipeline consumes.
func (r *PostgresRepository) GetEvent(ctx context.Context, id string) (Event, error) {
	const query = `SELECT id, status, min_spray_amount::text, created_at FROM events WHERE id = $1`

	var ev Event
	var minAmount *string
	if err := r.db.QueryRow(ctx, query, id).Scan(&ev.ID, &ev.Status, &minAmount, &ev.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Event{}, ErrEventNotFound
		}
		return Event{}, fmt.Errorf("get event %s: %w", id, err)
	}
	if minAmount != nil {
		d, err := decimal.NewFromString(*minAmount)
		if err != nil {
			return Event{}, fmt.Errorf("parse min spray amount: %w", err)
		}
		ev.MinSprayAmount = &d
	}
	return ev, nil
}

// GetParticipant resolves a participant by the (event, user) pair.
func (r *PostgresRepository) GetParticipant(ctx context.Context, eventID, userID string) (Participant, error) {
	const query = `
        SELECT id, event_id, user_id, role, COALESCE(wallet_id, '')
        FROM event_participants WHERE event_id = $1 AND user_id = $2`
	return r.scanParticipant(r.db.QueryRow(ctx, query, eventID, userID))
}

// GetParticipantByID resolves a participant by its own id.
func (r *PostgresRepository) GetParticipantByID(ctx context.Context, id string) (Participant, error) {
	const query = `
        SELECT id, event_id, user_id, role, COALESCE(wallet_id, '')
        FROM event_participants WHERE id = $1`
	return r.scanParticipant(r.db.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) scanParticipant(row pgx.Row) (Participant, error) {
	var p Participant
	if err := row.Scan(&p.ID, &p.EventID, &p.UserID, &p.Role, &p.WalletID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Participant{}, ErrParticipantNotFound
		}
		return Participant{}, fmt.Errorf("scan participant: %w", err)
	}
	return p, nil
}
