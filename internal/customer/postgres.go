package customer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDirectory reads customer profiles from PostgreSQL, joining the
// customer's default wallet when one exists.
type PostgresDirectory struct {
	db *pgxpool.Pool
}

// NewPostgresDirectory builds a directory backed by PostgreSQL.
func NewPostgresDirectory(db *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

// ByUserID fetches a customer profile with its default wallet id.
func (d *PostgresDirectory) ByUserID(ctx context.Context, userID string) (Customer, error) {
	const query = `
        SELECT c.id, c.user_id, c.tier,
               COALESCE((SELECT w.id FROM wallets w
                         WHERE w.customer_id = c.id AND w.is_default
                         LIMIT 1), '')
        FROM customers c WHERE c.user_id = $1`

	var c Customer
	err := d.db.QueryRow(ctx, query, userID).Scan(&c.ID, &c.UserID, &c.Tier, &c.DefaultWalletID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrCustomerNotFound
		}
		return Customer{}, fmt.Errorf("lookup customer for user %s: %w", userID, err)
	}
	return c, nil
}
