// Package portfolio stores user holdings snapshots in SQLite.
package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/cryptosage/backend/internal/database"
	"github.com/cryptosage/backend/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Repository handles user and holdings database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// NormalizeEmail trims and lower-cases an email address and checks that
// it parses as a bare address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%q: %w", email, domain.ErrInvalidEmail)
	}
	return email, nil
}

// GetHoldings returns the stored holdings of a user in submission order.
func (r *Repository) GetHoldings(ctx context.Context, email string) (domain.Holdings, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	var userID string
	err = r.db.QueryRowContext(ctx, "SELECT id FROM users WHERE email = ?", email).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", email, domain.ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT symbol, quantity FROM holdings WHERE user_id = ? ORDER BY position",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	holdings := domain.Holdings{}
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.Symbol, &h.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}

	return holdings, nil
}

// SaveHoldings creates the user when needed and replaces their holdings
// in one transaction. Returns the user id.
func (r *Repository) SaveHoldings(ctx context.Context, email string, holdings domain.Holdings) (string, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	if err := holdings.Validate(); err != nil {
		return "", err
	}

	now := time.Now().Unix()
	var userID string

	err = database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, "SELECT id FROM users WHERE email = ?", email).Scan(&userID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			userID = uuid.New().String()
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO users (id, email, created_at, updated_at) VALUES (?, ?, ?, ?)",
				userID, email, now, now,
			); err != nil {
				return fmt.Errorf("failed to insert user: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to query user: %w", err)
		default:
			if _, err := tx.ExecContext(ctx, "UPDATE users SET updated_at = ? WHERE id = ?", now, userID); err != nil {
				return fmt.Errorf("failed to update user: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM holdings WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("failed to clear holdings: %w", err)
		}
		for i, h := range holdings {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO holdings (user_id, symbol, quantity, position) VALUES (?, ?, ?, ?)",
				userID, h.Symbol, h.Quantity, i,
			); err != nil {
				return fmt.Errorf("failed to insert holding %s: %w", h.Symbol, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	r.log.Info().
		Str("user_id", userID).
		Int("holdings", len(holdings)).
		Msg("Saved portfolio")

	return userID, nil
}
