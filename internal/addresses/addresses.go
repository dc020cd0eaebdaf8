package addresses

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrAddressNotFound = errors.New("address not found")

const (
	TypeShipping = "shipping"
	TypeBilling  = "billing"
)

// Address is a saved customer address. At most one address per (user, type)
// carries IsDefault; the writer enforces this by unsetting the others in the
// same transaction. Concurrent writers can still race (see error-handling
// notes), which is acceptable at this domain's write rate.
type Address struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Type       string    `json:"type" validate:"required,oneof=shipping billing"`
	Label      string    `json:"label"`
	Line1      string    `json:"line1" validate:"required"`
	Line2      string    `json:"line2"`
	City       string    `json:"city" validate:"required"`
	State      string    `json:"state"`
	PostalCode string    `json:"postal_code" validate:"required"`
	Country    string    `json:"country" validate:"required"`
	IsDefault  bool      `json:"is_default"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Conf struct {
	db *sql.DB
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db}, nil
}

func (c *Conf) CreateAddress(ctx context.Context, a Address) (Address, error) {
	a.ID = uuid.NewString()
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		if a.IsDefault {
			if err := unsetDefaults(ctx, tx, a.UserID, a.Type); err != nil {
				return err
			}
		}
		query := `
			INSERT INTO addresses (id, user_id, type, label, line1, line2, city, state, postal_code, country, is_default, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		`
		_, err := tx.ExecContext(ctx, query,
			a.ID, a.UserID, a.Type, a.Label, a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country, a.IsDefault)
		if err != nil {
			return fmt.Errorf("failed to insert address: %w", err)
		}
		return nil
	})
	if err != nil {
		return Address{}, err
	}
	return c.GetAddress(ctx, a.ID, a.UserID)
}

func (c *Conf) UpdateAddress(ctx context.Context, a Address) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		if a.IsDefault {
			if err := unsetDefaults(ctx, tx, a.UserID, a.Type); err != nil {
				return err
			}
		}
		query := `
			UPDATE addresses
			SET type = $1, label = $2, line1 = $3, line2 = $4, city = $5, state = $6,
			    postal_code = $7, country = $8, is_default = $9, updated_at = NOW()
			WHERE id = $10 AND user_id = $11
		`
		res, err := tx.ExecContext(ctx, query,
			a.Type, a.Label, a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country, a.IsDefault,
			a.ID, a.UserID)
		if err != nil {
			return fmt.Errorf("failed to update address: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n == 0 {
			return ErrAddressNotFound
		}
		return nil
	})
}

func (c *Conf) GetAddress(ctx context.Context, addressID, userID string) (Address, error) {
	query := `
		SELECT id, user_id, type, label, line1, line2, city, state, postal_code, country, is_default, created_at, updated_at
		FROM addresses WHERE id = $1 AND user_id = $2
	`
	var a Address
	err := c.db.QueryRowContext(ctx, query, addressID, userID).Scan(
		&a.ID, &a.UserID, &a.Type, &a.Label, &a.Line1, &a.Line2, &a.City, &a.State,
		&a.PostalCode, &a.Country, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Address{}, ErrAddressNotFound
	}
	if err != nil {
		return Address{}, fmt.Errorf("failed to query address: %w", err)
	}
	return a, nil
}

func (c *Conf) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	query := `
		SELECT id, user_id, type, label, line1, line2, city, state, postal_code, country, is_default, created_at, updated_at
		FROM addresses WHERE user_id = $1
		ORDER BY is_default DESC, created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query addresses: %w", err)
	}
	defer rows.Close()

	var out []Address
	for rows.Next() {
		var a Address
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.Type, &a.Label, &a.Line1, &a.Line2, &a.City, &a.State,
			&a.PostalCode, &a.Country, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating addresses: %w", err)
	}
	return out, nil
}

func (c *Conf) DeleteAddress(ctx context.Context, addressID, userID string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM addresses WHERE id = $1 AND user_id = $2`, addressID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete address: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrAddressNotFound
	}
	return nil
}

// HasDefaultShipping tells the checkout builder whether address collection
// can be skipped for this user.
func (c *Conf) HasDefaultShipping(ctx context.Context, userID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM addresses WHERE user_id = $1 AND type = $2 AND is_default)`
	var exists bool
	if err := c.db.QueryRowContext(ctx, query, userID, TypeShipping).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to query default shipping address: %w", err)
	}
	return exists, nil
}

func unsetDefaults(ctx context.Context, tx *sql.Tx, userID, addrType string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE addresses SET is_default = FALSE, updated_at = NOW() WHERE user_id = $1 AND type = $2 AND is_default`,
		userID, addrType)
	if err != nil {
		return fmt.Errorf("failed to unset default addresses: %w", err)
	}
	return nil
}

func (c *Conf) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("failed to rollback tx: %w", err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tx: %w", err)
	}
	return nil
}
