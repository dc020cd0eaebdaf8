package addresses

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration test: needs a postgres with the addresses table migrated.
// Run with TEST_DATABASE_URL=postgres://... go test ./internal/addresses/
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	require.NoError(t, db.Ping())
	t.Cleanup(func() { db.Close() })
	return db
}

func shippingAddress(userID string, isDefault bool) Address {
	return Address{
		UserID:     userID,
		Type:       TypeShipping,
		Label:      "Home",
		Line1:      "1 Main St",
		City:       "Springfield",
		State:      "IL",
		PostalCode: "62701",
		Country:    "US",
		IsDefault:  isDefault,
	}
}

func TestDefaultShippingAddressUniqueness(t *testing.T) {
	db := openTestDB(t)
	conf, err := NewConf(db)
	require.NoError(t, err)

	ctx := context.Background()
	userID := "test-user-" + t.Name()
	t.Cleanup(func() {
		db.ExecContext(ctx, `DELETE FROM addresses WHERE user_id = $1`, userID)
	})

	// Several defaults written in sequence: only the last one may survive as
	// default, no matter how many there were before.
	for i := 0; i < 3; i++ {
		_, err := conf.CreateAddress(ctx, shippingAddress(userID, true))
		require.NoError(t, err)
	}

	var defaults int
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM addresses WHERE user_id = $1 AND type = $2 AND is_default`,
		userID, TypeShipping).Scan(&defaults)
	require.NoError(t, err)
	assert.Equal(t, 1, defaults)

	has, err := conf.HasDefaultShipping(ctx, userID)
	require.NoError(t, err)
	assert.True(t, has)

	// A billing default must not interfere with the shipping default.
	billing := shippingAddress(userID, true)
	billing.Type = TypeBilling
	_, err = conf.CreateAddress(ctx, billing)
	require.NoError(t, err)

	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM addresses WHERE user_id = $1 AND type = $2 AND is_default`,
		userID, TypeShipping).Scan(&defaults)
	require.NoError(t, err)
	assert.Equal(t, 1, defaults)
}

func TestAddressOwnershipFiltering(t *testing.T) {
	db := openTestDB(t)
	conf, err := NewConf(db)
	require.NoError(t, err)

	ctx := context.Background()
	owner := "owner-" + t.Name()
	t.Cleanup(func() {
		db.ExecContext(ctx, `DELETE FROM addresses WHERE user_id = $1`, owner)
	})

	created, err := conf.CreateAddress(ctx, shippingAddress(owner, false))
	require.NoError(t, err)

	_, err = conf.GetAddress(ctx, created.ID, "someone-else")
	assert.ErrorIs(t, err, ErrAddressNotFound)

	err = conf.DeleteAddress(ctx, created.ID, "someone-else")
	assert.ErrorIs(t, err, ErrAddressNotFound)

	err = conf.DeleteAddress(ctx, created.ID, owner)
	assert.NoError(t, err)
}
