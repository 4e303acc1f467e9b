package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconf "github.com/amirphl/strategy-lab/internal/db/conf"
)

func TestPostgres(t *testing.T) {
	cfg, cleanup := dbconf.NewTestConfig(t, PostgresSchema)
	defer cleanup()

	p := NewPostgres(cfg.DB)
	require.NoError(t, p.EnsureSchema(context.Background()))
	storageContract(t, p)
}

func TestPostgres_SharedTransaction(t *testing.T) {
	cfg, cleanup := dbconf.NewTestConfig(t, PostgresSchema)
	defer cleanup()

	ctx := context.Background()
	p := NewPostgres(cfg.DB)

	tx, err := cfg.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	txCtx := WithTransaction(ctx, tx)

	require.NoError(t, p.SaveCandles(txCtx, createTestCandles("BTC-USDT", "1h", 4)))

	got, err := p.GetCandles(txCtx, "BTC-USDT", "1h", t0, time.Time{})
	require.NoError(t, err)
	assert.Len(t, got, 4)

	require.NoError(t, tx.Rollback())

	got, err = p.GetCandles(ctx, "BTC-USDT", "1h", t0, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpenPostgres_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := OpenPostgres(ctx, "host=127.0.0.1 port=1 user=x dbname=x sslmode=disable connect_timeout=1",
		Options{ConnectTimeout: time.Second})
	assert.Error(t, err)
}
