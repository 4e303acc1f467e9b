package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "candles.db")

	s, err := OpenSQLite(ctx, path, Options{})
	require.NoError(t, err)
	storageContract(t, s)
	require.NoError(t, s.Close())

	// reopening keeps the data and does not recreate the table
	s, err = OpenSQLite(ctx, path, Options{})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetCandles(ctx, "btc-usdt", "1h", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, got, 10)
	assert.Equal(t, time.UTC, got[0].Timestamp.Location())
	assert.Equal(t, "test", got[0].Source)
}
