package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

func TestOptionsParsesURL(t *testing.T) {
	opts, err := Options("redis://:secret@cache:6380/2")
	require.NoError(t, err)
	require.Equal(t, "cache:6380", opts.Addr)
	require.Equal(t, "secret", opts.Password)
	require.Equal(t, 2, opts.DB)

	opts, err = Options("localhost:6379")
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", opts.Addr)

	_, err = Options("  ")
	require.ErrorIs(t, err, revrec.ErrValidation)
}

func TestNewPingsServer(t *testing.T) {
	srv := miniredis.RunT(t)
	client, err := New(context.Background(), srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())

	addr := srv.Addr()
	srv.Close()
	_, err = New(context.Background(), addr)
	require.ErrorIs(t, err, revrec.ErrExternalIO)
}
