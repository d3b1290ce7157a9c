package cache

import (
	"context"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySetGetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, m.Set(ctx, "page:demo", []byte(`{"slug":"demo"}`), time.Minute))
	got, err := m.Get(ctx, "page:demo")
	require.NoError(t, err)
	assert.JSONEq(t, `{"slug":"demo"}`, string(got))

	require.NoError(t, m.Delete(ctx, "page:demo", "other"))
	_, err = m.Get(ctx, "page:demo")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	now = now.Add(30 * time.Second)
	_, err := m.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestNewWithoutRedisIsMemory(t *testing.T) {
	c := New(context.Background(), &config.Config{})
	_, ok := c.(*Memory)
	assert.True(t, ok)
}
