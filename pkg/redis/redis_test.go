package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/factorlab/pkg/config"
)

func TestNewClientDisabled(t *testing.T) {
	client, err := New(context.Background(), &config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Close())
}

func TestCacheDisabledIsNoop(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(Disabled(), "factorlab")

	var got []string
	found, err := cache.Get(ctx, "key", &got)
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, cache.Set(ctx, "key", []string{"a"}, TTLShort))
	assert.NoError(t, cache.Delete(ctx, "key"))
}

func TestGetOrSetFallsThroughWhenDisabled(t *testing.T) {
	cache := NewCache(Disabled(), "factorlab")

	calls := 0
	var dates []string
	err := cache.GetOrSet(context.Background(), "cal", &dates, TTLDaily, func() (interface{}, error) {
		calls++
		return []string{"20240102", "20240103"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"20240102", "20240103"}, dates)
}

func TestGetOrSetPropagatesLoaderError(t *testing.T) {
	cache := NewCache(Disabled(), "factorlab")
	boom := errors.New("read failed")

	var dates []string
	err := cache.GetOrSet(context.Background(), "cal", &dates, TTLDaily, func() (interface{}, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "calendar:cal.csv:1700000000", CalendarKey("cal.csv", 1700000000))
	assert.Equal(t, "table:css:20240102:20240201", TableRangeKey("css", "20240102", "20240201"))
	assert.Equal(t, "factorlab:cache:x", NewCache(Disabled(), "factorlab").fullKey("x"))
}
