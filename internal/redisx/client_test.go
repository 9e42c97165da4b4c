package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONRoundTripAndClaim(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := New(mr.Addr(), "", 0)
	defer rdb.Close()
	ctx := context.Background()

	var out struct{ Status string }
	found, err := GetJSON(ctx, rdb, "order:1", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, SetJSON(ctx, rdb, "order:1", map[string]string{"Status": "pending"}, TTLOrderCache))
	found, err = GetJSON(ctx, rdb, "order:1", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "pending", out.Status)

	won, err := Claim(ctx, rdb, "dedup:email:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, won)
	won, err = Claim(ctx, rdb, "dedup:email:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, won)

	ok, err := Exists(ctx, rdb, "dedup:email:1")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, _ = Exists(ctx, rdb, "dedup:email:1")
	assert.False(t, ok)
}
