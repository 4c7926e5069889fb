package idempotency

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sgajbi/lotus-advise-sub000/internal/supportability"
)

func TestCacheEvictsLeastRecentlyUsedBeyondCapacity(t *testing.T) {
	c := NewCache(2)
	c.Put(supportability.IdempotencyRecord{Key: "a"})
	c.Put(supportability.IdempotencyRecord{Key: "b"})
	c.Put(supportability.IdempotencyRecord{Key: "c"})

	require.Equal(t, 2, c.Len())
	_, ok := c.Get("a")
	require.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.Get("c")
	require.True(t, ok)
}

func TestCacheGetPromotesToMostRecentlyUsed(t *testing.T) {
	c := NewCache(2)
	c.Put(supportability.IdempotencyRecord{Key: "a"})
	c.Put(supportability.IdempotencyRecord{Key: "b"})
	c.Get("a")
	c.Put(supportability.IdempotencyRecord{Key: "c"})

	_, ok := c.Get("b")
	require.False(t, ok, "b should have been evicted, not a, since a was just read")
	_, ok = c.Get("a")
	require.True(t, ok)
}
