package secure

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferRoundTrip(t *testing.T) {
	t.Parallel()

	b := NewBuffer([]byte("postgres://svc:pw@db/analytics"))
	defer b.Destroy()

	value, err := b.String()
	require.NoError(t, err)
	assert.Equal(t, "postgres://svc:pw@db/analytics", value)

	// Repeated opens work; the enclave is not consumed.
	value, err = b.String()
	require.NoError(t, err)
	assert.Equal(t, "postgres://svc:pw@db/analytics", value)
}

func TestBufferDestroy(t *testing.T) {
	t.Parallel()

	b := NewBuffer([]byte("secret"))
	b.Destroy()
	b.Destroy() // idempotent

	value, err := b.String()
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestCachePutGet(t *testing.T) {
	t.Parallel()

	c := NewCache()
	defer c.Clear()

	c.Put("pg_default", "postgres://one")
	c.Put("pg_default", "postgres://two") // replaces

	value, ok := c.Get("pg_default")
	require.True(t, ok)
	assert.Equal(t, "postgres://two", value)
	assert.Equal(t, 1, c.Len())

	_, ok = c.Get("ghost")
	assert.False(t, ok)
}

func TestCacheDelete(t *testing.T) {
	t.Parallel()

	c := NewCache()
	c.Put("pg_default", "postgres://h")
	c.Delete("pg_default")
	c.Delete("pg_default") // no-op

	_, ok := c.Get("pg_default")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCacheClear(t *testing.T) {
	t.Parallel()

	c := NewCache()
	c.Put("a", "1")
	c.Put("b", "2")
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCacheConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := NewCache()
	defer c.Clear()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n%4))
			c.Put(key, "value")
			c.Get(key)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, c.Len())
}
