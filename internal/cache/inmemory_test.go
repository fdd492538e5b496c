package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	key := GenerateKey(PrefixProvisioningToken, "panel", "admin")
	assert.Equal(t, "provisioning_token:v1::panel:admin", key)

	_, found := c.Get(ctx, key)
	assert.False(t, found)

	c.Set(ctx, key, "token-1", time.Minute)
	v, found := c.Get(ctx, key)
	assert.True(t, found)
	assert.Equal(t, "token-1", v)

	c.Set(ctx, GenerateKey(PrefixStats, "invoices"), 1, time.Minute)
	c.DeleteByPrefix(ctx, PrefixProvisioningToken)
	_, found = c.Get(ctx, key)
	assert.False(t, found)
	_, found = c.Get(ctx, GenerateKey(PrefixStats, "invoices"))
	assert.True(t, found)

	c.Flush(ctx)
	_, found = c.Get(ctx, GenerateKey(PrefixStats, "invoices"))
	assert.False(t, found)
}

func TestInMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	c.Set(ctx, "k", "v", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	_, found := c.Get(ctx, "k")
	assert.False(t, found)
}
