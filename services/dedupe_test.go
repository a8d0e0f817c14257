package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChangeCacheDetectsUnchangedPayloads(t *testing.T) {
	cache := NewChangeCache("")
	ctx := context.Background()
	payload := map[string]any{"id": float64(1), "name": "Ana"}

	assert.True(t, cache.Changed(ctx, 7, EntityBrokers, "1", payload), "first sighting is always a change")
	cache.Remember(ctx, 7, EntityBrokers, "1", payload)
	assert.False(t, cache.Changed(ctx, 7, EntityBrokers, "1", payload))

	payload["name"] = "Ana Souza"
	assert.True(t, cache.Changed(ctx, 7, EntityBrokers, "1", payload))
}

func TestChangeCacheChangedDoesNotStore(t *testing.T) {
	// Only Remember commits the hash: a record whose upsert failed keeps
	// answering "changed" so the next pull retries it.
	cache := NewChangeCache("")
	ctx := context.Background()
	payload := map[string]any{"id": float64(1)}

	assert.True(t, cache.Changed(ctx, 7, EntityBrokers, "1", payload))
	assert.True(t, cache.Changed(ctx, 7, EntityBrokers, "1", payload))

	cache.Remember(ctx, 7, EntityBrokers, "1", payload)
	assert.False(t, cache.Changed(ctx, 7, EntityBrokers, "1", payload))
}

func TestChangeCacheKeysAreScoped(t *testing.T) {
	cache := NewChangeCache("")
	ctx := context.Background()
	payload := map[string]any{"id": float64(1)}

	cache.Remember(ctx, 7, EntityBrokers, "1", payload)
	assert.False(t, cache.Changed(ctx, 7, EntityBrokers, "1", payload))
	// Same record id under another company or entity is distinct.
	assert.True(t, cache.Changed(ctx, 8, EntityBrokers, "1", payload))
	assert.True(t, cache.Changed(ctx, 7, EntityLeads, "1", payload))
}

func TestChangeCacheInvalidURLFallsBack(t *testing.T) {
	cache := NewChangeCache("://not-a-url")
	assert.True(t, cache.Changed(context.Background(), 7, EntityBrokers, "1", map[string]any{"id": float64(1)}))
}
