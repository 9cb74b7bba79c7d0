package summarize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryCooldownsRoundtrip(t *testing.T) {
	store := NewMemoryCooldowns()

	_, ok := store.Until("model-a")
	assert.False(t, ok)

	expiry := time.Now().Add(time.Minute)
	store.Set("model-a", expiry)

	until, ok := store.Until("model-a")
	assert.True(t, ok)
	assert.Equal(t, expiry, until)

	_, ok = store.Until("model-b")
	assert.False(t, ok, "cooldowns are per model")

	store.Clear("model-a")
	_, ok = store.Until("model-a")
	assert.False(t, ok)
}
