package signal

import (
	"testing"
	"time"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRoomRateLimiter(2, 10*time.Second)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("A"))
	assert.True(t, rl.Allow("A"))
	assert.False(t, rl.Allow("A"))
	assert.True(t, rl.Allow("B"), "limits are per user")

	now = now.Add(11 * time.Second)
	assert.True(t, rl.Allow("A"))
}

func TestRateLimiterPrune(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRoomRateLimiter(1, time.Second)
	rl.now = func() time.Time { return now }
	rl.Allow("A")
	rl.Allow("B")

	now = now.Add(2 * time.Second)
	rl.Allow("B")
	rl.Prune()

	assert.NotContains(t, rl.history, domain.UserID("A"))
	assert.Contains(t, rl.history, domain.UserID("B"))
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{PingPeriod: time.Minute, PongWait: 30 * time.Second}.withDefaults()
	assert.Less(t, o.PingPeriod, o.PongWait)
	assert.Equal(t, 64, o.SendBuffer)
	assert.EqualValues(t, 32768, o.ReadLimit)
	assert.Equal(t, 10, o.RateMessages)
}
