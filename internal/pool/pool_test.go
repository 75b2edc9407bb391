package pool

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollectRunsEachKeyOnce(t *testing.T) {
	var calls atomic.Int32
	keys := []string{"a", "b", "a", "c", "b"}

	results := Collect(context.Background(), 2, keys, func(_ context.Context, key string) string {
		calls.Add(1)
		return "v-" + key
	})

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, map[string]string{"a": "v-a", "b": "v-b", "c": "v-c"}, results)
}

func TestCollectRespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	keys := make([]string, 40)
	for i := range keys {
		keys[i] = fmt.Sprintf("pkg-%d", i)
	}

	results := Collect(context.Background(), 10, keys, func(_ context.Context, key string) int {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return len(key)
	})

	assert.Len(t, results, 40)
	assert.LessOrEqual(t, peak.Load(), int32(10))
	assert.Greater(t, peak.Load(), int32(1))
}

func TestCollectWaitsForSlowTasks(t *testing.T) {
	results := Collect(context.Background(), 0, []string{"fast", "slow"}, func(_ context.Context, key string) bool {
		if key == "slow" {
			time.Sleep(30 * time.Millisecond)
		}
		return true
	})

	assert.Equal(t, map[string]bool{"fast": true, "slow": true}, results)
}

func TestCollectEmpty(t *testing.T) {
	results := Collect(context.Background(), 10, nil, func(context.Context, string) int { return 1 })
	assert.Empty(t, results)
	assert.NotNil(t, results)
}
