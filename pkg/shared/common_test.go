package shared

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForEveryValueWithBoundedGoroutines(t *testing.T) {
	values := []int{1, 2, 3, 4, 5, 6, 7, 8}
	var running, peak int32
	var mu sync.Mutex
	seen := make(map[int]int)

	err := ForEveryValueWithBoundedGoroutines(context.Background(), 3, values, func(i int, v int) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		mu.Lock()
		seen[i] = v
		mu.Unlock()
		atomic.AddInt32(&running, -1)
	})

	require.NoError(t, err)
	assert.Len(t, seen, len(values))
	for i, v := range values {
		assert.Equal(t, v, seen[i])
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestForEveryValueWithBoundedGoroutinesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := int32(0)
	err := ForEveryValueWithBoundedGoroutines(ctx, 2, []string{"a", "b"}, func(int, string) {
		atomic.AddInt32(&calls, 1)
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestHasFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("format", "text", "")
	assert.False(t, HasFlags(flags))

	require.NoError(t, flags.Parse([]string{"--format", "json"}))
	assert.True(t, HasFlags(flags))
}

func TestIsInList(t *testing.T) {
	assert.True(t, IsInList("JSON", []string{"text", "json"}))
	assert.False(t, IsInList("xml", []string{"text", "json"}))
}
