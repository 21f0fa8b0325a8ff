package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallLimiter(t *testing.T) {
	l := NewCallLimiter(2)

	assert.NoError(t, l.Increment())
	assert.Equal(t, 1, l.Remaining())
	assert.NoError(t, l.Increment())
	assert.ErrorIs(t, l.Increment(), ErrReplanLimit)
	assert.Equal(t, 2, l.Count())
	assert.Equal(t, 0, l.Remaining())
}

func TestCallLimiter_UnlimitedAndNone(t *testing.T) {
	assert.Equal(t, -1, NewCallLimiter(0).Remaining())
	assert.False(t, NewCallLimiter(-1).Acquire())
}

func TestCallLimiter_Concurrent(t *testing.T) {
	l := NewCallLimiter(10)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)

	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if l.Acquire() {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 10, granted)
}

func TestIsSensitiveKey(t *testing.T) {
	for _, k := range []string{"OPENAI_API_KEY", "dbPassword", "Bearer_Token", "auth_header", "PRIVATE_PEM", "clientSecret"} {
		assert.True(t, IsSensitiveKey(k), k)
	}

	for _, k := range []string{"agent_name", "timezone", "model"} {
		assert.False(t, IsSensitiveKey(k), k)
	}
}
