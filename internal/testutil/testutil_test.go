package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSteppingClock_Advances(t *testing.T) {
	c := NewSteppingClock(time.Second)

	assert.Equal(t, Epoch, c.Now())
	assert.Equal(t, Epoch.Add(time.Second), c.Now())
	assert.Equal(t, Epoch.Add(2*time.Second), c.Now())

	c.Reset()
	assert.Equal(t, Epoch, c.Now())
}

func TestSteppingClock_ZeroStep(t *testing.T) {
	c := NewSteppingClock(0)
	assert.Equal(t, c.Now(), c.Now())
}

func TestSequentialIDs_Unique(t *testing.T) {
	g := NewSequentialIDs("")

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.Generate()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, 50)
	assert.True(t, seen["session-1"])
	assert.True(t, seen["session-50"])
}
