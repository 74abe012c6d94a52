package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkwatch-service/internal/capture"
)

func TestProcessingLoopIdlesThroughInjectedSleep(t *testing.T) {
	var mu sync.Mutex
	var idles []time.Duration

	e := &Engine{
		buf:  capture.NewBuffer(),
		log:  zerolog.Nop(),
		done: make(chan struct{}),
		sleep: func(d time.Duration) {
			mu.Lock()
			idles = append(idles, d)
			mu.Unlock()
		},
	}

	e.wg.Add(1)
	go e.run()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(idles) >= 3
	}, 2*time.Second, time.Millisecond)

	close(e.done)
	e.wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for _, d := range idles {
		assert.Equal(t, idleSleep, d)
	}
}
