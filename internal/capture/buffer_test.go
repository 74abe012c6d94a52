package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func testFrame(seq int64) Frame {
	return Frame{Mat: gocv.NewMat(), Seq: seq, Timestamp: time.Now()}
}

func TestBufferLatestWins(t *testing.T) {
	buf := NewBuffer()
	defer buf.Drain()

	buf.Put(testFrame(1))
	buf.Put(testFrame(2))
	buf.Put(testFrame(3))

	f, ok := buf.Read()
	require.True(t, ok)
	assert.Equal(t, int64(3), f.Seq)
	f.Close()
}

func TestBufferNeverReturnsStaleFrame(t *testing.T) {
	buf := NewBuffer()

	buf.Put(testFrame(1))
	f, ok := buf.Read()
	require.True(t, ok)
	f.Close()

	// A second read with no intervening write must report absence
	// rather than replay the consumed frame.
	_, ok = buf.Read()
	assert.False(t, ok)
}

func TestBufferReadEmpty(t *testing.T) {
	buf := NewBuffer()

	_, ok := buf.Read()
	assert.False(t, ok)
}

func TestBufferDrain(t *testing.T) {
	buf := NewBuffer()

	buf.Put(testFrame(1))
	buf.Drain()

	_, ok := buf.Read()
	assert.False(t, ok)

	// Draining an empty buffer is a no-op.
	buf.Drain()
}
