package supervisor

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartStop(t *testing.T) {
	sup := New("/bin/sleep", []string{"60"}, zerolog.Nop())

	require.NoError(t, sup.Start())
	st := sup.Status()
	assert.Equal(t, StateRunning, st.State)
	assert.NotZero(t, st.PID)

	// Starting a running engine is a no-op and keeps the same process.
	require.NoError(t, sup.Start())
	assert.Equal(t, st.PID, sup.Status().PID)

	require.NoError(t, sup.Stop())
	assert.Equal(t, StateStopped, sup.Status().State)
}

func TestStopIdempotent(t *testing.T) {
	sup := New("/bin/sleep", []string{"60"}, zerolog.Nop())

	require.NoError(t, sup.Stop())

	require.NoError(t, sup.Start())
	require.NoError(t, sup.Stop())
	require.NoError(t, sup.Stop())
	assert.Equal(t, StateStopped, sup.Status().State)
}

func TestRestartReplacesProcess(t *testing.T) {
	sup := New("/bin/sleep", []string{"60"}, zerolog.Nop())

	require.NoError(t, sup.Start())
	first := sup.Status().PID

	require.NoError(t, sup.Restart())
	st := sup.Status()
	assert.Equal(t, StateRunning, st.State)
	assert.NotEqual(t, first, st.PID)

	require.NoError(t, sup.Stop())
}

func TestStatusNoticesCrashedEngine(t *testing.T) {
	sup := New("/bin/true", nil, zerolog.Nop())

	require.NoError(t, sup.Start())

	// The child exits on its own; Status must converge to stopped
	// without anyone calling Stop.
	assert.Eventually(t, func() bool {
		return sup.Status().State == StateStopped
	}, 2*time.Second, 50*time.Millisecond)
}

func TestStartWithoutBinary(t *testing.T) {
	sup := New("", nil, zerolog.Nop())

	err := sup.Start()
	assert.ErrorIs(t, err, ErrNoBinary)
	assert.Equal(t, StateStopped, sup.Status().State)
}
