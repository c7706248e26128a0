package intr

import (
	"errors"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Run_CreateFailure(t *testing.T) {
	cause := errors.New("simulated epoll_create failure")

	c := newTestController(t)
	c.testHooks = &controllerTestHooks{
		PreCreate: func() error { return cause },
	}

	err := c.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContextCreate)
	assert.ErrorIs(t, err, cause)

	var ce *ContextError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, `create`, ce.Op)

	assert.Equal(t, StateStopped, c.State())
	select {
	case <-c.Done():
	default:
		t.Fatal("expected Done to be closed")
	}
	assert.ErrorIs(t, c.Err(), ErrContextCreate)

	// nothing is running, so these must not block, or succeed
	shutdown(t, c)
	assert.ErrorIs(t, c.RaiseEvent(40), ErrNotRunning)
	assert.ErrorIs(t, c.Run(), ErrAlreadyRunning)
}

func TestController_Run_TimerSetupFailure(t *testing.T) {
	cause := errors.New("simulated timerfd_create failure")

	var ticked bool
	c := newTestController(t, WithTimerFunc(func() { ticked = true }))
	c.testHooks = &controllerTestHooks{
		PreArmTimer: func() error { return cause },
	}

	require.NoError(t, c.Run())
	assert.NotEqual(t, StateRunning, c.State())
	recv(t, c.Done())

	assert.Equal(t, StateStopped, c.State())
	assert.ErrorIs(t, c.Err(), ErrTimerSetup)
	assert.ErrorIs(t, c.Err(), cause)
	assert.False(t, ticked)
	assert.ErrorIs(t, c.RaiseEvent(EventTerminate), ErrNotRunning)
	shutdown(t, c)
}

func TestController_WaitFailure(t *testing.T) {
	cause := errors.New("simulated epoll_wait failure")

	c := newTestController(t)

	h := newCountingHandler()
	require.NoError(t, c.RequestHandler(40, h, FlagNone, "eth0", nil))

	// the first wait blocks until released, the second fails
	release := make(chan struct{})
	var waits int
	c.testHooks = &controllerTestHooks{
		PreWait: func() error {
			waits++
			if waits == 1 {
				<-release
				return nil
			}
			return cause
		},
	}

	require.NoError(t, c.Run())
	require.NoError(t, c.RaiseEvent(40))
	close(release)

	recv(t, h.calls)
	recv(t, c.Done())

	assert.Equal(t, StateStopped, c.State())
	assert.ErrorIs(t, c.Err(), ErrWait)
	assert.ErrorIs(t, c.Err(), cause)
	shutdown(t, c)
}

func TestController_FatalErrorIsLogged(t *testing.T) {
	var buf syncBuffer
	c := newTestController(t, WithLogger(NewLogger(&buf, logiface.LevelDebug)))
	c.testHooks = &controllerTestHooks{
		PreWait: func() error { return errors.New("boom") },
	}

	require.NoError(t, c.Run())
	recv(t, c.Done())

	lines := buf.Lines(`"msg":"delivery context stopped"`)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"lvl":"crit"`)
	assert.Contains(t, lines[0], `boom`)
}
