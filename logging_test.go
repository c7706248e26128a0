package intr

import (
	"errors"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_LogsHandlerFailure(t *testing.T) {
	var buf syncBuffer
	c := newTestController(t, WithLogger(NewLogger(&buf, logiface.LevelError)))

	h := newCountingHandler()
	h.err = errors.New("link down")
	require.NoError(t, c.RequestHandler(40, h, FlagNone, "eth0", nil))
	require.NoError(t, c.Run())

	require.NoError(t, c.RaiseEvent(40))
	recv(t, h.calls)
	shutdown(t, c)

	lines := buf.Lines(`"msg":"handler failed"`)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"lvl":"err"`)
	assert.Contains(t, lines[0], `"component":"intr"`)
	assert.Contains(t, lines[0], `"irq":"40"`)
	assert.Contains(t, lines[0], `"name":"eth0"`)
	assert.Contains(t, lines[0], `link down`)

	// debug is below the configured level
	assert.Empty(t, buf.Lines(`"msg":"dispatch"`))
}

func TestController_LogsHandlerPanic(t *testing.T) {
	var buf syncBuffer
	c := newTestController(t, WithLogger(NewLogger(&buf, logiface.LevelError)))

	done := make(chan struct{})
	require.NoError(t, c.RequestHandler(40, HandlerFunc(func(EventID, any) error {
		defer close(done)
		panic("bad descriptor ring")
	}), FlagNone, "eth0", nil))
	require.NoError(t, c.Run())

	require.NoError(t, c.RaiseEvent(40))
	recv(t, done)
	shutdown(t, c)

	lines := buf.Lines(`"msg":"handler failed"`)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `bad descriptor ring`)
}

func TestController_HandlerFailureLogsAreRateLimited(t *testing.T) {
	var buf syncBuffer
	c := newTestController(t,
		WithLogger(NewLogger(&buf, logiface.LevelError)),
		WithHandlerErrorRates(map[time.Duration]int{time.Hour: 2}),
	)

	h := newCountingHandler()
	h.err = errors.New("link down")
	require.NoError(t, c.RequestHandler(40, h, FlagNone, "eth0", nil))
	other := newCountingHandler()
	other.err = errors.New("no carrier")
	require.NoError(t, c.RequestHandler(41, other, FlagNone, "eth1", nil))
	require.NoError(t, c.Run())

	// raised one at a time, to avoid coalescing
	for i := 0; i < 5; i++ {
		require.NoError(t, c.RaiseEvent(40))
		recv(t, h.calls)
	}
	require.NoError(t, c.RaiseEvent(41))
	recv(t, other.calls)
	shutdown(t, c)

	assert.Equal(t, uint64(6), c.Stats().HandlerErrors)

	lines := buf.Lines(`"name":"eth0"`)
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], `suppressed_until`)
	assert.Contains(t, lines[1], `suppressed_until`)

	// limits apply per event id
	assert.Len(t, buf.Lines(`"name":"eth1"`), 1)
}

func TestController_HandlerFailureRateLimitDisabled(t *testing.T) {
	var buf syncBuffer
	c := newTestController(t,
		WithLogger(NewLogger(&buf, logiface.LevelError)),
		WithHandlerErrorRates(nil),
	)

	h := newCountingHandler()
	h.err = errors.New("link down")
	require.NoError(t, c.RequestHandler(40, h, FlagNone, "eth0", nil))
	require.NoError(t, c.Run())

	for i := 0; i < 10; i++ {
		require.NoError(t, c.RaiseEvent(40))
		recv(t, h.calls)
	}
	shutdown(t, c)

	assert.Len(t, buf.Lines(`"msg":"handler failed"`), 10)
}

func TestNewErrorLimiter(t *testing.T) {
	l, err := newErrorLimiter(nil)
	assert.NoError(t, err)
	assert.Nil(t, l)

	l, err = newErrorLimiter(map[time.Duration]int{time.Second: 1})
	assert.NoError(t, err)
	assert.NotNil(t, l)

	l, err = newErrorLimiter(map[time.Duration]int{time.Second: -1})
	assert.Error(t, err)
	assert.Nil(t, l)
}

func TestNew_InvalidHandlerErrorRates(t *testing.T) {
	c, err := New(WithHandlerErrorRates(map[time.Duration]int{-time.Second: 1}))
	assert.Error(t, err)
	assert.Nil(t, c)
}

func TestController_NilLogger(t *testing.T) {
	c := newTestController(t, WithLogger(nil))
	h := newCountingHandler()
	h.err = errors.New("ignored")
	require.NoError(t, c.RequestHandler(40, h, FlagNone, "eth0", nil))
	require.NoError(t, c.Run())
	require.NoError(t, c.RaiseEvent(40))
	recv(t, h.calls)
	shutdown(t, c)
	assert.Equal(t, uint64(1), c.Stats().HandlerErrors)
}
