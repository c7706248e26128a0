package main

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Default(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-duration", "30ms", "-log-level", "err"}, &stdout, &stderr))

	out := stdout.String()
	assert.Contains(t, out, "controller: raised=")
	assert.Contains(t, out, "stack: received=")
	assert.Contains(t, out, "device lo (irq35):")
	assert.Empty(t, stderr.String())
}

func TestRun_Config(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
duration: 30ms
log_level: info
timer:
  interval: 2ms
devices:
  - name: dummy0
    kind: dummy
    irq: 36
  - name: lo0
    irq: 40
    shared: true
    rate: 1ms
  - name: lo1
    irq: 40
    shared: true
    rate: 1ms
`), 0o644))

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-config", path}, &stdout, &stderr))

	out := stdout.String()
	assert.Contains(t, out, "device dummy0 (irq36):")
	assert.Contains(t, out, "device lo0 (irq40):")
	assert.Contains(t, out, "device lo1 (irq40):")
	assert.Contains(t, stderr.String(), `"msg":"device opened"`)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(ctx, []string{"-duration", "1h", "-log-level", "disabled"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "controller:")
}

func TestRun_Errors(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{"-log-level", "loud"}, &stdout, &stderr)
	assert.ErrorContains(t, err, `unknown log level "loud"`)

	err = run(context.Background(), []string{"-config", filepath.Join(t.TempDir(), "missing.yml")}, &stdout, &stderr)
	assert.ErrorIs(t, err, os.ErrNotExist)

	err = run(context.Background(), []string{"-h"}, &stdout, &stderr)
	assert.ErrorIs(t, err, flag.ErrHelp)
}
