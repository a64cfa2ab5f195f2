package stdout

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gavel-sh/gavel/internal/adapter"
)

var fixedTime = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

func TestDefaults(t *testing.T) {
	a := New(nil)
	assert.Equal(t, "stdout", a.AdapterID())
	assert.Equal(t, Kind, a.AdapterKind())
	assert.ElementsMatch(t, []string{adapter.CapabilityApply, adapter.CapabilityDryRun}, a.Capabilities())
}

func TestCustomAdapterID(t *testing.T) {
	a := New(map[string]any{"adapter_id": "stdout-debug"})
	assert.Equal(t, "stdout-debug", a.AdapterID())
}

func TestCallEcho(t *testing.T) {
	var buf bytes.Buffer
	a := New(nil, WithOutput(&buf), WithClock(fixedClock))

	args := map[string]any{"goal": "g", "dry_run": true}
	out, err := a.Call(context.Background(), "decision", "execute", args)
	require.NoError(t, err)

	assert.Equal(t, true, out["echoed"])
	assert.Equal(t, "decision", out["tool"])
	assert.Equal(t, "execute", out["method"])
	assert.Equal(t, args, out["args"])
	assert.Equal(t, "stdout", out["adapter_id"])
}

func TestCallHumanOutput(t *testing.T) {
	var buf bytes.Buffer
	a := New(map[string]any{"prefix": "[test]"}, WithOutput(&buf), WithClock(fixedClock))

	_, err := a.Call(context.Background(), "decision", "execute", map[string]any{"goal": "g"})
	require.NoError(t, err)

	line := strings.TrimSpace(buf.String())
	assert.True(t, strings.HasPrefix(line, "[test] "))
	assert.Contains(t, line, "2026-08-01T12:00:00Z")
	assert.Contains(t, line, "decision.execute")
	assert.Contains(t, line, `"goal":"g"`)
}

func TestCallJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	a := New(map[string]any{"json_output": true}, WithOutput(&buf), WithClock(fixedClock))

	_, err := a.Call(context.Background(), "decision", "execute", map[string]any{"goal": "g"})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &out))
	assert.Equal(t, "decision", out["tool"])
	assert.Equal(t, "execute", out["method"])
	assert.Equal(t, "2026-08-01T12:00:00Z", out["timestamp"])
	assert.Equal(t, map[string]any{"goal": "g"}, out["args"])
}

func TestCallTruncatesLongArgs(t *testing.T) {
	var buf bytes.Buffer
	a := New(nil, WithOutput(&buf), WithClock(fixedClock))

	_, err := a.Call(context.Background(), "decision", "execute", map[string]any{
		"goal": strings.Repeat("x", 200),
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "...")
}

func TestCallOmitsTimestampAndArgs(t *testing.T) {
	var buf bytes.Buffer
	a := New(map[string]any{
		"include_timestamp": false,
		"include_args":      false,
	}, WithOutput(&buf), WithClock(fixedClock))

	_, err := a.Call(context.Background(), "decision", "execute", map[string]any{"goal": "g"})
	require.NoError(t, err)

	line := strings.TrimSpace(buf.String())
	assert.Equal(t, "[gavel] decision.execute", line)
}

func TestCallNoEcho(t *testing.T) {
	var buf bytes.Buffer
	a := New(map[string]any{"return_echo": false}, WithOutput(&buf))

	out, err := a.Call(context.Background(), "decision", "execute", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCallHonorsCanceledContext(t *testing.T) {
	var buf bytes.Buffer
	a := New(nil, WithOutput(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Call(ctx, "decision", "execute", nil)
	require.Error(t, err)
	assert.Empty(t, buf.String())
}
