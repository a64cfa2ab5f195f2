// Package stdout provides the reference debug adapter. It prints tool calls
// to an output stream and never fails, which makes it useful for testing
// dispatch wiring and understanding what would run without running it.
package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gavel-sh/gavel/internal/adapter"
)

// Kind is the adapter's type identifier.
const Kind = "stdout"

// Manifest describes the stdout adapter.
var Manifest = adapter.Manifest{
	SchemaVersion:           1,
	Kind:                    Kind,
	Capabilities:            []string{adapter.CapabilityApply, adapter.CapabilityDryRun},
	SupportedRouterVersions: ">=1.0,<2.0",
	ConfigSchema: map[string]adapter.ConfigField{
		"adapter_id": {
			Type:        "string",
			Description: "Custom adapter ID (defaults to 'stdout')",
		},
		"prefix": {
			Type:        "string",
			Default:     "[gavel]",
			Description: "Prefix for output lines",
		},
		"include_timestamp": {
			Type:        "boolean",
			Default:     true,
			Description: "Include ISO timestamp in output",
		},
		"include_args": {
			Type:        "boolean",
			Default:     true,
			Description: "Include full args in output",
		},
		"json_output": {
			Type:        "boolean",
			Default:     false,
			Description: "Output as JSON instead of human-readable",
		},
		"return_echo": {
			Type:        "boolean",
			Default:     true,
			Description: "Return the call info in result (for testing)",
		},
	},
	ErrorCodes: []string{},
}

// Adapter prints tool calls to an output stream.
type Adapter struct {
	adapterID        string
	prefix           string
	includeTimestamp bool
	includeArgs      bool
	jsonOutput       bool
	returnEcho       bool
	output           io.Writer
	now              func() time.Time
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithOutput redirects output away from os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(a *Adapter) { a.output = w }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// New creates a stdout adapter from a config map. Unknown fields are ignored;
// missing fields take their manifest defaults.
func New(config map[string]any, opts ...Option) *Adapter {
	p := adapter.NewConfigParser(config)

	a := &Adapter{
		adapterID:        p.GetStringDefault("adapter_id", Kind),
		prefix:           p.GetStringDefault("prefix", "[gavel]"),
		includeTimestamp: p.GetBoolDefault("include_timestamp", true),
		includeArgs:      p.GetBoolDefault("include_args", true),
		jsonOutput:       p.GetBoolDefault("json_output", false),
		returnEcho:       p.GetBoolDefault("return_echo", true),
		output:           os.Stdout,
		now:              func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AdapterID implements adapter.DispatchAdapter.
func (a *Adapter) AdapterID() string { return a.adapterID }

// AdapterKind implements adapter.DispatchAdapter.
func (a *Adapter) AdapterKind() string { return Kind }

// Capabilities implements adapter.DispatchAdapter.
func (a *Adapter) Capabilities() []string {
	return []string{adapter.CapabilityApply, adapter.CapabilityDryRun}
}

// Call prints the tool call and returns an echo of it. It never fails except
// on context cancellation.
func (a *Adapter) Call(ctx context.Context, tool, method string, args map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var timestamp string
	if a.includeTimestamp {
		timestamp = a.now().Format(time.RFC3339)
	}

	var line string
	if a.jsonOutput {
		out := map[string]any{
			"tool":   tool,
			"method": method,
		}
		if timestamp != "" {
			out["timestamp"] = timestamp
		}
		if a.includeArgs {
			out["args"] = args
		}
		encoded, err := json.Marshal(out)
		if err != nil {
			return nil, err
		}
		line = string(encoded)
	} else {
		parts := []string{a.prefix}
		if timestamp != "" {
			parts = append(parts, timestamp)
		}
		parts = append(parts, fmt.Sprintf("%s.%s", tool, method))

		if a.includeArgs && len(args) > 0 {
			encoded, err := json.Marshal(args)
			if err != nil {
				return nil, err
			}
			argsStr := string(encoded)
			if len(argsStr) > 100 {
				argsStr = argsStr[:97] + "..."
			}
			parts = append(parts, argsStr)
		}
		line = strings.Join(parts, " ")
	}

	fmt.Fprintln(a.output, line)

	if a.returnEcho {
		return map[string]any{
			"echoed":     true,
			"tool":       tool,
			"method":     method,
			"args":       args,
			"adapter_id": a.adapterID,
		}, nil
	}
	return map[string]any{}, nil
}
