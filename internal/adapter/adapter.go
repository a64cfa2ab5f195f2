// Package adapter defines the execution adapter contract and registry.
// Adapters are the only components that touch the outside world; everything
// above them deals in requests, events, and digests.
package adapter

import "context"

// Capability names adapters may declare.
const (
	// CapabilityDryRun means the adapter can simulate calls without side effects.
	CapabilityDryRun = "dry_run"
	// CapabilityApply means the adapter can perform real, mutating calls.
	CapabilityApply = "apply"
)

// DispatchAdapter is implemented by every execution adapter.
type DispatchAdapter interface {
	// AdapterID is the stable identifier for this adapter instance.
	AdapterID() string

	// AdapterKind is the adapter's type identifier (e.g. "stdout").
	AdapterKind() string

	// Capabilities returns the declared capability set.
	Capabilities() []string

	// Call invokes one tool method. Implementations must honor ctx
	// cancellation.
	Call(ctx context.Context, tool, method string, args map[string]any) (map[string]any, error)
}

// ConfigField describes one field of an adapter's config schema.
type ConfigField struct {
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// Manifest is an adapter's self-description: what it is, what it can do,
// and how to configure it.
type Manifest struct {
	SchemaVersion           int                    `json:"schema_version"`
	Kind                    string                 `json:"kind"`
	Capabilities            []string               `json:"capabilities"`
	SupportedRouterVersions string                 `json:"supported_router_versions"`
	ConfigSchema            map[string]ConfigField `json:"config_schema"`
	ErrorCodes              []string               `json:"error_codes"`
}

// HasCapability reports whether an adapter declares a capability.
func HasCapability(a DispatchAdapter, capability string) bool {
	for _, c := range a.Capabilities() {
		if c == capability {
			return true
		}
	}
	return false
}

// MissingCapabilities returns the required capabilities an adapter does not
// declare, in requirement order.
func MissingCapabilities(a DispatchAdapter, required []string) []string {
	declared := make(map[string]struct{})
	for _, c := range a.Capabilities() {
		declared[c] = struct{}{}
	}
	var missing []string
	for _, c := range required {
		if _, ok := declared[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}
