// Package policy provides the governance policy model for Gavel.
// A policy defines the rules for approving and executing a decision, and
// compiles down to the fields of a dispatcher execution request.
package policy

import (
	"fmt"

	gerrors "github.com/gavel-sh/gavel/internal/errors"
)

// Mode is an execution mode permitted by a policy.
type Mode string

const (
	// ModeDryRun simulates execution without side effects.
	ModeDryRun Mode = "dry_run"
	// ModeApply performs real, mutating execution.
	ModeApply Mode = "apply"
)

// ParseMode parses a string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDryRun, ModeApply:
		return Mode(s), nil
	default:
		return "", gerrors.Newf(gerrors.KindValidation, "invalid mode: %q (must be %q or %q)", s, ModeDryRun, ModeApply)
	}
}

// Params carries the fields used to construct a Policy.
// MaxSteps is a pointer so "no limit" (nil) is distinct from an explicit
// zero, which is invalid.
type Params struct {
	MinApprovals               int
	AllowedModes               []Mode
	RequireAdapterCapabilities []string
	MaxSteps                   *int
	Labels                     []string
}

// Policy is an immutable rule set governing a decision's approval and
// execution. Policies are validated at construction and never mutated;
// a policy change is a new Policy value and a new event.
type Policy struct {
	minApprovals int
	allowedModes []Mode
	requireCaps  []string
	maxSteps     *int
	labels       []string
}

// New constructs a Policy, enforcing its invariants. Construction fails
// loudly on an invalid shape; rule violations at execution time are the
// validator's job, not New's.
func New(p Params) (Policy, error) {
	const op = "policy.New"

	if p.MinApprovals < 1 {
		return Policy{}, gerrors.Validation(op, fmt.Sprintf("min_approvals must be at least 1, got %d", p.MinApprovals))
	}
	if len(p.AllowedModes) == 0 {
		return Policy{}, gerrors.Validation(op, "allowed_modes cannot be empty")
	}
	for _, m := range p.AllowedModes {
		if m != ModeDryRun && m != ModeApply {
			return Policy{}, gerrors.Validation(op, fmt.Sprintf("invalid mode: %q", m))
		}
	}
	if p.MaxSteps != nil && *p.MaxSteps < 1 {
		return Policy{}, gerrors.Validation(op, fmt.Sprintf("max_steps must be at least 1 if specified, got %d", *p.MaxSteps))
	}

	var maxSteps *int
	if p.MaxSteps != nil {
		v := *p.MaxSteps
		maxSteps = &v
	}

	return Policy{
		minApprovals: p.MinApprovals,
		allowedModes: append([]Mode(nil), p.AllowedModes...),
		requireCaps:  append([]string(nil), p.RequireAdapterCapabilities...),
		maxSteps:     maxSteps,
		labels:       append([]string(nil), p.Labels...),
	}, nil
}

// Default returns the most restrictive useful policy: one approval,
// dry-run only, no capability requirements, no step limit.
func Default() Policy {
	p, err := New(Params{MinApprovals: 1, AllowedModes: []Mode{ModeDryRun}})
	if err != nil {
		panic(err) // unreachable: the default params are valid by construction
	}
	return p
}

// MinApprovals returns the minimum number of distinct approvers required.
func (p Policy) MinApprovals() int {
	return p.minApprovals
}

// AllowedModes returns the permitted execution modes in declaration order.
func (p Policy) AllowedModes() []Mode {
	return append([]Mode(nil), p.allowedModes...)
}

// RequireAdapterCapabilities returns the capabilities the adapter must
// declare, in declaration order.
func (p Policy) RequireAdapterCapabilities() []string {
	return append([]string(nil), p.requireCaps...)
}

// MaxSteps returns the step limit and whether one is set.
func (p Policy) MaxSteps() (int, bool) {
	if p.maxSteps == nil {
		return 0, false
	}
	return *p.maxSteps, true
}

// Labels returns the governance labels. Labels are metadata for upstream
// filtering and are never forwarded to execution.
func (p Policy) Labels() []string {
	return append([]string(nil), p.labels...)
}

// AllowsMode reports whether the policy permits a specific execution mode.
func (p Policy) AllowsMode(mode Mode) bool {
	for _, m := range p.allowedModes {
		if m == mode {
			return true
		}
	}
	return false
}

// ToMap converts the policy to a plain keyed structure for serialization.
// FromMap(ToMap(p)) reconstructs an equal policy.
func (p Policy) ToMap() map[string]any {
	modes := make([]any, len(p.allowedModes))
	for i, m := range p.allowedModes {
		modes[i] = string(m)
	}
	caps := make([]any, len(p.requireCaps))
	for i, c := range p.requireCaps {
		caps[i] = c
	}
	labels := make([]any, len(p.labels))
	for i, l := range p.labels {
		labels[i] = l
	}

	m := map[string]any{
		"min_approvals":                p.minApprovals,
		"allowed_modes":                modes,
		"require_adapter_capabilities": caps,
		"labels":                       labels,
	}
	if p.maxSteps != nil {
		m["max_steps"] = *p.maxSteps
	} else {
		m["max_steps"] = nil
	}
	return m
}

// FromMap builds a Policy from untrusted keyed data. Parsing is permissive:
// fields of the wrong type fall back to documented defaults (min_approvals 1,
// allowed_modes [dry_run], lists empty, max_steps unset). The semantic
// invariants are then re-checked by New, which rejects genuinely invalid
// results. Keep the two stages separate: tolerant parse, strict construct.
func FromMap(data map[string]any) (Policy, error) {
	params := Params{
		MinApprovals: 1,
		AllowedModes: []Mode{ModeDryRun},
	}

	if n, ok := asInt(data["min_approvals"]); ok {
		params.MinApprovals = n
	}
	if n, ok := asInt(data["max_steps"]); ok {
		params.MaxSteps = &n
	}
	if modes, ok := asStringSlice(data["allowed_modes"]); ok {
		parsed := make([]Mode, len(modes))
		for i, m := range modes {
			parsed[i] = Mode(m)
		}
		params.AllowedModes = parsed
	}
	if caps, ok := asStringSlice(data["require_adapter_capabilities"]); ok {
		params.RequireAdapterCapabilities = caps
	}
	if labels, ok := asStringSlice(data["labels"]); ok {
		params.Labels = labels
	}

	return New(params)
}

// CompileToRouterRequest compiles the policy and decision parameters into a
// dispatcher execution request. This is the bridge between control-plane
// policy and execution.
//
// The request always includes goal, adapter_id, and dry_run. plan is included
// only when non-nil, max_steps only when the policy sets a limit, and
// require_capabilities only when the policy lists any. Labels are governance
// metadata and are deliberately excluded.
func (p Policy) CompileToRouterRequest(goal string, plan *string, adapterID string, dryRun bool) map[string]any {
	request := map[string]any{
		"goal":       goal,
		"adapter_id": adapterID,
		"dry_run":    dryRun,
	}

	if plan != nil {
		request["plan"] = *plan
	}
	if p.maxSteps != nil {
		request["max_steps"] = *p.maxSteps
	}
	if len(p.requireCaps) > 0 {
		request["require_capabilities"] = append([]string(nil), p.requireCaps...)
	}

	return request
}

// asInt coerces JSON-decoded numbers (float64), plain ints, and int64 into
// an int. Anything else is rejected.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// asStringSlice coerces []string and JSON-decoded []any into []string.
// Non-string elements are silently skipped.
func asStringSlice(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return append([]string(nil), s...), true
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out, true
	default:
		return nil, false
	}
}
