package policy

import (
	"github.com/gavel-sh/gavel/internal/canonical"
	gerrors "github.com/gavel-sh/gavel/internal/errors"
)

// Template is a named, immutable policy snapshot. Templates capture the
// "how to govern" separately from the "what to do": a decision instantiated
// from a template records the template's name, digest, snapshot, and any
// field-level overrides, so the effective policy is always reconcilable.
type Template struct {
	Name        string
	Description string
	Policy      Policy
}

// NewTemplate constructs a Template. The embedded policy is already
// validated; the template only adds naming constraints.
func NewTemplate(name, description string, p Policy) (Template, error) {
	const op = "policy.NewTemplate"

	if name == "" {
		return Template{}, gerrors.Validation(op, "template name cannot be empty")
	}
	return Template{Name: name, Description: description, Policy: p}, nil
}

// Snapshot returns the template's policy fields as a plain keyed structure
// for embedding in decision events.
func (t Template) Snapshot() map[string]any {
	snap := t.Policy.ToMap()
	snap["template_name"] = t.Name
	snap["template_description"] = t.Description
	return snap
}

// Digest computes the content digest of the template.
func (t Template) Digest() (string, error) {
	return canonical.Digest(t.Snapshot())
}

// Instantiate merges field-level overrides into the template's policy
// snapshot and constructs the effective policy. The merge is shallow and
// key-based: an override replaces the snapshot field wholesale. The result
// passes through the same permissive-parse/strict-construct pipeline as any
// externally supplied policy.
func (t Template) Instantiate(overrides map[string]any) (Policy, error) {
	merged := t.Policy.ToMap()
	for k, v := range overrides {
		merged[k] = v
	}
	return FromMap(merged)
}
