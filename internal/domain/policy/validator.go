package policy

import (
	"fmt"
	"strings"
)

// ValidationResult is the outcome of checking a proposed execution against
// a policy. It is a plain value: expected rule violations are data, not
// errors, so callers get every failed rule at once.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// OK reports whether the validation passed.
func (r ValidationResult) OK() bool {
	return r.Valid
}

// ValidateExecutionRequest checks a proposed execution transition against a
// policy. All checks run independently and every violation is accumulated;
// the function is pure and deterministic.
//
// adapterCapabilities is the declared capability set of the resolved adapter,
// or nil when the adapter has not been resolved yet. The capability check is
// skipped when it is unknown.
func ValidateExecutionRequest(p Policy, mode Mode, approvalCount int, adapterCapabilities []string) ValidationResult {
	var errs []string

	if !p.AllowsMode(mode) {
		allowed := make([]string, len(p.allowedModes))
		for i, m := range p.allowedModes {
			allowed[i] = string(m)
		}
		errs = append(errs, fmt.Sprintf("mode %q not allowed by policy (allowed: %s)", mode, strings.Join(allowed, ", ")))
	}

	if approvalCount < p.minApprovals {
		errs = append(errs, fmt.Sprintf("insufficient approvals: %d < %d required", approvalCount, p.minApprovals))
	}

	if adapterCapabilities != nil && len(p.requireCaps) > 0 {
		declared := make(map[string]struct{}, len(adapterCapabilities))
		for _, c := range adapterCapabilities {
			declared[c] = struct{}{}
		}
		var missing []string
		for _, c := range p.requireCaps {
			if _, ok := declared[c]; !ok {
				missing = append(missing, c)
			}
		}
		if len(missing) > 0 {
			errs = append(errs, fmt.Sprintf("adapter missing required capabilities: %s", strings.Join(missing, ", ")))
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
