// Package attest provides external attestation of exported bundles: a
// compact, canonical description of what to witness, independent of any
// particular anchoring backend.
package attest

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/gavel-sh/gavel/internal/canonical"
	gerrors "github.com/gavel-sh/gavel/internal/errors"
)

// IntentVersion is the intent schema version. Bump when the canonical dict
// shape changes.
const IntentVersion = "0.1"

const (
	labelValueMax  = 256
	labelsMaxCount = 32
)

var (
	bindingDigestRe = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)
	labelKeyRe      = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)
)

// Intent is a canonical description of what to witness. It carries no
// secrets, no PII, and no wall-clock time: time belongs to the receipt, not
// the intent.
type Intent struct {
	SubjectType    string
	BindingDigest  string
	PackageVersion string
	RunID          string
	Env            string
	Tenant         string
	Labels         map[string]string
}

// NewIntent constructs an Intent, enforcing its invariants.
func NewIntent(subjectType, bindingDigest string) (Intent, error) {
	i := Intent{SubjectType: subjectType, BindingDigest: bindingDigest}
	if err := i.Validate(); err != nil {
		return Intent{}, err
	}
	return i, nil
}

// Validate checks the intent's structural invariants.
func (i Intent) Validate() error {
	const op = "attest.Intent"

	if i.SubjectType == "" {
		return gerrors.Validation(op, "subject_type cannot be empty")
	}
	if !bindingDigestRe.MatchString(i.BindingDigest) {
		return gerrors.Validation(op,
			fmt.Sprintf("binding_digest must be 'sha256:' + 64 lowercase hex chars, got: %q", i.BindingDigest))
	}
	if len(i.Labels) > labelsMaxCount {
		return gerrors.Validation(op, fmt.Sprintf("labels: max %d entries, got %d", labelsMaxCount, len(i.Labels)))
	}
	for key, value := range i.Labels {
		if !labelKeyRe.MatchString(key) {
			return gerrors.Validation(op,
				fmt.Sprintf("label key must be 1-64 ASCII chars [a-zA-Z0-9._-], got: %q", key))
		}
		if len(value) > labelValueMax {
			return gerrors.Validation(op, fmt.Sprintf("label value for %q exceeds %d chars", key, labelValueMax))
		}
		for _, c := range value {
			if c < 0x20 {
				return gerrors.Validation(op, fmt.Sprintf("label value for %q contains control characters", key))
			}
		}
	}
	return nil
}

// CanonicalMap builds the canonical form used for digest computation.
// Unset optional fields are excluded entirely, never set to null.
func (i Intent) CanonicalMap() map[string]any {
	m := map[string]any{
		"intent_version": IntentVersion,
		"subject_type":   i.SubjectType,
		"binding_digest": i.BindingDigest,
	}
	if i.PackageVersion != "" {
		m["package_version"] = i.PackageVersion
	}
	if i.RunID != "" {
		m["run_id"] = i.RunID
	}
	if i.Env != "" {
		m["env"] = i.Env
	}
	if i.Tenant != "" {
		m["tenant"] = i.Tenant
	}
	if len(i.Labels) > 0 {
		labels := make(map[string]any, len(i.Labels))
		keys := make([]string, 0, len(i.Labels))
		for k := range i.Labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			labels[k] = i.Labels[k]
		}
		m["labels"] = labels
	}
	return m
}

// Digest computes the intent's content digest: the raw hex form, without a
// "sha256:" prefix.
func (i Intent) Digest() (string, error) {
	return canonical.Digest(i.CanonicalMap())
}
