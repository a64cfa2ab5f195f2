package attest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerrors "github.com/gavel-sh/gavel/internal/errors"
)

const validDigest = "sha256:" + "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12"

func TestNewIntent(t *testing.T) {
	i, err := NewIntent("decision_bundle", validDigest)
	require.NoError(t, err)
	assert.Equal(t, "decision_bundle", i.SubjectType)
	assert.Equal(t, validDigest, i.BindingDigest)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Intent)
	}{
		{
			name:   "empty subject type",
			mutate: func(i *Intent) { i.SubjectType = "" },
		},
		{
			name:   "digest without prefix",
			mutate: func(i *Intent) { i.BindingDigest = strings.TrimPrefix(validDigest, "sha256:") },
		},
		{
			name:   "digest with uppercase hex",
			mutate: func(i *Intent) { i.BindingDigest = "sha256:" + strings.ToUpper(validDigest[7:]) },
		},
		{
			name:   "digest too short",
			mutate: func(i *Intent) { i.BindingDigest = "sha256:abc" },
		},
		{
			name: "too many labels",
			mutate: func(i *Intent) {
				i.Labels = map[string]string{}
				for r := 'a'; r < 'a'+33; r++ {
					i.Labels[strings.Repeat(string(r), 2)] = "v"
				}
			},
		},
		{
			name:   "bad label key",
			mutate: func(i *Intent) { i.Labels = map[string]string{"spaces not allowed": "v"} },
		},
		{
			name:   "label value too long",
			mutate: func(i *Intent) { i.Labels = map[string]string{"k": strings.Repeat("x", 257)} },
		},
		{
			name:   "label value with control chars",
			mutate: func(i *Intent) { i.Labels = map[string]string{"k": "line1\nline2"} },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i := Intent{SubjectType: "decision_bundle", BindingDigest: validDigest}
			tt.mutate(&i)
			err := i.Validate()
			require.Error(t, err)
			assert.True(t, gerrors.IsKind(err, gerrors.KindValidation))
		})
	}
}

func TestCanonicalMapExcludesUnsetOptionals(t *testing.T) {
	i := Intent{SubjectType: "decision_bundle", BindingDigest: validDigest}

	m := i.CanonicalMap()
	assert.Equal(t, IntentVersion, m["intent_version"])
	assert.Equal(t, "decision_bundle", m["subject_type"])
	assert.Equal(t, validDigest, m["binding_digest"])

	for _, key := range []string{"package_version", "run_id", "env", "tenant", "labels"} {
		_, present := m[key]
		assert.False(t, present, "unset optional %q must be excluded, not null", key)
	}
}

func TestCanonicalMapIncludesSetOptionals(t *testing.T) {
	i := Intent{
		SubjectType:    "decision_bundle",
		BindingDigest:  validDigest,
		PackageVersion: "1.2.3",
		RunID:          "run-9",
		Env:            "prod",
		Tenant:         "acme",
		Labels:         map[string]string{"team": "infra"},
	}

	m := i.CanonicalMap()
	assert.Equal(t, "1.2.3", m["package_version"])
	assert.Equal(t, "run-9", m["run_id"])
	assert.Equal(t, "prod", m["env"])
	assert.Equal(t, "acme", m["tenant"])
	assert.Equal(t, map[string]any{"team": "infra"}, m["labels"])
}

func TestDigestStableAndUnprefixed(t *testing.T) {
	i := Intent{
		SubjectType:   "decision_bundle",
		BindingDigest: validDigest,
		Labels:        map[string]string{"b": "2", "a": "1", "c": "3"},
	}

	first, err := i.Digest()
	require.NoError(t, err)
	second, err := i.Digest()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
	assert.False(t, strings.HasPrefix(first, "sha256:"))
}

func TestDigestSensitiveToOptionalFields(t *testing.T) {
	base := Intent{SubjectType: "decision_bundle", BindingDigest: validDigest}
	withEnv := base
	withEnv.Env = "prod"

	a, err := base.Digest()
	require.NoError(t, err)
	b, err := withEnv.Digest()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
