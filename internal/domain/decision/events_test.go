package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gavel-sh/gavel/internal/canonical"
	gerrors "github.com/gavel-sh/gavel/internal/errors"
)

func TestEventID(t *testing.T) {
	e := Event{DecisionID: "dec_abc123", Seq: 4}
	assert.Equal(t, "evt_dec_abc123_4", e.EventID())
}

func TestComputeDigestStable(t *testing.T) {
	p := &DecisionCreatedPayload{Goal: "ship", RequestedMode: "dry_run", Labels: []string{}}

	first, err := ComputeDigest(EventDecisionCreated, p)
	require.NoError(t, err)
	second, err := ComputeDigest(EventDecisionCreated, p)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestComputeDigestCoversEventType(t *testing.T) {
	// Same payload bytes under a different event type must not collide.
	a, err := ComputeDigest(EventApprovalGranted, &ApprovalGrantedPayload{})
	require.NoError(t, err)
	b, err := ComputeDigest(EventApprovalRevoked, &ApprovalGrantedPayload{})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecodePayloadRoundTrip(t *testing.T) {
	maxSteps := 3
	payloads := []Payload{
		&DecisionCreatedPayload{Goal: "ship", RequestedMode: "dry_run", Labels: []string{"x"}},
		&PolicyAttachedPayload{MinApprovals: 2, AllowedModes: []string{"dry_run"}, MaxSteps: &maxSteps},
		&ApprovalGrantedPayload{Comment: "lgtm"},
		&ApprovalRevokedPayload{Reason: "changed my mind"},
		&ExecutionRequestedPayload{AdapterID: "stdout", DryRun: true},
		&ExecutionStartedPayload{RouterRequestDigest: "abc"},
		&ExecutionCompletedPayload{RunID: "r1", ResponseDigest: "def", StepsExecuted: 2},
		&ExecutionFailedPayload{ErrorCode: "timeout", ErrorMessage: "too slow"},
		&TemplateCreatedPayload{Name: "tpl", MinApprovals: 1, AllowedModes: []string{"dry_run"}},
	}

	for _, p := range payloads {
		t.Run(string(p.EventType()), func(t *testing.T) {
			data, err := canonical.Marshal(p)
			require.NoError(t, err)

			decoded, err := DecodePayload(p.EventType(), data)
			require.NoError(t, err)
			assert.Equal(t, p, decoded)

			// Digests survive the store round trip.
			before, err := ComputeDigest(p.EventType(), p)
			require.NoError(t, err)
			after, err := ComputeDigest(decoded.EventType(), decoded)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestDecodePayloadRejectsUnknownType(t *testing.T) {
	_, err := DecodePayload("DECISION_VAPORIZED", []byte(`{}`))
	require.Error(t, err)
	assert.True(t, gerrors.IsKind(err, gerrors.KindValidation))
}

func TestDecodePayloadRejectsBadJSON(t *testing.T) {
	_, err := DecodePayload(EventDecisionCreated, []byte(`{not json`))
	require.Error(t, err)
	assert.True(t, gerrors.IsKind(err, gerrors.KindStore))
}

func TestApprovalGrantedExpiryRoundTrip(t *testing.T) {
	expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &ApprovalGrantedPayload{ExpiresAt: &expires}

	data, err := canonical.Marshal(p)
	require.NoError(t, err)

	decoded, err := DecodePayload(EventApprovalGranted, data)
	require.NoError(t, err)

	got := decoded.(*ApprovalGrantedPayload)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(expires))
}
