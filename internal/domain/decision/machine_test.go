package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerrors "github.com/gavel-sh/gavel/internal/errors"
)

func TestNewLifecycleMachine(t *testing.T) {
	m, err := NewLifecycleMachine()
	require.NoError(t, err)

	m.Start()
	assert.Equal(t, StateIDDraft, m.CurrentState())
}

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from State
		to   State
		want bool
	}{
		{StateDraft, StatePendingApproval, true},
		{StateDraft, StateApproved, false},
		{StateDraft, StateExecuting, false},
		{StatePendingApproval, StateApproved, true},
		{StatePendingApproval, StatePendingApproval, true},
		{StatePendingApproval, StateExecuting, false},
		{StateApproved, StateExecuting, true},
		{StateApproved, StatePendingApproval, true},
		{StateApproved, StateCompleted, false},
		{StateExecuting, StateCompleted, true},
		{StateExecuting, StateFailed, true},
		{StateExecuting, StateApproved, false},
		{StateCompleted, StateExecuting, true},
		{StateCompleted, StateDraft, false},
		{StateFailed, StateExecuting, true},
		{StateFailed, StateCompleted, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestValidateTransitionAttachPolicy(t *testing.T) {
	now := baseTime.Add(time.Hour)

	draft := newLog("dec_x").add(alice, created("g")).replay()
	assert.NoError(t, ValidateTransition(draft, MachineEventAttachPolicy, now))

	// Re-attach while pending is allowed, last attached wins.
	pending := newLog("dec_x").
		add(alice, created("g")).
		add(alice, attached(2)).
		replay()
	assert.NoError(t, ValidateTransition(pending, MachineEventAttachPolicy, now))
}

func TestValidateTransitionStartExecutionRequiresThreshold(t *testing.T) {
	now := baseTime.Add(time.Hour)

	pending := newLog("dec_x").
		add(alice, created("g")).
		add(alice, attached(2)).
		add(alice, &ApprovalGrantedPayload{}).
		replay()

	err := ValidateTransition(pending, MachineEventStartExecution, now)
	require.Error(t, err)
	assert.True(t, gerrors.IsKind(err, gerrors.KindPolicy))
	assert.Contains(t, err.Error(), "approval threshold not met: 1 active of 2 required")
}

func TestValidateTransitionStartExecutionApproved(t *testing.T) {
	now := baseTime.Add(time.Hour)

	approved := newLog("dec_x").
		add(alice, created("g")).
		add(alice, attached(1)).
		add(alice, &ApprovalGrantedPayload{}).
		replay()

	assert.NoError(t, ValidateTransition(approved, MachineEventStartExecution, now))
}

func TestValidateTransitionNoPolicy(t *testing.T) {
	now := baseTime.Add(time.Hour)
	draft := newLog("dec_x").add(alice, created("g")).replay()

	err := ValidateTransition(draft, MachineEventStartExecution, now)
	require.Error(t, err)
	assert.True(t, gerrors.IsKind(err, gerrors.KindPolicy))
	assert.Contains(t, err.Error(), "no policy attached")
}

func TestValidateTransitionDerivedApproval(t *testing.T) {
	// Approvals with expiry: the projection says approved at grant time, but
	// the threshold check runs against the supplied instant.
	expires := baseTime.Add(30 * time.Minute)
	d := newLog("dec_x").
		add(alice, created("g")).
		add(alice, attached(1)).
		add(alice, &ApprovalGrantedPayload{ExpiresAt: &expires}).
		replay()

	assert.NoError(t, ValidateTransition(d, MachineEventStartExecution, baseTime.Add(10*time.Minute)))

	err := ValidateTransition(d, MachineEventStartExecution, expires.Add(time.Hour))
	require.Error(t, err)
	assert.True(t, gerrors.IsKind(err, gerrors.KindPolicy))
}

func TestValidateTransitionReExecution(t *testing.T) {
	now := baseTime.Add(time.Hour)

	failed := newLog("dec_x").
		add(alice, created("g")).
		add(alice, attached(1)).
		add(alice, &ApprovalGrantedPayload{}).
		add(gavel, &ExecutionRequestedPayload{AdapterID: "stdout", DryRun: true}).
		add(gavel, &ExecutionStartedPayload{}).
		add(gavel, &ExecutionFailedPayload{ErrorCode: "adapter_error", ErrorMessage: "boom"}).
		replay()

	require.Equal(t, StateFailed, failed.State)
	assert.NoError(t, ValidateTransition(failed, MachineEventStartExecution, now))
}

func TestValidateTransitionIllegal(t *testing.T) {
	now := baseTime.Add(time.Hour)

	completed := newLog("dec_x").
		add(alice, created("g")).
		add(alice, attached(1)).
		add(alice, &ApprovalGrantedPayload{}).
		add(gavel, &ExecutionRequestedPayload{AdapterID: "stdout", DryRun: true}).
		add(gavel, &ExecutionStartedPayload{}).
		add(gavel, &ExecutionCompletedPayload{RunID: "r", StepsExecuted: 1}).
		replay()

	err := ValidateTransition(completed, MachineEventExecutionOK, now)
	require.Error(t, err)
	assert.True(t, gerrors.IsKind(err, gerrors.KindConflict))
}

func TestValidateTransitionUnknownEvent(t *testing.T) {
	d := newLog("dec_x").add(alice, created("g")).replay()
	err := ValidateTransition(d, "TELEPORT", baseTime)
	require.Error(t, err)
	assert.True(t, gerrors.IsKind(err, gerrors.KindValidation))
}
