package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = Actor{Type: ActorHuman, ID: "alice"}
	bob   = Actor{Type: ActorHuman, ID: "bob"}
	carol = Actor{Type: ActorHuman, ID: "carol"}
	gavel = Actor{Type: ActorSystem, ID: "router"}
)

var baseTime = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

// eventLog builds a sequenced event log from payloads, one minute apart.
type eventLog struct {
	decisionID string
	events     []Event
}

func newLog(decisionID string) *eventLog {
	return &eventLog{decisionID: decisionID}
}

func (l *eventLog) add(actor Actor, p Payload) *eventLog {
	seq := len(l.events)
	l.events = append(l.events, Event{
		DecisionID: l.decisionID,
		Seq:        seq,
		Type:       p.EventType(),
		Timestamp:  baseTime.Add(time.Duration(seq) * time.Minute),
		Actor:      actor,
		Payload:    p,
	})
	return l
}

func (l *eventLog) replay() *Decision {
	return Replay(l.decisionID, l.events)
}

func created(goal string) *DecisionCreatedPayload {
	return &DecisionCreatedPayload{Goal: goal, RequestedMode: "dry_run", Labels: []string{}}
}

func attached(minApprovals int) *PolicyAttachedPayload {
	return &PolicyAttachedPayload{
		MinApprovals: minApprovals,
		AllowedModes: []string{"dry_run", "apply"},
	}
}

func TestReplayEmptyLog(t *testing.T) {
	d := Replay("dec_x", nil)
	assert.Equal(t, StateDraft, d.State)
	assert.Nil(t, d.Policy)
	assert.Empty(t, d.Approvals)
}

func TestReplayCreated(t *testing.T) {
	d := newLog("dec_x").add(alice, created("rotate creds")).replay()

	assert.Equal(t, StateDraft, d.State)
	assert.Equal(t, "rotate creds", d.Goal)
	assert.Equal(t, "dry_run", string(d.RequestedMode))
	assert.Len(t, d.Events, 1)
}

func TestPolicyAttachedMovesToPending(t *testing.T) {
	d := newLog("dec_x").
		add(alice, created("g")).
		add(alice, attached(2)).
		replay()

	assert.Equal(t, StatePendingApproval, d.State)
	require.NotNil(t, d.Policy)
	assert.Equal(t, 2, d.Policy.MinApprovals())
}

func TestLastAttachedPolicyWins(t *testing.T) {
	d := newLog("dec_x").
		add(alice, created("g")).
		add(alice, attached(3)).
		add(alice, attached(1)).
		replay()

	require.NotNil(t, d.Policy)
	assert.Equal(t, 1, d.Policy.MinApprovals())
}

func TestApprovalThreshold(t *testing.T) {
	log := newLog("dec_x").
		add(alice, created("g")).
		add(alice, attached(2)).
		add(alice, &ApprovalGrantedPayload{})

	d := log.replay()
	assert.Equal(t, StatePendingApproval, d.State)
	assert.Equal(t, 1, d.ActiveApprovalCountAt(baseTime.Add(time.Hour)))

	log.add(bob, &ApprovalGrantedPayload{})
	d = log.replay()
	assert.Equal(t, StateApproved, d.State)
	assert.Equal(t, 2, d.ActiveApprovalCountAt(baseTime.Add(time.Hour)))
}

func TestReApprovalBySameActorIsIdempotent(t *testing.T) {
	d := newLog("dec_x").
		add(alice, created("g")).
		add(alice, attached(2)).
		add(alice, &ApprovalGrantedPayload{}).
		add(alice, &ApprovalGrantedPayload{Comment: "still yes"}).
		replay()

	assert.Equal(t, StatePendingApproval, d.State)
	assert.Equal(t, 1, d.ActiveApprovalCountAt(baseTime.Add(time.Hour)))
	assert.Equal(t, "still yes", d.Approvals["alice"].Comment)
}

func TestRevocationDropsBelowThreshold(t *testing.T) {
	d := newLog("dec_x").
		add(alice, created("g")).
		add(alice, attached(2)).
		add(alice, &ApprovalGrantedPayload{}).
		add(bob, &ApprovalGrantedPayload{}).
		add(bob, &ApprovalRevokedPayload{Reason: "found a bug"}).
		replay()

	assert.Equal(t, StatePendingApproval, d.State)
	assert.Equal(t, 1, d.ActiveApprovalCountAt(baseTime.Add(time.Hour)))
	assert.True(t, d.Approvals["bob"].Revoked)
	assert.Equal(t, "found a bug", d.Approvals["bob"].RevokeReason)
}

func TestExpiredApprovalDoesNotCount(t *testing.T) {
	expires := baseTime.Add(30 * time.Minute)
	d := newLog("dec_x").
		add(alice, created("g")).
		add(alice, attached(1)).
		add(alice, &ApprovalGrantedPayload{ExpiresAt: &expires}).
		replay()

	assert.Equal(t, 1, d.ActiveApprovalCountAt(baseTime.Add(10*time.Minute)))
	assert.True(t, d.IsApprovedAt(baseTime.Add(10*time.Minute)))

	// At and after the expiry instant the approval is inactive.
	assert.Equal(t, 0, d.ActiveApprovalCountAt(expires))
	assert.False(t, d.IsApprovedAt(expires.Add(time.Hour)))
}

func TestExecutionLifecycle(t *testing.T) {
	runID := "run-1"
	d := newLog("dec_x").
		add(alice, created("g")).
		add(alice, attached(1)).
		add(alice, &ApprovalGrantedPayload{}).
		add(gavel, &ExecutionRequestedPayload{AdapterID: "stdout", DryRun: true}).
		add(gavel, &ExecutionStartedPayload{RouterRequestDigest: "req-digest"}).
		add(gavel, &ExecutionCompletedPayload{RunID: runID, ResponseDigest: "resp-digest", StepsExecuted: 2}).
		replay()

	assert.Equal(t, StateCompleted, d.State)
	require.Len(t, d.Executions, 1)

	rec := d.LatestExecution()
	require.NotNil(t, rec)
	assert.Equal(t, "stdout", rec.AdapterID)
	assert.True(t, rec.DryRun)
	assert.Equal(t, "req-digest", rec.RequestDigest)
	assert.Equal(t, "resp-digest", rec.ResponseDigest)
	require.NotNil(t, rec.RunID)
	assert.Equal(t, runID, *rec.RunID)
	require.NotNil(t, rec.StepsExecuted)
	assert.Equal(t, 2, *rec.StepsExecuted)

	got := d.LatestRunID()
	require.NotNil(t, got)
	assert.Equal(t, runID, *got)
}

func TestExecutionFailure(t *testing.T) {
	runID := "run-1"
	d := newLog("dec_x").
		add(alice, created("g")).
		add(alice, attached(1)).
		add(alice, &ApprovalGrantedPayload{}).
		add(gavel, &ExecutionRequestedPayload{AdapterID: "stdout", DryRun: true}).
		add(gavel, &ExecutionStartedPayload{RouterRequestDigest: "req"}).
		add(gavel, &ExecutionFailedPayload{ErrorCode: "timeout", ErrorMessage: "adapter call timed out", RunID: &runID}).
		replay()

	assert.Equal(t, StateFailed, d.State)
	rec := d.LatestExecution()
	require.NotNil(t, rec)
	assert.Equal(t, "timeout", rec.ErrorCode)
	assert.Equal(t, "adapter call timed out", rec.ErrorMessage)
}

func TestApprovalChangesDoNotTouchExecutionStates(t *testing.T) {
	d := newLog("dec_x").
		add(alice, created("g")).
		add(alice, attached(1)).
		add(alice, &ApprovalGrantedPayload{}).
		add(gavel, &ExecutionRequestedPayload{AdapterID: "stdout", DryRun: true}).
		add(gavel, &ExecutionStartedPayload{RouterRequestDigest: "req"}).
		add(gavel, &ExecutionCompletedPayload{RunID: "r", ResponseDigest: "d", StepsExecuted: 1}).
		add(bob, &ApprovalGrantedPayload{}).
		replay()

	// A post-completion approval adjusts the approval set, not the state.
	assert.Equal(t, StateCompleted, d.State)
	assert.Equal(t, 2, d.ActiveApprovalCountAt(baseTime.Add(time.Hour)))
}

func TestReplayDeterminism(t *testing.T) {
	log := newLog("dec_x").
		add(alice, created("g")).
		add(alice, attached(2)).
		add(alice, &ApprovalGrantedPayload{}).
		add(bob, &ApprovalGrantedPayload{}).
		add(carol, &ApprovalGrantedPayload{}).
		add(bob, &ApprovalRevokedPayload{})

	first := log.replay()
	for i := 0; i < 5; i++ {
		again := log.replay()
		assert.Equal(t, first.State, again.State)
		assert.Equal(t, first.ActiveApprovalCountAt(baseTime.Add(time.Hour)),
			again.ActiveApprovalCountAt(baseTime.Add(time.Hour)))
	}
}

func TestTemplateRefProjection(t *testing.T) {
	p := attached(1)
	p.TemplateName = "prod-gate"
	p.TemplateDigest = "abc123"
	p.TemplateSnapshot = map[string]any{"min_approvals": 1}
	p.OverridesApplied = map[string]any{"labels": []string{"prod"}}

	d := newLog("dec_x").
		add(alice, created("g")).
		add(alice, p).
		replay()

	require.NotNil(t, d.TemplateRef)
	assert.Equal(t, "prod-gate", d.TemplateRef.Name)
	assert.Equal(t, "abc123", d.TemplateRef.Digest)
}
