package decision

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/statekit"

	gerrors "github.com/gavel-sh/gavel/internal/errors"
)

// LifecycleContext is the context passed to the state machine guards.
type LifecycleContext struct {
	Decision *Decision
	Now      time.Time
}

// Event names for the state machine.
const (
	MachineEventAttachPolicy   statekit.EventType = "ATTACH_POLICY"
	MachineEventThresholdMet   statekit.EventType = "THRESHOLD_MET"
	MachineEventThresholdLost  statekit.EventType = "THRESHOLD_LOST"
	MachineEventStartExecution statekit.EventType = "START_EXECUTION"
	MachineEventExecutionOK    statekit.EventType = "EXECUTION_OK"
	MachineEventExecutionFail  statekit.EventType = "EXECUTION_FAIL"
)

// Guard names for the state machine.
const (
	GuardPolicyAttached statekit.GuardType = "policyAttached"
	GuardThresholdMet   statekit.GuardType = "thresholdMet"
)

// State IDs for the state machine.
var (
	StateIDDraft           = statekit.StateID(StateDraft)
	StateIDPendingApproval = statekit.StateID(StatePendingApproval)
	StateIDApproved        = statekit.StateID(StateApproved)
	StateIDExecuting       = statekit.StateID(StateExecuting)
	StateIDCompleted       = statekit.StateID(StateCompleted)
	StateIDFailed          = statekit.StateID(StateFailed)
)

// LifecycleMachine wraps the Statekit state machine for decision lifecycles.
type LifecycleMachine struct {
	interpreter *statekit.Interpreter[LifecycleContext]
}

// NewLifecycleMachine creates a new state machine for decision lifecycles.
func NewLifecycleMachine() (*LifecycleMachine, error) {
	machine, err := statekit.NewMachine[LifecycleContext]("decision-lifecycle").
		WithInitial(StateIDDraft).
		// Guards
		WithGuard(GuardPolicyAttached, guardPolicyAttached).
		WithGuard(GuardThresholdMet, guardThresholdMet).
		// Draft state
		State(StateIDDraft).
		On(MachineEventAttachPolicy).Target(StateIDPendingApproval).
		Done().
		// PendingApproval state
		State(StateIDPendingApproval).
		On(MachineEventAttachPolicy).Target(StateIDPendingApproval). // Re-attach, last wins
		On(MachineEventThresholdMet).Target(StateIDApproved).Guard(GuardThresholdMet).
		Done().
		// Approved state
		State(StateIDApproved).
		On(MachineEventAttachPolicy).Target(StateIDPendingApproval).
		On(MachineEventThresholdLost).Target(StateIDPendingApproval).
		On(MachineEventStartExecution).Target(StateIDExecuting).Guard(GuardThresholdMet).
		Done().
		// Executing state
		State(StateIDExecuting).
		On(MachineEventExecutionOK).Target(StateIDCompleted).
		On(MachineEventExecutionFail).Target(StateIDFailed).
		Done().
		// Completed state (re-executable)
		State(StateIDCompleted).
		On(MachineEventStartExecution).Target(StateIDExecuting).Guard(GuardThresholdMet).
		Done().
		// Failed state (re-executable)
		State(StateIDFailed).
		On(MachineEventStartExecution).Target(StateIDExecuting).Guard(GuardThresholdMet).
		Done().
		Build()

	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.KindInternal, "decision.NewLifecycleMachine", "failed to build state machine")
	}

	return &LifecycleMachine{interpreter: statekit.NewInterpreter(machine)}, nil
}

// Guard implementations. Guards take context by value.

func guardPolicyAttached(ctx LifecycleContext, _ statekit.Event) bool {
	return ctx.Decision != nil && ctx.Decision.Policy != nil
}

func guardThresholdMet(ctx LifecycleContext, _ statekit.Event) bool {
	if ctx.Decision == nil {
		return false
	}
	now := ctx.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return ctx.Decision.IsApprovedAt(now)
}

// Start starts the state machine interpreter.
func (m *LifecycleMachine) Start() {
	m.interpreter.Start()
}

// Send sends an event to the interpreter.
func (m *LifecycleMachine) Send(event statekit.EventType) error {
	if m.interpreter == nil {
		return gerrors.New(gerrors.KindInternal, "interpreter not started")
	}
	m.interpreter.Send(statekit.Event{Type: event})
	return nil
}

// CurrentState returns the current state.
func (m *LifecycleMachine) CurrentState() statekit.StateID {
	if m.interpreter == nil {
		return ""
	}
	return m.interpreter.State().Value
}

// CanTransitionTo reports whether the lifecycle permits moving from s to
// target in a single step.
func (s State) CanTransitionTo(target State) bool {
	allowed := map[State][]State{
		StateDraft:           {StatePendingApproval},
		StatePendingApproval: {StatePendingApproval, StateApproved},
		StateApproved:        {StatePendingApproval, StateExecuting},
		StateExecuting:       {StateCompleted, StateFailed},
		StateCompleted:       {StateExecuting},
		StateFailed:          {StateExecuting},
	}
	for _, t := range allowed[s] {
		if t == target {
			return true
		}
	}
	return false
}

// ValidateTransition checks if a lifecycle event is valid for the decision's
// current state without executing it.
func ValidateTransition(d *Decision, event statekit.EventType, now time.Time) error {
	const op = "decision.ValidateTransition"

	ctx := LifecycleContext{Decision: d, Now: now}

	switch event {
	case MachineEventThresholdMet, MachineEventStartExecution:
		if !guardPolicyAttached(ctx, statekit.Event{}) {
			return gerrors.Policy(op, "no policy attached")
		}
		if !guardThresholdMet(ctx, statekit.Event{}) {
			return gerrors.Policy(op, fmt.Sprintf("approval threshold not met: %d active of %d required",
				d.ActiveApprovalCountAt(now), d.Policy.MinApprovals()))
		}
	}

	var target State
	switch event {
	case MachineEventAttachPolicy:
		target = StatePendingApproval
	case MachineEventThresholdMet:
		target = StateApproved
	case MachineEventThresholdLost:
		target = StatePendingApproval
	case MachineEventStartExecution:
		target = StateExecuting
	case MachineEventExecutionOK:
		target = StateCompleted
	case MachineEventExecutionFail:
		target = StateFailed
	default:
		return gerrors.Newf(gerrors.KindValidation, "unknown lifecycle event: %s", event)
	}

	// Approved is derived, so events arriving while the projection still says
	// pending_approval are checked against the derived approval state.
	from := d.State
	if from == StatePendingApproval && guardThresholdMet(ctx, statekit.Event{}) {
		from = StateApproved
	}

	if !from.CanTransitionTo(target) {
		return gerrors.Conflict(op, fmt.Sprintf("cannot transition from %s to %s via %s", from, target, event))
	}
	return nil
}
