// Package decision provides the event-sourced decision model for Gavel.
// A decision's event log is the sole source of truth; the Decision aggregate
// is a replayed projection, never durable state of its own.
package decision

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gavel-sh/gavel/internal/canonical"
	gerrors "github.com/gavel-sh/gavel/internal/errors"
)

// EventType identifies one of the closed set of decision lifecycle events.
type EventType string

const (
	// EventDecisionCreated records the creation of a decision.
	EventDecisionCreated EventType = "DECISION_CREATED"
	// EventPolicyAttached records a policy being attached (last attached wins).
	EventPolicyAttached EventType = "POLICY_ATTACHED"
	// EventApprovalGranted records an approval by a distinct actor.
	EventApprovalGranted EventType = "APPROVAL_GRANTED"
	// EventApprovalRevoked records the revocation of a prior approval.
	EventApprovalRevoked EventType = "APPROVAL_REVOKED"
	// EventExecutionRequested opens a new execution invocation cycle.
	EventExecutionRequested EventType = "EXECUTION_REQUESTED"
	// EventExecutionStarted records dispatch after all gates passed.
	EventExecutionStarted EventType = "EXECUTION_STARTED"
	// EventExecutionCompleted records a successful adapter invocation.
	EventExecutionCompleted EventType = "EXECUTION_COMPLETED"
	// EventExecutionFailed records a failed adapter invocation.
	EventExecutionFailed EventType = "EXECUTION_FAILED"
	// EventTemplateCreated records the creation of a policy template.
	// It lives in the template event log, not decision logs.
	EventTemplateCreated EventType = "TEMPLATE_CREATED"
)

// ActorType distinguishes human actors from system components.
type ActorType string

const (
	// ActorHuman is a human actor.
	ActorHuman ActorType = "human"
	// ActorSystem is an automated system component.
	ActorSystem ActorType = "system"
)

// Actor identifies who performed an action.
type Actor struct {
	Type ActorType `json:"type"`
	ID   string    `json:"id"`
}

// Payload is implemented by every event payload variant. The closed union of
// payload types keeps payload access exhaustively checkable.
type Payload interface {
	EventType() EventType
}

// DecisionCreatedPayload is the payload for DECISION_CREATED.
type DecisionCreatedPayload struct {
	Goal          string   `json:"goal"`
	Plan          *string  `json:"plan,omitempty"`
	RequestedMode string   `json:"requested_mode"`
	Labels        []string `json:"labels"`
	Comment       string   `json:"comment,omitempty"`
}

// EventType implements Payload.
func (*DecisionCreatedPayload) EventType() EventType { return EventDecisionCreated }

// PolicyAttachedPayload is the payload for POLICY_ATTACHED. When the policy
// was instantiated from a template, the template fields record the snapshot,
// its digest, and the overrides applied, so the effective policy is always
// reconcilable from the event alone.
type PolicyAttachedPayload struct {
	MinApprovals               int      `json:"min_approvals"`
	AllowedModes               []string `json:"allowed_modes"`
	RequireAdapterCapabilities []string `json:"require_adapter_capabilities"`
	MaxSteps                   *int     `json:"max_steps"`
	Labels                     []string `json:"labels"`

	TemplateName     string         `json:"template_name,omitempty"`
	TemplateSnapshot map[string]any `json:"template_snapshot,omitempty"`
	TemplateDigest   string         `json:"template_digest,omitempty"`
	OverridesApplied map[string]any `json:"overrides_applied,omitempty"`
}

// EventType implements Payload.
func (*PolicyAttachedPayload) EventType() EventType { return EventPolicyAttached }

// ApprovalGrantedPayload is the payload for APPROVAL_GRANTED. The approver
// identity lives on the event's actor, not in the payload.
type ApprovalGrantedPayload struct {
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Comment   string     `json:"comment,omitempty"`
}

// EventType implements Payload.
func (*ApprovalGrantedPayload) EventType() EventType { return EventApprovalGranted }

// ApprovalRevokedPayload is the payload for APPROVAL_REVOKED.
type ApprovalRevokedPayload struct {
	Reason string `json:"reason"`
}

// EventType implements Payload.
func (*ApprovalRevokedPayload) EventType() EventType { return EventApprovalRevoked }

// ExecutionRequestedPayload is the payload for EXECUTION_REQUESTED.
type ExecutionRequestedPayload struct {
	AdapterID string `json:"adapter_id"`
	DryRun    bool   `json:"dry_run"`
}

// EventType implements Payload.
func (*ExecutionRequestedPayload) EventType() EventType { return EventExecutionRequested }

// ExecutionStartedPayload is the payload for EXECUTION_STARTED.
type ExecutionStartedPayload struct {
	RouterRequestDigest string `json:"router_request_digest"`
}

// EventType implements Payload.
func (*ExecutionStartedPayload) EventType() EventType { return EventExecutionStarted }

// ExecutionCompletedPayload is the payload for EXECUTION_COMPLETED.
type ExecutionCompletedPayload struct {
	RunID          string `json:"run_id"`
	ResponseDigest string `json:"response_digest"`
	StepsExecuted  int    `json:"steps_executed"`
}

// EventType implements Payload.
func (*ExecutionCompletedPayload) EventType() EventType { return EventExecutionCompleted }

// ExecutionFailedPayload is the payload for EXECUTION_FAILED. RunID is nil
// when the failure occurred before a run was ever assigned.
type ExecutionFailedPayload struct {
	ErrorCode    string  `json:"error_code"`
	ErrorMessage string  `json:"error_message"`
	RunID        *string `json:"run_id"`
}

// EventType implements Payload.
func (*ExecutionFailedPayload) EventType() EventType { return EventExecutionFailed }

// TemplateCreatedPayload is the payload for TEMPLATE_CREATED.
type TemplateCreatedPayload struct {
	Name                       string   `json:"name"`
	Description                string   `json:"description"`
	MinApprovals               int      `json:"min_approvals"`
	AllowedModes               []string `json:"allowed_modes"`
	RequireAdapterCapabilities []string `json:"require_adapter_capabilities"`
	MaxSteps                   *int     `json:"max_steps"`
	Labels                     []string `json:"labels"`
}

// EventType implements Payload.
func (*TemplateCreatedPayload) EventType() EventType { return EventTemplateCreated }

// Event is one immutable record in a decision's event log. DecisionID, Seq,
// and Timestamp are assigned by the store, never the caller.
type Event struct {
	DecisionID string
	Seq        int
	Type       EventType
	Timestamp  time.Time
	Actor      Actor
	Payload    Payload
	Digest     string
}

// EventID returns the deterministic identifier for this event.
func (e Event) EventID() string {
	return fmt.Sprintf("evt_%s_%d", e.DecisionID, e.Seq)
}

// ComputeDigest computes the content digest over the canonical form of
// (event_type, payload). Field order never affects the result.
func ComputeDigest(t EventType, p Payload) (string, error) {
	return canonical.Digest(map[string]any{
		"event_type": string(t),
		"payload":    p,
	})
}

// DecodePayload decodes a JSON-encoded payload into its typed variant.
// Unknown event types are rejected: the enumeration is closed.
func DecodePayload(t EventType, data []byte) (Payload, error) {
	const op = "decision.DecodePayload"

	var p Payload
	switch t {
	case EventDecisionCreated:
		p = &DecisionCreatedPayload{}
	case EventPolicyAttached:
		p = &PolicyAttachedPayload{}
	case EventApprovalGranted:
		p = &ApprovalGrantedPayload{}
	case EventApprovalRevoked:
		p = &ApprovalRevokedPayload{}
	case EventExecutionRequested:
		p = &ExecutionRequestedPayload{}
	case EventExecutionStarted:
		p = &ExecutionStartedPayload{}
	case EventExecutionCompleted:
		p = &ExecutionCompletedPayload{}
	case EventExecutionFailed:
		p = &ExecutionFailedPayload{}
	case EventTemplateCreated:
		p = &TemplateCreatedPayload{}
	default:
		return nil, gerrors.Newf(gerrors.KindValidation, "unknown event type: %q", t)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, gerrors.Wrapf(err, gerrors.KindStore, op, "failed to decode %s payload", t)
	}
	return p, nil
}
