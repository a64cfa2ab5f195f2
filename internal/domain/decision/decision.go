package decision

import (
	"time"

	"github.com/gavel-sh/gavel/internal/domain/policy"
)

// State is the lifecycle state of a decision, derived from its event log.
type State string

const (
	// StateDraft means the decision exists but has no policy attached.
	StateDraft State = "draft"
	// StatePendingApproval means a policy is attached and approvals are short.
	StatePendingApproval State = "pending_approval"
	// StateApproved means the approval threshold is met.
	StateApproved State = "approved"
	// StateExecuting means an execution invocation is in flight.
	StateExecuting State = "executing"
	// StateCompleted means the latest invocation finished successfully.
	StateCompleted State = "completed"
	// StateFailed means the latest invocation failed.
	StateFailed State = "failed"
)

// Approval is the projected record of one approver's grant.
type Approval struct {
	Actor        Actor
	GrantedAt    time.Time
	ExpiresAt    *time.Time
	Comment      string
	Revoked      bool
	RevokedAt    *time.Time
	RevokeReason string
}

// ActiveAt reports whether the approval counts toward the threshold at the
// given instant: not revoked and not expired.
func (a Approval) ActiveAt(now time.Time) bool {
	if a.Revoked {
		return false
	}
	if a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
		return false
	}
	return true
}

// ExecutionRecord is the projected record of one execution invocation cycle.
type ExecutionRecord struct {
	AdapterID      string
	DryRun         bool
	RequestedAt    time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	RunID          *string
	RequestDigest  string
	ResponseDigest string
	StepsExecuted  *int
	ErrorCode      string
	ErrorMessage   string
}

// TemplateRef records the template a decision's policy was instantiated from.
type TemplateRef struct {
	Name             string
	Digest           string
	Snapshot         map[string]any
	OverridesApplied map[string]any
}

// Decision is the aggregate projection of one decision's event log.
// It is recomputed by replay and is never the durable state.
type Decision struct {
	ID            string
	State         State
	Goal          string
	Plan          *string
	RequestedMode policy.Mode
	Labels        []string
	Policy        *policy.Policy
	TemplateRef   *TemplateRef
	Approvals     map[string]*Approval
	Executions    []*ExecutionRecord
	Events        []Event
}

// Replay folds an ordered event sequence into a Decision projection.
func Replay(decisionID string, events []Event) *Decision {
	d := &Decision{
		ID:        decisionID,
		State:     StateDraft,
		Approvals: make(map[string]*Approval),
	}
	for _, e := range events {
		d.Apply(e)
	}
	return d
}

// Apply folds a single event into the projection. This is the core state
// machine logic: event order is the only input, and replaying the same
// sequence always yields the same projection.
func (d *Decision) Apply(e Event) {
	d.Events = append(d.Events, e)

	switch p := e.Payload.(type) {
	case *DecisionCreatedPayload:
		d.Goal = p.Goal
		d.Plan = p.Plan
		d.RequestedMode = policy.Mode(p.RequestedMode)
		d.Labels = append([]string(nil), p.Labels...)
		d.State = StateDraft

	case *PolicyAttachedPayload:
		if pol, err := policyFromPayload(p); err == nil {
			d.Policy = &pol
		}
		if p.TemplateName != "" {
			d.TemplateRef = &TemplateRef{
				Name:             p.TemplateName,
				Digest:           p.TemplateDigest,
				Snapshot:         p.TemplateSnapshot,
				OverridesApplied: p.OverridesApplied,
			}
		}
		d.State = StatePendingApproval
		d.refreshApprovalState(e.Timestamp)

	case *ApprovalGrantedPayload:
		// Re-granting by the same approver replaces the prior grant; the
		// approval set stays keyed by actor identity.
		d.Approvals[e.Actor.ID] = &Approval{
			Actor:     e.Actor,
			GrantedAt: e.Timestamp,
			ExpiresAt: p.ExpiresAt,
			Comment:   p.Comment,
		}
		d.refreshApprovalState(e.Timestamp)

	case *ApprovalRevokedPayload:
		if a, ok := d.Approvals[e.Actor.ID]; ok {
			ts := e.Timestamp
			a.Revoked = true
			a.RevokedAt = &ts
			a.RevokeReason = p.Reason
		}
		d.refreshApprovalState(e.Timestamp)

	case *ExecutionRequestedPayload:
		d.Executions = append(d.Executions, &ExecutionRecord{
			AdapterID:   p.AdapterID,
			DryRun:      p.DryRun,
			RequestedAt: e.Timestamp,
		})

	case *ExecutionStartedPayload:
		if rec := d.LatestExecution(); rec != nil {
			ts := e.Timestamp
			rec.StartedAt = &ts
			rec.RequestDigest = p.RouterRequestDigest
		}
		d.State = StateExecuting

	case *ExecutionCompletedPayload:
		if rec := d.LatestExecution(); rec != nil {
			ts := e.Timestamp
			steps := p.StepsExecuted
			rec.CompletedAt = &ts
			rec.RunID = &p.RunID
			rec.ResponseDigest = p.ResponseDigest
			rec.StepsExecuted = &steps
		}
		d.State = StateCompleted

	case *ExecutionFailedPayload:
		if rec := d.LatestExecution(); rec != nil {
			ts := e.Timestamp
			rec.CompletedAt = &ts
			rec.ErrorCode = p.ErrorCode
			rec.ErrorMessage = p.ErrorMessage
			rec.RunID = p.RunID
		}
		d.State = StateFailed

	case *TemplateCreatedPayload:
		// Template events live in the template log, not decision logs.
	}
}

// refreshApprovalState flips between pending_approval and approved based on
// the active approval count. Execution states are never touched here:
// approval changes adjust the approval set, not the execution lifecycle.
func (d *Decision) refreshApprovalState(now time.Time) {
	if d.State != StatePendingApproval && d.State != StateApproved {
		return
	}
	if d.IsApprovedAt(now) {
		d.State = StateApproved
	} else {
		d.State = StatePendingApproval
	}
}

// ActiveApprovalCountAt returns the number of distinct, non-revoked,
// non-expired approvals at the given instant.
func (d *Decision) ActiveApprovalCountAt(now time.Time) int {
	count := 0
	for _, a := range d.Approvals {
		if a.ActiveAt(now) {
			count++
		}
	}
	return count
}

// ActiveApprovalCount returns the active approval count as of now.
func (d *Decision) ActiveApprovalCount() int {
	return d.ActiveApprovalCountAt(time.Now().UTC())
}

// IsApprovedAt reports whether the decision meets its policy's approval
// threshold at the given instant. A decision without a policy is never
// approved.
func (d *Decision) IsApprovedAt(now time.Time) bool {
	if d.Policy == nil {
		return false
	}
	return d.ActiveApprovalCountAt(now) >= d.Policy.MinApprovals()
}

// IsApproved reports whether the decision is approved as of now.
func (d *Decision) IsApproved() bool {
	return d.IsApprovedAt(time.Now().UTC())
}

// LatestExecution returns the most recent execution record, or nil.
func (d *Decision) LatestExecution() *ExecutionRecord {
	if len(d.Executions) == 0 {
		return nil
	}
	return d.Executions[len(d.Executions)-1]
}

// LatestRunID returns the run id of the most recent execution, or nil.
func (d *Decision) LatestRunID() *string {
	if rec := d.LatestExecution(); rec != nil {
		return rec.RunID
	}
	return nil
}

// NewPolicyAttachedPayload builds the POLICY_ATTACHED payload for a policy.
func NewPolicyAttachedPayload(p policy.Policy) *PolicyAttachedPayload {
	modes := make([]string, 0, len(p.AllowedModes()))
	for _, m := range p.AllowedModes() {
		modes = append(modes, string(m))
	}
	payload := &PolicyAttachedPayload{
		MinApprovals:               p.MinApprovals(),
		AllowedModes:               modes,
		RequireAdapterCapabilities: p.RequireAdapterCapabilities(),
		Labels:                     p.Labels(),
	}
	if max, ok := p.MaxSteps(); ok {
		payload.MaxSteps = &max
	}
	return payload
}

// NewTemplateCreatedPayload builds the TEMPLATE_CREATED payload.
func NewTemplateCreatedPayload(t policy.Template) *TemplateCreatedPayload {
	modes := make([]string, 0, len(t.Policy.AllowedModes()))
	for _, m := range t.Policy.AllowedModes() {
		modes = append(modes, string(m))
	}
	payload := &TemplateCreatedPayload{
		Name:                       t.Name,
		Description:                t.Description,
		MinApprovals:               t.Policy.MinApprovals(),
		AllowedModes:               modes,
		RequireAdapterCapabilities: t.Policy.RequireAdapterCapabilities(),
		Labels:                     t.Policy.Labels(),
	}
	if max, ok := t.Policy.MaxSteps(); ok {
		payload.MaxSteps = &max
	}
	return payload
}

// policyFromPayload reconstructs the attached policy from its event payload.
func policyFromPayload(p *PolicyAttachedPayload) (policy.Policy, error) {
	modes := make([]policy.Mode, len(p.AllowedModes))
	for i, m := range p.AllowedModes {
		modes[i] = policy.Mode(m)
	}
	return policy.New(policy.Params{
		MinApprovals:               p.MinApprovals,
		AllowedModes:               modes,
		RequireAdapterCapabilities: p.RequireAdapterCapabilities,
		MaxSteps:                   p.MaxSteps,
		Labels:                     p.Labels,
	})
}
