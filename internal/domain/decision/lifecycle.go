package decision

import (
	"fmt"
	"sort"
	"time"
)

// BlockingCode is a stable machine-readable code for why a decision cannot
// execute. Codes never change meaning between versions.
type BlockingCode string

const (
	// BlockNoPolicy means the decision has no policy attached.
	BlockNoPolicy BlockingCode = "NO_POLICY"
	// BlockMissingApprovals means the approval threshold is not met.
	BlockMissingApprovals BlockingCode = "MISSING_APPROVALS"
	// BlockApprovalExpired means enough approvals were granted but some expired.
	BlockApprovalExpired BlockingCode = "APPROVAL_EXPIRED"
	// BlockAlreadyExecuted means the decision already ran successfully.
	BlockAlreadyExecuted BlockingCode = "ALREADY_EXECUTED"
	// BlockExecutionFailed means the previous execution failed.
	BlockExecutionFailed BlockingCode = "EXECUTION_FAILED"
)

// BlockingReason is a machine-readable reason why a decision cannot execute.
type BlockingReason struct {
	Code    BlockingCode   `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// TimelineCategory groups timeline entries by concern.
type TimelineCategory string

const (
	CategoryDecision  TimelineCategory = "decision"
	CategoryPolicy    TimelineCategory = "policy"
	CategoryApproval  TimelineCategory = "approval"
	CategoryExecution TimelineCategory = "execution"
)

// TimelineEntry is one human-readable entry in the decision timeline.
// Entries are computed from events, never stored.
type TimelineEntry struct {
	Timestamp time.Time        `json:"ts"`
	Category  TimelineCategory `json:"category"`
	Label     string           `json:"label"`
	Summary   string           `json:"summary"`
	Actor     string           `json:"actor,omitempty"`
	EventType string           `json:"event_type"`
	Seq       int              `json:"seq"`
}

// Progress shows where a decision is on the path to execution.
type Progress struct {
	ApprovalsCurrent  int    `json:"approvals_current"`
	ApprovalsRequired int    `json:"approvals_required"`
	ReadyToExecute    bool   `json:"ready_to_execute"`
	HasExecuted       bool   `json:"has_executed"`
	ExecutionOutcome  string `json:"execution_outcome,omitempty"`
}

// DefaultTimelineLimit caps timeline output to the most recent entries.
const DefaultTimelineLimit = 20

// Lifecycle is the complete derived view of a decision. Everything here is a
// projection over the event log.
type Lifecycle struct {
	State             State            `json:"state"`
	IsBlocked         bool             `json:"is_blocked"`
	BlockingReasons   []BlockingReason `json:"blocking_reasons"`
	Progress          Progress         `json:"progress"`
	Timeline          []TimelineEntry  `json:"timeline"`
	TimelineTotal     int              `json:"timeline_total"`
	TimelineTruncated bool             `json:"timeline_truncated"`
}

// ComputeBlockingReasons returns why a decision cannot execute right now, or
// an empty slice when it can. Reasons come back in a fixed triage order:
// NO_POLICY, then ALREADY_EXECUTED, then EXECUTION_FAILED, then
// APPROVAL_EXPIRED, then MISSING_APPROVALS. Automation depends on this order.
func ComputeBlockingReasons(d *Decision, now time.Time) []BlockingReason {
	reasons := []BlockingReason{}

	if d.Policy == nil {
		return append(reasons, BlockingReason{
			Code:    BlockNoPolicy,
			Message: "Decision has no policy attached",
			Details: map[string]any{},
		})
	}

	if d.State == StateCompleted {
		var runID any
		if id := d.LatestRunID(); id != nil {
			runID = *id
		}
		return append(reasons, BlockingReason{
			Code:    BlockAlreadyExecuted,
			Message: "Decision has already been executed successfully",
			Details: map[string]any{"run_id": runID},
		})
	}

	if d.State == StateFailed {
		var errCode, errMsg any
		msg := "Previous execution failed"
		if rec := d.LatestExecution(); rec != nil {
			errCode = rec.ErrorCode
			errMsg = rec.ErrorMessage
			if rec.ErrorMessage != "" {
				msg = fmt.Sprintf("Previous execution failed: %s", rec.ErrorMessage)
			}
		}
		return append(reasons, BlockingReason{
			Code:    BlockExecutionFailed,
			Message: msg,
			Details: map[string]any{"error_code": errCode, "error_message": errMsg},
		})
	}

	required := d.Policy.MinApprovals()
	current := d.ActiveApprovalCountAt(now)
	if current >= required {
		return reasons
	}

	totalGranted := 0
	expiredCount := 0
	for _, a := range d.Approvals {
		if a.Revoked {
			continue
		}
		totalGranted++
		if a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
			expiredCount++
		}
	}

	if expiredCount > 0 && totalGranted >= required {
		return append(reasons, BlockingReason{
			Code:    BlockApprovalExpired,
			Message: fmt.Sprintf("Approvals expired: %d approval(s) have expired", expiredCount),
			Details: map[string]any{
				"expired_count": expiredCount,
				"current_valid": current,
				"required":      required,
			},
		})
	}

	missing := required - current
	plural := "s"
	if missing == 1 {
		plural = ""
	}
	return append(reasons, BlockingReason{
		Code:    BlockMissingApprovals,
		Message: fmt.Sprintf("Missing %d approval%s", missing, plural),
		Details: map[string]any{
			"required": required,
			"current":  current,
			"missing":  missing,
		},
	})
}

// ComputeTimeline renders the event log as a human-readable timeline. When a
// policy is attached, a synthetic THRESHOLD_MET entry is inserted right after
// the approval that first met the threshold.
func ComputeTimeline(d *Decision) []TimelineEntry {
	entries := []TimelineEntry{}

	for _, e := range d.Events {
		actor := e.Actor.ID
		if e.Actor.Type == ActorSystem {
			actor = "system:" + actor
		}

		switch p := e.Payload.(type) {
		case *DecisionCreatedPayload:
			entries = append(entries, TimelineEntry{
				Timestamp: e.Timestamp,
				Category:  CategoryDecision,
				Label:     "created",
				Summary:   "Decision created",
				Actor:     actor,
				EventType: string(e.Type),
				Seq:       e.Seq,
			})

		case *PolicyAttachedPayload:
			summary := "Policy attached"
			if p.TemplateName != "" {
				summary = fmt.Sprintf("Policy attached from template %q", p.TemplateName)
			}
			entries = append(entries, TimelineEntry{
				Timestamp: e.Timestamp,
				Category:  CategoryPolicy,
				Label:     "policy",
				Summary:   summary,
				Actor:     actor,
				EventType: string(e.Type),
				Seq:       e.Seq,
			})

		case *ApprovalGrantedPayload:
			summary := fmt.Sprintf("Approval granted by %s", e.Actor.ID)
			if p.Comment != "" {
				summary = fmt.Sprintf("%s: %q", summary, p.Comment)
			}
			entries = append(entries, TimelineEntry{
				Timestamp: e.Timestamp,
				Category:  CategoryApproval,
				Label:     "approved",
				Summary:   summary,
				Actor:     actor,
				EventType: string(e.Type),
				Seq:       e.Seq,
			})

		case *ApprovalRevokedPayload:
			summary := fmt.Sprintf("Approval revoked by %s", e.Actor.ID)
			if p.Reason != "" {
				summary = fmt.Sprintf("%s: %q", summary, p.Reason)
			}
			entries = append(entries, TimelineEntry{
				Timestamp: e.Timestamp,
				Category:  CategoryApproval,
				Label:     "revoked",
				Summary:   summary,
				Actor:     actor,
				EventType: string(e.Type),
				Seq:       e.Seq,
			})

		case *ExecutionRequestedPayload:
			mode := "apply"
			if p.DryRun {
				mode = "dry-run"
			}
			adapterID := p.AdapterID
			if adapterID == "" {
				adapterID = "unknown"
			}
			entries = append(entries, TimelineEntry{
				Timestamp: e.Timestamp,
				Category:  CategoryExecution,
				Label:     "requested",
				Summary:   fmt.Sprintf("Execution requested (%s) via %s", mode, adapterID),
				Actor:     actor,
				EventType: string(e.Type),
				Seq:       e.Seq,
			})

		case *ExecutionStartedPayload:
			entries = append(entries, TimelineEntry{
				Timestamp: e.Timestamp,
				Category:  CategoryExecution,
				Label:     "started",
				Summary:   "Execution started",
				Actor:     actor,
				EventType: string(e.Type),
				Seq:       e.Seq,
			})

		case *ExecutionCompletedPayload:
			summary := "Execution completed"
			if p.StepsExecuted > 0 {
				summary = fmt.Sprintf("Execution completed (%d steps)", p.StepsExecuted)
			}
			entries = append(entries, TimelineEntry{
				Timestamp: e.Timestamp,
				Category:  CategoryExecution,
				Label:     "completed",
				Summary:   summary,
				Actor:     actor,
				EventType: string(e.Type),
				Seq:       e.Seq,
			})

		case *ExecutionFailedPayload:
			summary := "Execution failed"
			if p.ErrorMessage != "" {
				msg := p.ErrorMessage
				if len(msg) > 50 {
					msg = msg[:47] + "..."
				}
				summary = fmt.Sprintf("Execution failed: %s", msg)
			}
			entries = append(entries, TimelineEntry{
				Timestamp: e.Timestamp,
				Category:  CategoryExecution,
				Label:     "failed",
				Summary:   summary,
				Actor:     actor,
				EventType: string(e.Type),
				Seq:       e.Seq,
			})
		}
	}

	if d.Policy != nil {
		required := d.Policy.MinApprovals()
		count := 0
		thresholdSeen := false
		for _, e := range d.Events {
			switch e.Payload.(type) {
			case *ApprovalGrantedPayload:
				count++
				if count == required && !thresholdSeen {
					thresholdSeen = true
					entries = append(entries, TimelineEntry{
						Timestamp: e.Timestamp,
						Category:  CategoryDecision,
						Label:     "approved",
						Summary:   fmt.Sprintf("Approval threshold met (%d/%d)", required, required),
						EventType: "THRESHOLD_MET",
						Seq:       e.Seq,
					})
				}
			case *ApprovalRevokedPayload:
				count--
			}
		}
	}

	// Synthetic entries share their trigger's seq and sort after it.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Seq != entries[j].Seq {
			return entries[i].Seq < entries[j].Seq
		}
		return entries[i].EventType != "THRESHOLD_MET" && entries[j].EventType == "THRESHOLD_MET"
	})

	return entries
}

// ComputeProgress summarizes approval and execution progress.
func ComputeProgress(d *Decision, now time.Time) Progress {
	required := 1
	if d.Policy != nil {
		required = d.Policy.MinApprovals()
	}
	current := d.ActiveApprovalCountAt(now)

	hasExecuted := d.State == StateCompleted || d.State == StateFailed || d.State == StateExecuting

	outcome := ""
	switch d.State {
	case StateCompleted:
		outcome = "success"
	case StateFailed:
		outcome = "failed"
	case StateExecuting:
		outcome = "pending"
	}

	ready := d.IsApprovedAt(now) && d.State != StateCompleted && d.State != StateFailed

	return Progress{
		ApprovalsCurrent:  current,
		ApprovalsRequired: required,
		ReadyToExecute:    ready,
		HasExecuted:       hasExecuted,
		ExecutionOutcome:  outcome,
	}
}

// ComputeLifecycle assembles the full lifecycle view. limit caps the timeline
// to its most recent entries; pass a non-positive limit for no cap.
func ComputeLifecycle(d *Decision, now time.Time, limit int) Lifecycle {
	full := ComputeTimeline(d)
	total := len(full)

	timeline := full
	truncated := false
	if limit > 0 && total > limit {
		timeline = full[total-limit:]
		truncated = true
	}

	reasons := ComputeBlockingReasons(d, now)

	return Lifecycle{
		State:             d.State,
		IsBlocked:         len(reasons) > 0,
		BlockingReasons:   reasons,
		Progress:          ComputeProgress(d, now),
		Timeline:          timeline,
		TimelineTotal:     total,
		TimelineTruncated: truncated,
	}
}
