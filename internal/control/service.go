// Package control implements the governance control plane: decision creation,
// policy attachment, approvals, and the derived lifecycle views. All state
// changes go through the event store; this package never stores state of its
// own.
package control

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/gavel-sh/gavel/internal/bundle"
	"github.com/gavel-sh/gavel/internal/domain/decision"
	"github.com/gavel-sh/gavel/internal/domain/policy"
	gerrors "github.com/gavel-sh/gavel/internal/errors"
	"github.com/gavel-sh/gavel/internal/store"
)

// Service is the control-plane entry point.
type Service struct {
	store  *store.Store
	logger *log.Logger
	now    func() time.Time
}

// NewService creates a control-plane service.
func NewService(st *store.Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:  st,
		logger: logger.With("component", "control"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateDecisionParams carries the inputs for creating a decision.
type CreateDecisionParams struct {
	Goal          string
	Plan          *string
	RequestedMode policy.Mode
	Labels        []string
	Comment       string
}

// CreateDecision records a new decision and returns its projection.
func (s *Service) CreateDecision(ctx context.Context, p CreateDecisionParams, actor decision.Actor) (*decision.Decision, error) {
	const op = "control.CreateDecision"

	if strings.TrimSpace(p.Goal) == "" {
		return nil, gerrors.Validation(op, "goal cannot be empty")
	}
	mode := p.RequestedMode
	if mode == "" {
		mode = policy.ModeDryRun
	}
	if _, err := policy.ParseMode(string(mode)); err != nil {
		return nil, err
	}

	decisionID := "dec_" + uuid.NewString()[:8]
	labels := p.Labels
	if labels == nil {
		labels = []string{}
	}

	_, err := s.store.CreateDecision(ctx, decisionID, actor, &decision.DecisionCreatedPayload{
		Goal:          p.Goal,
		Plan:          p.Plan,
		RequestedMode: string(mode),
		Labels:        labels,
		Comment:       p.Comment,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("decision created", "decision_id", decisionID, "goal", p.Goal)
	return s.store.LoadDecision(ctx, decisionID)
}

// AttachPolicy attaches a policy to a decision. Attaching a second policy
// replaces the first: the last attached policy wins.
func (s *Service) AttachPolicy(ctx context.Context, decisionID string, pol policy.Policy, actor decision.Actor) (*decision.Decision, error) {
	d, err := s.store.LoadDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if err := decision.ValidateTransition(d, decision.MachineEventAttachPolicy, s.now()); err != nil {
		return nil, err
	}

	if _, err := s.store.Append(ctx, decisionID, actor, decision.NewPolicyAttachedPayload(pol)); err != nil {
		return nil, err
	}

	s.logger.Info("policy attached", "decision_id", decisionID, "min_approvals", pol.MinApprovals())
	return s.store.LoadDecision(ctx, decisionID)
}

// AttachPolicyFromTemplate instantiates a named template (with optional
// field-level overrides) and attaches the result. The event records the
// template's name, digest, snapshot, and the overrides applied, so the
// effective policy is always reconcilable from the event alone.
func (s *Service) AttachPolicyFromTemplate(ctx context.Context, decisionID, templateName string, overrides map[string]any, actor decision.Actor) (*decision.Decision, error) {
	d, err := s.store.LoadDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if err := decision.ValidateTransition(d, decision.MachineEventAttachPolicy, s.now()); err != nil {
		return nil, err
	}

	st, err := s.store.GetTemplate(ctx, templateName)
	if err != nil {
		return nil, err
	}

	pol, err := st.Template.Instantiate(overrides)
	if err != nil {
		return nil, err
	}

	payload := decision.NewPolicyAttachedPayload(pol)
	payload.TemplateName = st.Template.Name
	payload.TemplateDigest = st.Digest
	payload.TemplateSnapshot = st.Template.Snapshot()
	payload.OverridesApplied = overrides

	if _, err := s.store.Append(ctx, decisionID, actor, payload); err != nil {
		return nil, err
	}

	s.logger.Info("policy attached from template",
		"decision_id", decisionID,
		"template", templateName,
	)
	return s.store.LoadDecision(ctx, decisionID)
}

// Approve grants an approval by the acting approver. Re-approving replaces
// the prior grant and never increases the distinct-approver count.
func (s *Service) Approve(ctx context.Context, decisionID string, actor decision.Actor, expiresAt *time.Time, comment string) (*decision.Decision, error) {
	const op = "control.Approve"

	d, err := s.store.LoadDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if d.Policy == nil {
		return nil, gerrors.Policy(op, "cannot approve a decision with no policy attached")
	}
	if d.State == decision.StateExecuting {
		return nil, gerrors.Conflict(op, "cannot approve while execution is in flight")
	}
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return nil, gerrors.Validation(op, "expires_at must be in the future")
	}

	if _, err := s.store.Append(ctx, decisionID, actor, &decision.ApprovalGrantedPayload{
		ExpiresAt: expiresAt,
		Comment:   comment,
	}); err != nil {
		return nil, err
	}

	s.logger.Info("approval granted", "decision_id", decisionID, "approver", actor.ID)
	return s.store.LoadDecision(ctx, decisionID)
}

// Revoke withdraws the acting approver's prior approval.
func (s *Service) Revoke(ctx context.Context, decisionID string, actor decision.Actor, reason string) (*decision.Decision, error) {
	const op = "control.Revoke"

	d, err := s.store.LoadDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	a, ok := d.Approvals[actor.ID]
	if !ok {
		return nil, gerrors.NotFound(op, fmt.Sprintf("no approval by %s to revoke", actor.ID))
	}
	if a.Revoked {
		return nil, gerrors.Conflict(op, fmt.Sprintf("approval by %s is already revoked", actor.ID))
	}

	if _, err := s.store.Append(ctx, decisionID, actor, &decision.ApprovalRevokedPayload{
		Reason: reason,
	}); err != nil {
		return nil, err
	}

	s.logger.Info("approval revoked", "decision_id", decisionID, "approver", actor.ID)
	return s.store.LoadDecision(ctx, decisionID)
}

// CreateTemplate creates a named, immutable policy template.
func (s *Service) CreateTemplate(ctx context.Context, name, description string, pol policy.Policy, actor decision.Actor) (store.StoredTemplate, error) {
	t, err := policy.NewTemplate(name, description, pol)
	if err != nil {
		return store.StoredTemplate{}, err
	}
	return s.store.CreateTemplate(ctx, t, actor)
}

// GetDecision returns a decision's current projection.
func (s *Service) GetDecision(ctx context.Context, decisionID string) (*decision.Decision, error) {
	return s.store.LoadDecision(ctx, decisionID)
}

// Lifecycle returns the derived lifecycle view of a decision.
func (s *Service) Lifecycle(ctx context.Context, decisionID string, timelineLimit int) (decision.Lifecycle, error) {
	d, err := s.store.LoadDecision(ctx, decisionID)
	if err != nil {
		return decision.Lifecycle{}, err
	}
	return decision.ComputeLifecycle(d, s.now(), timelineLimit), nil
}

// VerifyIntegrity recomputes all event digests for a decision and reports
// mismatches.
func (s *Service) VerifyIntegrity(ctx context.Context, decisionID string) ([]store.IntegrityViolation, error) {
	return s.store.VerifyIntegrity(ctx, decisionID)
}

// Export builds a sealed, portable bundle for a decision.
func (s *Service) Export(ctx context.Context, decisionID string) (bundle.Bundle, error) {
	d, err := s.store.LoadDecision(ctx, decisionID)
	if err != nil {
		return bundle.Bundle{}, err
	}
	return bundle.Export(d, s.now())
}

// ListDecisions returns decision metadata, newest first.
func (s *Service) ListDecisions(ctx context.Context) ([]store.DecisionMeta, error) {
	return s.store.ListDecisions(ctx)
}

// ListTemplates returns stored templates, optionally filtered by label.
func (s *Service) ListTemplates(ctx context.Context, labelFilter string) ([]store.StoredTemplate, error) {
	return s.store.ListTemplates(ctx, labelFilter)
}
