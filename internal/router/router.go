// Package router dispatches approved decisions to execution adapters.
//
// The dispatcher is deliberately strict about ordering: every gate (schema,
// adapter resolution, apply gate, policy validation) runs before the first
// execution event is appended, so a rejected request leaves no partial state.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gavel-sh/gavel/internal/adapter"
	"github.com/gavel-sh/gavel/internal/canonical"
	"github.com/gavel-sh/gavel/internal/domain/decision"
	"github.com/gavel-sh/gavel/internal/domain/policy"
	gerrors "github.com/gavel-sh/gavel/internal/errors"
	"github.com/gavel-sh/gavel/internal/store"
)

// Error codes recorded on EXECUTION_FAILED events.
const (
	ErrCodeMaxStepsExceeded = "max_steps_exceeded"
	ErrCodeAdapterError     = "adapter_error"
	ErrCodeTimeout          = "timeout"
)

// Config configures the dispatcher.
type Config struct {
	// ApplyEnabled opens the apply gate. When false, apply-mode requests are
	// refused outright, regardless of policy and approvals.
	ApplyEnabled bool

	// DefaultAdapterID is used when a request names no adapter.
	DefaultAdapterID string

	// CallTimeout bounds each adapter call. Zero means no timeout.
	CallTimeout time.Duration
}

// StepResult is the outcome of one executed plan step.
type StepResult struct {
	StepID    string         `json:"step_id"`
	Status    string         `json:"status"`
	Simulated bool           `json:"simulated"`
	Output    map[string]any `json:"output"`
}

// Response is the dispatcher's result for one invocation cycle.
type Response struct {
	RunID          string       `json:"run_id"`
	ResponseDigest string       `json:"response_digest"`
	StepsExecuted  int          `json:"steps_executed"`
	Results        []StepResult `json:"results"`
}

// Router orchestrates policy-gated execution dispatch.
type Router struct {
	store    *store.Store
	registry *adapter.Registry
	config   Config
	logger   *log.Logger
	now      func() time.Time
}

// New creates a Router.
func New(st *store.Store, registry *adapter.Registry, config Config, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	if config.DefaultAdapterID == "" {
		config.DefaultAdapterID = "stdout"
	}
	return &Router{
		store:    st,
		registry: registry,
		config:   config,
		logger:   logger.With("component", "router"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// planStep is one unit of adapter work.
type planStep struct {
	StepID string
	Tool   string
	Method string
	Args   map[string]any
}

// Execute runs one invocation cycle for a decision.
//
// Gate order: request schema, decision and policy lookup, adapter resolution,
// apply gate, policy validation, lifecycle transition. Any gate failure
// rejects the request before any event is written. Once EXECUTION_STARTED is recorded, the cycle always
// ends in EXECUTION_COMPLETED or EXECUTION_FAILED.
func (r *Router) Execute(ctx context.Context, decisionID string, request map[string]any, actor decision.Actor) (*Response, error) {
	const op = "router.Execute"

	if err := validateRequest(request); err != nil {
		return nil, err
	}

	goal, _ := request["goal"].(string)

	var plan *string
	if p, ok := request["plan"].(string); ok {
		plan = &p
	}

	mode := policy.ModeDryRun
	if m, ok := request["mode"].(string); ok {
		parsed, err := policy.ParseMode(m)
		if err != nil {
			return nil, err
		}
		mode = parsed
	}
	dryRun := mode == policy.ModeDryRun

	d, err := r.store.LoadDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if d.Policy == nil {
		return nil, gerrors.Policy(op, "decision has no policy attached")
	}

	adapterID := r.config.DefaultAdapterID
	if id, ok := request["adapter_id"].(string); ok && id != "" {
		adapterID = id
	}
	adpt, err := r.registry.Resolve(adapterID)
	if err != nil {
		return nil, err
	}

	// Apply gate. A closed gate is a hard stop, never a silent downgrade to
	// dry-run.
	if !dryRun {
		if !r.config.ApplyEnabled {
			return nil, gerrors.Permission(op, "apply mode requested but the apply gate is closed")
		}
		if !adapter.HasCapability(adpt, adapter.CapabilityApply) {
			return nil, gerrors.Permission(op,
				fmt.Sprintf("adapter %q does not declare the apply capability", adapterID))
		}
	}

	now := r.now()
	result := policy.ValidateExecutionRequest(*d.Policy, mode, d.ActiveApprovalCountAt(now), adpt.Capabilities())
	if !result.OK() {
		return nil, gerrors.Policy(op, strings.Join(result.Errors, "; ")).
			WithDetail("violations", result.Errors)
	}

	// A log ending mid-cycle projects to executing; a new cycle must wait for
	// that one to close with a completion or failure event.
	if err := decision.ValidateTransition(d, decision.MachineEventStartExecution, now); err != nil {
		return nil, err
	}

	compiled := d.Policy.CompileToRouterRequest(goal, plan, adapterID, dryRun)

	maxSteps, hasMaxSteps := d.Policy.MaxSteps()
	if reqMax, ok := intField(request["max_steps"]); ok {
		if !hasMaxSteps || reqMax < maxSteps {
			maxSteps = reqMax
			hasMaxSteps = true
			compiled["max_steps"] = reqMax
		}
	}

	requestDigest, err := canonical.Digest(compiled)
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.KindInternal, op, "failed to digest compiled request")
	}

	// Gates are all open. From here on, every outcome is recorded.
	if _, err := r.store.Append(ctx, decisionID, actor, &decision.ExecutionRequestedPayload{
		AdapterID: adapterID,
		DryRun:    dryRun,
	}); err != nil {
		return nil, err
	}

	runID, err := r.store.CreateRun(ctx, decisionID, string(mode), goal)
	if err != nil {
		return nil, err
	}

	if _, err := r.store.Append(ctx, decisionID, actor, &decision.ExecutionStartedPayload{
		RouterRequestDigest: requestDigest,
	}); err != nil {
		return nil, err
	}

	r.logger.Info("execution started",
		"decision_id", decisionID,
		"run_id", runID,
		"adapter_id", adapterID,
		"mode", mode,
	)

	steps := buildPlan(goal, plan, compiled, dryRun)

	if hasMaxSteps && len(steps) > maxSteps {
		failErr := gerrors.Policy(op,
			fmt.Sprintf("plan has %d steps, policy allows at most %d", len(steps), maxSteps))
		return nil, r.fail(ctx, decisionID, actor, runID, ErrCodeMaxStepsExceeded, failErr)
	}

	results, err := r.runPlan(ctx, adpt, steps)
	if err != nil {
		code := ErrCodeAdapterError
		if errors.Is(err, context.DeadlineExceeded) || gerrors.IsKind(err, gerrors.KindTimeout) {
			code = ErrCodeTimeout
		}
		return nil, r.fail(ctx, decisionID, actor, runID, code, err)
	}

	responseDigest, err := canonical.Digest(map[string]any{
		"run_id":  runID,
		"results": results,
	})
	if err != nil {
		return nil, r.fail(ctx, decisionID, actor, runID, ErrCodeAdapterError, err)
	}

	if _, err := r.store.Append(ctx, decisionID, actor, &decision.ExecutionCompletedPayload{
		RunID:          runID,
		ResponseDigest: responseDigest,
		StepsExecuted:  len(results),
	}); err != nil {
		return nil, err
	}
	if err := r.store.SetRunStatus(ctx, runID, store.RunCompleted); err != nil {
		return nil, err
	}

	r.logger.Info("execution completed",
		"decision_id", decisionID,
		"run_id", runID,
		"steps", len(results),
	)

	return &Response{
		RunID:          runID,
		ResponseDigest: responseDigest,
		StepsExecuted:  len(results),
		Results:        results,
	}, nil
}

// fail records the failure event, marks the run failed, and returns the
// original error. Timeouts and adapter errors both land here: once started,
// a cycle never drops silently.
func (r *Router) fail(ctx context.Context, decisionID string, actor decision.Actor, runID, code string, cause error) error {
	rid := runID
	if _, err := r.store.Append(ctx, decisionID, actor, &decision.ExecutionFailedPayload{
		ErrorCode:    code,
		ErrorMessage: cause.Error(),
		RunID:        &rid,
	}); err != nil {
		r.logger.Error("failed to record execution failure", "decision_id", decisionID, "err", err)
	}
	if err := r.store.SetRunStatus(ctx, runID, store.RunFailed); err != nil {
		r.logger.Error("failed to mark run failed", "run_id", runID, "err", err)
	}

	r.logger.Warn("execution failed",
		"decision_id", decisionID,
		"run_id", runID,
		"error_code", code,
	)
	return cause
}

// runPlan invokes the adapter for each step under the configured timeout.
func (r *Router) runPlan(ctx context.Context, adpt adapter.DispatchAdapter, steps []planStep) ([]StepResult, error) {
	results := make([]StepResult, 0, len(steps))
	for _, step := range steps {
		output, err := r.callWithTimeout(ctx, adpt, step)
		if err != nil {
			// Timeouts and cancellations keep their identity so the failure
			// event records the right error code.
			if gerrors.IsKind(err, gerrors.KindTimeout) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, gerrors.AdapterWrap(err, "router.runPlan",
				fmt.Sprintf("step %s failed", step.StepID))
		}
		simulated, _ := step.Args["dry_run"].(bool)
		results = append(results, StepResult{
			StepID:    step.StepID,
			Status:    "ok",
			Simulated: simulated,
			Output:    output,
		})
	}
	return results, nil
}

func (r *Router) callWithTimeout(ctx context.Context, adpt adapter.DispatchAdapter, step planStep) (map[string]any, error) {
	if r.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.CallTimeout)
		defer cancel()
	}

	type callResult struct {
		output map[string]any
		err    error
	}
	done := make(chan callResult, 1)
	go func() {
		output, err := adpt.Call(ctx, step.Tool, step.Method, step.Args)
		done <- callResult{output, err}
	}()

	select {
	case res := <-done:
		return res.output, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, gerrors.Timeout("router.call", "adapter call timed out")
		}
		return nil, ctx.Err()
	}
}

// buildPlan expands a decision's goal and optional plan text into adapter
// steps. Each non-empty plan line is one step; a decision without a plan is a
// single step carrying just the goal.
func buildPlan(goal string, plan *string, compiled map[string]any, dryRun bool) []planStep {
	var lines []string
	if plan != nil {
		for _, line := range strings.Split(*plan, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				lines = append(lines, trimmed)
			}
		}
	}
	if len(lines) == 0 {
		lines = []string{goal}
	}

	steps := make([]planStep, 0, len(lines))
	for i, line := range lines {
		args := map[string]any{
			"goal":    goal,
			"step":    line,
			"dry_run": dryRun,
		}
		if caps, ok := compiled["require_capabilities"]; ok {
			args["require_capabilities"] = caps
		}
		steps = append(steps, planStep{
			StepID: fmt.Sprintf("step-%d", i+1),
			Tool:   "decision",
			Method: "execute",
			Args:   args,
		})
	}
	return steps
}

func intField(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
