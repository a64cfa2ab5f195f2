package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gavel-sh/gavel/internal/control"
	"github.com/gavel-sh/gavel/internal/domain/decision"
	"github.com/gavel-sh/gavel/internal/domain/policy"
)

var (
	createGoal    string
	createPlan    string
	createMode    string
	createLabels  []string
	createComment string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new decision",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, st, err := openService()
		if err != nil {
			return err
		}
		defer st.Close()

		var plan *string
		if createPlan != "" {
			plan = &createPlan
		}

		d, err := svc.CreateDecision(cmd.Context(), control.CreateDecisionParams{
			Goal:          createGoal,
			Plan:          plan,
			RequestedMode: policy.Mode(createMode),
			Labels:        createLabels,
			Comment:       createComment,
		}, currentActor())
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(map[string]any{
				"decision_id": d.ID,
				"state":       d.State,
				"goal":        d.Goal,
			})
		}
		fmt.Println(styles.Success.Render("✓ Decision created"))
		fmt.Printf("  %s %s\n", styles.Bold.Render("ID:"), d.ID)
		fmt.Printf("  %s %s\n", styles.Bold.Render("Goal:"), d.Goal)
		fmt.Printf("  %s %s\n", styles.Bold.Render("State:"), d.State)
		return nil
	},
}

var (
	policyMinApprovals int
	policyModes        []string
	policyRequireCaps  []string
	policyMaxSteps     int
	policyLabels       []string
	policyTemplate     string
	policyOverrides    []string
)

var attachPolicyCmd = &cobra.Command{
	Use:   "attach-policy <decision-id>",
	Short: "Attach a governance policy to a decision",
	Long: `Attach a governance policy to a decision, either from explicit flags
or by instantiating a named template with optional field overrides.
Attaching a second policy replaces the first: the last attached wins.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, st, err := openService()
		if err != nil {
			return err
		}
		defer st.Close()

		decisionID := args[0]
		actor := currentActor()

		var d *decision.Decision
		if policyTemplate != "" {
			overrides, err := parseOverrides(policyOverrides)
			if err != nil {
				return err
			}
			d, err = svc.AttachPolicyFromTemplate(cmd.Context(), decisionID, policyTemplate, overrides, actor)
			if err != nil {
				return err
			}
		} else {
			pol, err := policyFromFlags(cmd)
			if err != nil {
				return err
			}
			d, err = svc.AttachPolicy(cmd.Context(), decisionID, pol, actor)
			if err != nil {
				return err
			}
		}

		if outputJSON {
			return printJSON(map[string]any{
				"decision_id": d.ID,
				"state":       d.State,
				"policy":      d.Policy.ToMap(),
			})
		}
		fmt.Println(styles.Success.Render("✓ Policy attached"))
		fmt.Printf("  %s %d\n", styles.Bold.Render("Min approvals:"), d.Policy.MinApprovals())
		fmt.Printf("  %s %v\n", styles.Bold.Render("Allowed modes:"), d.Policy.AllowedModes())
		fmt.Printf("  %s %s\n", styles.Bold.Render("State:"), d.State)
		return nil
	},
}

var (
	approveExpiresIn time.Duration
	approveComment   string
)

var approveCmd = &cobra.Command{
	Use:   "approve <decision-id>",
	Short: "Grant an approval on a decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, st, err := openService()
		if err != nil {
			return err
		}
		defer st.Close()

		var expiresAt *time.Time
		if approveExpiresIn > 0 {
			t := time.Now().UTC().Add(approveExpiresIn)
			expiresAt = &t
		}

		d, err := svc.Approve(cmd.Context(), args[0], currentActor(), expiresAt, approveComment)
		if err != nil {
			return err
		}

		required := 0
		if d.Policy != nil {
			required = d.Policy.MinApprovals()
		}
		if outputJSON {
			return printJSON(map[string]any{
				"decision_id":        d.ID,
				"state":              d.State,
				"approvals_current":  d.ActiveApprovalCount(),
				"approvals_required": required,
			})
		}
		fmt.Println(styles.Success.Render("✓ Approval granted"))
		fmt.Printf("  %s %d/%d\n", styles.Bold.Render("Approvals:"), d.ActiveApprovalCount(), required)
		fmt.Printf("  %s %s\n", styles.Bold.Render("State:"), d.State)
		return nil
	},
}

var revokeReason string

var revokeCmd = &cobra.Command{
	Use:   "revoke <decision-id>",
	Short: "Revoke your prior approval on a decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, st, err := openService()
		if err != nil {
			return err
		}
		defer st.Close()

		d, err := svc.Revoke(cmd.Context(), args[0], currentActor(), revokeReason)
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(map[string]any{
				"decision_id": d.ID,
				"state":       d.State,
			})
		}
		fmt.Println(styles.Warning.Render("✓ Approval revoked"))
		fmt.Printf("  %s %s\n", styles.Bold.Render("State:"), d.State)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <decision-id>",
	Short: "Show a decision's lifecycle, approvals, and blocking reasons",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, st, err := openService()
		if err != nil {
			return err
		}
		defer st.Close()

		lc, err := svc.Lifecycle(cmd.Context(), args[0], cfg.Output.TimelineLimit)
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(lc)
		}

		fmt.Println(styles.Title.Render("Decision " + args[0]))
		fmt.Printf("  %s %s\n", styles.Bold.Render("State:"), renderState(lc.State))
		fmt.Printf("  %s %d/%d\n", styles.Bold.Render("Approvals:"),
			lc.Progress.ApprovalsCurrent, lc.Progress.ApprovalsRequired)
		if lc.Progress.ExecutionOutcome != "" {
			fmt.Printf("  %s %s\n", styles.Bold.Render("Execution:"), lc.Progress.ExecutionOutcome)
		}

		if lc.IsBlocked {
			fmt.Println()
			fmt.Println(styles.Warning.Render("Blocked:"))
			for _, r := range lc.BlockingReasons {
				fmt.Printf("  %s %s\n", styles.Subtle.Render("["+string(r.Code)+"]"), r.Message)
			}
		} else if lc.Progress.ReadyToExecute {
			fmt.Println()
			fmt.Println(styles.Success.Render("Ready to execute"))
		}

		fmt.Println()
		fmt.Println(styles.Bold.Render("Timeline:"))
		for _, e := range lc.Timeline {
			ts := e.Timestamp.Format("2006-01-02 15:04:05")
			fmt.Printf("  %s %s\n", styles.Subtle.Render(ts), e.Summary)
		}
		if lc.TimelineTruncated {
			fmt.Println(styles.Subtle.Render(
				fmt.Sprintf("  (showing last %d of %d entries)", len(lc.Timeline), lc.TimelineTotal)))
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, st, err := openService()
		if err != nil {
			return err
		}
		defer st.Close()

		metas, err := svc.ListDecisions(cmd.Context())
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(metas)
		}
		if len(metas) == 0 {
			fmt.Println(styles.Subtle.Render("No decisions yet."))
			return nil
		}
		for _, m := range metas {
			fmt.Printf("%s  %s  %s\n",
				styles.Bold.Render(m.DecisionID),
				styles.Subtle.Render(m.CreatedAt),
				styles.Subtle.Render(fmt.Sprintf("%d events", m.EventCount)))
		}
		return nil
	},
}

func renderState(s decision.State) string {
	switch s {
	case decision.StateApproved, decision.StateCompleted:
		return styles.Success.Render(string(s))
	case decision.StateFailed:
		return styles.Error.Render(string(s))
	case decision.StateExecuting:
		return styles.Info.Render(string(s))
	default:
		return string(s)
	}
}

// policyFromFlags builds a policy from the attach-policy flag set.
func policyFromFlags(cmd *cobra.Command) (policy.Policy, error) {
	modes := make([]policy.Mode, 0, len(policyModes))
	for _, m := range policyModes {
		parsed, err := policy.ParseMode(m)
		if err != nil {
			return policy.Policy{}, err
		}
		modes = append(modes, parsed)
	}

	params := policy.Params{
		MinApprovals:               policyMinApprovals,
		AllowedModes:               modes,
		RequireAdapterCapabilities: policyRequireCaps,
		Labels:                     policyLabels,
	}
	if cmd.Flags().Changed("max-steps") {
		params.MaxSteps = &policyMaxSteps
	}
	return policy.New(params)
}

// parseOverrides converts key=value pairs into a policy override map.
// Values stay strings except for min_approvals and max_steps, which are
// parsed as integers so the merge produces a well-typed policy field.
func parseOverrides(pairs []string) (map[string]any, error) {
	overrides := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid override %q, expected key=value", pair)
		}
		switch key {
		case "min_approvals", "max_steps":
			var n int
			if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
				return nil, fmt.Errorf("override %s must be an integer, got %q", key, value)
			}
			overrides[key] = n
		case "allowed_modes", "require_adapter_capabilities", "labels":
			overrides[key] = strings.Split(value, ",")
		default:
			overrides[key] = value
		}
	}
	return overrides, nil
}

func init() {
	createCmd.Flags().StringVar(&createGoal, "goal", "", "what this decision is about (required)")
	createCmd.Flags().StringVar(&createPlan, "plan", "", "optional execution plan, one step per line")
	createCmd.Flags().StringVar(&createMode, "mode", "dry_run", "requested execution mode (dry_run or apply)")
	createCmd.Flags().StringSliceVar(&createLabels, "label", nil, "governance label (repeatable)")
	createCmd.Flags().StringVar(&createComment, "comment", "", "free-form comment")
	createCmd.MarkFlagRequired("goal")

	attachPolicyCmd.Flags().IntVar(&policyMinApprovals, "min-approvals", 1, "minimum distinct approvers")
	attachPolicyCmd.Flags().StringSliceVar(&policyModes, "mode", []string{"dry_run"}, "allowed execution mode (repeatable)")
	attachPolicyCmd.Flags().StringSliceVar(&policyRequireCaps, "require-capability", nil, "required adapter capability (repeatable)")
	attachPolicyCmd.Flags().IntVar(&policyMaxSteps, "max-steps", 0, "maximum execution steps")
	attachPolicyCmd.Flags().StringSliceVar(&policyLabels, "label", nil, "governance label (repeatable)")
	attachPolicyCmd.Flags().StringVar(&policyTemplate, "template", "", "instantiate a named template instead of flags")
	attachPolicyCmd.Flags().StringSliceVar(&policyOverrides, "override", nil, "template field override as key=value (repeatable)")

	approveCmd.Flags().DurationVar(&approveExpiresIn, "expires-in", 0, "approval validity window (e.g. 24h); 0 means no expiry")
	approveCmd.Flags().StringVar(&approveComment, "comment", "", "approval comment")

	revokeCmd.Flags().StringVar(&revokeReason, "reason", "", "why the approval is being revoked")
}
