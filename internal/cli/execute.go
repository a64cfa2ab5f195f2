package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	executeMode     string
	executeAdapter  string
	executeMaxSteps int
	executePlan     string
)

var executeCmd = &cobra.Command{
	Use:   "execute <decision-id>",
	Short: "Dispatch a decision to an execution adapter",
	Long: `Dispatch a decision through the policy gates to an execution adapter.
Execution defaults to dry_run; apply mode additionally requires the apply
gate to be enabled in configuration and the adapter to declare the apply
capability. A rejected request writes no events.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, st, err := openService()
		if err != nil {
			return err
		}
		defer st.Close()

		rt, err := buildRouter(st)
		if err != nil {
			return err
		}

		d, err := svc.GetDecision(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		request := map[string]any{
			"goal": d.Goal,
			"mode": executeMode,
		}
		if executePlan != "" {
			request["plan"] = executePlan
		} else if d.Plan != nil {
			request["plan"] = *d.Plan
		}
		if executeAdapter != "" {
			request["adapter_id"] = executeAdapter
		}
		if cmd.Flags().Changed("max-steps") {
			request["max_steps"] = executeMaxSteps
		}

		resp, err := rt.Execute(cmd.Context(), args[0], request, currentActor())
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(resp)
		}
		fmt.Println(styles.Success.Render("✓ Execution completed"))
		fmt.Printf("  %s %s\n", styles.Bold.Render("Run:"), resp.RunID)
		fmt.Printf("  %s %d\n", styles.Bold.Render("Steps:"), resp.StepsExecuted)
		fmt.Printf("  %s %s\n", styles.Bold.Render("Digest:"), styles.Subtle.Render(resp.ResponseDigest))
		for _, r := range resp.Results {
			marker := ""
			if r.Simulated {
				marker = styles.Subtle.Render(" (simulated)")
			}
			fmt.Printf("  %s %s%s\n", styles.Info.Render(r.StepID), r.Status, marker)
		}
		return nil
	},
}

func init() {
	executeCmd.Flags().StringVar(&executeMode, "mode", "dry_run", "execution mode (dry_run or apply)")
	executeCmd.Flags().StringVar(&executeAdapter, "adapter", "", "adapter id (defaults to router.default_adapter)")
	executeCmd.Flags().IntVar(&executeMaxSteps, "max-steps", 0, "cap the number of executed steps")
	executeCmd.Flags().StringVar(&executePlan, "plan", "", "override the decision's plan for this run")
}
