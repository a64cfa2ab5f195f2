package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gavel-sh/gavel/internal/domain/policy"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage policy templates",
}

var (
	templateDescription  string
	templateMinApprovals int
	templateModes        []string
	templateRequireCaps  []string
	templateMaxSteps     int
	templateLabels       []string
)

var templateCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a named, immutable policy template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, st, err := openService()
		if err != nil {
			return err
		}
		defer st.Close()

		pol, err := templatePolicyFromFlags(cmd)
		if err != nil {
			return err
		}

		stored, err := svc.CreateTemplate(cmd.Context(), args[0], templateDescription, pol, currentActor())
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(map[string]any{
				"name":   stored.Template.Name,
				"digest": stored.Digest,
				"policy": stored.Template.Policy.ToMap(),
			})
		}
		fmt.Println(styles.Success.Render("✓ Template created"))
		fmt.Printf("  %s %s\n", styles.Bold.Render("Name:"), stored.Template.Name)
		fmt.Printf("  %s %s\n", styles.Bold.Render("Digest:"), styles.Subtle.Render(stored.Digest))
		return nil
	},
}

var templateListLabel string

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List policy templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, st, err := openService()
		if err != nil {
			return err
		}
		defer st.Close()

		templates, err := svc.ListTemplates(cmd.Context(), templateListLabel)
		if err != nil {
			return err
		}

		if outputJSON {
			out := make([]map[string]any, 0, len(templates))
			for _, t := range templates {
				out = append(out, map[string]any{
					"name":        t.Template.Name,
					"description": t.Template.Description,
					"digest":      t.Digest,
					"created_at":  t.CreatedAt,
					"policy":      t.Template.Policy.ToMap(),
				})
			}
			return printJSON(out)
		}
		if len(templates) == 0 {
			fmt.Println(styles.Subtle.Render("No templates yet."))
			return nil
		}
		for _, t := range templates {
			fmt.Printf("%s  %s\n", styles.Bold.Render(t.Template.Name),
				styles.Subtle.Render(t.Template.Description))
			fmt.Printf("  min_approvals=%d modes=%v labels=%v\n",
				t.Template.Policy.MinApprovals(),
				t.Template.Policy.AllowedModes(),
				t.Template.Policy.Labels())
		}
		return nil
	},
}

func templatePolicyFromFlags(cmd *cobra.Command) (policy.Policy, error) {
	modes := make([]policy.Mode, 0, len(templateModes))
	for _, m := range templateModes {
		parsed, err := policy.ParseMode(m)
		if err != nil {
			return policy.Policy{}, err
		}
		modes = append(modes, parsed)
	}

	params := policy.Params{
		MinApprovals:               templateMinApprovals,
		AllowedModes:               modes,
		RequireAdapterCapabilities: templateRequireCaps,
		Labels:                     templateLabels,
	}
	if cmd.Flags().Changed("max-steps") {
		params.MaxSteps = &templateMaxSteps
	}
	return policy.New(params)
}

func init() {
	templateCreateCmd.Flags().StringVar(&templateDescription, "description", "", "what this template governs")
	templateCreateCmd.Flags().IntVar(&templateMinApprovals, "min-approvals", 1, "minimum distinct approvers")
	templateCreateCmd.Flags().StringSliceVar(&templateModes, "mode", []string{"dry_run"}, "allowed execution mode (repeatable)")
	templateCreateCmd.Flags().StringSliceVar(&templateRequireCaps, "require-capability", nil, "required adapter capability (repeatable)")
	templateCreateCmd.Flags().IntVar(&templateMaxSteps, "max-steps", 0, "maximum execution steps")
	templateCreateCmd.Flags().StringSliceVar(&templateLabels, "label", nil, "governance label (repeatable)")

	templateListCmd.Flags().StringVar(&templateListLabel, "label", "", "filter templates by label")

	templateCmd.AddCommand(templateCreateCmd)
	templateCmd.AddCommand(templateListCmd)
}
