package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <decision-id>",
	Short: "Verify the hash chain of a decision's event log",
	Long: `Recompute the content digest of every event in a decision's log and
compare against the stored digests. Any mismatch indicates tampering or
corruption and is reported with both digests.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, st, err := openService()
		if err != nil {
			return err
		}
		defer st.Close()

		violations, err := svc.VerifyIntegrity(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(map[string]any{
				"decision_id": args[0],
				"ok":          len(violations) == 0,
				"violations":  violations,
			})
		}

		if len(violations) == 0 {
			fmt.Println(styles.Success.Render("✓ Integrity verified, all event digests match"))
			return nil
		}
		fmt.Println(styles.Error.Render(fmt.Sprintf("✗ %d integrity violation(s)", len(violations))))
		for _, v := range violations {
			fmt.Printf("  %s seq %d\n", styles.Bold.Render(v.EventID), v.Seq)
			fmt.Printf("    stored:   %s\n", styles.Subtle.Render(v.StoredDigest))
			fmt.Printf("    computed: %s\n", styles.Subtle.Render(v.ComputedDigest))
		}
		return fmt.Errorf("integrity check failed for %s", args[0])
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <decision-id>",
	Short: "Export a decision as a sealed, portable audit bundle",
	Long: `Export a decision, its full event log, its policy snapshot, and its
execution linkage as a self-contained JSON bundle. The bundle carries a
content digest over all sealed sections, so any recipient can verify it
offline without access to the originating store.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, st, err := openService()
		if err != nil {
			return err
		}
		defer st.Close()

		b, err := svc.Export(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(b)
	},
}

var adaptersCmd = &cobra.Command{
	Use:   "adapters",
	Short: "List registered execution adapters and their manifests",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := buildRegistry()
		if err != nil {
			return err
		}

		ids := registry.IDs()
		if outputJSON {
			out := make([]map[string]any, 0, len(ids))
			for _, id := range ids {
				m, err := registry.ManifestFor(id)
				if err != nil {
					return err
				}
				out = append(out, map[string]any{
					"adapter_id":                id,
					"kind":                      m.Kind,
					"schema_version":            m.SchemaVersion,
					"capabilities":              m.Capabilities,
					"supported_router_versions": m.SupportedRouterVersions,
				})
			}
			return printJSON(out)
		}

		for _, id := range ids {
			m, err := registry.ManifestFor(id)
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s\n", styles.Bold.Render(id),
				styles.Subtle.Render("kind="+m.Kind))
			fmt.Printf("  capabilities: %s\n", strings.Join(m.Capabilities, ", "))
			fmt.Printf("  router versions: %s\n", m.SupportedRouterVersions)
		}
		return nil
	},
}
