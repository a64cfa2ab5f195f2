package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gavel-sh/gavel/internal/attest"
	"github.com/gavel-sh/gavel/internal/attest/xrpl"
	gerrors "github.com/gavel-sh/gavel/internal/errors"
)

var (
	attestAccount string
	attestAmount  string
	attestEnv     string
	attestTenant  string
	attestLabels  []string
)

var attestCmd = &cobra.Command{
	Use:   "attest <decision-id>",
	Short: "Build an unsigned anchoring transaction for a decision bundle",
	Long: `Export the decision as a sealed bundle, derive an attestation intent
bound to the bundle's content digest, and build an unsigned XRPL
Payment-to-self transaction carrying the attestation memo. The output is a
deterministic recipe: signing and submission happen elsewhere.`,
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

		intent, err := attest.NewIntent("decision_bundle", b.Integrity.CanonicalDigest)
		if err != nil {
			return err
		}
		intent.RunID = b.RouterLink.RunID
		intent.Env = attestEnv
		intent.Tenant = attestTenant
		if len(attestLabels) > 0 {
			intent.Labels = make(map[string]string, len(attestLabels))
			for _, l := range attestLabels {
				key, value, ok := strings.Cut(l, "=")
				if !ok {
					return gerrors.Validation("cli.attest",
						fmt.Sprintf("label must be key=value, got: %q", l))
				}
				intent.Labels[key] = value
			}
		}
		if err := intent.Validate(); err != nil {
			return err
		}

		payload, err := xrpl.BuildMemoPayload(intent)
		if err != nil {
			return err
		}
		raw, err := xrpl.SerializeMemo(payload)
		if err != nil {
			return err
		}
		if err := xrpl.ValidateMemoSize(raw); err != nil {
			return err
		}

		tx, err := xrpl.PlanPaymentToSelf(attestAccount, xrpl.EncodeMemoHex(raw), attestAmount)
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(map[string]any{
				"decision_id":   args[0],
				"bundle_digest": b.Integrity.CanonicalDigest,
				"memo_digest":   xrpl.MemoDigest(raw),
				"transaction":   tx,
			})
		}

		fmt.Println(styles.Title.Render("Attestation plan"))
		fmt.Printf("  bundle digest: %s\n", styles.Subtle.Render(b.Integrity.CanonicalDigest))
		fmt.Printf("  memo digest:   %s\n", styles.Subtle.Render(xrpl.MemoDigest(raw)))
		fmt.Printf("  memo size:     %d bytes\n", len(raw))
		fmt.Println()
		return printJSON(tx)
	},
}

func init() {
	attestCmd.Flags().StringVar(&attestAccount, "account", "", "XRPL account (sender and destination)")
	attestCmd.Flags().StringVar(&attestAmount, "amount", "1", "payment amount in drops (0 or 1)")
	attestCmd.Flags().StringVar(&attestEnv, "env", "", "environment label for the attestation intent")
	attestCmd.Flags().StringVar(&attestTenant, "tenant", "", "tenant label for the attestation intent")
	attestCmd.Flags().StringArrayVar(&attestLabels, "label", nil, "intent label as key=value (repeatable)")
	_ = attestCmd.MarkFlagRequired("account")
}
