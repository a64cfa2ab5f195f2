package xrpl

import (
	"fmt"

	gerrors "github.com/gavel-sh/gavel/internal/errors"
)

// allowedAmounts is the full set of drop amounts permitted for attestation
// payments. Attestation anchoring is a minimal self-payment carrying a memo,
// so only "0" and "1" are accepted; larger numeric strings are rejected.
var allowedAmounts = map[string]struct{}{
	"0": {},
	"1": {},
}

// PlanPaymentToSelf builds an unsigned Payment-to-self transaction in XRPL
// JSON format. This is a deterministic recipe: Sequence, Fee, and
// SigningPubKey are submit-time concerns and are not included.
func PlanPaymentToSelf(account, memoDataHex, amountDrops string) (map[string]any, error) {
	const op = "xrpl.PlanPaymentToSelf"

	if amountDrops == "" {
		amountDrops = "1"
	}
	if _, ok := allowedAmounts[amountDrops]; !ok {
		return nil, gerrors.Validation(op,
			fmt.Sprintf("amount_drops must be '0' or '1', got: %q", amountDrops))
	}
	if account == "" {
		return nil, gerrors.Validation(op, "account must be non-empty")
	}
	if memoDataHex == "" {
		return nil, gerrors.Validation(op, "memo_data_hex must be non-empty")
	}

	return map[string]any{
		"TransactionType": "Payment",
		"Account":         account,
		"Destination":     account,
		"Amount":          amountDrops,
		"Memos": []any{
			map[string]any{
				"Memo": map[string]any{
					"MemoType": MemoTypeHex,
					"MemoData": memoDataHex,
				},
			},
		},
	}, nil
}
