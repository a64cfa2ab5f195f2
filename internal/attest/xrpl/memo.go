// Package xrpl builds the on-ledger footprint for attestation anchoring:
// a deterministic memo payload and an unsigned Payment-to-self transaction.
// Everything here is pure: no secrets, no network state, no clocks.
package xrpl

import (
	"encoding/hex"
	"fmt"

	"github.com/gavel-sh/gavel/internal/attest"
	"github.com/gavel-sh/gavel/internal/canonical"
	gerrors "github.com/gavel-sh/gavel/internal/errors"
)

// MemoVersion is the memo schema version. Bump when the payload shape
// changes.
const MemoVersion = "0.1"

// MemoType identifies gavel attestation memos on the ledger.
const MemoType = "gavel.attest"

// MemoTypeHex is the hex-encoded memo type for the XRPL MemoType field.
var MemoTypeHex = hex.EncodeToString([]byte(MemoType))

// MaxMemoBytes caps the decoded memo payload. Conservative limit under
// XRPL's ~1KB memo ceiling to leave room for hex overhead.
const MaxMemoBytes = 700

// BuildMemoPayload builds the memo payload from an intent. All values are
// strings; unset optional fields are excluded. Labels stay in the intent and
// never enter the memo.
func BuildMemoPayload(intent attest.Intent) (map[string]string, error) {
	intentDigest, err := intent.Digest()
	if err != nil {
		return nil, err
	}

	payload := map[string]string{
		"v":  MemoVersion,
		"t":  MemoType,
		"id": "sha256:" + intentDigest,
		"st": intent.SubjectType,
		"bd": intent.BindingDigest,
	}
	if intent.PackageVersion != "" {
		payload["pv"] = intent.PackageVersion
	}
	if intent.RunID != "" {
		payload["rid"] = intent.RunID
	}
	if intent.Env != "" {
		payload["env"] = intent.Env
	}
	if intent.Tenant != "" {
		payload["ten"] = intent.Tenant
	}
	return payload, nil
}

// SerializeMemo serializes a memo payload to canonical JSON bytes.
func SerializeMemo(payload map[string]string) ([]byte, error) {
	return canonical.Marshal(payload)
}

// MemoDigest computes the prefixed digest over the canonical memo bytes,
// pre-encoding, never over the hex form.
func MemoDigest(payloadBytes []byte) string {
	return "sha256:" + canonical.SHA256Hex(payloadBytes)
}

// EncodeMemoHex hex-encodes memo bytes for the XRPL MemoData field.
func EncodeMemoHex(payloadBytes []byte) string {
	return hex.EncodeToString(payloadBytes)
}

// ValidateMemoSize rejects memo payloads over the decoded size limit.
func ValidateMemoSize(payloadBytes []byte) error {
	if len(payloadBytes) > MaxMemoBytes {
		return gerrors.Validation("xrpl.ValidateMemoSize",
			fmt.Sprintf("memo payload is %d bytes, limit is %d", len(payloadBytes), MaxMemoBytes))
	}
	return nil
}
