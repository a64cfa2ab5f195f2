// Package canonical provides deterministic JSON serialization and content
// digests. Semantically identical values always produce identical bytes, so
// digests are stable regardless of struct field order or map iteration order.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	gerrors "github.com/gavel-sh/gavel/internal/errors"
)

// Marshal serializes a value to canonical JSON:
// object keys sorted alphabetically at every level, no insignificant
// whitespace, UTF-8 without HTML escaping.
func Marshal(v any) ([]byte, error) {
	const op = "canonical.Marshal"

	// Normalize through a generic representation so struct field order
	// cannot leak into the output. encoding/json sorts map keys.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.KindInternal, op, "value is not JSON-serializable")
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, gerrors.Wrap(err, gerrors.KindInternal, op, "failed to normalize value")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, gerrors.Wrap(err, gerrors.KindInternal, op, "failed to encode canonical form")
	}

	// Encoder appends a trailing newline that is not part of the canonical form.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SHA256Hex returns the hex-encoded SHA-256 digest of raw bytes.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Digest computes the hex-encoded SHA-256 digest of a value's canonical
// JSON representation. This is the content fingerprint used throughout the
// event log.
func Digest(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return SHA256Hex(data), nil
}

// Verify reports whether a value's content digest matches the expected one.
func Verify(v any, expected string) bool {
	actual, err := Digest(v)
	if err != nil {
		return false
	}
	return actual == expected
}
