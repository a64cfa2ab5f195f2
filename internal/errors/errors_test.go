package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "op and message",
			err:  &Error{Op: "store.Append", Message: "failed to commit"},
			want: "store.Append: failed to commit",
		},
		{
			name: "op, message, and wrapped error",
			err:  &Error{Op: "store.Append", Message: "failed to commit", Err: errors.New("disk full")},
			want: "store.Append: failed to commit: disk full",
		},
		{
			name: "message only",
			err:  &Error{Message: "bad input"},
			want: "bad input",
		},
		{
			name: "message and wrapped error without op",
			err:  &Error{Message: "bad input", Err: errors.New("eof")},
			want: "bad input: eof",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "policy", KindPolicy.String())
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}

func TestGetKind(t *testing.T) {
	assert.Equal(t, KindValidation, GetKind(Validation("op", "bad")))
	assert.Equal(t, KindUnknown, GetKind(errors.New("plain")))
	assert.Equal(t, KindUnknown, GetKind(nil))

	wrapped := fmt.Errorf("outer: %w", NotFound("op", "missing"))
	assert.Equal(t, KindNotFound, GetKind(wrapped))
}

func TestIsKind(t *testing.T) {
	err := Conflict("store.CreateDecision", "decision already exists")
	assert.True(t, IsKind(err, KindConflict))
	assert.False(t, IsKind(err, KindNotFound))
}

func TestIsMatchesKindAndOp(t *testing.T) {
	err := Policy("router.Execute", "mode not allowed")

	// Sentinel without op matches on kind alone.
	assert.True(t, errors.Is(err, &Error{Kind: KindPolicy}))
	assert.False(t, errors.Is(err, &Error{Kind: KindPermission}))

	// With op, both must match.
	assert.True(t, errors.Is(err, &Error{Kind: KindPolicy, Op: "router.Execute"}))
	assert.False(t, errors.Is(err, &Error{Kind: KindPolicy, Op: "router.Other"}))
}

func TestRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(Schema("op", "bad request")))
	assert.True(t, IsRecoverable(Validation("op", "bad value")))
	assert.True(t, IsRecoverable(Policy("op", "violation")))
	assert.True(t, IsRecoverable(Timeout("op", "too slow")))

	assert.False(t, IsRecoverable(Permission("op", "gate closed")))
	assert.False(t, IsRecoverable(Store("op", "corrupt")))
	assert.False(t, IsRecoverable(errors.New("plain")))
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("root cause")
	err := StoreWrap(inner, "store.Open", "failed to open")
	assert.True(t, errors.Is(err, inner))
}

func TestWithDetail(t *testing.T) {
	err := Policy("op", "violation").WithDetail("violations", []string{"a", "b"})
	assert.Equal(t, []string{"a", "b"}, err.Details["violations"])

	err.WithDetail("count", 2)
	assert.Equal(t, 2, err.Details["count"])
}
