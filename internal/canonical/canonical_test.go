package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSortsKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"zebra": 1, "apple": 2, "mango": 3})
	require.NoError(t, err)
	assert.Equal(t, `{"apple":2,"mango":3,"zebra":1}`, string(data))
}

func TestMarshalNestedKeys(t *testing.T) {
	data, err := Marshal(map[string]any{
		"b": map[string]any{"y": 1, "x": 2},
		"a": []any{map[string]any{"q": 1, "p": 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":[{"p":2,"q":1}],"b":{"x":2,"y":1}}`, string(data))
}

func TestMarshalNoHTMLEscaping(t *testing.T) {
	data, err := Marshal(map[string]any{"url": "a<b>&c"})
	require.NoError(t, err)
	assert.Equal(t, `{"url":"a<b>&c"}`, string(data))
}

func TestMarshalStructAndMapAgree(t *testing.T) {
	type payload struct {
		Goal string `json:"goal"`
		Seq  int    `json:"seq"`
	}
	fromStruct, err := Marshal(payload{Goal: "ship it", Seq: 3})
	require.NoError(t, err)
	fromMap, err := Marshal(map[string]any{"seq": 3, "goal": "ship it"})
	require.NoError(t, err)
	assert.Equal(t, string(fromMap), string(fromStruct))
}

func TestDigestStable(t *testing.T) {
	v := map[string]any{"goal": "rotate creds", "labels": []string{"infra", "prod"}}

	first, err := Digest(v)
	require.NoError(t, err)
	second, err := Digest(v)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestDigestSensitiveToContent(t *testing.T) {
	a, err := Digest(map[string]any{"goal": "a"})
	require.NoError(t, err)
	b, err := Digest(map[string]any{"goal": "b"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerify(t *testing.T) {
	v := map[string]any{"k": "v"}
	digest, err := Digest(v)
	require.NoError(t, err)

	assert.True(t, Verify(v, digest))
	assert.False(t, Verify(v, "deadbeef"))
	assert.False(t, Verify(map[string]any{"k": "other"}, digest))
}

func TestMarshalRejectsUnserializable(t *testing.T) {
	_, err := Marshal(map[string]any{"fn": func() {}})
	assert.Error(t, err)
}
