package rid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	r, err := Parse("orn:koi-net.node:abc123")
	require.NoError(t, err)
	assert.Equal(t, "koi-net.node", r.Context)
	assert.Equal(t, "abc123", r.Name)
	assert.Equal(t, "orn:koi-net.node:abc123", r.String())
	assert.True(t, r.IsNode())
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{"", "koi-net.node:abc", "orn:onlycontext", "orn::name", "orn:ctx:"}
	for _, c := range cases {
		_, err := Parse(c)
		assert.Error(t, err, "expected parse error for %q", c)
	}
}

func TestTypeClassification(t *testing.T) {
	assert.Equal(t, TypeKoiNetNode, New("koi-net.node", "x").Type())
	assert.Equal(t, TypeKoiNetEdge, New("koi-net.edge", "x").Type())
	assert.Equal(t, Type("example.doc"), New("example.doc", "x").Type())
}

func TestEqual(t *testing.T) {
	a := MustParse("orn:koi-net.node:abc")
	b := MustParse("orn:koi-net.node:abc")
	c := MustParse("orn:koi-net.node:def")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
