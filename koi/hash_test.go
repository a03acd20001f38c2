package koi

import (
	"testing"
	"time"

	"github.com/koi-net/koi-net/rid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBundleRoundTrip(t *testing.T) {
	contents := []byte(`{"b":2,"a":1}`)
	m := Manifest{RID: rid.New("example.doc", "x"), Timestamp: time.Now()}
	b, err := NewBundle(m, contents)
	require.NoError(t, err)

	ok, err := VerifyIntegrity(b.Manifest, b.Contents)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanonicalHashStableUnderKeyOrder(t *testing.T) {
	h1, err := CanonicalHash([]byte(`{"a":1,"b":2}`))
	require.NoError(t, err)
	h2, err := CanonicalHash([]byte(`{"b":2,"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestVerifyIntegrityDetectsTamper(t *testing.T) {
	m := Manifest{RID: rid.New("example.doc", "x"), Timestamp: time.Now()}
	b, err := NewBundle(m, []byte(`{"v":1}`))
	require.NoError(t, err)

	ok, err := VerifyIntegrity(b.Manifest, []byte(`{"v":2}`))
	require.NoError(t, err)
	assert.False(t, ok)
}
