package identity

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateProducesValidKeyPair(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)
	assert.NotNil(t, kp.Private)
	assert.True(t, kp.NodeRID().IsNode())
}

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	msg := []byte("hello koi-net")
	sig, err := kp.Sign(msg)
	require.NoError(t, err)
	assert.Len(t, sig, 64)

	assert.NoError(t, Verify(&kp.Private.PublicKey, msg, sig))
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	sig, err := kp.Sign([]byte("original"))
	require.NoError(t, err)

	assert.Error(t, Verify(&kp.Private.PublicKey, []byte("tampered"), sig))
}

func TestSaveLoadUnencryptedRoundTrip(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "identity.pem")
	require.NoError(t, Save(kp, path, nil))

	loaded, err := Load(path, nil)
	require.NoError(t, err)
	assert.True(t, kp.NodeRID().Equal(loaded.NodeRID()))
}

func TestSaveLoadEncryptedRoundTrip(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "identity.pem")
	passphrase := []byte("correct horse battery staple")
	require.NoError(t, Save(kp, path, passphrase))

	loaded, err := Load(path, passphrase)
	require.NoError(t, err)
	assert.True(t, kp.NodeRID().Equal(loaded.NodeRID()))

	_, err = Load(path, []byte("wrong passphrase"))
	assert.ErrorIs(t, err, ErrInvalidPassphrase)
}

func TestLoadMissingFileReturnsErrKeyNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.pem")
	_, err := Load(path, nil)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestLoadOrGenerateCreatesOnFirstCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.pem")

	kp1, err := LoadOrGenerate(path, nil)
	require.NoError(t, err)

	kp2, err := LoadOrGenerate(path, nil)
	require.NoError(t, err)

	assert.True(t, kp1.NodeRID().Equal(kp2.NodeRID()))
}

func TestRIDForPublicKeyDeterministic(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	rid1, err := RIDForPublicKey(&kp.Private.PublicKey)
	require.NoError(t, err)
	rid2, err := RIDForPublicKey(&kp.Private.PublicKey)
	require.NoError(t, err)

	assert.True(t, rid1.Equal(rid2))
}

func TestPublicKeyDERRoundTrip(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	der, err := kp.PublicKeyDER()
	require.NoError(t, err)

	pub, err := ParsePublicKeyDER(der)
	require.NoError(t, err)
	assert.True(t, kp.Private.PublicKey.Equal(pub))
}
