package secure

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koi-net/koi-net/cache"
	"github.com/koi-net/koi-net/identity"
	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/koierr"
	"github.com/koi-net/koi-net/rid"
)

func newTestNode(t *testing.T) (*identity.KeyPair, koi.NodeProfile) {
	t.Helper()
	kp, err := identity.Generate()
	require.NoError(t, err)

	pubDER, err := EncodePublicKeyDER(kp)
	require.NoError(t, err)

	profile := koi.NodeProfile{
		BaseURL:      "https://node.example.com",
		NodeType:     koi.NodeFull,
		PublicKeyDER: pubDER,
	}
	return kp, profile
}

func profileBundle(t *testing.T, r rid.RID, profile koi.NodeProfile) koi.Bundle {
	t.Helper()
	contents, err := json.Marshal(profile)
	require.NoError(t, err)
	b, err := koi.NewBundle(koi.Manifest{RID: r, Timestamp: time.Now()}, contents)
	require.NoError(t, err)
	return b
}

func TestSignVerifyRoundTripKnownPeer(t *testing.T) {
	selfKP, _ := newTestNode(t)
	peerKP, peerProfile := newTestNode(t)

	c := cache.NewMemoryCache()
	require.NoError(t, c.Write(profileBundle(t, peerKP.NodeRID(), peerProfile)))

	env, err := Sign(peerKP, map[string]any{"hello": "world"}, peerKP.NodeRID(), selfKP.NodeRID())
	require.NoError(t, err)

	v := &Verifier{Cache: c, SelfRID: selfKP.NodeRID(), ClockSkew: 5 * time.Minute}
	profile, err := v.Verify(env)
	require.NoError(t, err)
	assert.Equal(t, peerProfile.BaseURL, profile.BaseURL)
}

func TestVerifyRejectsUnknownSourceWithoutHandshakePayload(t *testing.T) {
	selfKP, _ := newTestNode(t)
	peerKP, _ := newTestNode(t)

	c := cache.NewMemoryCache()
	env, err := Sign(peerKP, map[string]any{"events": []any{}}, peerKP.NodeRID(), selfKP.NodeRID())
	require.NoError(t, err)

	v := &Verifier{Cache: c, SelfRID: selfKP.NodeRID()}
	_, err = v.Verify(env)
	assert.ErrorIs(t, err, koierr.ErrUnknownSourceNode)
}

func TestVerifyAdmitsHandshakeBootstrap(t *testing.T) {
	selfKP, _ := newTestNode(t)
	peerKP, peerProfile := newTestNode(t)

	profileContents, err := json.Marshal(peerProfile)
	require.NoError(t, err)

	payload := map[string]any{
		"events": []koi.Event{
			{
				RID:  peerKP.NodeRID(),
				Type: koi.EventNew,
				Bundle: &koi.Bundle{
					Manifest: koi.Manifest{RID: peerKP.NodeRID(), Timestamp: time.Now()},
					Contents: profileContents,
				},
			},
		},
	}

	env, err := Sign(peerKP, payload, peerKP.NodeRID(), selfKP.NodeRID())
	require.NoError(t, err)

	c := cache.NewMemoryCache()
	v := &Verifier{Cache: c, SelfRID: selfKP.NodeRID()}
	profile, err := v.Verify(env)
	require.NoError(t, err)
	assert.Equal(t, peerProfile.BaseURL, profile.BaseURL)
}

func TestVerifyRejectsWrongTarget(t *testing.T) {
	selfKP, _ := newTestNode(t)
	otherKP, _ := newTestNode(t)
	peerKP, peerProfile := newTestNode(t)

	c := cache.NewMemoryCache()
	require.NoError(t, c.Write(profileBundle(t, peerKP.NodeRID(), peerProfile)))

	env, err := Sign(peerKP, map[string]any{}, peerKP.NodeRID(), otherKP.NodeRID())
	require.NoError(t, err)

	v := &Verifier{Cache: c, SelfRID: selfKP.NodeRID()}
	_, err = v.Verify(env)
	assert.ErrorIs(t, err, koierr.ErrInvalidTarget)
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	selfKP, _ := newTestNode(t)
	peerKP, peerProfile := newTestNode(t)

	c := cache.NewMemoryCache()
	require.NoError(t, c.Write(profileBundle(t, peerKP.NodeRID(), peerProfile)))

	env, err := Sign(peerKP, map[string]any{}, peerKP.NodeRID(), selfKP.NodeRID())
	require.NoError(t, err)
	env.Payload = json.RawMessage(`{"tampered":true}`)

	v := &Verifier{Cache: c, SelfRID: selfKP.NodeRID()}
	_, err = v.Verify(env)
	assert.ErrorIs(t, err, koierr.ErrInvalidSignature)
}

func TestVerifyRejectsExpiredTimestamp(t *testing.T) {
	selfKP, _ := newTestNode(t)
	peerKP, peerProfile := newTestNode(t)

	c := cache.NewMemoryCache()
	require.NoError(t, c.Write(profileBundle(t, peerKP.NodeRID(), peerProfile)))

	env, err := Sign(peerKP, map[string]any{}, peerKP.NodeRID(), selfKP.NodeRID())
	require.NoError(t, err)
	stale := time.Now().Add(-1 * time.Hour)
	env.Timestamp = &stale

	v := &Verifier{Cache: c, SelfRID: selfKP.NodeRID(), ClockSkew: 5 * time.Minute}
	_, err = v.Verify(env)
	assert.ErrorIs(t, err, koierr.ErrInvalidSignature)
}

func TestVerifyNodeProfileIdentity(t *testing.T) {
	kp, profile := newTestNode(t)
	assert.NoError(t, VerifyNodeProfileIdentity(kp.NodeRID(), profile.PublicKeyDER))

	otherKP, err := identity.Generate()
	require.NoError(t, err)
	assert.Error(t, VerifyNodeProfileIdentity(otherKP.NodeRID(), profile.PublicKeyDER))
}
