package memwallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vault-mesh/agency/internal/walletapi"
)

func openTestWallet(t *testing.T) (*Wallet, walletapi.Handle) {
	t.Helper()
	ctx := context.Background()
	w := New(t.TempDir())
	cfg := walletapi.Config{ID: "test"}
	require.NoError(t, w.Create(ctx, cfg, walletapi.Credentials{}))
	h, err := w.Open(ctx, cfg, walletapi.Credentials{})
	require.NoError(t, err)
	return w, h
}

func TestCreateIsNotIdempotent(t *testing.T) {
	ctx := context.Background()
	w := New(t.TempDir())
	cfg := walletapi.Config{ID: "dup"}
	require.NoError(t, w.Create(ctx, cfg, walletapi.Credentials{}))
	err := w.Create(ctx, cfg, walletapi.Credentials{})
	require.Error(t, err)
	_, ok := err.(*walletapi.ErrAlreadyExists)
	assert.True(t, ok)
}

func TestCreateAndStoreMyDIDThenLookup(t *testing.T) {
	ctx := context.Background()
	w, h := openTestWallet(t)

	did, err := w.CreateAndStoreMyDID(ctx, h, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, did.DID)
	assert.NotEmpty(t, did.VerKey)

	vk, err := w.KeyForLocalDID(ctx, h, did.DID)
	require.NoError(t, err)
	assert.Equal(t, did.VerKey, vk)
}

func TestKeyForLocalDIDNotFound(t *testing.T) {
	ctx := context.Background()
	w, h := openTestWallet(t)

	_, err := w.KeyForLocalDID(ctx, h, "did:missing")
	require.Error(t, err)
	_, ok := err.(*walletapi.ErrNotFound)
	assert.True(t, ok)
}

func TestDIDMetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	w, h := openTestWallet(t)
	did, err := w.CreateAndStoreMyDID(ctx, h, nil)
	require.NoError(t, err)

	require.NoError(t, w.SetDIDMetadata(ctx, h, did.DID, []byte(`{"name":"alice"}`)))
	meta, err := w.GetDIDMetadata(ctx, h, did.DID)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"alice"}`, string(meta))
}

func TestPairwiseLifecycle(t *testing.T) {
	ctx := context.Background()
	w, h := openTestWallet(t)

	require.NoError(t, w.CreatePairwise(ctx, h, "their-did", "my-did", []byte("meta")))

	err := w.CreatePairwise(ctx, h, "their-did", "my-did", nil)
	require.Error(t, err)
	_, ok := err.(*walletapi.ErrAlreadyExists)
	assert.True(t, ok)

	rec, err := w.GetPairwise(ctx, h, "their-did")
	require.NoError(t, err)
	assert.Equal(t, "my-did", rec.MyDID)
	assert.Equal(t, []byte("meta"), rec.Metadata)

	all, err := w.ListPairwise(ctx, h)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, w.SetPairwiseMetadata(ctx, h, "their-did", []byte("updated")))
	rec, err = w.GetPairwise(ctx, h, "their-did")
	require.NoError(t, err)
	assert.Equal(t, []byte("updated"), rec.Metadata)
}

func TestAuthCryptBetweenTwoWalletDIDs(t *testing.T) {
	ctx := context.Background()
	w, h := openTestWallet(t)

	alice, err := w.CreateAndStoreMyDID(ctx, h, nil)
	require.NoError(t, err)
	bob, err := w.CreateAndStoreMyDID(ctx, h, nil)
	require.NoError(t, err)

	ciphertext, err := w.AuthCrypt(ctx, h, alice.VerKey, bob.VerKey, []byte("hi bob"))
	require.NoError(t, err)

	sender, plain, err := w.AuthDecrypt(ctx, h, bob.VerKey, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, alice.VerKey, sender)
	assert.Equal(t, []byte("hi bob"), plain)
}

func TestAnonCryptDoesNotRequireAHandle(t *testing.T) {
	ctx := context.Background()
	w, h := openTestWallet(t)
	bob, err := w.CreateAndStoreMyDID(ctx, h, nil)
	require.NoError(t, err)

	ciphertext, err := w.AnonCrypt(ctx, bob.VerKey, []byte("anon hello"))
	require.NoError(t, err)

	plain, err := w.AnonDecrypt(ctx, h, bob.VerKey, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("anon hello"), plain)
}

func TestSignUsesStoredKey(t *testing.T) {
	ctx := context.Background()
	w, h := openTestWallet(t)
	did, err := w.CreateAndStoreMyDID(ctx, h, nil)
	require.NoError(t, err)

	sig, err := w.Sign(ctx, h, did.VerKey, []byte("attest"))
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
}

func TestCloseInvalidatesHandle(t *testing.T) {
	ctx := context.Background()
	w, h := openTestWallet(t)
	require.NoError(t, w.Close(ctx, h))

	_, err := w.CreateAndStoreMyDID(ctx, h, nil)
	require.Error(t, err)
	_, ok := err.(*walletapi.ErrNotFound)
	assert.True(t, ok)
}

func TestKeysSurviveReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	w := New(dir)
	cfg := walletapi.Config{ID: "persist"}
	require.NoError(t, w.Create(ctx, cfg, walletapi.Credentials{}))

	h1, err := w.Open(ctx, cfg, walletapi.Credentials{})
	require.NoError(t, err)
	did, err := w.CreateAndStoreMyDID(ctx, h1, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close(ctx, h1))

	h2, err := w.Open(ctx, cfg, walletapi.Credentials{})
	require.NoError(t, err)
	ciphertext, err := w.AnonCrypt(ctx, did.VerKey, []byte("after reopen"))
	require.NoError(t, err)
	plain, err := w.AnonDecrypt(ctx, h2, did.VerKey, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("after reopen"), plain)
}
