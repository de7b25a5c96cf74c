package wallet

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/perpsession/pkg/config"
	"github.com/betbot/perpsession/pkg/secretstore"
)

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func jsonArray(t *testing.T, key solana.PrivateKey) string {
	t.Helper()
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	require.NoError(t, err)
	return string(raw)
}

func TestParsePrivateKey(t *testing.T) {
	key := newKey(t)

	fromJSON, err := ParsePrivateKey(jsonArray(t, key))
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), fromJSON.PublicKey())

	fromB58, err := ParsePrivateKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), fromB58.PublicKey())

	_, err = ParsePrivateKey("[1,2,3]")
	require.Error(t, err)
	_, err = ParsePrivateKey("[1,2,300]")
	require.Error(t, err)
	_, err = ParsePrivateKey("")
	require.Error(t, err)
}

func TestLoad_Sources(t *testing.T) {
	key := newKey(t)

	t.Run("env private key", func(t *testing.T) {
		w, err := Load(config.WalletConfig{PrivateKey: jsonArray(t, key)})
		require.NoError(t, err)
		assert.Equal(t, key.PublicKey(), w.PublicKey())
	})

	t.Run("keygen file", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "id.json")
		require.NoError(t, os.WriteFile(p, []byte(jsonArray(t, key)), 0o600))
		w, err := Load(config.WalletConfig{KeygenFile: p})
		require.NoError(t, err)
		assert.Equal(t, key.PublicKey(), w.PublicKey())
	})

	t.Run("secret store", func(t *testing.T) {
		dir := t.TempDir()
		encHex := "0x" + "11111111111111111111111111111111" + "22222222222222222222222222222222"
		encKey, err := secretstore.ParseKey(encHex)
		require.NoError(t, err)

		ss, err := secretstore.Open(secretstore.OpenOptions{Path: dir, EncryptionKey: encKey})
		require.NoError(t, err)
		require.NoError(t, ss.Put("env/BOT_PRIVATE_KEY", key.String()))
		require.NoError(t, ss.Close())

		w, err := Load(config.WalletConfig{SecretDB: dir, SecretKey: encHex, SecretName: "env/BOT_PRIVATE_KEY"})
		require.NoError(t, err)
		assert.Equal(t, key.PublicKey(), w.PublicKey())
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := Load(config.WalletConfig{})
		require.Error(t, err)
	})
}

func TestWallet_Sign(t *testing.T) {
	key := newKey(t)
	w, err := New(key)
	require.NoError(t, err)

	msg := []byte("open LONG 5000 SOL")
	sig, err := w.Sign(msg)
	require.NoError(t, err)
	assert.True(t, sig.Verify(w.PublicKey(), msg))
}

func TestAssociatedTokenAddress_MatchesFindATA(t *testing.T) {
	owner := newKey(t).PublicKey()
	mint := solana.MustPublicKeyFromBase58(config.Clusters["devnet"].USDCMint)

	want, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)

	got, err := FundingAddress(owner, mint)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	again, err := AssociatedTokenAddress(AssociatedTokenProgramID, solana.TokenProgramID, mint, owner)
	require.NoError(t, err)
	assert.Equal(t, got, again, "derivation is deterministic")
}
