package vault

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVault_AES_RoundTrip(t *testing.T) {
	key := make([]byte, 32)
	rand.Read(key)

	v, err := NewFactory(Config{Provider: "aes", AESKey: string(key)})
	require.NoError(t, err)

	original := []byte("live_sk_abcdef123456")

	encrypted, err := v.Encrypt(original)
	require.NoError(t, err)
	require.NotEqual(t, original, encrypted)

	decrypted, err := v.Decrypt(encrypted)
	require.NoError(t, err)
	require.Equal(t, original, decrypted)
}

func TestVault_AES_TamperedPayload(t *testing.T) {
	v, err := NewFactory(Config{AESKey: "test-key"})
	require.NoError(t, err)

	encrypted, err := v.Encrypt([]byte("secret"))
	require.NoError(t, err)

	// Decrypting with a different key must fail, not return garbage.
	other, err := NewFactory(Config{AESKey: "other-key"})
	require.NoError(t, err)
	_, err = other.Decrypt(encrypted)
	require.ErrorIs(t, err, ErrDecryption)

	_, err = v.Decrypt([]byte("not json"))
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestVault_EmptyKeyRejected(t *testing.T) {
	_, err := NewFactory(Config{Provider: "aes", AESKey: "  "})
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestVault_UnknownProvider(t *testing.T) {
	_, err := NewFactory(Config{Provider: "hsm"})
	require.ErrorIs(t, err, ErrUnknownProvider)
}

func TestVault_StringHelpers(t *testing.T) {
	v, err := NewFactory(Config{AESKey: "test-key"})
	require.NoError(t, err)

	ciphertext, err := EncryptString(v, "merchant-secret")
	require.NoError(t, err)

	plaintext, err := DecryptString(v, ciphertext)
	require.NoError(t, err)
	require.Equal(t, "merchant-secret", plaintext)
}
