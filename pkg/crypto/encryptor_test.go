package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEncryptor_GenerateNewKey(t *testing.T) {
	enc, err := NewEncryptor("")
	require.NoError(t, err)
	assert.NotNil(t, enc.identity)
	assert.NotNil(t, enc.recipient)
}

func TestNewEncryptor_WithProvidedKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	enc1, err := NewEncryptor(key)
	require.NoError(t, err)
	enc2, err := NewEncryptor(key)
	require.NoError(t, err)

	// same identity on both sides, so a restart can still read old secrets
	ciphertext, err := enc1.Encrypt([]byte("smtp-password"))
	require.NoError(t, err)
	plaintext, err := enc2.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "smtp-password", string(plaintext))
}

func TestNewEncryptor_InvalidKey(t *testing.T) {
	_, err := NewEncryptor("invalid-key-format")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing identity")
}

func TestEncrypt_DifferentOutputEachTime(t *testing.T) {
	enc, err := NewEncryptor("")
	require.NoError(t, err)

	c1, err := enc.Encrypt([]byte("same data"))
	require.NoError(t, err)
	c2, err := enc.Encrypt([]byte("same data"))
	require.NoError(t, err)

	assert.NotEqual(t, c1, c2)
}

func TestDecrypt_Failures(t *testing.T) {
	enc, err := NewEncryptor("")
	require.NoError(t, err)

	t.Run("garbage", func(t *testing.T) {
		_, err := enc.Decrypt([]byte("not valid ciphertext"))
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := enc.Decrypt(nil)
		assert.ErrorIs(t, err, ErrEmptyCiphertext)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := NewEncryptor("")
		require.NoError(t, err)
		ciphertext, err := other.Encrypt([]byte("secret"))
		require.NoError(t, err)

		_, err = enc.Decrypt(ciphertext)
		assert.Error(t, err)
	})
}

func TestEncryptJSON_RoundTrip(t *testing.T) {
	enc, err := NewEncryptor("")
	require.NoError(t, err)

	type token struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	in := token{AccessToken: "ya29.a0", RefreshToken: "1//0g"}

	sealed, err := enc.EncryptJSON(in)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "ya29")

	var out token
	require.NoError(t, enc.DecryptJSON(sealed, &out))
	assert.Equal(t, in, out)
}

func TestPublicKey(t *testing.T) {
	enc, err := NewEncryptor("")
	require.NoError(t, err)
	assert.Contains(t, enc.PublicKey(), "age1")
}

func TestNewToken(t *testing.T) {
	token, digest, err := NewToken()
	require.NoError(t, err)
	assert.Len(t, token, 43)
	assert.Len(t, digest, 64)
	assert.Equal(t, digest, HashToken(token))

	other, _, err := NewToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}
