package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	keypair := make([]byte, 64)
	_, err := rand.Read(keypair)
	require.NoError(t, err)

	blob, err := EncryptKeypair(keypair, "correct horse")
	require.NoError(t, err)

	got, err := DecryptKeypair(blob, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, keypair, got)
}

func TestDecryptWrongPassword(t *testing.T) {
	keypair := make([]byte, 64)
	_, err := rand.Read(keypair)
	require.NoError(t, err)

	blob, err := EncryptKeypair(keypair, "right")
	require.NoError(t, err)

	_, err = DecryptKeypair(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptRejectsBadInput(t *testing.T) {
	_, err := EncryptKeypair(make([]byte, 64), "")
	assert.Error(t, err)

	_, err = EncryptKeypair(make([]byte, 32), "pw")
	assert.Error(t, err)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	_, err := DecryptKeypair([]byte("{not json"), "pw")
	assert.Error(t, err)

	_, err = DecryptKeypair([]byte(`{"version":2}`), "pw")
	assert.Error(t, err)
}
