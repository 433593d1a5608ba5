// Copyright (c) 2025 Justin Cranford

package cryptoprim_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
	"github.com/arkaitz-dev/hashrand-sub003/internal/cryptoprim"
)

func TestEd25519_SignVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	kp, err := cryptoprim.GenerateEd25519Keypair()
	require.NoError(t, err)

	msg := []byte("login request body")
	sig := cryptoprim.Sign(kp.PrivateKey, msg)
	require.Len(t, sig, cryptoprim.Ed25519SignatureSize)
	require.True(t, cryptoprim.Verify(kp.PublicKey, msg, sig))
}

func TestEd25519_VerifyRejectsTamperedMessage(t *testing.T) {
	t.Parallel()

	kp, err := cryptoprim.GenerateEd25519Keypair()
	require.NoError(t, err)

	sig := cryptoprim.Sign(kp.PrivateKey, []byte("original"))
	require.False(t, cryptoprim.Verify(kp.PublicKey, []byte("tampered"), sig))
}

func TestEd25519_VerifyRejectsWrongSizes(t *testing.T) {
	t.Parallel()

	require.False(t, cryptoprim.Verify(nil, []byte("x"), []byte("y")))
}

func TestEd25519KeypairFromSeed_Deterministic(t *testing.T) {
	t.Parallel()

	seed := bytes.Repeat([]byte{0x07}, 32)
	kp1, err := cryptoprim.Ed25519KeypairFromSeed(seed)
	require.NoError(t, err)
	kp2, err := cryptoprim.Ed25519KeypairFromSeed(seed)
	require.NoError(t, err)

	require.Equal(t, kp1.PublicKey, kp2.PublicKey)
}

func TestEd25519KeypairFromSeed_RejectsWrongLength(t *testing.T) {
	t.Parallel()

	_, err := cryptoprim.Ed25519KeypairFromSeed([]byte("too short"))
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.KindCryptoError))
}

func TestX25519_ECDHMatches(t *testing.T) {
	t.Parallel()

	alice, err := cryptoprim.GenerateX25519Keypair()
	require.NoError(t, err)
	bob, err := cryptoprim.GenerateX25519Keypair()
	require.NoError(t, err)

	aliceShared, err := cryptoprim.ComputeECDH(alice.PrivateKey, bob.PublicKey)
	require.NoError(t, err)
	bobShared, err := cryptoprim.ComputeECDH(bob.PrivateKey, alice.PublicKey)
	require.NoError(t, err)

	require.Equal(t, aliceShared, bobShared)
}

func TestX25519_ComputeECDHRejectsZeroPublicKey(t *testing.T) {
	t.Parallel()

	alice, err := cryptoprim.GenerateX25519Keypair()
	require.NoError(t, err)

	var zero [cryptoprim.X25519KeySize]byte
	_, err = cryptoprim.ComputeECDH(alice.PrivateKey, zero)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.KindCryptoError))
}

func TestX25519KeypairFromSeed_Deterministic(t *testing.T) {
	t.Parallel()

	seed := bytes.Repeat([]byte{0x11}, 32)
	kp1, err := cryptoprim.X25519KeypairFromSeed(seed)
	require.NoError(t, err)
	kp2, err := cryptoprim.X25519KeypairFromSeed(seed)
	require.NoError(t, err)

	require.Equal(t, kp1.PublicKey, kp2.PublicKey)
}

func TestAEAD_EncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	key := bytes.Repeat([]byte{0x01}, 32)
	nonce := bytes.Repeat([]byte{0x02}, 12)
	plaintext := []byte("privkey_context payload")
	aad := []byte("session-id-123")

	ciphertext, err := cryptoprim.AEADEncrypt(key, nonce, plaintext, aad)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	decrypted, err := cryptoprim.AEADDecrypt(key, nonce, ciphertext, aad)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestAEAD_DecryptRejectsTamperedCiphertext(t *testing.T) {
	t.Parallel()

	key := bytes.Repeat([]byte{0x01}, 32)
	nonce := bytes.Repeat([]byte{0x02}, 12)

	ciphertext, err := cryptoprim.AEADEncrypt(key, nonce, []byte("data"), nil)
	require.NoError(t, err)
	ciphertext[0] ^= 0xFF

	_, err = cryptoprim.AEADDecrypt(key, nonce, ciphertext, nil)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.KindCryptoError))
}

func TestAEAD_DecryptRejectsWrongAAD(t *testing.T) {
	t.Parallel()

	key := bytes.Repeat([]byte{0x03}, 32)
	nonce := bytes.Repeat([]byte{0x04}, 12)

	ciphertext, err := cryptoprim.AEADEncrypt(key, nonce, []byte("data"), []byte("aad-a"))
	require.NoError(t, err)

	_, err = cryptoprim.AEADDecrypt(key, nonce, ciphertext, []byte("aad-b"))
	require.Error(t, err)
}

func TestAEAD_RejectsBadKeyOrNonceSize(t *testing.T) {
	t.Parallel()

	_, err := cryptoprim.AEADEncrypt([]byte("short"), bytes.Repeat([]byte{0}, 12), []byte("x"), nil)
	require.Error(t, err)

	_, err = cryptoprim.AEADEncrypt(bytes.Repeat([]byte{0}, 32), []byte("short"), []byte("x"), nil)
	require.Error(t, err)
}

func TestArgon2id_DeterministicGivenSameInputs(t *testing.T) {
	t.Parallel()

	password := []byte("zk-user-id-stage-one-output")
	salt := bytes.Repeat([]byte{0x05}, 16)
	pepper := bytes.Repeat([]byte{0x06}, 32)
	params := cryptoprim.Argon2idParams{MemoryKiB: 64, Iterations: 1, Parallelism: 1}

	out1 := cryptoprim.Argon2id(password, salt, pepper, 32, params)
	out2 := cryptoprim.Argon2id(password, salt, pepper, 32, params)

	require.Equal(t, out1, out2)
	require.Len(t, out1, 32)
}

func TestArgon2id_DifferentSaltDiverges(t *testing.T) {
	t.Parallel()

	password := []byte("same password")
	pepper := bytes.Repeat([]byte{0x06}, 32)
	params := cryptoprim.Argon2idParams{MemoryKiB: 64, Iterations: 1, Parallelism: 1}

	out1 := cryptoprim.Argon2id(password, bytes.Repeat([]byte{0x01}, 16), pepper, 32, params)
	out2 := cryptoprim.Argon2id(password, bytes.Repeat([]byte{0x02}, 16), pepper, 32, params)

	require.False(t, bytes.Equal(out1, out2))
}

func TestArgon2id_DifferentPepperDiverges(t *testing.T) {
	t.Parallel()

	password := []byte("same password")
	salt := bytes.Repeat([]byte{0x05}, 16)
	params := cryptoprim.Argon2idParams{MemoryKiB: 64, Iterations: 1, Parallelism: 1}

	out1 := cryptoprim.Argon2id(password, salt, bytes.Repeat([]byte{0x01}, 32), 32, params)
	out2 := cryptoprim.Argon2id(password, salt, bytes.Repeat([]byte{0x02}, 32), 32, params)

	require.False(t, bytes.Equal(out1, out2))
}

func TestDefaultArgon2idParams_MatchesSpec(t *testing.T) {
	t.Parallel()

	params := cryptoprim.DefaultArgon2idParams()
	require.Equal(t, uint32(19456), params.MemoryKiB)
	require.Equal(t, uint32(2), params.Iterations)
	require.Equal(t, uint8(1), params.Parallelism)
}

func TestBase58_RoundTrip(t *testing.T) {
	t.Parallel()

	data := []byte{0x00, 0x01, 0xFF, 0xAB, 0xCD}
	encoded := cryptoprim.Base58Encode(data)
	require.NotEmpty(t, encoded)

	decoded, err := cryptoprim.Base58Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, data, decoded)
}

func TestBase58_DecodeRejectsInvalidAlphabet(t *testing.T) {
	t.Parallel()

	_, err := cryptoprim.Base58Decode("0OIl invalid chars!")
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.KindInvalidInput))
}

func TestRandomBytes_LengthAndUniqueness(t *testing.T) {
	t.Parallel()

	a, err := cryptoprim.RandomBytes(32)
	require.NoError(t, err)
	require.Len(t, a, 32)

	b, err := cryptoprim.RandomBytes(32)
	require.NoError(t, err)
	require.False(t, bytes.Equal(a, b))
}
