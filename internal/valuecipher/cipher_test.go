package valuecipher

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassphrase = "test-passphrase"

func newTestCipher(t *testing.T, buf *bytes.Buffer, onFallback func(error)) *Cipher {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	c, err := New(testPassphrase, Options{Logger: logger, OnLegacyFallback: onFallback})
	require.NoError(t, err)
	return c
}

func TestCipher_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c := newTestCipher(t, &buf, nil)

	values := []float64{0, 1, 0.01, 1234.56, 100000, 98765432.1, 1e-7}
	for _, v := range values {
		enc, err := c.Encrypt(v)
		require.NoError(t, err)

		res, err := c.Decrypt(enc)
		require.NoError(t, err)
		assert.Equal(t, v, res.Value)
		assert.Equal(t, SourceDecrypted, res.Source)
	}
	assert.Empty(t, buf.String(), "successful decrypts should not log")
}

func TestCipher_Encrypt_WireFormat(t *testing.T) {
	var buf bytes.Buffer
	c := newTestCipher(t, &buf, nil)

	enc, err := c.Encrypt(42)
	require.NoError(t, err)

	parts := strings.Split(enc, ":")
	require.Len(t, parts, 3)
	assert.Len(t, parts[0], ivSize*2)
	assert.Len(t, parts[1], tagSize*2)
	assert.Len(t, parts[2], len("42")*2)
}

func TestCipher_Encrypt_FreshIVPerCall(t *testing.T) {
	var buf bytes.Buffer
	c := newTestCipher(t, &buf, nil)

	a, err := c.Encrypt(500)
	require.NoError(t, err)
	b, err := c.Encrypt(500)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, strings.Split(a, ":")[0], strings.Split(b, ":")[0])

	va, err := c.DecryptValue(a)
	require.NoError(t, err)
	vb, err := c.DecryptValue(b)
	require.NoError(t, err)
	assert.Equal(t, 500.0, va)
	assert.Equal(t, 500.0, vb)
}

func TestCipher_Encrypt_RejectsInvalidAmounts(t *testing.T) {
	var buf bytes.Buffer
	c := newTestCipher(t, &buf, nil)

	_, err := c.Encrypt(-1)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCipher_Decrypt_TamperedTagFailsClosed(t *testing.T) {
	var buf bytes.Buffer
	fallbacks := 0
	c := newTestCipher(t, &buf, func(error) { fallbacks++ })

	enc, err := c.Encrypt(2500.75)
	require.NoError(t, err)

	parts := strings.Split(enc, ":")
	tag := []byte(parts[1])
	for i := range tag {
		tampered := make([]byte, len(tag))
		copy(tampered, tag)
		if tampered[i] == '0' {
			tampered[i] = '1'
		} else {
			tampered[i] = '0'
		}
		input := parts[0] + ":" + string(tampered) + ":" + parts[2]

		_, err := c.Decrypt(input)
		require.Error(t, err, "tag index %d", i)
		assert.True(t, errors.Is(err, ErrAuthentication), "tag index %d: %v", i, err)
	}
	assert.Zero(t, fallbacks)
}

func TestCipher_Decrypt_LegacyPlaintext(t *testing.T) {
	var buf bytes.Buffer
	var cause error
	c := newTestCipher(t, &buf, func(err error) { cause = err })

	res, err := c.Decrypt("15000.5")
	require.NoError(t, err)
	assert.Equal(t, 15000.5, res.Value)
	assert.Equal(t, SourceLegacyPlaintext, res.Source)
	assert.ErrorIs(t, cause, ErrMalformed)
	assert.Contains(t, buf.String(), "legacy plaintext")
}

func TestCipher_Decrypt_GarbageFails(t *testing.T) {
	var buf bytes.Buffer
	c := newTestCipher(t, &buf, nil)

	for _, input := range []string{"", "abc", "zz:zz:zz", "NaN"} {
		_, err := c.Decrypt(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestCipher_Decrypt_WrongKeyFallsBack(t *testing.T) {
	var buf bytes.Buffer
	c := newTestCipher(t, &buf, nil)

	other, err := New("another-passphrase", Options{Logger: slog.New(slog.NewJSONHandler(&buf, nil))})
	require.NoError(t, err)

	enc, err := other.Encrypt(10)
	require.NoError(t, err)

	_, err = c.Decrypt(enc)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestDeriveKey_IsCached(t *testing.T) {
	k1, err := deriveKey("cache-me")
	require.NoError(t, err)
	k2, err := deriveKey("cache-me")
	require.NoError(t, err)

	assert.Len(t, k1, keyLength)
	assert.Same(t, &k1[0], &k2[0])
}

func TestResolvePassphrase(t *testing.T) {
	got, err := ResolvePassphrase("secret", true)
	require.NoError(t, err)
	assert.Equal(t, "secret", got)

	_, err = ResolvePassphrase("", true)
	assert.ErrorIs(t, err, ErrMissingSecret)

	got, err = ResolvePassphrase("", false)
	require.NoError(t, err)
	assert.Equal(t, DevelopmentPassphrase, got)
}

func TestSource_String(t *testing.T) {
	assert.Equal(t, "decrypted", SourceDecrypted.String())
	assert.Equal(t, "legacy_plaintext", SourceLegacyPlaintext.String())
}
