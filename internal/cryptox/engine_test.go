package cryptox

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, KeySize)
}

func TestEngine_LockedByDefault(t *testing.T) {
	var e Engine
	assert.False(t, e.IsUnlocked())

	_, err := e.Encrypt([]byte("x"))
	require.ErrorIs(t, err, ErrNotUnlocked)
	_, err = e.Decrypt(make([]byte, 64))
	require.ErrorIs(t, err, ErrNotUnlocked)
}

func TestEngine_RoundTrip(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Unlock(testKey(1)))

	for _, pt := range [][]byte{{}, []byte("hello"), bytes.Repeat([]byte{0xAB}, 1<<16)} {
		ct, err := e.Encrypt(pt)
		require.NoError(t, err)
		assert.Len(t, ct, 24+len(pt)+16)

		got, err := e.Decrypt(ct)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(pt, got))
	}
}

func TestEngine_FreshNoncePerCall(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Unlock(testKey(2)))

	a, err := e.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := e.Encrypt([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEngine_DecryptFailures(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Unlock(testKey(3)))

	ct, err := e.Encrypt([]byte("secret"))
	require.NoError(t, err)

	tampered := append([]byte(nil), ct...)
	tampered[len(tampered)-1] ^= 0x01
	_, err = e.Decrypt(tampered)
	require.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = e.Decrypt(ct[:10])
	require.ErrorIs(t, err, ErrDecryptionFailed)

	other := NewEngine()
	require.NoError(t, other.Unlock(testKey(4)))
	_, err = other.Decrypt(ct)
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestEngine_LockWipesAndIsIdempotent(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Unlock(testKey(5)))
	held := e.key

	e.Lock()
	e.Lock()

	assert.False(t, e.IsUnlocked())
	assert.Equal(t, make([]byte, KeySize), held, "key buffer must be zeroed")

	_, err := e.Encrypt([]byte("x"))
	require.ErrorIs(t, err, ErrNotUnlocked)
}

func TestEngine_UnlockCopiesKey(t *testing.T) {
	key := testKey(6)
	e := NewEngine()
	require.NoError(t, e.Unlock(key))

	ct, err := e.Encrypt([]byte("v"))
	require.NoError(t, err)

	for i := range key {
		key[i] = 0
	}
	pt, err := e.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), pt)
}

func TestEngine_UnlockReplacesKey(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Unlock(testKey(7)))
	ct, err := e.Encrypt([]byte("v"))
	require.NoError(t, err)

	require.NoError(t, e.Unlock(testKey(8)))
	_, err = e.Decrypt(ct)
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestEngine_RejectsBadKeySize(t *testing.T) {
	e := NewEngine()
	require.Error(t, e.Unlock([]byte("short")))
	assert.False(t, e.IsUnlocked())
}

func TestEngine_VerificationToken(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Unlock(testKey(9)))

	ct, err := e.Encrypt(VerificationToken())
	require.NoError(t, err)
	pt, err := e.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, VerificationToken(), pt)
}

func TestEngine_ConcurrentUse(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Unlock(testKey(10)))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ct, err := e.Encrypt([]byte("payload"))
			if !assert.NoError(t, err) {
				return
			}
			_, err = e.Decrypt(ct)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
