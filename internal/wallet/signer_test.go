package wallet

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) *Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s, err := NewSigner(key)
	require.NoError(t, err)
	return s
}

func TestNewSigner_NilKey(t *testing.T) {
	_, err := NewSigner(nil)
	require.Error(t, err)
}

func TestNewSignerFromHex(t *testing.T) {
	t.Run("empty key", func(t *testing.T) {
		_, err := NewSignerFromHex("")
		require.Error(t, err)
	})

	t.Run("valid key", func(t *testing.T) {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		hexKey := "0x" + common.Bytes2Hex(crypto.FromECDSA(key))
		s, err := NewSignerFromHex(hexKey)
		require.NoError(t, err)
		require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address())
	})
}

func TestSign(t *testing.T) {
	s := testKey(t)

	t.Run("wrong digest length", func(t *testing.T) {
		_, err := s.Sign([]byte{1, 2, 3})
		require.Error(t, err)
	})

	t.Run("valid digest recovers signer address", func(t *testing.T) {
		digest := crypto.Keccak256([]byte("hello"))
		sig, err := s.Sign(digest)
		require.NoError(t, err)
		require.Len(t, sig, 65)
		require.True(t, sig[64] == 27 || sig[64] == 28)

		recoverSig := make([]byte, 65)
		copy(recoverSig, sig)
		recoverSig[64] -= 27
		pub, err := crypto.SigToPub(digest, recoverSig)
		require.NoError(t, err)
		require.Equal(t, s.Address(), crypto.PubkeyToAddress(*pub))
	})
}

func TestHashUserOperation_Deterministic(t *testing.T) {
	entryPoint := common.HexToAddress("0x1111111111111111111111111111111111111111")
	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	target := common.HexToAddress("0x3333333333333333333333333333333333333333")
	callData := []byte{0xde, 0xad, 0xbe, 0xef}

	h1, err := HashUserOperation(1, entryPoint, sender, target, callData, 5)
	require.NoError(t, err)
	h2, err := HashUserOperation(1, entryPoint, sender, target, callData, 5)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
	require.Len(t, h1, 32)

	t.Run("sensitive to nonce", func(t *testing.T) {
		h3, err := HashUserOperation(1, entryPoint, sender, target, callData, 6)
		require.NoError(t, err)
		require.NotEqual(t, h1, h3)
	})

	t.Run("sensitive to chain id", func(t *testing.T) {
		h4, err := HashUserOperation(2, entryPoint, sender, target, callData, 5)
		require.NoError(t, err)
		require.NotEqual(t, h1, h4)
	})
}
