package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestBundlerClient_Submit(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := NewSigner(key)
	require.NoError(t, err)
	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	target := common.HexToAddress("0x3333333333333333333333333333333333333333")

	t.Run("success decodes tx hash and sets idempotency header", func(t *testing.T) {
		var gotIdemKey string
		var gotOp userOperation
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotIdemKey = r.Header.Get("Idempotency-Key")
			require.NoError(t, msgpack.NewDecoder(r.Body).Decode(&gotOp))
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(submitResponse{TxHash: "0x" + common.Bytes2Hex(make([]byte, 32))})
		}))
		defer server.Close()

		client := NewBundlerClient(Config{URL: server.URL, ChainID: 1, EntryPoint: common.HexToAddress("0x1111111111111111111111111111111111111111")})
		hash, err := client.Submit(context.Background(), signer, sender, target, []byte{0xde, 0xad}, 3)
		require.NoError(t, err)
		require.NotEmpty(t, gotIdemKey)
		require.Equal(t, sender, gotOp.Sender)
		require.Equal(t, target, gotOp.Target)
		require.Equal(t, int64(3), gotOp.Nonce)
		require.NotEqual(t, common.Hash{}, hash)
	})

	t.Run("bundler error response surfaces as error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(submitResponse{Error: "nonce too low"})
		}))
		defer server.Close()

		client := NewBundlerClient(Config{URL: server.URL, ChainID: 1, EntryPoint: common.Address{}, MaxRetries: 0})
		_, err := client.Submit(context.Background(), signer, sender, target, []byte{0xde, 0xad}, 3)
		require.Error(t, err)
		require.Contains(t, err.Error(), "nonce too low")
	})

	t.Run("http error status surfaced without retry", func(t *testing.T) {
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom"))
		}))
		defer server.Close()

		client := NewBundlerClient(Config{URL: server.URL, ChainID: 1, MaxRetries: 0})
		_, err := client.Submit(context.Background(), signer, sender, target, []byte{0xde, 0xad}, 3)
		require.Error(t, err)
		require.Equal(t, 1, attempts)
	})
}
