package wallet

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestInMemoryNonceSource_PerSenderMonotonic(t *testing.T) {
	s := NewInMemoryNonceSource()
	a := common.HexToAddress("0x1")
	b := common.HexToAddress("0x2")

	n0, err := s.NextNonce(context.Background(), a)
	require.NoError(t, err)
	require.Equal(t, int64(0), n0)

	n1, err := s.NextNonce(context.Background(), a)
	require.NoError(t, err)
	require.Equal(t, int64(1), n1)

	nb, err := s.NextNonce(context.Background(), b)
	require.NoError(t, err)
	require.Equal(t, int64(0), nb)
}
