package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/moltiarena/core/internal/domain"
)

func newTestArena(t *testing.T) *ArenaContract {
	t.Helper()
	a, err := NewArenaContract(&Client{chainID: big.NewInt(1)}, common.HexToAddress("0x1111111111111111111111111111111111111111"))
	require.NoError(t, err)
	return a
}

func TestNewArenaContract_ParsesABI(t *testing.T) {
	a := newTestArena(t)
	require.Contains(t, a.abi.Methods, "executeTrade")
	require.Contains(t, a.abi.Methods, "getPortfolio")
	require.Contains(t, a.abi.Events, "EpochCreated")
	require.Contains(t, a.abi.Errors, "InsufficientAgentBalance")
}

func TestExecuteTradeCalldata(t *testing.T) {
	a := newTestArena(t)
	data, err := a.ExecuteTradeCalldata(1, 2, 3, domain.ActionBuy, big.NewInt(1e17), big.NewInt(1e18), big.NewInt(2e18), 42)
	require.NoError(t, err)
	require.True(t, len(data) > 4)

	method, err := a.abi.MethodById(data[:4])
	require.NoError(t, err)
	require.Equal(t, "executeTrade", method.Name)
}

func TestAutoRenewEpochCalldata(t *testing.T) {
	a := newTestArena(t)
	data, err := a.AutoRenewEpochCalldata(1, 2, 3)
	require.NoError(t, err)

	method, err := a.abi.MethodById(data[:4])
	require.NoError(t, err)
	require.Equal(t, "autoRenewEpoch", method.Name)
}

func TestParseEpochCreated(t *testing.T) {
	a := newTestArena(t)
	eventABI := a.abi.Events["EpochCreated"]

	t.Run("matching log", func(t *testing.T) {
		receipt := &types.Receipt{Logs: []*types.Log{
			{
				Address: a.address,
				Topics: []common.Hash{
					eventABI.ID,
					common.BigToHash(big.NewInt(9)),  // arenaId
					common.BigToHash(big.NewInt(77)), // epochId
				},
			},
		}}
		id, ok := a.ParseEpochCreated(receipt)
		require.True(t, ok)
		require.Equal(t, int64(77), id)
	})

	t.Run("no matching log", func(t *testing.T) {
		receipt := &types.Receipt{Logs: []*types.Log{
			{Address: common.HexToAddress("0x2222222222222222222222222222222222222222"), Topics: []common.Hash{eventABI.ID}},
		}}
		_, ok := a.ParseEpochCreated(receipt)
		require.False(t, ok)
	})

	t.Run("empty receipt", func(t *testing.T) {
		_, ok := a.ParseEpochCreated(&types.Receipt{})
		require.False(t, ok)
	})
}
