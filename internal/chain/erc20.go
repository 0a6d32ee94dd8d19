package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// erc20ABIJSON is the minimal ERC20 read/write surface the core needs: the
// MOLTI token balance that backs an agent's walletMoltiWei (spec.md §4.5
// step 3, step 6e), and the allowance/approve pair the Epoch Controller's
// auto-renewal flow uses before issuing an infinite-approval user operation
// (spec.md §4.6).
const erc20ABIJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// ERC20Contract binds the MOLTI token (or any ERC20) to a Client, the same
// client+address+abi shape as ArenaContract.
type ERC20Contract struct {
	client  *Client
	address common.Address
	abi     abi.ABI
}

// NewERC20Contract parses the fixed ERC20 ABI once and binds it to address.
func NewERC20Contract(client *Client, address common.Address) (*ERC20Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("chain: parse erc20 abi: %w", err)
	}
	return &ERC20Contract{client: client, address: address, abi: parsed}, nil
}

// BalanceOf reads owner's token balance, the source of walletMoltiWei.
func (e *ERC20Contract) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	out, err := e.client.Call(ctx, e.address, e.abi, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: balanceOf: unexpected output %v", out)
	}
	return bal, nil
}

// Allowance reads how much spender may pull from owner.
func (e *ERC20Contract) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	out, err := e.client.Call(ctx, e.address, e.abi, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	allowance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: allowance: unexpected output %v", out)
	}
	return allowance, nil
}

// ApproveCalldata packs approve(spender, amount) for submission through the
// agent's account-abstracted wallet (the arena contract as spender, an
// infinite amount for the one-time renewal approval spec.md §4.6 requires).
func (e *ERC20Contract) ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error) {
	return e.abi.Pack("approve", spender, amount)
}

// Address returns the bound token contract address.
func (e *ERC20Contract) Address() common.Address {
	return e.address
}
