package chain

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeDataError struct {
	msg  string
	data string
}

func (e fakeDataError) Error() string          { return e.msg }
func (e fakeDataError) ErrorData() interface{} { return e.data }

func TestDecodeRevert(t *testing.T) {
	a := newTestArena(t)

	t.Run("nil error", func(t *testing.T) {
		require.Equal(t, "", DecodeRevert(nil, a.abi))
	})

	t.Run("error without ErrorData", func(t *testing.T) {
		require.Equal(t, "", DecodeRevert(errors.New("boom"), a.abi))
	})

	t.Run("known selector", func(t *testing.T) {
		abiErr := a.abi.Errors["InsufficientAgentBalance"]
		data := "0x" + hex.EncodeToString(abiErr.ID[:4])
		reason := DecodeRevert(fakeDataError{msg: "execution reverted", data: data}, a.abi)
		require.Equal(t, "InsufficientAgentBalance", reason)
	})

	t.Run("unknown selector", func(t *testing.T) {
		reason := DecodeRevert(fakeDataError{msg: "execution reverted", data: "0xdeadbeef"}, a.abi)
		require.Equal(t, "", reason)
	})

	t.Run("empty data", func(t *testing.T) {
		reason := DecodeRevert(fakeDataError{msg: "execution reverted", data: ""}, a.abi)
		require.Equal(t, "", reason)
	})
}
