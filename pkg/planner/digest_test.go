package planner

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigestString(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		require.Equal(t, DigestString("abc"), DigestString("abc"))
	})

	t.Run("sensitive to change", func(t *testing.T) {
		require.NotEqual(t, DigestString("abc"), DigestString("abd"))
	})

	t.Run("64 char hex digest", func(t *testing.T) {
		d := DigestString("anything")
		require.Len(t, d, 64)
	})
}
