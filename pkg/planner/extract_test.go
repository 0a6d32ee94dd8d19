package planner

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject(t *testing.T) {
	t.Run("bare object", func(t *testing.T) {
		obj, err := ExtractJSONObject(`{"action":"BUY","size_pct":0.1}`)
		require.NoError(t, err)
		require.Equal(t, `{"action":"BUY","size_pct":0.1}`, obj)
	})

	t.Run("wrapped in prose", func(t *testing.T) {
		obj, err := ExtractJSONObject("here is my decision: {\"action\":\"HOLD\"} thanks")
		require.NoError(t, err)
		require.Equal(t, `{"action":"HOLD"}`, obj)
	})

	t.Run("nested braces", func(t *testing.T) {
		obj, err := ExtractJSONObject(`{"action":"BUY","meta":{"note":"{bracket in string}"}}`)
		require.NoError(t, err)
		require.Equal(t, `{"action":"BUY","meta":{"note":"{bracket in string}"}}`, obj)
	})

	t.Run("markdown json fence", func(t *testing.T) {
		obj, err := ExtractJSONObject("```json\n{\"action\":\"SELL\"}\n```")
		require.NoError(t, err)
		require.Equal(t, `{"action":"SELL"}`, obj)
	})

	t.Run("escaped quote inside string", func(t *testing.T) {
		obj, err := ExtractJSONObject(`{"reason":"said \"hi\""}`)
		require.NoError(t, err)
		require.Equal(t, `{"reason":"said \"hi\""}`, obj)
	})

	t.Run("no object present", func(t *testing.T) {
		_, err := ExtractJSONObject("no json here")
		require.Error(t, err)
	})

	t.Run("unbalanced object", func(t *testing.T) {
		_, err := ExtractJSONObject(`{"action":"BUY"`)
		require.Error(t, err)
	})

	t.Run("bare array", func(t *testing.T) {
		obj, err := ExtractJSONObject(`[{"action":"BUY"},{"action":"SELL"}]`)
		require.NoError(t, err)
		require.Equal(t, `[{"action":"BUY"},{"action":"SELL"}]`, obj)
	})

	t.Run("array wrapped in prose", func(t *testing.T) {
		obj, err := ExtractJSONObject(`decisions: [{"action":"HOLD"}] done`)
		require.NoError(t, err)
		require.Equal(t, `[{"action":"HOLD"}]`, obj)
	})

	t.Run("single quoted string", func(t *testing.T) {
		obj, err := ExtractJSONObject(`{"reason":'closing brace } does not count'}`)
		require.NoError(t, err)
		require.Equal(t, `{"reason":'closing brace } does not count'}`, obj)
	})

	t.Run("escaped single quote inside single quoted string", func(t *testing.T) {
		obj, err := ExtractJSONObject(`{"reason":'it\'s } fine'}`)
		require.NoError(t, err)
		require.Equal(t, `{"reason":'it\'s } fine'}`, obj)
	})

	t.Run("bracket inside double quoted string", func(t *testing.T) {
		obj, err := ExtractJSONObject(`{"action":"BUY","note":"array looks like [1,2]"}`)
		require.NoError(t, err)
		require.Equal(t, `{"action":"BUY","note":"array looks like [1,2]"}`, obj)
	})

	t.Run("unbalanced array", func(t *testing.T) {
		_, err := ExtractJSONObject(`[{"action":"BUY"}`)
		require.Error(t, err)
	})

	t.Run("mismatched brackets", func(t *testing.T) {
		_, err := ExtractJSONObject(`{"action":"BUY"]`)
		require.Error(t, err)
	})
}

func TestDecodeJSONObject(t *testing.T) {
	type target struct {
		Action string `json:"action"`
	}
	var out target
	err := DecodeJSONObject("some prose {\"action\":\"BUY\"} more prose", &out)
	require.NoError(t, err)
	require.Equal(t, "BUY", out.Action)
}
