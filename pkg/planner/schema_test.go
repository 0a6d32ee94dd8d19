package planner

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateSchema(t *testing.T) {
	t.Run("nil value", func(t *testing.T) {
		_, err := GenerateSchema(nil)
		require.Error(t, err)
		require.Contains(t, err.Error(), "cannot be nil")
	})

	t.Run("non-struct type", func(t *testing.T) {
		_, err := GenerateSchema("string")
		require.Error(t, err)
		require.Contains(t, err.Error(), "must be a struct")
	})

	t.Run("decision schema", func(t *testing.T) {
		schema, err := GenerateSchema(decisionSchema{})
		require.NoError(t, err)
		require.Equal(t, "object", schema["type"])

		props := schema["properties"].(map[string]interface{})
		require.Len(t, props, 4)

		action := props["action"].(map[string]interface{})
		require.Equal(t, "string", action["type"])
		require.Equal(t, "one of BUY, SELL, HOLD", action["description"])

		sizePct := props["size_pct"].(map[string]interface{})
		require.Equal(t, "number", sizePct["type"])

		required := schema["required"].([]string)
		require.Len(t, required, 4)
	})

	t.Run("omitempty fields are not required", func(t *testing.T) {
		type withOptional struct {
			Name string `json:"name"`
			Note string `json:"note,omitempty"`
		}
		schema, err := GenerateSchema(withOptional{})
		require.NoError(t, err)
		required := schema["required"].([]string)
		require.Contains(t, required, "name")
		require.NotContains(t, required, "note")
	})

	t.Run("nested struct and slice", func(t *testing.T) {
		type inner struct {
			Value float64 `json:"value"`
		}
		type outer struct {
			Items []inner `json:"items"`
		}
		schema, err := GenerateSchema(outer{})
		require.NoError(t, err)
		props := schema["properties"].(map[string]interface{})
		items := props["items"].(map[string]interface{})
		require.Equal(t, "array", items["type"])
		itemSchema := items["items"].(map[string]interface{})
		require.Equal(t, "object", itemSchema["type"])
	})
}
