package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetToolDefinitions(t *testing.T) {
	expected := []string{
		"filter_list",
		"pipeline_create",
		"pipeline_configure",
		"pipeline_deconfigure",
		"pipeline_delete",
		"set_setting",
		"render_tile",
		"sample_color",
		"cache_stats",
		"cache_configure",
		"cache_flush",
	}

	var names []string
	for _, tool := range GetToolDefinitions() {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, expected, names)
}

func TestToolDefinitions_Structure(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		t.Run(tool.Name, func(t *testing.T) {
			assert.NotEmpty(t, tool.Description)
			assert.Equal(t, "object", tool.InputSchema["type"])

			props, ok := tool.InputSchema["properties"].(map[string]interface{})
			require.True(t, ok, "properties must be an object")

			required, _ := tool.InputSchema["required"].([]string)
			for _, name := range required {
				assert.Contains(t, props, name, "required property must be declared")
			}
		})
	}
}
