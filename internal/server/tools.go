package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        typ,
		"description": description,
	}
}

func pipelineID() map[string]interface{} {
	return prop("string", "Pipeline handle returned by pipeline_create")
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Filters
		{
			Name:        "filter_list",
			Description: "List the registered filters with their settings and whether they may be inserted automatically as adapters.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},

		// Pipelines
		{
			Name:        "pipeline_create",
			Description: "Build a filter chain from a description such as \"load:filename=photo.tif:gauss:radius=1.5:memsink\" and return its handle. The chain is not configured yet.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"chain": prop("string", "Chain description: filter names and key=value settings separated by ':'"),
				},
				"required": []string{"chain"},
			},
		},
		{
			Name:        "pipeline_configure",
			Description: "Configure a pipeline, inserting converters where adjacent filters do not match. Returns the live chain, one stage per line, with inserted stages marked '+'.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": pipelineID(),
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        "pipeline_deconfigure",
			Description: "Release a pipeline's configuration. The teardown waits for renders in flight.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": pipelineID(),
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        "pipeline_delete",
			Description: "Deconfigure a pipeline and forget its handle.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": pipelineID(),
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        "set_setting",
			Description: "Change a filter setting. The pipeline is deconfigured; while renders are in flight the change is applied once they finish.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id":     pipelineID(),
					"filter": prop("string", "Short name of the filter, e.g. \"gauss\". The first match from the source is used"),
					"key":    prop("string", "Setting name or a unique prefix of it"),
					"value":  prop("string", "New value, parsed like a chain description value"),
				},
				"required": []string{"id", "filter", "key", "value"},
			},
		},

		// Rendering
		{
			Name:        "render_tile",
			Description: "Render a rectangle of a configured pipeline and return it as base64-encoded PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id":     pipelineID(),
					"x":      prop("integer", "Left edge in pixels of the scale level"),
					"y":      prop("integer", "Top edge in pixels of the scale level"),
					"width":  prop("integer", "Tile width in pixels"),
					"height": prop("integer", "Tile height in pixels"),
					"level": map[string]interface{}{
						"type":        "integer",
						"description": "Scale level: each level halves the resolution. Default 0",
						"default":     0,
					},
					"zoom": map[string]interface{}{
						"type":        "number",
						"description": "Optional resize factor applied to the encoded PNG. Default 1.0",
						"default":     1.0,
					},
				},
				"required": []string{"id", "x", "y", "width", "height"},
			},
		},
		{
			Name:        "sample_color",
			Description: "Get the rendered color of a configured pipeline at a pixel coordinate.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": pipelineID(),
					"x":  prop("integer", "X coordinate (0-based, from left)"),
					"y":  prop("integer", "Y coordinate (0-based, from top)"),
				},
				"required": []string{"id", "x", "y"},
			},
		},

		// Cache
		{
			Name:        "cache_stats",
			Description: "Report tile cache memory counters, eviction counts and per-stage hit rates.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "cache_configure",
			Description: "Change the tile cache memory ceiling. Lowering it evicts unreferenced tiles immediately.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"memory_mb":   prop("integer", "New ceiling in MiB"),
					"limit_bytes": prop("integer", "New ceiling in bytes; overrides memory_mb"),
				},
			},
		},
		{
			Name:        "cache_flush",
			Description: "Drop every cached tile and every decoded source image.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
