// Package server implements the MCP (Model Context Protocol) server for the
// image pipeline.
//
// This package provides a JSON-RPC 2.0 server that lets MCP clients build
// filter chains, configure them and render tiles from them.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Filters:
//   - filter_list: Registered filters, their settings and adapter status
//
// Pipelines:
//   - pipeline_create: Parse a chain description and return a handle
//   - pipeline_configure: Configure, inserting adapters where needed
//   - pipeline_deconfigure: Release the configuration
//   - pipeline_delete: Deconfigure and forget the handle
//   - set_setting: Change a filter setting
//
// Rendering:
//   - render_tile: Render a rectangle as base64 PNG
//   - sample_color: Rendered color at one pixel
//
// Cache:
//   - cache_stats: Memory counters and per-stage hit rates
//   - cache_configure: Change the memory ceiling
//   - cache_flush: Drop cached tiles and decoded sources
//
// Pipelines are addressed by the UUID handle returned from pipeline_create
// and live until deleted or until the server exits.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// # Usage
//
//	srv := server.New(server.Options{
//	    Registry:    reg,
//	    Sources:     sources,
//	    Cache:       tiles,
//	    Coordinator: coord,
//	})
//	defer srv.Close()
//	if err := srv.Run(ctx); err != nil {
//	    return err
//	}
package server
