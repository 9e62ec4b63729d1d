package server

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/image-pipeline/internal/cache"
	"github.com/ironsheep/image-pipeline/internal/filter"
	"github.com/ironsheep/image-pipeline/internal/imaging"
	"github.com/ironsheep/image-pipeline/internal/render"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	tiles, err := cache.New(cache.Options{MemoryMB: 16, Seed: 1})
	require.NoError(t, err)
	sources := imaging.NewSourceCache(tiles)
	coord := render.New(tiles, render.Options{Workers: 2})
	s := New(Options{
		Registry:    filter.Builtin(filter.Options{Sources: sources}),
		Sources:     sources,
		Cache:       tiles,
		Coordinator: coord,
	})
	t.Cleanup(func() {
		s.Close()
		coord.Close()
	})
	return s
}

func TestMCPRequest_Unmarshal(t *testing.T) {
	tests := []struct {
		name       string
		json       string
		wantID     interface{}
		wantMethod string
	}{
		{"string id", `{"jsonrpc":"2.0","id":"test-1","method":"tools/list"}`, "test-1", "tools/list"},
		{"number id", `{"jsonrpc":"2.0","id":42,"method":"ping"}`, float64(42), "ping"},
		{"null id", `{"jsonrpc":"2.0","id":null,"method":"initialize"}`, nil, "initialize"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req MCPRequest
			require.NoError(t, json.Unmarshal([]byte(tt.json), &req))
			assert.Equal(t, tt.wantID, req.ID)
			assert.Equal(t, tt.wantMethod, req.Method)
			assert.Equal(t, "2.0", req.JSONRPC)
		})
	}
}

func TestServe(t *testing.T) {
	s := newTestServer(t)
	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`not json`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":4,"method":"resources/list"}`,
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), strings.NewReader(in), &out))

	dec := json.NewDecoder(&out)
	var resps []MCPResponse
	for dec.More() {
		var r MCPResponse
		require.NoError(t, dec.Decode(&r))
		resps = append(resps, r)
	}
	require.Len(t, resps, 4)

	info := resps[0].Result.(map[string]interface{})["serverInfo"].(map[string]interface{})
	assert.Equal(t, ServerName, info["name"])

	tools := resps[1].Result.(map[string]interface{})["tools"].([]interface{})
	assert.Len(t, tools, len(GetToolDefinitions()))

	assert.Nil(t, resps[2].Error)
	assert.Equal(t, float64(3), resps[2].ID)

	require.NotNil(t, resps[3].Error)
	assert.Equal(t, -32601, resps[3].Error.Code)
}

func TestServeCancelled(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := s.Serve(ctx, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n"), &out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, out.Len())
}
