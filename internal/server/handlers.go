package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ironsheep/image-pipeline/internal/cache"
	"github.com/ironsheep/image-pipeline/internal/filter"
	"github.com/ironsheep/image-pipeline/internal/imaging"
	"github.com/ironsheep/image-pipeline/internal/pipeline"
	"github.com/ironsheep/image-pipeline/internal/render"
)

// ErrUnknownPipeline is returned for a handle not issued by pipeline_create.
var ErrUnknownPipeline = errors.New("server: unknown pipeline")

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "pipeline_create", "render_tile").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.Info("tool failed", zap.String("tool", params.Name), zap.Error(err))
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "filter_list":
		return s.handleFilterList()

	case "pipeline_create":
		return s.handlePipelineCreate(args)
	case "pipeline_configure":
		return s.handlePipelineConfigure(ctx, args)
	case "pipeline_deconfigure":
		return s.handlePipelineDeconfigure(args)
	case "pipeline_delete":
		return s.handlePipelineDelete(args)
	case "set_setting":
		return s.handleSetSetting(args)

	case "render_tile":
		return s.handleRenderTile(ctx, args)
	case "sample_color":
		return s.handleSampleColor(ctx, args)

	case "cache_stats":
		return s.tiles.Stats(), nil
	case "cache_configure":
		return s.handleCacheConfigure(args)
	case "cache_flush":
		return s.handleCacheFlush()

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decode unmarshals tool arguments, treating absent arguments as empty.
func decode(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		return nil
	}
	return json.Unmarshal(args, v)
}

func (s *Server) chain(id string) (*pipeline.Chain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.chains[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPipeline, id)
	}
	return ch, nil
}

// === Filter Handlers ===

type settingInfo struct {
	Name  string      `json:"name"`
	Kind  string      `json:"kind"`
	Value interface{} `json:"default"`
}

type filterInfo struct {
	Name        string        `json:"name"`
	ShortName   string        `json:"short_name"`
	Description string        `json:"description"`
	Adapter     bool          `json:"adapter"`
	Settings    []settingInfo `json:"settings,omitempty"`
}

func (s *Server) handleFilterList() (interface{}, error) {
	adapters := make(map[*filter.Core]bool)
	for _, c := range s.registry.Adapters() {
		adapters[c] = true
	}

	// settings are declared by Build, so each core is instantiated once
	scratch := filter.NewGraph()
	var out []filterInfo
	for _, c := range s.registry.Cores() {
		f := scratch.Add(c)
		info := filterInfo{
			Name:        c.Name,
			ShortName:   c.ShortName,
			Description: c.Description,
			Adapter:     adapters[c],
		}
		for _, id := range f.Settings {
			n := scratch.Arena().Node(id)
			info.Settings = append(info.Settings, settingInfo{Name: n.Name, Kind: n.Kind.String(), Value: n.Value})
		}
		out = append(out, info)
	}
	return map[string]interface{}{"filters": out}, nil
}

// === Pipeline Handlers ===

type pipelineCreateArgs struct {
	Chain string `json:"chain"`
}

type pipelineArgs struct {
	ID string `json:"id"`
}

type stageInfo struct {
	Filter   string `json:"filter"`
	Inserted bool   `json:"inserted"`
	Output   string `json:"output"`
	Hash     string `json:"hash"`
}

func (s *Server) handlePipelineCreate(args json.RawMessage) (interface{}, error) {
	var a pipelineCreateArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}

	g := filter.NewGraph()
	sink, err := filter.Parse(s.registry, g, a.Chain)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	ch, err := pipeline.New(g, sink.ID, pipeline.Options{
		Adapters:  s.registry.Adapters(),
		MaxInsert: s.maxInsert,
		Logger:    s.log.With(zap.String("pipeline", id)),
	})
	if err != nil {
		return nil, err
	}
	desc, err := filter.Serialize(g, sink.ID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.chains[id] = ch
	s.mu.Unlock()

	return map[string]interface{}{
		"id":    id,
		"chain": desc,
		"state": ch.State().String(),
	}, nil
}

func (s *Server) handlePipelineConfigure(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a pipelineArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	ch, err := s.chain(a.ID)
	if err != nil {
		return nil, err
	}
	if err := ch.Configure(ctx); err != nil {
		return nil, err
	}

	var stages []stageInfo
	for _, f := range ch.Filters() {
		stages = append(stages, stageInfo{
			Filter:   f.Core.ShortName,
			Inserted: f.Inserted,
			Output:   f.Output.String(),
			Hash:     fmt.Sprintf("%016x", f.Hash),
		})
	}
	return map[string]interface{}{
		"id":          a.ID,
		"state":       ch.State().String(),
		"hash":        fmt.Sprintf("%016x", ch.Hash()),
		"stages":      stages,
		"description": ch.Describe(),
	}, nil
}

func (s *Server) handlePipelineDeconfigure(args json.RawMessage) (interface{}, error) {
	var a pipelineArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	ch, err := s.chain(a.ID)
	if err != nil {
		return nil, err
	}
	ch.Deconfigure()
	return map[string]interface{}{
		"id":        a.ID,
		"state":     ch.State().String(),
		"lifecycle": ch.Lifecycle().String(),
	}, nil
}

func (s *Server) handlePipelineDelete(args json.RawMessage) (interface{}, error) {
	var a pipelineArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	s.mu.Lock()
	ch, ok := s.chains[a.ID]
	delete(s.chains, a.ID)
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPipeline, a.ID)
	}
	ch.Deconfigure()
	return map[string]interface{}{"id": a.ID, "deleted": true}, nil
}

type setSettingArgs struct {
	ID     string `json:"id"`
	Filter string `json:"filter"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

func (s *Server) handleSetSetting(args json.RawMessage) (interface{}, error) {
	var a setSettingArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	ch, err := s.chain(a.ID)
	if err != nil {
		return nil, err
	}

	sink := ch.Sink().ID
	deferred, err := ch.Edit(func(g *filter.Graph) error {
		path, err := g.OrigPath(sink)
		if err != nil {
			return err
		}
		for _, f := range path {
			if f.Core.ShortName == a.Filter {
				return filter.ApplySettings(f, a.Key+"="+a.Value)
			}
		}
		return fmt.Errorf("%w: %q is not in the pipeline", filter.ErrUnknownFilter, a.Filter)
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id":       a.ID,
		"deferred": deferred,
		"state":    ch.State().String(),
	}, nil
}

// === Render Handlers ===

type renderTileArgs struct {
	ID     string  `json:"id"`
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Level  int     `json:"level"`
	Zoom   float64 `json:"zoom"`
}

type renderTileResult struct {
	*imaging.EncodedImage
	Stage        string  `json:"stage"`
	Worker       int     `json:"worker"`
	RenderTimeMS float64 `json:"render_time_ms"`
}

// renderArea renders area of pipeline id and converts the tile to an image.
func (s *Server) renderArea(ctx context.Context, id string, area cache.Area) (*image.NRGBA, render.Result, error) {
	ch, err := s.chain(id)
	if err != nil {
		return nil, render.Result{}, err
	}
	if area.Width <= 0 || area.Height <= 0 {
		return nil, render.Result{}, fmt.Errorf("invalid tile size %dx%d", area.Width, area.Height)
	}

	res := <-s.render.Render(ctx, render.Request{Chain: ch, Area: area})
	if res.Err != nil {
		return nil, res, res.Err
	}
	defer res.Tile.Release()

	img, err := tileImage(res.Tile, res.Layout)
	return img, res, err
}

// tileImage converts a rendered tile of the given layout to an 8-bit image.
func tileImage(t *cache.Tile, layout filter.Layout) (*image.NRGBA, error) {
	bps := layout.Depth.Bytes()
	planes := make([][]byte, len(t.Channels))
	for i, c := range t.Channels {
		planes[i] = c.Data
	}
	if layout.Interleaved() && len(planes) == 1 {
		planes = imaging.Deinterleave(planes[0], bps)
	}
	return imaging.FromPlanes(planes, t.Area.Width, t.Area.Height, bps)
}

func (s *Server) handleRenderTile(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a renderTileArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	if a.Zoom == 0 {
		a.Zoom = 1.0
	}
	area := cache.Area{X: a.X, Y: a.Y, Width: a.Width, Height: a.Height, Scale: a.Level}
	img, res, err := s.renderArea(ctx, a.ID, area)
	if err != nil {
		return nil, err
	}
	enc, err := imaging.EncodePNG(img, a.Zoom)
	if err != nil {
		return nil, err
	}
	return &renderTileResult{
		EncodedImage: enc,
		Stage:        res.Tile.Stage,
		Worker:       res.Worker,
		RenderTimeMS: float64(res.Tile.Time.Microseconds()) / 1000,
	}, nil
}

type sampleColorArgs struct {
	ID string `json:"id"`
	X  int    `json:"x"`
	Y  int    `json:"y"`
}

func (s *Server) handleSampleColor(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a sampleColorArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	img, _, err := s.renderArea(ctx, a.ID, cache.Area{X: a.X, Y: a.Y, Width: 1, Height: 1})
	if err != nil {
		return nil, err
	}
	return imaging.SampleColor(img, 0, 0)
}

// === Cache Handlers ===

func (s *Server) handleCacheFlush() (interface{}, error) {
	tiles := s.tiles.Len()
	s.tiles.Flush()
	sources := 0
	if s.sources != nil {
		sources = s.sources.Len()
		s.sources.Clear()
	}
	return map[string]interface{}{
		"tiles_dropped":   tiles,
		"sources_dropped": sources,
	}, nil
}

type cacheConfigureArgs struct {
	MemoryMB   int   `json:"memory_mb"`
	LimitBytes int64 `json:"limit_bytes"`
}

func (s *Server) handleCacheConfigure(args json.RawMessage) (interface{}, error) {
	var a cacheConfigureArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	limit := a.LimitBytes
	if limit == 0 {
		limit = int64(a.MemoryMB) << 20
	}
	before := s.tiles.Stats()
	if err := s.tiles.SetLimit(limit); err != nil {
		return nil, err
	}
	after := s.tiles.Stats()
	return map[string]interface{}{
		"limit_bytes":  after.Limit,
		"slots":        after.Slots,
		"tiles":        after.Tiles,
		"evicted":      after.Evictions - before.Evictions,
		"cached_bytes": after.Memory[cache.MemCached.String()].Current,
	}, nil
}
