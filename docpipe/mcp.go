package docpipe

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/doctext/kit"
)

// RegisterMCP registers the extraction tools on an MCP server. The tools read
// paths on the local filesystem, so the server must only run on stdio. When
// Config.MCPRoot is set, tool paths are confined to it.
func (p *Pipeline) RegisterMCP(srv *mcp.Server) {
	p.registerExtractTool(srv)
	p.registerDetectTool(srv)
	p.registerFormatsTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (p *Pipeline) tool(name string, endpoint kit.Endpoint) kit.Endpoint {
	return kit.Logging(p.logger, name)(endpoint)
}

// --- extract ---

type extractReq struct {
	Path   string `json:"path"`
	Format string `json:"format,omitempty"`
}

func (p *Pipeline) registerExtractTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "doctext_extract",
		Description: "Extract plain text from a local document (pdf, doc, docx, xlsx, csv, jpeg, jpg, png, txt).",
		InputSchema: inputSchema(map[string]any{
			"path":   map[string]any{"type": "string", "description": "File path to extract"},
			"format": map[string]any{"type": "string", "description": "Type tag overriding the file extension"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*extractReq)
		if r.Path == "" {
			return nil, errors.New("path is required")
		}
		path, err := p.resolveToolPath(r.Path)
		if err != nil {
			return nil, err
		}
		if r.Format == "" {
			return p.ExtractFile(ctx, path)
		}
		return p.Extract(ctx, path, Format(r.Format))
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r extractReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, p.tool(tool.Name, endpoint), decode)
}

// --- detect ---

type detectReq struct {
	Path string `json:"path"`
}

func (p *Pipeline) registerDetectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "doctext_detect",
		Description: "Detect the type tag of a document from its file extension.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "File path to detect"},
		}, []string{"path"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*detectReq)
		format, err := p.Detect(r.Path)
		if err != nil {
			return nil, err
		}
		return map[string]any{"format": string(format), "ocr": format.IsImage()}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r detectReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, p.tool(tool.Name, endpoint), decode)
}

// --- formats ---

func (p *Pipeline) registerFormatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "doctext_formats",
		Description: "List the supported document type tags.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return map[string]any{"formats": SupportedFormats()}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, p.tool(tool.Name, endpoint), decode)
}
