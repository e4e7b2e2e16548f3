package control

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/imgveil/kit"
)

// RegisterMCP registers each protocol command as an MCP tool, so an agent
// can drive the selection state machine the same way the HTTP surface does.
func (m *Mux) RegisterMCP(srv *mcp.Server) {
	tools := []struct {
		name        string
		description string
		cmd         Type
	}{
		{"imgveil_start_selection", "Enter selection mode: the next click on a page image selects it for export.", TypeStartSelection},
		{"imgveil_clear_selection", "Exit selection mode and deselect any selected image.", TypeClearSelection},
		{"imgveil_selection_state", "Report whether an image is currently selected.", TypeSelectionState},
		{"imgveil_apply_noise", "Re-apply the current noise settings to the selected image's overlay.", TypeApplyNoise},
		{"imgveil_generate_noisy_image", "Export a noised full-resolution copy of the selected image as a PNG data URL.", TypeGenerateNoisy},
	}

	for _, t := range tools {
		cmd := t.cmd
		tool := &mcp.Tool{
			Name:        t.name,
			Description: t.description,
			InputSchema: inputSchema(map[string]any{}, nil),
		}

		endpoint := func(ctx context.Context, _ any) (any, error) {
			resp, err := m.DispatchCommand(ctx, Command{Type: cmd})
			if err != nil {
				return nil, err
			}
			return json.RawMessage(resp), nil
		}

		decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
			return &kit.MCPDecodeResult{Request: struct{}{}, EnrichCtx: func(ctx context.Context) context.Context {
				return kit.WithTransport(ctx, "mcp")
			}}, nil
		}

		kit.RegisterMCPTool(srv, tool, endpoint, decode)
	}
}

// inputSchema builds a JSON Schema object with type "object".
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
