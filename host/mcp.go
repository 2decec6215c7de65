// CLAUDE:SUMMARY MCP surface: every host action registered as a tool, arguments forwarded verbatim to dispatch.
package host

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/gaia/kit"
)

// toolSpec names one MCP tool and its description. Schemas stay permissive:
// the dispatch layer owns validation and its reason codes are the contract.
type toolSpec struct {
	action      string
	description string
	required    []string
}

var toolSpecs = []toolSpec{
	{"browser_start", "Open or reuse a named browser session, optionally navigating to a URL.", []string{"session_id"}},
	{"browser_snapshot", "Capture a snapshot of interactive elements; returns snapshot_id and refs for browser_act.", []string{"session_id"}},
	{"browser_act", "Perform one action. Element kinds (click, fill, press, hover, scroll, select, dragAndDrop, dragSlider, scrollIntoView) require snapshot_id and ref_id; page kinds (goto, wait, screenshot, setViewport, evaluate) do not.", []string{"session_id"}},
	{"browser_wait", "Wait on a url substring, load state, selector, text, js predicate, or fixed time.", []string{"session_id"}},
	{"browser_screenshot", "Capture the current page as PNG or JPEG, optionally saving under the data root.", []string{"session_id"}},
	{"browser_pdf", "Print the current page to a validated PDF under the data root.", []string{"session_id", "path"}},
	{"browser_tabs", "List tabs with target ids and the current tab.", []string{"session_id"}},
	{"browser_tabs_open", "Open a tab, optionally navigating it, and focus it.", []string{"session_id"}},
	{"browser_tabs_focus", "Focus a tab by targetId, unambiguous prefix, or index.", []string{"session_id"}},
	{"browser_tabs_close", "Close a tab by targetId, unambiguous prefix, or index.", []string{"session_id"}},
	{"browser_console_get", "Read recent console messages.", []string{"session_id"}},
	{"browser_errors_get", "Read recent uncaught page errors.", []string{"session_id"}},
	{"browser_requests_get", "Read recent network requests, optionally filtered by URL substring.", []string{"session_id"}},
	{"browser_response_body", "Fetch the response body for a recorded request id.", []string{"session_id", "request_id"}},
	{"browser_trace_start", "Start a Chrome trace; the file lands under the data root.", []string{"session_id"}},
	{"browser_trace_stop", "Stop the running trace and return its path.", []string{"session_id"}},
	{"browser_state", "Get, set, or clear cookies and web storage.", []string{"session_id"}},
	{"browser_env", "Get, set, or clear environment emulation: viewport, user agent, locale, dialog arming, file chooser.", []string{"session_id"}},
	{"browser_content", "Render the current page to markdown or plain text.", []string{"session_id"}},
	{"browser_close", "Close a session and its browser.", []string{"session_id"}},
	{"save_plan", "Persist a test plan keyed by URL or content hash.", []string{"url", "plan"}},
	{"load_plan_file", "Load stored plans by id, URL, or content hash.", nil},
	{"list_plans", "List stored plans, most recently updated first.", nil},
}

// RegisterMCP registers the whole action surface as MCP tools.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	for _, spec := range toolSpecs {
		spec := spec
		tool := &mcp.Tool{
			Name:        spec.action,
			Description: spec.description,
			InputSchema: toolInputSchema(spec.required),
		}
		endpoint := func(ctx context.Context, req any) (any, error) {
			return s.Execute(ctx, spec.action, req.(json.RawMessage))
		}
		decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
			args := req.Params.Arguments
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			return &kit.MCPDecodeResult{
				Request: json.RawMessage(args),
				EnrichCtx: func(ctx context.Context) context.Context {
					return kit.WithTransport(ctx, "mcp")
				},
			}, nil
		}
		kit.RegisterMCPTool(srv, tool, endpoint, decode)
	}
}

func toolInputSchema(required []string) map[string]any {
	sc := map[string]any{
		"type":                 "object",
		"additionalProperties": true,
		"properties": map[string]any{
			"session_id": map[string]any{
				"type":        "string",
				"description": "Session name; created on first use",
			},
		},
	}
	if len(required) > 0 {
		sc["required"] = required
	}
	return sc
}
