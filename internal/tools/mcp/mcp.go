// Package mcp forwards the orchestrator's opaque MCP tool family (send_sms,
// make_call, get_debugger_logs, validate_*) to an external MCP server over
// the stdio transport. The client connects and discovers its tool schemas
// once at process startup; every forwarded call thereafter is a
// synchronous CallTool round trip, since concurrent tool calls within one
// phase never occur.
//
// Grounded on pkg/tool/mcptoolset/mcptoolset.go, narrowed to the stdio
// transport (mark3labs/mcp-go) since the sse/streamable HTTP transports
// have no analogue in this orchestrator's telephony-forwarder use case.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wittyreference/feature-factory/internal/tools"
)

// Config configures the forwarder's connection to the MCP server.
type Config struct {
	Command string
	Args    []string
	Env     map[string]string
}

// Forwarder owns the single MCP client connection and the schemas it
// discovered at startup.
type Forwarder struct {
	cfg    Config
	mu     sync.Mutex
	client *mcpclient.Client
	tools  map[string]mcp.Tool
}

// New constructs a Forwarder without yet connecting; call Connect before
// Dispatch or Tools.
func New(cfg Config) *Forwarder {
	return &Forwarder{cfg: cfg, tools: make(map[string]mcp.Tool)}
}

// Connect starts the MCP subprocess and discovers its tool set. Called
// exactly once at process start.
func (f *Forwarder) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, err := mcpclient.NewStdioMCPClient(f.cfg.Command, envSlice(f.cfg.Env), f.cfg.Args...)
	if err != nil {
		return fmt.Errorf("mcp: start client: %w", err)
	}
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "feature-factory", Version: "0.1.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("mcp: initialize: %w", err)
	}

	listResp, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("mcp: list tools: %w", err)
	}
	for _, t := range listResp.Tools {
		f.tools[t.Name] = t
	}
	f.client = c
	return nil
}

func envSlice(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}

// IsMCPTool reports whether name was discovered during Connect, mirroring
// the isMcpTool(name) dispatch predicate.
func (f *Forwarder) IsMCPTool(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tools[name]
	return ok
}

// ToolAdapters returns one tools.Tool per discovered MCP tool, so callers
// can Register each into the shared tools.Registry alongside the builtin
// six.
func (f *Forwarder) ToolAdapters() []tools.Tool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]tools.Tool, 0, len(f.tools))
	for name, t := range f.tools {
		schema, _ := json.Marshal(t.InputSchema)
		out = append(out, &adapter{forwarder: f, name: name, description: t.Description, schema: schema})
	}
	return out
}

// adapter implements tools.Tool by forwarding Execute to the shared MCP
// client connection.
type adapter struct {
	forwarder   *Forwarder
	name        string
	description string
	schema      json.RawMessage
}

func (a *adapter) Name() string                 { return a.name }
func (a *adapter) Description() string          { return a.description }
func (a *adapter) InputSchema() json.RawMessage { return a.schema }

func (a *adapter) Execute(ctx context.Context, input json.RawMessage) tools.Result {
	var args map[string]interface{}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return tools.Result{Error: fmt.Sprintf("mcp: invalid input for %s: %v", a.name, err)}
		}
	}

	a.forwarder.mu.Lock()
	client := a.forwarder.client
	a.forwarder.mu.Unlock()
	if client == nil {
		return tools.Result{Error: "mcp: forwarder not connected"}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = a.name
	req.Params.Arguments = args

	res, err := client.CallTool(ctx, req)
	if err != nil {
		return tools.Result{Error: fmt.Sprintf("mcp: call %s: %v", a.name, err)}
	}

	content := renderContent(res)
	if res.IsError {
		return tools.Result{Content: content, Error: content}
	}
	return tools.Result{Success: true, Content: content}
}

func renderContent(res *mcp.CallToolResult) string {
	var out string
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			if out != "" {
				out += "\n"
			}
			out += tc.Text
		}
	}
	return out
}

// Close shuts down the underlying client connection.
func (f *Forwarder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == nil {
		return nil
	}
	return f.client.Close()
}
