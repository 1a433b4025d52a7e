package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"prepmate/internal/domain"
)

// mcpCallTimeout bounds one tool execution. Prep generation waits on the
// research subagent, which itself polls for up to two minutes.
const mcpCallTimeout = 3 * time.Minute

// userEmailHeader identifies the caller to the tool server.
const userEmailHeader = "X-User-Email"

// mcpClient abstracts the MCP client interface for testability.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// MCPToolSource exposes the tool server's tools for one chat request. Each
// source carries the caller's identity in its transport headers, so a source
// is never shared between users.
type MCPToolSource struct {
	client  mcpClient
	schemas []domain.ToolSchema
	logger  *slog.Logger
}

// NewMCPToolSource connects to the tool server with the user's identity
// header, initializes the session, and discovers the available tools.
func NewMCPToolSource(ctx context.Context, url, userEmail string, logger *slog.Logger) (*MCPToolSource, error) {
	t, err := transport.NewStreamableHTTP(url,
		transport.WithHTTPHeaders(map[string]string{userEmailHeader: userEmail}),
	)
	if err != nil {
		return nil, fmt.Errorf("create http transport: %w", err)
	}

	client := mcpclient.NewClient(t)
	if err := client.Start(ctx); err != nil {
		return nil, fmt.Errorf("start mcp client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "prepmate-agent",
		Version: "1.0.0",
	}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		client.Close()
		return nil, domain.WrapOp("initialize mcp session", err)
	}

	src := &MCPToolSource{client: client, logger: logger}
	if err := src.discover(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return src, nil
}

// newMCPToolSourceWithClient creates a source with an injected client (for
// testing).
func newMCPToolSourceWithClient(ctx context.Context, client mcpClient, logger *slog.Logger) (*MCPToolSource, error) {
	src := &MCPToolSource{client: client, logger: logger}
	if err := src.discover(ctx); err != nil {
		return nil, err
	}
	return src, nil
}

func (s *MCPToolSource) discover(ctx context.Context) error {
	result, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("discover tools: %w", err)
	}

	for _, t := range result.Tools {
		params := json.RawMessage(`{"type": "object"}`)
		if t.InputSchema.Properties != nil || t.InputSchema.Required != nil {
			if data, err := json.Marshal(t.InputSchema); err == nil {
				params = data
			}
		}
		s.schemas = append(s.schemas, domain.ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		})
	}

	s.logger.Debug("mcp tools discovered", "count", len(s.schemas))
	return nil
}

// Schemas implements domain.ToolSource.
func (s *MCPToolSource) Schemas() []domain.ToolSchema {
	return s.schemas
}

// Call implements domain.ToolSource.
func (s *MCPToolSource) Call(ctx context.Context, call domain.ToolCall) (*domain.ToolResult, error) {
	var args map[string]interface{}
	if len(call.Arguments) > 0 && string(call.Arguments) != "null" {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return &domain.ToolResult{
				Content: fmt.Sprintf("invalid arguments: %v", err),
				IsError: true,
			}, nil
		}
	}

	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = call.Name
	callReq.Params.Arguments = args

	callCtx, cancel := context.WithTimeout(ctx, mcpCallTimeout)
	defer cancel()

	s.logger.Debug("mcp tool call", "tool", call.Name)
	result, err := s.client.CallTool(callCtx, callReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrToolFailure, call.Name, err)
	}

	return &domain.ToolResult{
		Content: extractMCPContent(result),
		IsError: result.IsError,
	}, nil
}

// Close implements domain.ToolSource.
func (s *MCPToolSource) Close() error {
	return s.client.Close()
}

// extractMCPContent flattens a CallToolResult's content blocks into text.
func extractMCPContent(result *mcp.CallToolResult) string {
	var out string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			out += v.Text
		case *mcp.TextContent:
			out += v.Text
		}
	}
	return out
}
