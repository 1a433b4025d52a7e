package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"prepmate/internal/usecase"
)

const (
	serverName    = "Interview Prep Tools"
	serverVersion = "1.0.0"
)

// Tool input schemas. Shared between tool registration and argument
// validation so the advertised contract is the enforced one.
const (
	emptySchema = `{"type": "object", "properties": {}}`

	uploadResumeSchema = `{
		"type": "object",
		"properties": {
			"content": {"type": "string", "description": "The string content of PDF resume file."}
		},
		"required": ["content"]
	}`

	generatePrepSchema = `{
		"type": "object",
		"properties": {
			"job_description": {"type": "string", "description": "The full job description text to prepare for."}
		},
		"required": ["job_description"]
	}`
)

// Server exposes the document operations as MCP tools over streamable HTTP.
type Server struct {
	preps  *usecase.PrepService
	http   *server.StreamableHTTPServer
	logger *slog.Logger
}

// New builds the tool server.
func New(preps *usecase.PrepService, logger *slog.Logger) (*Server, error) {
	s := &Server{preps: preps, logger: logger}

	mcpSrv := server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(false),
	)

	tools := []struct {
		name        string
		description string
		schema      string
		handler     server.ToolHandlerFunc
	}{
		{
			name: "get_resume",
			description: "Get the current user's resume text. Returns the plain text content " +
				"of the user's resume, or a message indicating the agent should ask the user " +
				"to upload their PDF resume.",
			schema:  emptySchema,
			handler: s.handleGetResume,
		},
		{
			name: "upload_resume",
			description: "Upload a PDF resume content. Saves the resume text for later use " +
				"in interview preparation.",
			schema:  uploadResumeSchema,
			handler: s.handleUploadResume,
		},
		{
			name: "list_preps",
			description: "List all generated interview preparation documents for the current " +
				"user, including name, creation date, and presigned download URL.",
			schema:  emptySchema,
			handler: s.handleListPreps,
		},
		{
			name: "generate_prep",
			description: "Generate an interview preparation document. Fetches the user's " +
				"resume, researches the role, converts the result to PDF, and stores it. " +
				"Returns a presigned URL to download the generated PDF, or an error message.",
			schema:  generatePrepSchema,
			handler: s.handleGeneratePrep,
		},
	}

	for _, t := range tools {
		validator, err := compileSchema(t.name, t.schema)
		if err != nil {
			return nil, err
		}
		mcpSrv.AddTool(
			mcp.NewToolWithRawSchema(t.name, t.description, json.RawMessage(t.schema)),
			s.withValidation(validator, t.handler),
		)
	}

	s.http = server.NewStreamableHTTPServer(mcpSrv,
		server.WithHTTPContextFunc(withIdentity),
	)
	return s, nil
}

// Start serves MCP over HTTP until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("tool server listening", "addr", addr)
	return s.http.Start(addr)
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func compileSchema(name, schema string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".json", strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	compiled, err := compiler.Compile(name + ".json")
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return compiled, nil
}

// withValidation rejects calls whose arguments do not match the advertised
// schema before they reach the handler.
func (s *Server) withValidation(schema *jsonschema.Schema, next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		if err := schema.Validate(anyify(args)); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		return next(ctx, req)
	}
}

// anyify round-trips the arguments through JSON so number types match what
// the schema validator expects.
func anyify(args map[string]any) any {
	data, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return args
	}
	return v
}

func (s *Server) handleGetResume(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	email, err := userEmailFromContext(ctx)
	if err != nil {
		return nil, err
	}

	text, err := s.preps.GetResume(ctx, email)
	if err != nil {
		s.logger.Error("get_resume failed", "user", email, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleUploadResume(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	email, err := userEmailFromContext(ctx)
	if err != nil {
		return nil, err
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	msg, err := s.preps.UploadResume(ctx, email, content)
	if err != nil {
		s.logger.Error("upload_resume failed", "user", email, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(msg), nil
}

func (s *Server) handleListPreps(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	email, err := userEmailFromContext(ctx)
	if err != nil {
		return nil, err
	}

	preps, err := s.preps.ListPreps(ctx, email)
	if err != nil {
		s.logger.Error("list_preps failed", "user", email, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := json.Marshal(preps)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleGeneratePrep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	email, err := userEmailFromContext(ctx)
	if err != nil {
		return nil, err
	}
	jobDescription, err := req.RequireString("job_description")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.logger.Info("generating prep", "user", email)
	result, err := s.preps.GeneratePrep(ctx, email, jobDescription)
	if err != nil {
		s.logger.Error("generate_prep failed", "user", email, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(result), nil
}
