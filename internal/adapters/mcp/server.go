package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/second-brain/internal/core/domain"
	"github.com/kirillkom/second-brain/internal/core/ports"
	"github.com/kirillkom/second-brain/internal/core/usecase"
)

// Server exposes the retrieval core as MCP tools so planner agents can call
// it over stdio without going through the HTTP surface.
type Server struct {
	retriever ports.ContextRetriever
	resolver  ports.EntityResolver
	runner    *usecase.ScenarioRunner
	health    ports.HealthSource
	mcp       *server.MCPServer
}

func NewServer(
	retriever ports.ContextRetriever,
	resolver ports.EntityResolver,
	runner *usecase.ScenarioRunner,
	health ports.HealthSource,
	version string,
) *Server {
	s := &Server{
		retriever: retriever,
		resolver:  resolver,
		runner:    runner,
		health:    health,
	}

	s.mcp = server.NewMCPServer(
		"second-brain",
		version,
		server.WithRecovery(),
	)
	s.registerTools()
	return s
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("retrieve_context",
		mcp.WithDescription("Retrieve ranked context candidates for a query with branch classification."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The retrieval query.")),
		mcp.WithString("mode", mcp.Description("Routing mode: fast, accurate or conversation. Defaults to conversation.")),
		mcp.WithNumber("top_k", mcp.Description("Maximum candidates in the context packet.")),
		mcp.WithNumber("threshold", mcp.Description("Confidence threshold within [0,1].")),
		mcp.WithString("provider_override", mcp.Description("Route to a specific provider if it is enabled and available.")),
		mcp.WithBoolean("force_external_rerank", mcp.Description("Run the external rerank pass even for native-rerank providers.")),
	), s.retrieveContext)

	s.mcp.AddTool(mcp.NewTool("resolve_entity",
		mcp.WithDescription("Fuzzy-match an entity name against the knowledge store."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Entity name to resolve.")),
		mcp.WithNumber("threshold", mcp.Description("Similarity threshold, default 0.3.")),
		mcp.WithNumber("limit", mcp.Description("Maximum matches, default 10.")),
	), s.resolveEntity)

	s.mcp.AddTool(mcp.NewTool("run_branch_scenario",
		mcp.WithDescription("Replay a catalog branch scenario against its declared fleet condition."),
		mcp.WithString("scenario_id", mcp.Required(), mcp.Description("Catalog scenario identifier, e.g. S001.")),
	), s.runScenario)

	s.mcp.AddTool(mcp.NewTool("list_branch_scenarios",
		mcp.WithDescription("List the branch scenario catalog, optionally filtered by tag."),
		mcp.WithString("tag", mcp.Description("Filter scenarios carrying this tag.")),
	), s.listScenarios)
}

func (s *Server) retrieveContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	retrieval := domain.RetrievalRequest{
		Query:               query,
		Mode:                domain.Mode(req.GetString("mode", string(domain.ModeConversation))),
		TopK:                req.GetInt("top_k", 0),
		Threshold:           req.GetFloat("threshold", 0),
		ProviderOverride:    req.GetString("provider_override", ""),
		ForceExternalRerank: req.GetBool("force_external_rerank", false),
	}

	response, err := s.retriever.Retrieve(ctx, retrieval)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(response)
}

func (s *Server) resolveEntity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	threshold := req.GetFloat("threshold", 0.3)
	limit := req.GetInt("limit", 10)

	matches, err := s.resolver.ResolveEntity(ctx, name, threshold, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if matches == nil {
		matches = []domain.EntityMatch{}
	}
	return jsonResult(map[string]any{"matches": matches})
}

func (s *Server) runScenario(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("scenario_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.runner.Run(ctx, id, s.health.Flags().DebugScenariosEnabled)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (s *Server) listScenarios(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scenarios := s.runner.Scenarios(req.GetString("tag", ""))
	return jsonResult(map[string]any{"scenarios": scenarios})
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
