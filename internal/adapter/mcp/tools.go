package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
	"github.com/guillermoBallester/hrquery/internal/core/service"
)

const serverName = "hrquery"

// Tool descriptions
const (
	descAskQuestion = "Answer a natural-language question about employees. " +
		"The question is routed to the HR database, to uploaded documents such as resumes, or to both, " +
		"and the answer comes back as JSON with query_type, results and the generated SQL when there is one."

	descDescribeSchema = "Describe the discovered HR database: tables grouped by purpose " +
		"(employee, department, other), their relationships and row estimates. " +
		"Call this first to learn what questions the database can answer."

	descListTables = "List the tables of the HR database with purpose, column count and estimated rows."

	descDescribeTable = "Describe one table: columns, types, primary key, foreign keys and a few sample rows."

	descConnParam = "Database URL (postgres://, mysql:// or sqlite://). Defaults to the server's DATABASE_URL."
)

// Deps are the services the tools call. DefaultConnString is used when a
// call names no database.
type Deps struct {
	Query             *service.QueryService
	Discovery         *service.DiscoveryService
	DefaultConnString string
}

func RegisterTools(s *server.MCPServer, deps Deps) {
	s.AddTool(
		mcp.NewTool("ask_question",
			mcp.WithDescription(descAskQuestion),
			mcp.WithString("question",
				mcp.Required(),
				mcp.Description("The question, e.g. \"Average salary by department\""),
			),
			mcp.WithString("connection_string", mcp.Description(descConnParam)),
		),
		askQuestionHandler(deps),
	)

	s.AddTool(
		mcp.NewTool("describe_schema",
			mcp.WithDescription(descDescribeSchema),
			mcp.WithString("connection_string", mcp.Description(descConnParam)),
		),
		describeSchemaHandler(deps),
	)

	s.AddTool(
		mcp.NewTool("list_tables",
			mcp.WithDescription(descListTables),
			mcp.WithString("connection_string", mcp.Description(descConnParam)),
		),
		listTablesHandler(deps),
	)

	s.AddTool(
		mcp.NewTool("describe_table",
			mcp.WithDescription(descDescribeTable),
			mcp.WithString("table_name",
				mcp.Required(),
				mcp.Description("Name of the table to describe"),
			),
			mcp.WithString("connection_string", mcp.Description(descConnParam)),
		),
		describeTableHandler(deps),
	)
}

func askQuestionHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, _ := request.GetArguments()["question"].(string)
		if question == "" {
			return mcp.NewToolResultError("question is required"), nil
		}
		connString := deps.connString(request)
		if connString == "" {
			return mcp.NewToolResultError("connection_string is required: no default database is configured"), nil
		}

		res, err := deps.Query.Ask(ctx, question, connString)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to answer question: %v", err)), nil
		}
		return jsonResult(domain.Present(res))
	}
}

func describeSchemaHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		g, err := deps.graph(ctx, request)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to describe schema: %v", err)), nil
		}
		return jsonResult(domain.Summarize(g))
	}
}

func listTablesHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		g, err := deps.graph(ctx, request)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list tables: %v", err)), nil
		}
		return jsonResult(domain.Summarize(g).Tables)
	}
}

func describeTableHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, _ := request.GetArguments()["table_name"].(string)
		if name == "" {
			return mcp.NewToolResultError("table_name is required"), nil
		}
		g, err := deps.graph(ctx, request)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to describe table: %v", err)), nil
		}
		t, ok := g.Table(name)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("failed to describe table: table %q not found", name)), nil
		}
		return jsonResult(t)
	}
}

func (d Deps) connString(request mcp.CallToolRequest) string {
	if cs, _ := request.GetArguments()["connection_string"].(string); cs != "" {
		return cs
	}
	return d.DefaultConnString
}

// graph resolves the named or default database, falling back to the most
// recently discovered one.
func (d Deps) graph(ctx context.Context, request mcp.CallToolRequest) (*domain.SchemaGraph, error) {
	if cs := d.connString(request); cs != "" {
		return d.Discovery.GraphFor(ctx, cs)
	}
	if g := d.Discovery.Active(); g != nil {
		return g, nil
	}
	return nil, domain.Errorf(domain.KindInvalidInput, "connection_string is required: no database has been discovered yet")
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
