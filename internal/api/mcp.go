package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/formcat/internal/catalogue"
	"github.com/kalambet/formcat/internal/provider"
	"github.com/kalambet/formcat/internal/session"
)

const catalogueResourceURI = "catalogue://forms.csv"

// MCPDeps holds dependencies for the MCP server. The server works on a single
// unprivileged session: it can search, read and generate, never mutate.
type MCPDeps struct {
	Session   *session.Session
	Providers *provider.Registry
	Audit     AuditLog // optional; if nil, the audit resource is not registered
}

// NewMCPServer creates an MCP server with the catalogue tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"formcat",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("formcat: searchable catalogue of official forms with AI-generated descriptions."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_catalogue",
			mcp.WithDescription("Search catalogue records by a case-insensitive substring of the form number or title."),
			mcp.WithString("query", mcp.Description("Substring to match; empty returns every record")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpSearchCatalogue(deps),
	)

	s.AddTool(
		mcp.NewTool("get_description",
			mcp.WithDescription("Return the description currently shown for a record and where it came from."),
			mcp.WithString("number", mcp.Description("Form number"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Form title"), mcp.Required()),
		),
		mcpGetDescription(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_description",
			mcp.WithDescription("Generate an AI description for a record. Results are cached for the session."),
			mcp.WithString("number", mcp.Description("Form number"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Form title"), mcp.Required()),
			mcp.WithString("provider", mcp.Description("Backend to use; defaults to the selected one")),
		),
		mcpGenerateDescription(deps),
	)

	s.AddTool(
		mcp.NewTool("list_providers",
			mcp.WithDescription("List the AI backends and whether each is configured."),
		),
		mcpListProviders(deps),
	)

	s.AddResource(
		mcp.NewResource(
			catalogueResourceURI,
			"Forms Catalogue",
			mcp.WithResourceDescription("The full catalogue as CSV"),
			mcp.WithMIMEType("text/csv"),
		),
		mcpResourceCatalogue(deps),
	)

	if deps.Audit != nil {
		s.AddResource(
			mcp.NewResource(
				"catalogue://audit/recent",
				"Recent Changes",
				mcp.WithResourceDescription("Last 20 catalogue changes"),
				mcp.WithMIMEType("application/json"),
			),
			mcpResourceRecentChanges(deps),
		)
	}

	return s
}

func mcpSearchCatalogue(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")

		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 200 {
			limit = 200
		}

		records := deps.Session.List(query)
		if len(records) > limit {
			records = records[:limit]
		}
		if len(records) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(records)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpKey(req mcp.CallToolRequest) (catalogue.Key, *mcp.CallToolResult) {
	number, err := req.RequireString("number")
	if err != nil {
		return catalogue.Key{}, mcpError("number is required")
	}
	title, err := req.RequireString("title")
	if err != nil {
		return catalogue.Key{}, mcpError("title is required")
	}
	return catalogue.Key{Number: number, Title: title}, nil
}

func mcpGetDescription(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, bad := mcpKey(req)
		if bad != nil {
			return bad, nil
		}

		d, err := deps.Session.DisplayText(key, false)
		if err != nil {
			return mcpError(describeErr(err)), nil
		}

		b, err := json.Marshal(d)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal display: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGenerateDescription(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, bad := mcpKey(req)
		if bad != nil {
			return bad, nil
		}

		name := req.GetString("provider", deps.Session.Provider())
		gen, err := deps.Providers.Get(name)
		if err != nil {
			return mcpError(describeErr(err)), nil
		}

		text, err := deps.Session.RequestGeneration(ctx, key, gen)
		if err != nil {
			return mcpError(describeErr(err)), nil
		}
		return mcpText(text), nil
	}
}

func mcpListProviders(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(providersResponse{
			Providers: deps.Providers.List(ctx),
			Selected:  deps.Session.Provider(),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal providers: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceCatalogue(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := deps.Session.Export()
		if err != nil {
			return nil, fmt.Errorf("failed to export catalogue: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "text/csv",
				Text:     string(data),
			},
		}, nil
	}
}

func mcpResourceRecentChanges(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		events, err := deps.Audit.RecentEvents(ctx, 20)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent changes: %w", err)
		}

		type change struct {
			CreatedAt string        `json:"created_at"`
			Action    string        `json:"action"`
			Key       catalogue.Key `json:"key"`
			NewKey    catalogue.Key `json:"new_key,omitzero"`
		}

		changes := make([]change, len(events))
		for i, ev := range events {
			changes[i] = change{
				CreatedAt: ev.CreatedAt.Format(time.RFC3339),
				Action:    ev.Action,
				Key:       catalogue.Key{Number: ev.Number, Title: ev.Title},
				NewKey:    catalogue.Key{Number: ev.NewNumber, Title: ev.NewTitle},
			}
		}

		b, err := json.Marshal(changes)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal changes: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// describeErr renders an error for a tool result, preferring the provider's
// user-facing message.
func describeErr(err error) string {
	var pe *provider.Error
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
