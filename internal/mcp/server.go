package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rickcrawford/markdowninthemiddle/internal/config"
	"github.com/rickcrawford/markdowninthemiddle/internal/htmlconv"
	"github.com/rickcrawford/markdowninthemiddle/internal/tokens"
)

// Deps holds dependencies for MCP handlers.
type Deps struct {
	HTTPClient   *http.Client
	TokenCounter *tokens.Counter
}

// Handler handles MCP tool calls.
type Handler struct {
	httpClient   *http.Client
	tokenCounter *tokens.Counter
}

// New creates an MCP server with registered tools.
func New(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"markdowninthemiddle",
		"1.0.0",
	)

	handler := &Handler{
		httpClient:   deps.HTTPClient,
		tokenCounter: deps.TokenCounter,
	}

	RegisterTools(s, handler)

	return s
}

// RegisterTools registers fetch_markdown and fetch_raw tools.
func RegisterTools(s *server.MCPServer, handler *Handler) {
	s.AddTool(
		mcp.Tool{
			Name:        "fetch_markdown",
			Description: "Fetch a URL and convert to Markdown",
			InputSchema: mcp.ToolInputSchema(mcp.ToolArgumentsSchema{
				Type: "object",
				Properties: map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "The URL to fetch",
					},
				},
				Required: []string{"url"},
			}),
		},
		handler.handleFetchMarkdown,
	)

	s.AddTool(
		mcp.Tool{
			Name:        "fetch_raw",
			Description: "Fetch a URL and return raw HTML/JSON body",
			InputSchema: mcp.ToolInputSchema(mcp.ToolArgumentsSchema{
				Type: "object",
				Properties: map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "The URL to fetch",
					},
				},
				Required: []string{"url"},
			}),
		},
		handler.handleFetchRaw,
	)
}

// handleFetchMarkdown implements the fetch_markdown tool. Unlike the proxy
// pipeline, there is no inbound response to rewrite: it fetches the URL
// directly and returns the conversion outright, independent of
// negotiation, eligibility, or conditional headers.
func (h *Handler) handleFetchMarkdown(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url := request.GetString("url", "")
	if url == "" {
		return mcp.NewToolResultError("url is required"), nil
	}

	resp, err := h.httpClient.Get(url)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error fetching URL: %v", err)), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error reading response: %v", err)), nil
	}

	contentType := resp.Header.Get("Content-Type")
	if !isHTML(contentType) {
		result := map[string]interface{}{
			"url":         url,
			"markdown":    string(body),
			"tokens":      h.countTokens(string(body)),
			"status_code": resp.StatusCode,
		}
		resultJSON, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(resultJSON)), nil
	}

	conv, err := htmlconv.Convert(body, htmlconv.Options{
		ContentType: contentType,
		Flavor:      config.FlavorCommonMark,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error converting HTML: %v", err)), nil
	}

	tokenCount := conv.TokenEstimate
	if h.tokenCounter != nil {
		tokenCount = h.tokenCounter.Count(string(conv.Markdown))
	}

	result := map[string]interface{}{
		"url":         url,
		"markdown":    string(conv.Markdown),
		"tokens":      tokenCount,
		"etag":        conv.ETag,
		"status_code": resp.StatusCode,
	}

	resultJSON, _ := json.MarshalIndent(result, "", "  ")

	return mcp.NewToolResultText(string(resultJSON)), nil
}

// handleFetchRaw implements the fetch_raw tool.
func (h *Handler) handleFetchRaw(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url := request.GetString("url", "")
	if url == "" {
		return mcp.NewToolResultError("url is required"), nil
	}

	resp, err := h.httpClient.Get(url)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error fetching URL: %v", err)), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error reading response: %v", err)), nil
	}

	result := map[string]interface{}{
		"url":          url,
		"status_code":  resp.StatusCode,
		"content_type": resp.Header.Get("Content-Type"),
		"body":         string(body),
	}

	resultJSON, _ := json.MarshalIndent(result, "", "  ")

	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (h *Handler) countTokens(s string) int {
	if h.tokenCounter == nil {
		return 0
	}
	return h.tokenCounter.Count(s)
}

// isHTML checks if content type is HTML.
func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "xhtml")
}
