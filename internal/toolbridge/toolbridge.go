// Package toolbridge serves the pipeline as MCP tools, so that a model
// host can ask for a document by URL and receive it as a tool result.
package toolbridge

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jmylchreest/docsift/internal/logger"
	"github.com/jmylchreest/docsift/internal/version"
	"github.com/jmylchreest/docsift/pkg/docsift"
)

// Retriever is the part of *docsift.Pipeline the bridge needs.
type Retriever interface {
	Retrieve(ctx context.Context, req docsift.Request) (*docsift.Document, error)
	Normalize(raw string) string
}

// FetchInput are the arguments of the fetch_document tool.
type FetchInput struct {
	URL           string `json:"url" jsonschema:"the http(s) URL to retrieve; tracking redirect links are unwrapped first"`
	UserAgent     string `json:"user_agent,omitempty" jsonschema:"optional User-Agent override"`
	ExtractImages bool   `json:"extract_images,omitempty" jsonschema:"also run OCR over images found on the page"`
	ForceBrowser  bool   `json:"force_browser,omitempty" jsonschema:"render the page in a headless browser even if a plain fetch succeeds"`
}

// NormalizeInput are the arguments of the normalize_url tool.
type NormalizeInput struct {
	URL string `json:"url" jsonschema:"the URL to canonicalize"`
}

// Bridge exposes fetch_document and normalize_url.
type Bridge struct {
	r      Retriever
	server *mcp.Server
}

// New creates a bridge and registers its tools.
func New(r Retriever) *Bridge {
	b := &Bridge{r: r}
	b.server = mcp.NewServer(&mcp.Implementation{Name: "docsift", Version: version.String()}, nil)

	mcp.AddTool(b.server, &mcp.Tool{
		Name: "fetch_document",
		Description: "Retrieve a web page or PDF, bypassing common bot defenses, and return its extracted text " +
			"as a JSON document (title, page_text or pdf_text, image_texts, fetch metadata).",
	}, b.fetchDocument)
	mcp.AddTool(b.server, &mcp.Tool{
		Name:        "normalize_url",
		Description: "Decode an obfuscated tracking or redirect link into the destination URL.",
	}, b.normalizeURL)
	return b
}

// Server returns the underlying MCP server.
func (b *Bridge) Server() *mcp.Server { return b.server }

// Run serves the tools over stdio until ctx is cancelled or the client
// disconnects.
func (b *Bridge) Run(ctx context.Context) error {
	logger.Info("mcp bridge listening on stdio")
	return b.server.Run(ctx, &mcp.StdioTransport{})
}

func (b *Bridge) fetchDocument(ctx context.Context, _ *mcp.CallToolRequest, in FetchInput) (*mcp.CallToolResult, any, error) {
	logger.Debug("fetch_document called", "url", in.URL, "extract_images", in.ExtractImages)
	doc, err := b.r.Retrieve(ctx, docsift.Request{
		URL:           in.URL,
		UserAgent:     in.UserAgent,
		ExtractImages: in.ExtractImages,
		ForceBrowser:  in.ForceBrowser,
	})
	switch {
	case errors.Is(err, docsift.ErrInvalidRequest):
		return errorResult(err.Error()), nil, nil
	case err != nil && doc == nil:
		return errorResult(err.Error()), nil, nil
	}

	data, merr := json.Marshal(doc)
	if merr != nil {
		return nil, nil, merr
	}
	res := &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}
	res.IsError = err != nil
	return res, nil, nil
}

func (b *Bridge) normalizeURL(_ context.Context, _ *mcp.CallToolRequest, in NormalizeInput) (*mcp.CallToolResult, any, error) {
	if in.URL == "" {
		return errorResult("url is required"), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: b.r.Normalize(in.URL)}},
	}, nil, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
