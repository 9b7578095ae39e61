// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the cat identification tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/meowtion/sensor/internal/imaging"
	"github.com/meowtion/sensor/internal/match"
	"github.com/meowtion/sensor/internal/oracle"
	"github.com/meowtion/sensor/internal/roster"
)

// Server wraps the MCP server with Meowtion Sensor tools.
type Server struct {
	mcp     *server.MCPServer
	matcher *match.Matcher
	oracle  oracle.Client
	encoder *imaging.Encoder
	roster  *roster.Roster
}

// New creates a new MCP server with all tools registered.
func New(matcher *match.Matcher, client oracle.Client, encoder *imaging.Encoder, r *roster.Roster) *Server {
	s := &Server{mcp: nil, matcher: matcher, oracle: client, encoder: encoder, roster: r}

	s.mcp = server.NewMCPServer(
		"Meowtion Sensor",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("match_cat",
		mcp.WithDescription("Compare a cat photo against the roster of known campus cats and report whether it matches one of them."),
		mcp.WithString("image_base64", mcp.Required(), mcp.Description("Base64-encoded image content")),
		mcp.WithString("mime_type", mcp.Required(), mcp.Description("Declared image MIME type, e.g. image/jpeg")),
	), s.matchCat)

	s.mcp.AddTool(mcp.NewTool("identify_breed",
		mcp.WithDescription("Identify the breed of the cat in a photo."),
		mcp.WithString("image_base64", mcp.Required(), mcp.Description("Base64-encoded image content")),
		mcp.WithString("mime_type", mcp.Required(), mcp.Description("Declared image MIME type, e.g. image/jpeg")),
	), s.identifyBreed)

	s.mcp.AddTool(mcp.NewTool("list_known_cats",
		mcp.WithDescription("List the known campus cats in the reference roster."),
	), s.listKnownCats)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func imageArgs(req mcp.CallToolRequest) ([]byte, string, error) {
	data, err := req.RequireString("image_base64")
	if err != nil {
		return nil, "", err
	}
	mimeType, err := req.RequireString("mime_type")
	if err != nil {
		return nil, "", err
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, "", fmt.Errorf("image_base64 is not valid base64")
	}
	return raw, mimeType, nil
}

func (s *Server) matchCat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, mimeType, err := imageArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	img, err := s.encoder.Encode(ctx, imaging.BlobSource{Bytes: raw, MediaType: mimeType})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported image: %v", err)), nil
	}
	result, err := s.matcher.FindMatchEncoded(ctx, img)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("match failed: %v", err)), nil
	}
	out, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) identifyBreed(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, mimeType, err := imageArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	img, err := s.encoder.Encode(ctx, imaging.BlobSource{Bytes: raw, MediaType: mimeType})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported image: %v", err)), nil
	}
	analysis, err := oracle.IdentifyBreed(ctx, s.oracle, img)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("identify failed: %v", err)), nil
	}
	out, _ := json.MarshalIndent(analysis, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listKnownCats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var names []string
	for _, c := range s.roster.Cats() {
		names = append(names, fmt.Sprintf("%s (%d reference images)", c.Name, len(c.Images)))
	}
	return mcp.NewToolResultText(strings.Join(names, "\n")), nil
}
