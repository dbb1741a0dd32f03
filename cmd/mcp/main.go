// Payments MCP Server - Exposes the credits platform as read-only MCP tools for LLMs
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/hirelens/payments/internal/mcpserver"
)

func main() {
	cfg := mcpserver.Config{
		APIURL: envOrDefault("HIRELENS_API_URL", "http://localhost:8080"),
	}

	s := mcpserver.NewMCPServer(cfg)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
