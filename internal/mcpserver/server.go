package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all payments tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("hirelens-payments", "1.0.0")
	client := NewPaymentsClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolListPlans, h.HandleListPlans)
	s.AddTool(ToolGetCreditBalance, h.HandleGetCreditBalance)
	s.AddTool(ToolListTransactions, h.HandleListTransactions)
	s.AddTool(ToolCheckResumeAccess, h.HandleCheckResumeAccess)

	return s
}
