package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *PaymentsClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *PaymentsClient) *Handlers {
	return &Handlers{client: client}
}

// HandleListPlans lists purchasable credit plans.
func (h *Handlers) HandleListPlans(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ListPlans(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list plans: %v", err)), nil
	}

	text, err := formatPlanList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse plans: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetCreditBalance returns a company's credit account.
func (h *Handlers) HandleGetCreditBalance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	companyID := req.GetString("company_id", "")
	if companyID == "" {
		return mcp.NewToolResultError("company_id is required"), nil
	}

	raw, err := h.client.GetCreditBalance(ctx, companyID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get balance: %v", err)), nil
	}

	text, err := formatBalance(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse balance: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListTransactions lists recent credit transactions for a company.
func (h *Handlers) HandleListTransactions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	companyID := req.GetString("company_id", "")
	if companyID == "" {
		return mcp.NewToolResultError("company_id is required"), nil
	}
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListTransactions(ctx, companyID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list transactions: %v", err)), nil
	}

	text, err := formatTransactionList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse transactions: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleCheckResumeAccess runs a free access check.
func (h *Handlers) HandleCheckResumeAccess(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resumeID := req.GetString("resume_id", "")
	if resumeID == "" {
		return mcp.NewToolResultError("resume_id is required"), nil
	}
	hrEmail := req.GetString("hr_email", "")
	if hrEmail == "" {
		return mcp.NewToolResultError("hr_email is required"), nil
	}

	raw, err := h.client.CheckResumeAccess(ctx, resumeID, hrEmail)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check access: %v", err)), nil
	}

	text, err := formatDecision(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse decision: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// --- Formatting helpers ---

type planInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	Credits     int64  `json:"credits"`
	Description string `json:"description"`
}

func formatPlanList(raw json.RawMessage) (string, error) {
	var plans []planInfo
	if err := json.Unmarshal(raw, &plans); err != nil {
		return "", fmt.Errorf("unexpected plans response format")
	}
	if len(plans) == 0 {
		return "No plans are currently available.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d plan(s):\n\n", len(plans))
	for i, p := range plans {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, p.Name)
		fmt.Fprintf(&sb, "   Price: %s INR | Credits: %d\n", p.Price, p.Credits)
		if p.Description != "" {
			fmt.Fprintf(&sb, "   %s\n", p.Description)
		}
		fmt.Fprintf(&sb, "   Plan ID: %s\n", p.ID)
		if i < len(plans)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func formatBalance(raw json.RawMessage) (string, error) {
	var acc struct {
		CompanyID        string `json:"company_id"`
		TotalCredits     int64  `json:"total_credits"`
		UsedCredits      int64  `json:"used_credits"`
		RemainingCredits int64  `json:"remaining_credits"`
	}
	if err := json.Unmarshal(raw, &acc); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Credit balance for %s:\n", acc.CompanyID)
	fmt.Fprintf(&sb, "  Remaining: %d\n", acc.RemainingCredits)
	fmt.Fprintf(&sb, "  Purchased: %d\n", acc.TotalCredits)
	fmt.Fprintf(&sb, "  Used:      %d\n", acc.UsedCredits)
	return sb.String(), nil
}

type transactionInfo struct {
	ID          string `json:"id"`
	Type        string `json:"transaction_type"`
	Credits     int64  `json:"credits"`
	Description string `json:"description"`
	HRUser      string `json:"hr_user"`
	ResumeID    string `json:"resume_id"`
	CreatedAt   string `json:"created_at"`
}

func formatTransactionList(raw json.RawMessage) (string, error) {
	var txs []transactionInfo
	if err := json.Unmarshal(raw, &txs); err != nil {
		return "", fmt.Errorf("unexpected transactions response format")
	}
	if len(txs) == 0 {
		return "No transactions found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d transaction(s), newest first:\n\n", len(txs))
	for i, tx := range txs {
		fmt.Fprintf(&sb, "%d. %s %+d credit(s)\n", i+1, tx.Type, tx.Credits)
		if tx.Description != "" {
			fmt.Fprintf(&sb, "   %s\n", tx.Description)
		}
		if tx.ResumeID != "" {
			fmt.Fprintf(&sb, "   Resume: %s | HR user: %s\n", tx.ResumeID, tx.HRUser)
		}
		fmt.Fprintf(&sb, "   At: %s\n", tx.CreatedAt)
	}
	return sb.String(), nil
}

func formatDecision(raw json.RawMessage) (string, error) {
	var d struct {
		CanView          bool   `json:"can_view"`
		Reason           string `json:"reason"`
		CreditsRequired  int64  `json:"credits_required"`
		RemainingCredits int64  `json:"remaining_credits"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return "", err
	}

	var sb strings.Builder
	if d.CanView {
		sb.WriteString("Access: allowed\n")
	} else {
		sb.WriteString("Access: denied\n")
	}
	fmt.Fprintf(&sb, "Reason: %s\n", d.Reason)
	fmt.Fprintf(&sb, "Credits required: %d | Remaining: %d\n", d.CreditsRequired, d.RemainingCredits)
	if !d.CanView {
		sb.WriteString("\nThe company needs to purchase more credits before this resume can be viewed.")
	}
	return sb.String(), nil
}
