package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the payments MCP server.
// Descriptions are what the LLM reads to decide which tool to use.
// All tools are read-only: purchases and resume reveals must go through
// the HTTP API where payment verification and debiting happen.

var ToolListPlans = mcp.NewTool("list_plans",
	mcp.WithDescription(
		"List the credit plans companies can purchase. "+
			"Returns each plan's price in INR and the number of resume-view credits it grants."),
)

var ToolGetCreditBalance = mcp.NewTool("get_credit_balance",
	mcp.WithDescription(
		"Get a company's current credit balance. "+
			"Shows total purchased, used, and remaining resume-view credits."),
	mcp.WithString("company_id",
		mcp.Required(),
		mcp.Description("The company's ID (e.g. 'co_acme')")),
)

var ToolListTransactions = mcp.NewTool("list_transactions",
	mcp.WithDescription(
		"List a company's recent credit transactions, newest first. "+
			"Shows purchases, resume-view debits, and refunds with signed credit amounts."),
	mcp.WithString("company_id",
		mcp.Required(),
		mcp.Description("The company's ID (e.g. 'co_acme')")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of transactions to return (default 20)")),
)

var ToolCheckResumeAccess = mcp.NewTool("check_resume_access",
	mcp.WithDescription(
		"Check whether an HR user can view a resume, without charging any credits. "+
			"Own-company resumes are always free; global resumes need 1 remaining credit."),
	mcp.WithString("resume_id",
		mcp.Required(),
		mcp.Description("The resume's ID")),
	mcp.WithString("hr_email",
		mcp.Required(),
		mcp.Description("Email of the HR user requesting access")),
)
