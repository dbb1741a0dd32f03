// Package access gates cross-company resume views behind the credit ledger.
//
// Resumes owned by the viewer's own company are always free. A "global"
// resume, one owned by another company, costs one credit per confirmed view.
// The debit is the gate: content is only revealed after the charge lands, and
// a failed reveal refunds the charge.
package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hirelens/payments/internal/ledger"
)

var (
	ErrUserNotFound         = errors.New("access: unknown hr user")
	ErrResumeNotFound       = errors.New("access: unknown resume")
	ErrDirectoryUnavailable = errors.New("access: hr directory unavailable")
)

// Access decision reasons.
const (
	ReasonOwnCompany          = "own_company_resume"
	ReasonSufficientCredits   = "sufficient_credits"
	ReasonInsufficientCredits = "insufficient_credits"
)

// Directory is the HR backend that owns users and resumes. This service
// never stores either; it only asks who owns what and fetches content for
// confirmed views.
type Directory interface {
	CompanyOfUser(ctx context.Context, email string) (string, error)
	ResumeOwner(ctx context.Context, resumeID string) (string, error)
	FetchResume(ctx context.Context, resumeID string) (json.RawMessage, error)
}

// Decision is the answer to "can this HR user view this resume".
type Decision struct {
	CanView          bool   `json:"can_view"`
	Reason           string `json:"reason"`
	CreditsRequired  int64  `json:"credits_required"`
	RemainingCredits int64  `json:"remaining_credits"`
	TotalCredits     int64  `json:"total_credits"`
	UsedCredits      int64  `json:"used_credits"`
}

// View is a revealed resume plus what the reveal cost.
type View struct {
	ResumeID         string          `json:"resume_id"`
	Content          json.RawMessage `json:"content"`
	Charged          bool            `json:"charged"`
	CreditsSpent     int64           `json:"credits_spent"`
	RemainingCredits int64           `json:"remaining_credits"`
}

// Gate decides and charges for resume views.
type Gate struct {
	directory Directory
	ledger    *ledger.Ledger
	viewCost  int64
	logger    *slog.Logger
}

// NewGate creates an access gate charging viewCost credits per global view.
func NewGate(directory Directory, ldg *ledger.Ledger, viewCost int64, logger *slog.Logger) *Gate {
	return &Gate{
		directory: directory,
		ledger:    ldg,
		viewCost:  viewCost,
		logger:    logger,
	}
}

// ViewCost returns the per-view price of a global resume in credits.
func (g *Gate) ViewCost() int64 {
	return g.viewCost
}

// CheckAccess reports whether the HR user may view the resume and what it
// would cost. It never charges.
func (g *Gate) CheckAccess(ctx context.Context, resumeID, hrEmail string) (*Decision, error) {
	companyID, err := g.directory.CompanyOfUser(ctx, hrEmail)
	if err != nil {
		return nil, err
	}
	owner, err := g.directory.ResumeOwner(ctx, resumeID)
	if err != nil {
		return nil, err
	}

	acc, err := g.ledger.GetBalance(ctx, companyID)
	if err != nil {
		return nil, err
	}

	d := &Decision{
		RemainingCredits: acc.RemainingCredits,
		TotalCredits:     acc.TotalCredits,
		UsedCredits:      acc.UsedCredits,
	}

	if owner == companyID {
		d.CanView = true
		d.Reason = ReasonOwnCompany
		return d, nil
	}

	d.CreditsRequired = g.viewCost
	if acc.RemainingCredits >= g.viewCost {
		d.CanView = true
		d.Reason = ReasonSufficientCredits
	} else {
		d.Reason = ReasonInsufficientCredits
	}
	return d, nil
}

// ViewResume reveals a resume, charging one credit for global views.
//
// The atomic ledger debit is the access decision for paid views: two
// concurrent views racing for the last credit resolve to exactly one reveal.
// If the content fetch fails after the charge, the credit is refunded so no
// charged-but-unrevealed state persists.
func (g *Gate) ViewResume(ctx context.Context, resumeID, hrEmail string) (*View, error) {
	companyID, err := g.directory.CompanyOfUser(ctx, hrEmail)
	if err != nil {
		return nil, err
	}
	owner, err := g.directory.ResumeOwner(ctx, resumeID)
	if err != nil {
		return nil, err
	}

	if owner == companyID {
		content, err := g.directory.FetchResume(ctx, resumeID)
		if err != nil {
			return nil, err
		}
		acc, err := g.ledger.GetBalance(ctx, companyID)
		if err != nil {
			return nil, err
		}
		return &View{
			ResumeID:         resumeID,
			Content:          content,
			RemainingCredits: acc.RemainingCredits,
		}, nil
	}

	acc, err := g.ledger.Debit(ctx, companyID, g.viewCost, ledger.UsageRef{
		HRUser:      hrEmail,
		ResumeID:    resumeID,
		Description: fmt.Sprintf("Viewed global resume: %s", resumeID),
	})
	if err != nil {
		return nil, err
	}

	content, err := g.directory.FetchResume(ctx, resumeID)
	if err != nil {
		// Charged but nothing revealed: give the credit back.
		g.logger.Warn("resume fetch failed after debit, refunding",
			"resumeId", resumeID,
			"companyId", companyID,
			"error", err,
		)
		if _, rerr := g.ledger.Refund(ctx, companyID, g.viewCost, ledger.CreditRef{
			Description: fmt.Sprintf("Refund: resume reveal failed: %s", resumeID),
		}); rerr != nil {
			g.logger.Error("refund after failed reveal failed",
				"resumeId", resumeID,
				"companyId", companyID,
				"error", rerr,
			)
		}
		return nil, err
	}

	return &View{
		ResumeID:         resumeID,
		Content:          content,
		Charged:          true,
		CreditsSpent:     g.viewCost,
		RemainingCredits: acc.RemainingCredits,
	}, nil
}
