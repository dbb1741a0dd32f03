package access

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirelens/payments/internal/ledger"
)

func newTestGate(t *testing.T) (*Gate, *MemoryDirectory, *ledger.Ledger) {
	t.Helper()

	dir := NewMemoryDirectory()
	dir.AddUser("hr@acme.com", "co_acme")
	dir.AddUser("hr@globex.com", "co_globex")
	dir.AddResume("resume_acme", "co_acme", json.RawMessage(`{"name":"Acme Candidate"}`))
	dir.AddResume("resume_globex", "co_globex", json.RawMessage(`{"name":"Globex Candidate"}`))

	ldg := ledger.New(ledger.NewMemoryStore())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewGate(dir, ldg, 1, logger), dir, ldg
}

func TestCheckAccess_OwnCompanyAlwaysFree(t *testing.T) {
	gate, _, _ := newTestGate(t)
	ctx := context.Background()

	// Zero balance; own-company resumes are still free.
	d, err := gate.CheckAccess(ctx, "resume_acme", "hr@acme.com")
	require.NoError(t, err)
	assert.True(t, d.CanView)
	assert.Equal(t, ReasonOwnCompany, d.Reason)
	assert.Equal(t, int64(0), d.CreditsRequired)
}

func TestCheckAccess_GlobalResumeNeedsCredit(t *testing.T) {
	gate, _, ldg := newTestGate(t)
	ctx := context.Background()

	d, err := gate.CheckAccess(ctx, "resume_globex", "hr@acme.com")
	require.NoError(t, err)
	assert.False(t, d.CanView)
	assert.Equal(t, ReasonInsufficientCredits, d.Reason)
	assert.Equal(t, int64(1), d.CreditsRequired)

	_, err = ldg.Credit(ctx, "co_acme", 50, ledger.CreditRef{Description: "starter pack"})
	require.NoError(t, err)

	d, err = gate.CheckAccess(ctx, "resume_globex", "hr@acme.com")
	require.NoError(t, err)
	assert.True(t, d.CanView)
	assert.Equal(t, ReasonSufficientCredits, d.Reason)
	assert.Equal(t, int64(50), d.RemainingCredits)
}

func TestViewResume_OwnCompanyNeverCharged(t *testing.T) {
	gate, _, ldg := newTestGate(t)
	ctx := context.Background()

	v, err := gate.ViewResume(ctx, "resume_acme", "hr@acme.com")
	require.NoError(t, err)
	assert.False(t, v.Charged)
	assert.JSONEq(t, `{"name":"Acme Candidate"}`, string(v.Content))

	txs, err := ldg.ListTransactions(ctx, "co_acme", 10)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestViewResume_GlobalViewDebitsOneCredit(t *testing.T) {
	gate, _, ldg := newTestGate(t)
	ctx := context.Background()

	_, err := ldg.Credit(ctx, "co_acme", 50, ledger.CreditRef{Description: "starter pack"})
	require.NoError(t, err)

	v, err := gate.ViewResume(ctx, "resume_globex", "hr@acme.com")
	require.NoError(t, err)
	assert.True(t, v.Charged)
	assert.Equal(t, int64(1), v.CreditsSpent)
	assert.Equal(t, int64(49), v.RemainingCredits)
	assert.JSONEq(t, `{"name":"Globex Candidate"}`, string(v.Content))

	txs, err := ldg.ListTransactions(ctx, "co_acme", 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, ledger.TypeUsage, txs[0].Type)
	assert.Equal(t, int64(-1), txs[0].Credits)
	assert.Equal(t, "hr@acme.com", txs[0].HRUser)
	assert.Equal(t, "resume_globex", txs[0].ResumeID)
}

func TestViewResume_ZeroBalanceDenied(t *testing.T) {
	gate, _, ldg := newTestGate(t)
	ctx := context.Background()

	_, err := gate.ViewResume(ctx, "resume_globex", "hr@acme.com")
	assert.ErrorIs(t, err, ledger.ErrInsufficientCredits)

	acc, err := ldg.GetBalance(ctx, "co_acme")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.RemainingCredits)
}

func TestViewResume_UnknownUserOrResume(t *testing.T) {
	gate, _, _ := newTestGate(t)
	ctx := context.Background()

	_, err := gate.ViewResume(ctx, "resume_acme", "nobody@nowhere.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = gate.ViewResume(ctx, "resume_ghost", "hr@acme.com")
	assert.ErrorIs(t, err, ErrResumeNotFound)
}

func TestViewResume_ConcurrentViewsLastCredit(t *testing.T) {
	gate, _, ldg := newTestGate(t)
	ctx := context.Background()

	_, err := ldg.Credit(ctx, "co_acme", 1, ledger.CreditRef{Description: "single credit"})
	require.NoError(t, err)

	// Two global views race for one remaining credit: exactly one reveal.
	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gate.ViewResume(ctx, "resume_globex", "hr@acme.com")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var revealed, denied int
	for err := range results {
		if err == nil {
			revealed++
		} else if assert.ErrorIs(t, err, ledger.ErrInsufficientCredits) {
			denied++
		}
	}
	assert.Equal(t, 1, revealed)
	assert.Equal(t, 1, denied)

	acc, err := ldg.GetBalance(ctx, "co_acme")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.RemainingCredits)
}

// fetchFailDirectory owns resumes but cannot serve their content, simulating
// a directory outage between the ownership check and the content fetch.
type fetchFailDirectory struct {
	*MemoryDirectory
}

func (d fetchFailDirectory) FetchResume(ctx context.Context, resumeID string) (json.RawMessage, error) {
	return nil, errors.New("directory returned 500")
}

func TestViewResume_RefundWhenRevealFails(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.AddUser("hr@acme.com", "co_acme")
	dir.AddResume("resume_globex", "co_globex", nil)

	ldg := ledger.New(ledger.NewMemoryStore())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := NewGate(fetchFailDirectory{dir}, ldg, 1, logger)
	ctx := context.Background()

	_, err := ldg.Credit(ctx, "co_acme", 10, ledger.CreditRef{Description: "pack"})
	require.NoError(t, err)

	_, err = gate.ViewResume(ctx, "resume_globex", "hr@acme.com")
	require.Error(t, err)

	// The debit happened and was refunded; net balance is unchanged and
	// both entries are on the log.
	acc, err := ldg.GetBalance(ctx, "co_acme")
	require.NoError(t, err)
	assert.Equal(t, int64(10), acc.RemainingCredits)

	txs, err := ldg.ListTransactions(ctx, "co_acme", 10)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, ledger.TypeRefund, txs[0].Type)
	assert.Equal(t, ledger.TypeUsage, txs[1].Type)
	assert.Equal(t, ledger.TypePurchase, txs[2].Type)
}
