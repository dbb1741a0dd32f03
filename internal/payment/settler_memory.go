package payment

import (
	"context"
	"errors"

	"github.com/hirelens/payments/internal/ledger"
	"github.com/hirelens/payments/internal/order"
)

// MemorySettler settles orders against in-memory stores (demo mode, tests).
//
// The order store's pending -> verified transition is the commit point: it is
// a compare-and-swap, so of two racing callbacks exactly one proceeds to the
// credit grant and the other sees ErrAlreadySettled.
type MemorySettler struct {
	orders order.Store
	ledger ledger.Store
}

// NewMemorySettler creates a settler over in-memory stores.
func NewMemorySettler(orders order.Store, ldg ledger.Store) *MemorySettler {
	return &MemorySettler{orders: orders, ledger: ldg}
}

func (s *MemorySettler) Settle(ctx context.Context, o *order.Order, gatewayPaymentID, description string) (*ledger.Account, *ledger.Transaction, error) {
	if err := s.orders.MarkVerified(ctx, o.ID, gatewayPaymentID); err != nil {
		if errors.Is(err, order.ErrOrderNotPending) {
			return nil, nil, ErrAlreadySettled
		}
		return nil, nil, err
	}

	return s.ledger.Credit(ctx, o.CompanyID, o.Credits, ledger.TypePurchase, ledger.CreditRef{
		PaymentReference: o.PaymentRef,
		Description:      description,
	})
}
