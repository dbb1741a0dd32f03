// Package payment bridges the Razorpay gateway and verifies its callbacks.
//
// Order creation goes out through the Gateway interface; the hosted checkout
// calls back with {razorpay_payment_id, razorpay_order_id, razorpay_signature}
// which the Verifier checks against the pending order before the Settler
// commits the credit grant. The key secret never leaves this package.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	razorpay "github.com/razorpay/razorpay-go"

	"github.com/hirelens/payments/internal/order"
)

// RazorpayGateway opens orders with the live Razorpay API.
type RazorpayGateway struct {
	client *razorpay.Client
}

// NewRazorpayGateway creates a gateway bound to a Razorpay key pair.
func NewRazorpayGateway(keyID, keySecret string) *RazorpayGateway {
	return &RazorpayGateway{client: razorpay.NewClient(keyID, keySecret)}
}

// CreateOrder opens a gateway order and returns Razorpay's order id.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (string, error) {
	body, err := g.client.Order.Create(map[string]interface{}{
		"amount":   amountMinor,
		"currency": currency,
		"receipt":  receipt,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("razorpay order create: %w", err)
	}

	id, ok := body["id"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("razorpay order create: response missing order id")
	}
	return id, nil
}

// FakeGateway is a deterministic gateway for demo mode and tests. It never
// talks to Razorpay; Sign produces the callback signature the verifier
// expects, so the whole checkout flow is exercisable offline.
type FakeGateway struct {
	secret string
	seq    atomic.Int64
}

// NewFakeGateway creates a fake gateway signing with the given secret.
func NewFakeGateway(secret string) *FakeGateway {
	return &FakeGateway{secret: secret}
}

func (g *FakeGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (string, error) {
	return fmt.Sprintf("order_fake_%06d", g.seq.Add(1)), nil
}

// Sign computes the callback signature for a fake checkout completion.
func (g *FakeGateway) Sign(gatewayOrderID, gatewayPaymentID string) string {
	return signature(g.secret, gatewayOrderID, gatewayPaymentID)
}

// signature is the Razorpay checkout signature scheme: hex HMAC-SHA256 over
// "<order_id>|<payment_id>" with the key secret.
func signature(secret, gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// signatureValid compares a presented signature in constant time.
func signatureValid(secret, gatewayOrderID, gatewayPaymentID, presented string) bool {
	expected := signature(secret, gatewayOrderID, gatewayPaymentID)
	return hmac.Equal([]byte(expected), []byte(presented))
}

var _ order.Gateway = (*RazorpayGateway)(nil)
var _ order.Gateway = (*FakeGateway)(nil)
