package enums

import (
	"fmt"
	"strings"
)

// PaymentStatus is an order's payment state as last reported by the gateway.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// paymentRank orders statuses by how far settlement has progressed. pending
// and failed share a rank so a retried attempt can move between them.
var paymentRank = map[PaymentStatus]int{
	PaymentStatusUnpaid:   0,
	PaymentStatusPending:  1,
	PaymentStatusFailed:   1,
	PaymentStatusPaid:     2,
	PaymentStatusRefunded: 3,
}

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool {
	_, ok := paymentRank[p]
	return ok
}

// Supersedes reports whether p may replace current on an order. Gateways
// deliver notifications out of order; a late "failed" must not undo "paid".
func (p PaymentStatus) Supersedes(current PaymentStatus) bool {
	next, ok := paymentRank[p]
	if !ok {
		return false
	}
	return next >= paymentRank[current]
}

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	p := PaymentStatus(strings.ToLower(strings.TrimSpace(value)))
	if !p.IsValid() {
		return "", fmt.Errorf("invalid payment status %q", value)
	}
	return p, nil
}
