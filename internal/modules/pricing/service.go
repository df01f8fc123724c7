// README: Pricing service computes checkout totals (items + delivery fee - discount).
package pricing

import (
	"context"
	"errors"
	"fmt"

	"freshcart/internal/config"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrInvalidPrice    = errors.New("price must not be negative")
	ErrInvalidDiscount = errors.New("discount must be between 0 and the order value")
)

type Service struct {
	cfg config.PricingConfig
}

func NewService(cfg config.PricingConfig) *Service {
	return &Service{cfg: cfg}
}

func (s *Service) DeliveryFee() int64 {
	return s.cfg.DeliveryFee
}

// Quote computes the order total. The result is what gets frozen onto the
// order at creation; nothing recomputes it afterwards.
func (s *Service) Quote(ctx context.Context, lines []Line, discount int64) (Quote, error) {
	return QuoteWithFee(lines, s.cfg.DeliveryFee, discount, s.cfg.Currency)
}

func QuoteWithFee(lines []Line, deliveryFee, discount int64, currency string) (Quote, error) {
	if len(lines) == 0 {
		return Quote{}, ErrEmptyCart
	}
	var subtotal int64
	for i, l := range lines {
		if l.Qty < 1 {
			return Quote{}, fmt.Errorf("line %d (%s): %w", i, l.ProductID, ErrInvalidQuantity)
		}
		if l.Price < 0 {
			return Quote{}, fmt.Errorf("line %d (%s): %w", i, l.ProductID, ErrInvalidPrice)
		}
		subtotal += l.Price * int64(l.Qty)
	}
	if deliveryFee < 0 {
		deliveryFee = 0
	}
	if discount < 0 || discount > subtotal+deliveryFee {
		return Quote{}, ErrInvalidDiscount
	}
	total := subtotal + deliveryFee - discount
	return Quote{
		Subtotal:    subtotal,
		DeliveryFee: deliveryFee,
		Discount:    discount,
		Total:       total,
		Currency:    currency,
		Breakdown: map[string]int64{
			"items":        subtotal,
			"delivery_fee": deliveryFee,
			"discount":     -discount,
		},
	}, nil
}
