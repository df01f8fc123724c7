package pricing

import (
	"context"
	"errors"
	"testing"

	"freshcart/internal/config"
)

func TestService_Quote(t *testing.T) {
	tests := []struct {
		name      string
		lines     []Line
		discount  int64
		wantTotal int64
		wantErr   error
	}{
		{
			name:      "single line with delivery fee",
			lines:     []Line{{ProductID: "milk", Qty: 2, Price: 100}},
			wantTotal: 225, // 2*100 + 25
		},
		{
			name: "multiple lines",
			lines: []Line{
				{ProductID: "rice", Qty: 1, Price: 540},
				{ProductID: "dal", Qty: 3, Price: 120},
			},
			wantTotal: 540 + 360 + 25,
		},
		{
			name:      "discount applied",
			lines:     []Line{{ProductID: "eggs", Qty: 1, Price: 90}},
			discount:  15,
			wantTotal: 90 + 25 - 15,
		},
		{
			name:      "discount may cover everything",
			lines:     []Line{{ProductID: "eggs", Qty: 1, Price: 90}},
			discount:  115,
			wantTotal: 0,
		},
		{
			name:    "empty cart",
			wantErr: ErrEmptyCart,
		},
		{
			name:    "zero quantity",
			lines:   []Line{{ProductID: "milk", Qty: 0, Price: 100}},
			wantErr: ErrInvalidQuantity,
		},
		{
			name:    "negative price",
			lines:   []Line{{ProductID: "milk", Qty: 1, Price: -1}},
			wantErr: ErrInvalidPrice,
		},
		{
			name:     "discount larger than order",
			lines:    []Line{{ProductID: "milk", Qty: 1, Price: 10}},
			discount: 100,
			wantErr:  ErrInvalidDiscount,
		},
	}

	s := NewService(config.PricingConfig{DeliveryFee: 25, Currency: "INR"})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Quote(context.Background(), tt.lines, tt.discount)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Quote() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Quote() error = %v", err)
			}
			if got.Total != tt.wantTotal {
				t.Errorf("Quote() total = %d, want %d", got.Total, tt.wantTotal)
			}
			if got.Currency != "INR" {
				t.Errorf("Quote() currency = %q, want INR", got.Currency)
			}
		})
	}
}
