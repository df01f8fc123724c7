// README: Checkout line items and the computed quote.
package pricing

type Line struct {
	ProductID string
	Qty       int
	Price     int64 // minor currency unit per piece
}

type Quote struct {
	Subtotal    int64
	DeliveryFee int64
	Discount    int64
	Total       int64
	Currency    string
	Breakdown   map[string]int64
}
