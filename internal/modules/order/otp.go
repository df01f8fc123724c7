// README: Delivery OTP generation and verification.
package order

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"math/big"

	"freshcart/internal/types"
)

const otpSpace = 10000

// NewOTP draws a uniform code in [0, 9999] formatted as four digits.
func NewOTP(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	n, err := rand.Int(r, big.NewInt(otpSpace))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

func validOTPFormat(code string) bool {
	if len(code) != 4 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// OTPVerifier issues and checks delivery codes. It never consumes a code;
// consumption happens inside Service.ConfirmDelivery together with the
// transition to delivered.
type OTPVerifier struct {
	store Repository
	rand  io.Reader
}

func NewOTPVerifier(store Repository, r io.Reader) *OTPVerifier {
	return &OTPVerifier{store: store, rand: r}
}

// Issue regenerates the code of an order waiting at the destination.
func (v *OTPVerifier) Issue(ctx context.Context, orderID types.ID) (string, error) {
	o, err := v.store.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	if o.Status != StatusReachedDestination {
		return "", ErrInvalidTransition
	}
	code, err := NewOTP(v.rand)
	if err != nil {
		return "", err
	}
	ok, err := v.store.SetOTP(ctx, orderID, code)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrInvalidTransition
	}
	return code, nil
}

func (v *OTPVerifier) Verify(ctx context.Context, orderID types.ID, candidate string) (bool, error) {
	o, err := v.store.Get(ctx, orderID)
	if err != nil {
		return false, err
	}
	if o.Status != StatusReachedDestination || o.DeliveryOTP == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(o.DeliveryOTP), []byte(candidate)) == 1, nil
}
