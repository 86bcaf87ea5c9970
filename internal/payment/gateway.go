// Package payment holds the outbound payment gateway boundary: verification
// of a transaction by its reference, authenticated with a server-held secret.
package payment

import (
	"context"

	"github.com/go-faster/errors"
)

// StatusSuccess is the gateway's transaction status for a completed charge.
// Any other status is treated as not-paid.
const StatusSuccess = "success"

// ErrUnavailable is returned when the gateway cannot be reached or does not
// answer within the configured timeout. Orders stay in pending payment state
// on this path; the system never guesses success.
var ErrUnavailable = errors.New("payment gateway unavailable")

// Verification is the gateway's answer for a transaction reference.
type Verification struct {
	Reference        string
	Status           string
	AmountMinorUnits int64
}

// Gateway verifies transactions with the external payment provider.
type Gateway interface {
	VerifyTransaction(ctx context.Context, reference string) (*Verification, error)
}
