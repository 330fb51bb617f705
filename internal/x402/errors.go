package x402

import "errors"

var (
	ErrFacilitatorUnavailable = errors.New("payment facilitator unavailable")
	ErrFacilitatorTimeout     = errors.New("payment facilitator timeout")
	ErrFacilitatorRejected    = errors.New("payment rejected by facilitator")

	ErrPaymentExpired   = errors.New("payment authorization expired")
	ErrAmountMismatch   = errors.New("payment amount does not match required amount")
	ErrRecipientMismatch = errors.New("payment recipient does not match required recipient")
	ErrNetworkMismatch  = errors.New("payment network does not match required network")
	ErrSchemeMismatch   = errors.New("payment scheme does not match required scheme")
	ErrAssetMismatch    = errors.New("payment asset does not match required asset")
)
