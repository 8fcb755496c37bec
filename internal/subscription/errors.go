package subscription

import "errors"

var (
	ErrPaymentFailed       = errors.New("payment failed")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInsufficientCustody = errors.New("insufficient custody balance")
	// ErrNotEligible is benign: the candidate was stale or already renewed.
	ErrNotEligible = errors.New("not eligible for renewal")

	ErrInvalidConfig      = errors.New("invalid ledger config")
	ErrInvalidAmount      = errors.New("amount must be a positive integer")
	ErrInvalidAccount     = errors.New("invalid account")
	ErrInvalidPerformData = errors.New("invalid perform data")
	ErrExpiryOverflow     = errors.New("expiry overflows timestamp range")
	ErrInvalidCursor      = errors.New("invalid candidate cursor")
)
