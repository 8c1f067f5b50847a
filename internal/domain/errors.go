package domain

import "errors"

var (
	// ErrInvalidAmount indicates a zero, negative or fractional amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientShares indicates a redemption larger than the holder's balance.
	ErrInsufficientShares = errors.New("insufficient shares")
	// ErrInsufficientAllowance indicates the investor has not approved the pull.
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	// ErrTransferFailed indicates the token ledger rejected a transfer.
	ErrTransferFailed = errors.New("transfer failed")
	// ErrUnknownAsset indicates a valuation for an asset with no registered primitive.
	ErrUnknownAsset = errors.New("unknown asset")
	// ErrStalePrice indicates a feed round older than the stale threshold.
	ErrStalePrice = errors.New("stale price")
	// ErrInvalidPrice indicates a feed round with a zero price.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrInvalidInput indicates a malformed registration batch or fund parameters.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAssetInUse indicates removing a primitive that a fund still values.
	ErrAssetInUse = errors.New("asset in use")
	// ErrZeroValue indicates a fund with outstanding shares but nothing of value.
	ErrZeroValue = errors.New("fund has shares but zero value")
	// ErrFundNotFound indicates an unknown fund id.
	ErrFundNotFound = errors.New("fund not found")
)
