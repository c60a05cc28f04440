package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrPriceTooLow       = errors.New("price below minimum")
	ErrPriceInvalid      = errors.New("price is not a valid amount")
	ErrAlreadyListed     = errors.New("token already listed")
	ErrNotApproved       = errors.New("marketplace not approved")
	ErrInsufficientFunds = errors.New("insufficient balance for purchase + gas")
	ErrWrongNetwork      = errors.New("wallet connected to wrong network")
	ErrOperationInFlight = errors.New("operation already in flight")
	ErrNoOperation       = errors.New("no operation to act on")
	ErrSigningFailed     = errors.New("signing failed")
	ErrNotRunning        = errors.New("orchestrator not running")
	ErrLockHeld          = errors.New("lock already held")
)
