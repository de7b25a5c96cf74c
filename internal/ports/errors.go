package ports

import "errors"

// Sentinels collaborators return so callers can classify failures without string matching.
var (
	// ErrMarketNotFound the exchange cannot resolve the symbol or market index.
	ErrMarketNotFound = errors.New("market not found")
	// ErrAccountNotFound the authority has no margin account on the exchange.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists creation was requested for an authority that already has an account.
	ErrAccountExists = errors.New("account already exists")
	// ErrInsufficientFunds the funding token account cannot cover the deposit.
	ErrInsufficientFunds = errors.New("insufficient funds")
)
