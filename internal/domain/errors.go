package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrSameAccount       = errors.New("source and destination accounts are the same")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAccountID  = errors.New("invalid account id")
)
