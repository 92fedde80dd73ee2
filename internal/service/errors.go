package service

import "errors"

var (
	ErrParameterInvalid   = errors.New("parameter invalid")
	ErrUserNotFound       = errors.New("user not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyClosed = errors.New("order is already closed")

	// ErrNoOrderForTrade means the candidate scan could not fill the
	// initiating order exactly. The continuation loop recovers from it by
	// trying the other side or stopping.
	ErrNoOrderForTrade = errors.New("no order for trade")

	// ErrCreditInsufficient is the placement-boundary form of the bank's
	// insufficient-credit outcome.
	ErrCreditInsufficient = errors.New("credit is insufficient")
)
