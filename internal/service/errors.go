package service

import "fmt"

// ValidationError is returned for malformed input: a non-positive quantity,
// an unknown alert condition or a non-positive target price
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError is returned for a ticker that is not in the catalog
type NotFoundError struct {
	Ticker string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("instrument %s not found", e.Ticker)
}

// InsufficientFundsError is returned when the balance doesn't cover a buy
type InsufficientFundsError struct {
	Cost      float64
	Balance   float64
	Shortfall float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("not enough money: cost %.2f, balance %.2f, need %.2f more", e.Cost, e.Balance, e.Shortfall)
}

// InsufficientHoldingsError is returned when a sell asks for more than is held
type InsufficientHoldingsError struct {
	Ticker    string
	Requested int64
	Held      int64
}

func (e *InsufficientHoldingsError) Error() string {
	return fmt.Sprintf("not enough %s: requested %d, held %d", e.Ticker, e.Requested, e.Held)
}
