package service

import (
	"errors"
	"fmt"
)

var (
	ErrMissingIdentity = errors.New("missing identity")
	ErrUnknownIdentity = errors.New("unknown identity")

	ErrUnknownItem       = errors.New("unknown item")
	ErrMalformedQuantity = errors.New("malformed quantity")
	ErrQuantityTooHigh   = errors.New("quantity too high")
	ErrEmptyOrder        = errors.New("empty order")
)

// StoreError reports a failure of the order store. Err carries the driver
// detail that is returned to clients.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
