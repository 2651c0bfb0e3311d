package types

import "errors"

var (
	// ErrEncoding is returned when a balance cannot be packed into the fixed
	// 256-bit voucher payload.
	ErrEncoding = errors.New("voucher encoding error")

	// ErrDecoding is returned for malformed wire data.
	ErrDecoding = errors.New("voucher decoding error")

	// ErrNoVoucher marks a voucher message with an empty balance field. It is
	// not a failure: the message simply carries no voucher.
	ErrNoVoucher = errors.New("no voucher present")

	// ErrInvalidSignature is returned when a voucher signature does not recover
	// to the claimed channel address.
	ErrInvalidSignature = errors.New("voucher signature verification failed")

	// ErrStaleVoucher is returned for a correctly signed voucher that does not
	// lower the remaining balance already held for the channel.
	ErrStaleVoucher = errors.New("stale voucher")

	// ErrBalanceOutOfRange is returned for a balance above the channel's
	// initial deposit.
	ErrBalanceOutOfRange = errors.New("balance exceeds channel deposit")

	// ErrSigning is returned when the signing capability declined or failed.
	ErrSigning = errors.New("voucher signing failed")
)
