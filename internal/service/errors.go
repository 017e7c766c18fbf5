package service

import "errors"

var (
	// ErrInvalidRequest marks caller input that can never succeed as sent.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRender is returned when the QR image cannot be produced.
	ErrRender = errors.New("qr render failed")
	// ErrCodeInactive is returned when an image is requested for a code that
	// was deactivated or has expired.
	ErrCodeInactive = errors.New("qr code is no longer active")
)
