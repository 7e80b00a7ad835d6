package models

import "errors"

// Reasons a single listing is skipped. None of them abort a batch.
var (
	ErrMissingTitle     = errors.New("listing has no title")
	ErrMissingURL       = errors.New("listing has no url")
	ErrOutOfStock       = errors.New("listing is out of stock")
	ErrPlatformMismatch = errors.New("listing does not match platform filter")
)
