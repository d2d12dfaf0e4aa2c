package fedi

import "errors"

var (
	ErrInvalidDomain = errors.New("invalid domain name")
	ErrNotWritable   = errors.New("destination is not writable")
	ErrNoInstances   = errors.New("no instances for testing")
	ErrNoLocalIPv6   = errors.New("local host does not support ipv6")

	// Fetch layer specific
	ErrBadURL           = errors.New("malformed url")
	ErrDecode           = errors.New("response body is not valid utf-8")
	ErrRetriesExhausted = errors.New("fetch retries exhausted")
)
