package fetcher

import "errors"

// Error taxonomy entries (§7) that originate at the transport layer.
// Callers should use errors.Is against these sentinels.
var (
	ErrNetwork          = errors.New("network error")
	ErrTimeout           = errors.New("timeout exceeded")
	ErrTooManyRedirects  = errors.New("too many redirects")
	ErrBodyTooLarge      = errors.New("response body exceeds maximum size")
)
