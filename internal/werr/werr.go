// Package werr defines the crawler's sentinel error taxonomy.
package werr

import "errors"

// Sentinel errors. Component code wraps these with fmt.Errorf("%w: ...", Err...)
// so callers can classify failures with errors.Is while still getting a
// human-readable message.
var (
	// ErrInit marks a fatal initialization failure: the process cannot start.
	ErrInit = errors.New("initialization failed")

	// ErrTransport marks a per-request transport failure (connect, TLS
	// handshake, protocol, DNS).
	ErrTransport = errors.New("transport error")

	// ErrTimeout marks a per-request deadline exceeded.
	ErrTimeout = errors.New("request timeout")

	// ErrHTTPStatus marks a non-2xx HTTP response.
	ErrHTTPStatus = errors.New("non-2xx http status")

	// ErrBodyTooLarge marks a response body that exceeded its configured
	// cap; the transfer is aborted mid-read rather than fully buffered.
	ErrBodyTooLarge = errors.New("response body exceeded max size")

	// ErrExtract marks a link-extraction failure (malformed document, a
	// regex that failed to compile). Callers degrade to zero links rather
	// than propagating this.
	ErrExtract = errors.New("link extraction failed")

	// ErrCookieParse marks a dropped Set-Cookie header.
	ErrCookieParse = errors.New("cookie parse failed")
)
