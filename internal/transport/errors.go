package transport

import "errors"

// Errors returned by the transport package.
var (
	// ErrInvalidOption is reported by DialBootstrap for an unknown option key
	// or a value of the wrong type.
	ErrInvalidOption = errors.New("transport: invalid option")

	// ErrUnknownTransport is returned by NewFromConfig for an unsupported
	// transport type.
	ErrUnknownTransport = errors.New("transport: unknown transport type")
)
