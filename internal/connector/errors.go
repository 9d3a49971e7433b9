package connector

import (
	"errors"
	"fmt"
)

// Errors originating in the connector core.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrHandlerCreation is returned by New when the delegate handler factory
	// fails or returns no handler.
	ErrHandlerCreation = errors.New("connector: delegate handler creation failed")

	// ErrTLSConfiguration is returned when the TLS context cannot be built from
	// the credential files (missing, unreadable, malformed or mismatched).
	ErrTLSConfiguration = errors.New("connector: tls configuration error")

	// ErrIncompleteClientCredentials is returned in strict mode when only one
	// of the client certificate and key is supplied. It matches
	// ErrTLSConfiguration as well.
	ErrIncompleteClientCredentials = fmt.Errorf("%w: client certificate and private key must be supplied together", ErrTLSConfiguration)

	// ErrInvalidTransition is returned when an attempt is moved to a state
	// that does not follow its current one.
	ErrInvalidTransition = errors.New("connector: invalid attempt state transition")
)
