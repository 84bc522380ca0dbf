package registry

import "errors"

var (
	// ErrDiscoveryUnavailable reports that the remote catalog could not be
	// reached (or returned nothing) and the static catalog is in use.
	ErrDiscoveryUnavailable = errors.New("model discovery unavailable")

	// ErrUnknownModel is returned by lookups for a name the registry does not hold.
	ErrUnknownModel = errors.New("unknown model")
)
