package passwords

import "errors"

var (
	// ErrUnknownAlgorithm is returned for hashes whose algorithm is not in the configured chain.
	ErrUnknownAlgorithm = errors.New("unknown password hashing algorithm")
	// ErrUnknownHasher is returned when the chain is configured with an unsupported hasher name.
	ErrUnknownHasher = errors.New("unknown password hasher")
	// ErrEmptyChain is returned when no hasher is configured.
	ErrEmptyChain = errors.New("at least one password hasher is required")
	// ErrUnknownValidator is returned for unsupported validator names.
	ErrUnknownValidator = errors.New("unknown password validator")
)
