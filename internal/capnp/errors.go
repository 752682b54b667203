package capnp

import "errors"

var (
	// ErrUnsupportedScheme reports a document URI that is not a local file.
	ErrUnsupportedScheme = errors.New("unsupported document reference")
	// ErrNonTextPath reports a document path that is not valid UTF-8.
	ErrNonTextPath = errors.New("non-representable path")
	// ErrInvalidOutput reports compiler stderr that is not valid UTF-8.
	ErrInvalidOutput = errors.New("compiler output is not valid UTF-8")
	// ErrTimeout reports a compiler run killed after Options.Timeout.
	ErrTimeout = errors.New("compiler timed out")
)
