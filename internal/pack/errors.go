package pack

import "errors"

var (
	// ErrInvalidMarker rejects strings that do not start with a known
	// package marker.
	ErrInvalidMarker = errors.New("not a widget package: missing or unknown marker")
	// ErrUnsupportedVersion rejects markers from a future format version.
	ErrUnsupportedVersion = errors.New("unsupported package format version")
	// ErrMalformedPayload rejects packages whose payload fails to decode.
	ErrMalformedPayload = errors.New("malformed package payload")
	// ErrMissingField rejects structurally incomplete packages.
	ErrMissingField = errors.New("package missing required field")

	// ErrUnknownPolicy rejects an import with an unrecognized conflict policy.
	ErrUnknownPolicy = errors.New("unknown import conflict policy")
)
