package widget

import "errors"

// Validation errors
var (
	ErrEmptyID              = errors.New("empty id")
	ErrEmptySlug            = errors.New("empty slug")
	ErrInvalidSlug          = errors.New("invalid slug")
	ErrEmptyName            = errors.New("empty name")
	ErrEmptySourceCode      = errors.New("empty source code")
	ErrMissingServerCode    = errors.New("server code enabled but not present")
	ErrInvalidFetchType     = errors.New("invalid fetch type")
	ErrInvalidCredentialType = errors.New("invalid credential type")
	ErrInvalidValue         = errors.New("invalid value")
	ErrInvalidErrorPolicy   = errors.New("invalid on_error policy")
)

// Reference errors
var (
	ErrDefinitionNotFound = errors.New("widget definition not found")
	ErrInstanceNotFound   = errors.New("widget instance not found")
)

// Schema errors
var (
	ErrSchemaMismatch = errors.New("data does not match schema")
)
