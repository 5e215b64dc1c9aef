package config

import "errors"

var (
	ErrFailedToLoadConfig     = errors.New("failed to load config")
	ErrFailedToValidateConfig = errors.New("failed to validate config")

	ErrMissingListenAddr   = errors.New("missing listen address")
	ErrMissingDatabasePath = errors.New("missing database path")
	ErrInvalidTimeout      = errors.New("invalid timeout")
	ErrInvalidCacheDir     = errors.New("invalid cache dir")
	ErrInvalidWebhookURL   = errors.New("invalid webhook url")
)
