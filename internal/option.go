package internal

import "github.com/meowtion/sensor/internal/oracle"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	oracle oracle.Client
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithOracle overrides the oracle client. Used by tests to substitute a
// stub for the external model.
func WithOracle(c oracle.Client) Option {
	return func(a *application) {
		a.oracle = c
	}
}
