package internal

import (
	"io"

	"github.com/starford/cardsync/internal/syncer"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	version string
	fetcher syncer.Fetcher
	out     io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithFetcher replaces the CardDAV client, e.g. with a fixture source.
func WithFetcher(f syncer.Fetcher) Option {
	return func(a *application) {
		a.fetcher = f
	}
}

// WithOutput sets where command results are printed (default stdout).
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}
