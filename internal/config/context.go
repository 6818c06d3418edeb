package config

import "context"

type contextKey struct{}

// IntoContext stores the loaded configuration in the context.
func IntoContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext returns the configuration stored in the context, or the
// zero configuration when none was stored.
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(contextKey{}).(*Config); ok {
		return cfg
	}
	return &Config{}
}
