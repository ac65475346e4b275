package config

// Option configures the Config instance.
type Option func(*configImpl)

// WithProvider adds a configuration provider.
// Providers are loaded in order, with later providers overriding earlier ones.
func WithProvider(provider Provider) Option {
	return func(c *configImpl) {
		if provider != nil {
			c.providers = append(c.providers, provider)
		}
	}
}
