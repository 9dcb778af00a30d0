package bootstrap

// Option configures Setup's behavior for binaries that don't need every
// component — e.g. the submit CLI has no need for the broker.
type Option func(*options)

type options struct {
	skipCold   bool
	skipRedis  bool
	skipBroker bool
}

// WithoutColdStore skips the Postgres pool, for binaries that only touch
// Redis.
func WithoutColdStore() Option {
	return func(o *options) { o.skipCold = true }
}

// WithoutBroker skips constructing the RedisBroker, for binaries that only
// need the hot store (e.g. a maintenance CLI).
func WithoutBroker() Option {
	return func(o *options) { o.skipBroker = true }
}

func defaultOptions() *options {
	return &options{}
}
