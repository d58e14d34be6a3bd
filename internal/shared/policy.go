package shared

// Policy decides whether the detail of a sensitive error may be exposed.
// It is a plain value derived from build or startup configuration and
// holds no per-request state.
type Policy struct {
	// Trusted is set when the consumer is the server itself (logs,
	// in-process callers).
	Trusted bool
	// Development is set for development builds and environments.
	Development bool
}

// ShowSensitive reports whether sensitive detail may be exposed.
func (p Policy) ShowSensitive() bool {
	return p.Trusted || p.Development
}

// DefaultPolicy returns the policy fixed at build time: trusted unless
// built with the verily_client tag, development when built with dev.
func DefaultPolicy() Policy {
	return Policy{Trusted: trustedContext, Development: developmentBuild}
}

// ClientPolicy returns the policy for an untrusted consumer such as an
// HTTP response body.
func ClientPolicy(development bool) Policy {
	return Policy{Development: development || developmentBuild}
}

// ShouldShowSensitiveErrors reports whether this build may expose the
// detail of sensitive errors. It is the gate consulted by every
// package-level conversion in this package.
func ShouldShowSensitiveErrors() bool {
	return DefaultPolicy().ShowSensitive()
}
