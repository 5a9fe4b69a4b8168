package router

type Option func(m *Mux)

func WithMatcher(matcher func(pattern, topic string) bool) Option {
	return func(m *Mux) {
		if matcher != nil {
			m.routeMatch = matcher
		}
	}
}

// WithPatternValidator replaces the pattern check run by Add; nil disables it.
func WithPatternValidator(validate func(pattern string) error) Option {
	return func(m *Mux) {
		m.validate = validate
	}
}
