package load

// Option configures the load model.
type Option func(*model)

// WithSpans sets the fitness and fatigue spans.
func WithSpans(ctl, atl int) Option {
	return func(m *model) {
		if ctl > 0 {
			m.ctlSpan = ctl
		}
		if atl > 0 {
			m.atlSpan = atl
		}
	}
}

// WithNeutralIntensity sets the factor used for rows without intensity.
func WithNeutralIntensity(v float64) Option {
	return func(m *model) {
		if v > 0 {
			m.neutral = v
		}
	}
}
