package pipeline

import (
	"time"

	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/internal/domain/aggregate"
	"github.com/okian/stride/internal/domain/load"
	"github.com/okian/stride/internal/domain/smoothing"
	"github.com/okian/stride/pkg/logger"
)

// Options tunes a pipeline run. Zero values fall back to the defaults.
type Options struct {
	// Range restricts the run to an inclusive date range. When it is zero
	// and DefaultStart is set, the range runs from the later of
	// DefaultStart and the first activity to the last activity.
	Range        activity.DateRange
	DefaultStart time.Time

	Categories       []activity.Category
	HRFillWindow     int
	RollingWindow    int
	TopN             int
	CTLSpan          int
	ATLSpan          int
	NeutralIntensity float64

	Logger logger.Logger
}

// DefaultTopN is the ranking length.
const DefaultTopN = 5

func (o Options) withDefaults() Options {
	if o.HRFillWindow <= 0 {
		o.HRFillWindow = smoothing.DefaultWindow
	}
	if o.RollingWindow <= 0 {
		o.RollingWindow = aggregate.DefaultRollingWindow
	}
	if o.TopN <= 0 {
		o.TopN = DefaultTopN
	}
	if o.CTLSpan <= 0 {
		o.CTLSpan = load.DefaultCTLSpan
	}
	if o.ATLSpan <= 0 {
		o.ATLSpan = load.DefaultATLSpan
	}
	if o.NeutralIntensity <= 0 {
		o.NeutralIntensity = load.DefaultNeutralIntensity
	}
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	return o
}
