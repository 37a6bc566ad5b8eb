package source

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/tormoder/fit"

	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/pkg/logger"
)

var fitSports = map[fit.Sport]activity.Category{
	fit.SportCycling:  activity.Ride,
	fit.SportRunning:  activity.Run,
	fit.SportSwimming: activity.Swim,
	fit.SportTraining: activity.WeightTraining,
}

// fitColumns is the header of a table read from a FIT file. Distance is
// written to both distance columns.
var fitColumns = []string{
	activity.ColID,
	activity.ColDate,
	activity.ColType,
	activity.ColMovingTime,
	activity.ColDistance,
	activity.ColElevation,
	activity.ColAvgHeartRate,
	activity.ColMaxSpeed,
	activity.ColDistanceDup,
}

// ReadFIT reads the first session of a FIT activity file as one raw row.
// Sports without a category keep their FIT name and are dropped later by
// the normalizer.
func ReadFIT(ctx context.Context, r io.Reader, opts ...Option) (activity.RawTable, error) {
	o := newOptions(opts)

	decoded, err := fit.Decode(r)
	if err != nil {
		return activity.RawTable{}, fmt.Errorf("decode fit: %w", err)
	}
	af, err := decoded.Activity()
	if err != nil {
		return activity.RawTable{}, fmt.Errorf("fit activity: %w", err)
	}
	if len(af.Sessions) == 0 || af.Sessions[0] == nil {
		return activity.RawTable{}, ErrNoSession
	}
	s := af.Sessions[0]

	label := s.Sport.String()
	if c, ok := fitSports[s.Sport]; ok {
		label = string(c)
	}

	moving := s.GetTotalTimerTimeScaled()
	distance := formatFloat(s.GetTotalDistanceScaled())
	maxSpeed := s.GetEnhancedMaxSpeedScaled()
	if !valid(maxSpeed) {
		maxSpeed = s.GetMaxSpeedScaled()
	}

	var ascent, hr string
	if s.TotalAscent != 0xFFFF {
		ascent = strconv.Itoa(int(s.TotalAscent))
	}
	if s.AvgHeartRate != 0xFF && s.AvgHeartRate != 0 {
		hr = strconv.Itoa(int(s.AvgHeartRate))
	}

	start := s.StartTime.UTC()
	row := []string{
		strconv.FormatInt(start.Unix(), 10),
		start.Format("2006-01-02 15:04:05"),
		label,
		formatFloat(moving),
		distance,
		ascent,
		hr,
		formatFloat(maxSpeed),
		distance,
	}
	o.logger.Debug(ctx, "read fit session",
		logger.String("sport", label), logger.Float64("movingTime", moving))

	return activity.RawTable{Columns: append([]string(nil), fitColumns...), Rows: [][]string{row}}, nil
}

func valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func formatFloat(v float64) string {
	if !valid(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
