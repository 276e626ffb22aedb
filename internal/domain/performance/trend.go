package performance

import (
	"sort"
	"time"
)

// Trend classifies the direction of an athlete's estimate series.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendPlateau   Trend = "plateau"
	TrendDeclining Trend = "declining"
)

// DefaultTrendWindow is the number of most-recent estimates regressed for
// trend classification.
const DefaultTrendWindow = 8

// plateauTolerance is the absolute VDOT-per-week slope magnitude treated as
// flat.
const plateauTolerance = 0.15

// Estimate is one dated VDOT estimate with its source event and derived
// paces. The latest estimate is authoritative for pace prescriptions.
type Estimate struct {
	AthleteID      string        `json:"athlete_id" db:"athlete_id"`
	Date           time.Time     `json:"date" db:"date"`
	VDOT           float64       `json:"vdot" db:"vdot"`
	DistanceMeters float64       `json:"distance_meters" db:"distance_meters"`
	Duration       time.Duration `json:"duration" db:"duration"`
	Paces          Paces         `json:"paces"`
}

// NewEstimate computes the estimate for a race or time-trial result.
func NewEstimate(athleteID string, date time.Time, distanceMeters float64, duration time.Duration) (Estimate, error) {
	vdot, err := VDOT(distanceMeters, duration)
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{
		AthleteID:      athleteID,
		Date:           date.UTC(),
		VDOT:           vdot,
		DistanceMeters: distanceMeters,
		Duration:       duration,
		Paces:          PacesFor(vdot),
	}, nil
}

// Summary is the per-athlete performance read model.
type Summary struct {
	AthleteID          string     `json:"athlete_id"`
	Current            float64    `json:"current_vdot"`
	Peak               float64    `json:"peak_vdot"`
	Trend              Trend      `json:"trend"`
	ImprovementPer30d  float64    `json:"improvement_per_30d"`
	Estimates          []Estimate `json:"estimates"`
	HasData            bool       `json:"has_data"`
}

// Summarize orders the estimates by date and classifies the trend over the
// last window points via the sign and magnitude of a least-squares slope.
func Summarize(athleteID string, estimates []Estimate, window int) Summary {
	s := Summary{AthleteID: athleteID, Trend: TrendPlateau}
	if len(estimates) == 0 {
		return s
	}
	if window <= 1 {
		window = DefaultTrendWindow
	}

	ordered := make([]Estimate, len(estimates))
	copy(ordered, estimates)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })

	s.HasData = true
	s.Estimates = ordered
	s.Current = ordered[len(ordered)-1].VDOT
	for _, e := range ordered {
		if e.VDOT > s.Peak {
			s.Peak = e.VDOT
		}
	}

	recent := ordered
	if len(ordered) > window {
		recent = ordered[len(ordered)-window:]
	}
	slopePerDay := regressionSlope(recent)
	s.ImprovementPer30d = slopePerDay * 30

	switch weekly := slopePerDay * 7; {
	case weekly > plateauTolerance:
		s.Trend = TrendImproving
	case weekly < -plateauTolerance:
		s.Trend = TrendDeclining
	default:
		s.Trend = TrendPlateau
	}
	return s
}

// regressionSlope fits VDOT against days-since-first and returns the slope
// in VDOT per day. Fewer than two points (or zero time spread) is flat.
func regressionSlope(estimates []Estimate) float64 {
	if len(estimates) < 2 {
		return 0
	}
	origin := estimates[0].Date
	n := float64(len(estimates))
	var sumX, sumY, sumXY, sumXX float64
	for _, e := range estimates {
		x := e.Date.Sub(origin).Hours() / 24
		y := e.VDOT
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
