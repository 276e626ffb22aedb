package load

import "math"

// RiskLevel bands monotony/strain exposure for the training-load summary.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// Thresholds holds the fixed banding and window constants for load analysis.
type Thresholds struct {
	MonotonyWindowDays int     `yaml:"monotony_window_days"` // rolling window for monotony/strain
	AcuteDays          int     `yaml:"acute_days"`           // ACR numerator window
	ChronicDays        int     `yaml:"chronic_days"`         // ACR denominator window
	MinSessions        int     `yaml:"min_sessions"`         // below this, has_data=false
	MonotonyModerate   float64 `yaml:"monotony_moderate"`
	MonotonyHigh       float64 `yaml:"monotony_high"`
	StrainModerate     float64 `yaml:"strain_moderate"`
	StrainHigh         float64 `yaml:"strain_high"`
	MonotonyCap        float64 `yaml:"monotony_cap"` // reported when stdev ~ 0 with nonzero load
}

// DefaultThresholds returns the production banding constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MonotonyWindowDays: 7,
		AcuteDays:          7,
		ChronicDays:        28,
		MinSessions:        3,
		MonotonyModerate:   1.8,
		MonotonyHigh:       2.5,
		StrainModerate:     5000.0,
		StrainHigh:         8000.0,
		MonotonyCap:        10.0,
	}
}

// Summary is the per-athlete training-load read model.
type Summary struct {
	AthleteID        string    `json:"athlete_id"`
	WindowDays       int       `json:"window_days"`
	SessionCount     int       `json:"session_count"`
	TotalLoad        float64   `json:"total_load"`
	TotalDurationMin float64   `json:"total_duration_min"`
	TotalDistanceKM  float64   `json:"total_distance_km"`
	ACR              float64   `json:"acr"`
	ACRValid         bool      `json:"acr_valid"`
	Monotony         float64   `json:"monotony"`
	MonotonyValid    bool      `json:"monotony_valid"`
	Strain           float64   `json:"strain"`
	RiskLevel        RiskLevel `json:"risk_level"`
	HasData          bool      `json:"has_data"`
}

// Mean returns the arithmetic mean of series, 0 for an empty slice.
func Mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

// Stdev returns the population standard deviation of series.
func Stdev(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	mean := Mean(series)
	ss := 0.0
	for _, v := range series {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(series)))
}

// Monotony computes Foster monotony (mean/stdev) over window. A near-zero
// stdev with nonzero training is maximally monotonous and is reported as the
// configured cap rather than dividing toward infinity; a silent window
// reports invalid.
func Monotony(window []float64, th Thresholds) (float64, bool) {
	if len(window) == 0 {
		return 0, false
	}
	mean := Mean(window)
	sd := Stdev(window)
	if sd < 1e-9 {
		if mean < 1e-9 {
			return 0, false
		}
		return th.MonotonyCap, true
	}
	m := mean / sd
	if m > th.MonotonyCap {
		m = th.MonotonyCap
	}
	return m, true
}

// Strain is monotony × total load over the same window, 0 when monotony is
// undefined.
func Strain(window []float64, th Thresholds) float64 {
	m, ok := Monotony(window, th)
	if !ok {
		return 0
	}
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	return m * sum
}

// ACR computes the acute:chronic ratio: mean load over the acute window
// divided by mean load over the chronic window. It is undefined (0, false)
// with fewer than a full acute window of history or a zero chronic mean.
func ACR(series []float64, th Thresholds) (float64, bool) {
	if len(series) < th.AcuteDays {
		return 0, false
	}
	acute := series[len(series)-th.AcuteDays:]
	chronicStart := len(series) - th.ChronicDays
	if chronicStart < 0 {
		chronicStart = 0
	}
	chronic := series[chronicStart:]

	chronicMean := Mean(chronic)
	if chronicMean < 1e-9 {
		return 0, false
	}
	return Mean(acute) / chronicMean, true
}

// BandRisk applies the fixed monotony/strain threshold function.
func BandRisk(monotony float64, monotonyValid bool, strain float64, th Thresholds) RiskLevel {
	if !monotonyValid {
		return RiskLow
	}
	if monotony >= th.MonotonyHigh || strain >= th.StrainHigh {
		return RiskHigh
	}
	if monotony >= th.MonotonyModerate || strain >= th.StrainModerate {
		return RiskModerate
	}
	return RiskLow
}

// Summarize builds the training-load read model from an athlete's logged
// loads and the gap-filled day series ending at the evaluation day. Fewer
// than MinSessions logged sessions reports HasData=false instead of
// misleading zeros.
func Summarize(athleteID string, loads []DailyLoad, series []float64, th Thresholds) Summary {
	s := Summary{
		AthleteID:  athleteID,
		WindowDays: th.MonotonyWindowDays,
	}
	for _, l := range loads {
		s.SessionCount++
		s.TotalLoad += l.LoadScore
		s.TotalDurationMin += l.DurationMin
		s.TotalDistanceKM += l.DistanceKM
	}

	if s.SessionCount < th.MinSessions {
		s.RiskLevel = RiskLow
		return s
	}
	s.HasData = true

	window := series
	if len(series) > th.MonotonyWindowDays {
		window = series[len(series)-th.MonotonyWindowDays:]
	}
	s.Monotony, s.MonotonyValid = Monotony(window, th)
	s.Strain = Strain(window, th)
	s.ACR, s.ACRValid = ACR(series, th)
	s.RiskLevel = BandRisk(s.Monotony, s.MonotonyValid, s.Strain, th)
	return s
}
