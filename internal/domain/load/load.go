package load

import (
	"fmt"
	"time"
)

// DailyLoad is the per-athlete, per-day training load row derived from a
// logged session. Later entries for the same athlete-day replace the row.
type DailyLoad struct {
	AthleteID   string    `json:"athlete_id" db:"athlete_id"`
	Day         time.Time `json:"day" db:"day"`
	DurationMin float64   `json:"duration_min" db:"duration_min"`
	DistanceKM  float64   `json:"distance_km" db:"distance_km"`
	RPE         int       `json:"rpe" db:"rpe"`
	LoadScore   float64   `json:"load_score" db:"load_score"`
	PainFlag    bool      `json:"pain_flag" db:"pain_flag"`
}

// NewDailyLoad validates inputs and derives the session-RPE load score
// (duration × RPE). RPE is the 1-10 perceived exertion scale.
func NewDailyLoad(athleteID string, day time.Time, durationMin, distanceKM float64, rpe int, painFlag bool) (DailyLoad, error) {
	if athleteID == "" {
		return DailyLoad{}, fmt.Errorf("athlete id is required")
	}
	if rpe < 1 || rpe > 10 {
		return DailyLoad{}, fmt.Errorf("rpe %d out of range 1-10", rpe)
	}
	if durationMin < 0 {
		return DailyLoad{}, fmt.Errorf("duration %.1f must be non-negative", durationMin)
	}
	if distanceKM < 0 {
		return DailyLoad{}, fmt.Errorf("distance %.2f must be non-negative", distanceKM)
	}

	return DailyLoad{
		AthleteID:   athleteID,
		Day:         Midnight(day),
		DurationMin: durationMin,
		DistanceKM:  distanceKM,
		RPE:         rpe,
		LoadScore:   durationMin * float64(rpe),
		PainFlag:    painFlag,
	}, nil
}

// Midnight truncates t to its UTC calendar day.
func Midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaySeries expands loads into one value per calendar day over [from, to],
// inclusive, with 0 for days without a logged session. Missing days matter:
// the fitness-fatigue recurrence and monotony both decay through them.
func DaySeries(loads []DailyLoad, from, to time.Time) []float64 {
	from = Midnight(from)
	to = Midnight(to)
	if to.Before(from) {
		return nil
	}

	byDay := make(map[time.Time]float64, len(loads))
	for _, l := range loads {
		byDay[Midnight(l.Day)] = l.LoadScore
	}

	days := int(to.Sub(from).Hours()/24) + 1
	series := make([]float64, days)
	for i := 0; i < days; i++ {
		series[i] = byDay[from.AddDate(0, 0, i)]
	}
	return series
}
