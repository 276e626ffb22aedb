package fitness

import (
	"math"
	"time"

	"github.com/stridelabs/trainpulse/internal/domain/load"
)

// Exponential time constants for the chronic/acute load averages, in days.
const (
	TauCTL = 42.0
	TauATL = 7.0
)

var (
	alphaCTL = 1 - math.Exp(-1.0/TauCTL)
	alphaATL = 1 - math.Exp(-1.0/TauATL)
)

// Point is one day of the derived fitness-fatigue series. The series is
// regenerated deterministically from DailyLoad history and never hand-edited.
type Point struct {
	AthleteID string    `json:"athlete_id" db:"athlete_id"`
	Day       time.Time `json:"day" db:"day"`
	CTL       float64   `json:"ctl" db:"ctl"`
	ATL       float64   `json:"atl" db:"atl"`
	TSB       float64   `json:"tsb" db:"tsb"`
	Load      float64   `json:"load" db:"load"`
}

// ComputeSeries applies the CTL/ATL recurrence once per calendar day from the
// first logged day through the given end day, including zero-load days so
// decay continues without training. An athlete with no history gets nil.
func ComputeSeries(athleteID string, loads []load.DailyLoad, through time.Time) []Point {
	if len(loads) == 0 {
		return nil
	}

	first := load.Midnight(loads[0].Day)
	for _, l := range loads {
		d := load.Midnight(l.Day)
		if d.Before(first) {
			first = d
		}
	}
	through = load.Midnight(through)
	if through.Before(first) {
		return nil
	}

	series := load.DaySeries(loads, first, through)
	points := make([]Point, len(series))
	ctl, atl := 0.0, 0.0
	for i, dayLoad := range series {
		ctl += (dayLoad - ctl) * alphaCTL
		atl += (dayLoad - atl) * alphaATL
		points[i] = Point{
			AthleteID: athleteID,
			Day:       first.AddDate(0, 0, i),
			CTL:       ctl,
			ATL:       atl,
			TSB:       ctl - atl,
			Load:      dayLoad,
		}
	}
	return points
}
