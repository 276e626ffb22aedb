package readiness

import (
	"fmt"
	"time"

	"github.com/stridelabs/trainpulse/internal/domain/load"
)

// Band is the check-in readiness traffic light.
type Band string

const (
	BandGreen Band = "green"
	BandAmber Band = "amber"
	BandRed   Band = "red"
)

// Sub-score weights and band thresholds for the fixed readiness function.
// All four sub-scores are 1-5 with higher meaning better (stress is scored
// as stress control: 5 = calm).
const (
	weightSleep    = 0.30
	weightEnergy   = 0.25
	weightRecovery = 0.25
	weightStress   = 0.20

	greenFloor = 70.0
	amberFloor = 45.0
)

// Sample is one athlete-day check-in with its derived score and band.
// At most one exists per athlete-day; later entries replace earlier ones.
type Sample struct {
	AthleteID string    `json:"athlete_id" db:"athlete_id"`
	Day       time.Time `json:"day" db:"day"`
	Sleep     int       `json:"sleep" db:"sleep"`
	Energy    int       `json:"energy" db:"energy"`
	Recovery  int       `json:"recovery" db:"recovery"`
	Stress    int       `json:"stress" db:"stress"`
	Score     float64   `json:"score" db:"score"`
	Band      Band      `json:"band" db:"band"`
}

// NewSample validates the sub-scores and derives the 0-100 readiness score
// and band.
func NewSample(athleteID string, day time.Time, sleep, energy, recovery, stress int) (Sample, error) {
	if athleteID == "" {
		return Sample{}, fmt.Errorf("athlete id is required")
	}
	for name, v := range map[string]int{"sleep": sleep, "energy": energy, "recovery": recovery, "stress": stress} {
		if v < 1 || v > 5 {
			return Sample{}, fmt.Errorf("%s score %d out of range 1-5", name, v)
		}
	}

	score := Score(sleep, energy, recovery, stress)
	return Sample{
		AthleteID: athleteID,
		Day:       load.Midnight(day),
		Sleep:     sleep,
		Energy:    energy,
		Recovery:  recovery,
		Stress:    stress,
		Score:     score,
		Band:      BandFor(score),
	}, nil
}

// Score applies the fixed weighting, normalized to 0-100.
func Score(sleep, energy, recovery, stress int) float64 {
	weighted := weightSleep*float64(sleep) +
		weightEnergy*float64(energy) +
		weightRecovery*float64(recovery) +
		weightStress*float64(stress)
	return weighted / 5.0 * 100.0
}

// BandFor applies the fixed green/amber/red thresholds.
func BandFor(score float64) Band {
	switch {
	case score >= greenFloor:
		return BandGreen
	case score >= amberFloor:
		return BandAmber
	default:
		return BandRed
	}
}
