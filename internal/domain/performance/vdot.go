package performance

import (
	"fmt"
	"math"
	"time"
)

// Daniels-Gilbert oxygen-cost approximation. Velocity is in meters/minute,
// durations in minutes. Both curves are monotonic in pace, so a faster
// result over any distance always yields a higher VDOT.
func vo2AtVelocity(v float64) float64 {
	return -4.60 + 0.182258*v + 0.000104*v*v
}

func fractionOfMax(minutes float64) float64 {
	return 0.8 + 0.1894393*math.Exp(-0.012778*minutes) + 0.2989558*math.Exp(-0.1932605*minutes)
}

// velocityAtVO2 inverts the oxygen-cost quadratic.
func velocityAtVO2(vo2 float64) float64 {
	const a, b = 0.000104, 0.182258
	c := -4.60 - vo2
	return (-b + math.Sqrt(b*b-4*a*c)) / (2 * a)
}

// VDOT computes the single-number fitness estimate from a race or time-trial
// result.
func VDOT(distanceMeters float64, duration time.Duration) (float64, error) {
	if distanceMeters < 800 {
		return 0, fmt.Errorf("distance %.0fm too short for a reliable estimate (min 800m)", distanceMeters)
	}
	minutes := duration.Minutes()
	if minutes <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	velocity := distanceMeters / minutes
	vdot := vo2AtVelocity(velocity) / fractionOfMax(minutes)
	if vdot <= 0 || math.IsNaN(vdot) {
		return 0, fmt.Errorf("result %.0fm in %s implies no measurable fitness", distanceMeters, duration)
	}
	return vdot, nil
}

// Training pace intensities as fractions of VDOT, per the standard
// easy/marathon/threshold/interval/repetition ladder.
const (
	intensityEasy       = 0.70
	intensityMarathon   = 0.84
	intensityThreshold  = 0.88
	intensityInterval   = 0.98
	intensityRepetition = 1.05
)

// Paces holds prescribed per-kilometer training paces.
type Paces struct {
	Easy       time.Duration `json:"easy_per_km"`
	Marathon   time.Duration `json:"marathon_per_km"`
	Threshold  time.Duration `json:"threshold_per_km"`
	Interval   time.Duration `json:"interval_per_km"`
	Repetition time.Duration `json:"repetition_per_km"`
}

// PacesFor derives the training paces implied by a VDOT value.
func PacesFor(vdot float64) Paces {
	return Paces{
		Easy:       paceAt(vdot, intensityEasy),
		Marathon:   paceAt(vdot, intensityMarathon),
		Threshold:  paceAt(vdot, intensityThreshold),
		Interval:   paceAt(vdot, intensityInterval),
		Repetition: paceAt(vdot, intensityRepetition),
	}
}

func paceAt(vdot, intensity float64) time.Duration {
	velocity := velocityAtVO2(vdot * intensity) // m/min
	if velocity <= 0 {
		return 0
	}
	minutesPerKM := 1000.0 / velocity
	return time.Duration(minutesPerKM * float64(time.Minute)).Round(time.Second)
}
