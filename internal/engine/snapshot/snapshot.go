// Package snapshot assembles the per-athlete feature view the rule engine
// evaluates. Building is the only part that touches stores; the resulting
// Snapshot is a plain value, so risk and guardrail evaluation stay pure.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/stridelabs/trainpulse/internal/clock"
	"github.com/stridelabs/trainpulse/internal/domain/fitness"
	"github.com/stridelabs/trainpulse/internal/domain/load"
	"github.com/stridelabs/trainpulse/internal/domain/readiness"
	"github.com/stridelabs/trainpulse/internal/persistence"
)

// NeverCheckedIn is reported as DaysSinceCheckin when an athlete has no
// check-in history at all.
const NeverCheckedIn = 9999

// Snapshot is the feature view for one athlete at one instant. Identical
// snapshots always produce identical generator output.
type Snapshot struct {
	AthleteID string    `json:"athlete_id"`
	Now       time.Time `json:"now"`

	ACR           float64 `json:"acr"`
	ACRValid      bool    `json:"acr_valid"`
	Monotony      float64 `json:"monotony"`
	MonotonyValid bool    `json:"monotony_valid"`
	Strain        float64 `json:"strain"`
	TSB           float64 `json:"tsb"`
	HistoryDays   int     `json:"history_days"`

	ReadinessScore   float64        `json:"readiness_score"`
	ReadinessBand    readiness.Band `json:"readiness_band"`
	ReadinessDelta3d float64        `json:"readiness_delta_3d"`
	HasReadiness     bool           `json:"has_readiness"`

	PainFlag         bool    `json:"pain_flag"`
	DaysSinceCheckin int     `json:"days_since_checkin"`
	PlanAdherence    float64 `json:"plan_adherence"`
	DataCompleteness float64 `json:"data_completeness"`

	Phase persistence.Phase `json:"phase"`
}

// Config controls the lookback windows used to build snapshots.
type Config struct {
	LookbackDays  int `yaml:"lookback_days"`  // completeness + feature window
	PainWindow    int `yaml:"pain_window"`    // days of logs scanned for pain flags
	AdherenceDays int `yaml:"adherence_days"` // window for the adherence signal
}

// DefaultConfig returns the production lookback windows.
func DefaultConfig() Config {
	return Config{
		LookbackDays:  14,
		PainWindow:    7,
		AdherenceDays: 7,
	}
}

// Builder fetches history and derives one Snapshot per athlete.
type Builder struct {
	logs     persistence.TrainingLogStore
	checkins persistence.CheckinStore
	plans    persistence.PlanProvider
	cfg      Config
	clk      clock.Clock
	loadTh   load.Thresholds
}

// NewBuilder wires the collaborator stores.
func NewBuilder(logs persistence.TrainingLogStore, checkins persistence.CheckinStore, plans persistence.PlanProvider, cfg Config, clk clock.Clock) *Builder {
	return &Builder{
		logs:     logs,
		checkins: checkins,
		plans:    plans,
		cfg:      cfg,
		clk:      clk,
		loadTh:   load.DefaultThresholds(),
	}
}

// Build derives the snapshot for one athlete as of the injected clock's now.
func (b *Builder) Build(ctx context.Context, athleteID string) (Snapshot, error) {
	now := b.clk.Now()
	today := load.Midnight(now)
	// Fetch enough history for the chronic window plus the fitness recurrence
	// to settle relative to its seed.
	from := today.AddDate(0, 0, -(b.loadTh.ChronicDays + TauSettleDays))

	loads, err := b.logs.DailyLoads(ctx, athleteID, from, today)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch training logs for %s: %w", athleteID, err)
	}
	samples, err := b.checkins.Samples(ctx, athleteID, from, today)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch check-ins for %s: %w", athleteID, err)
	}
	phase, err := b.plans.CurrentPhase(ctx, athleteID, now)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch plan phase for %s: %w", athleteID, err)
	}

	snap := Snapshot{
		AthleteID:        athleteID,
		Now:              now,
		Phase:            phase,
		DaysSinceCheckin: NeverCheckedIn,
	}

	if len(loads) > 0 {
		first := load.Midnight(loads[0].Day)
		series := load.DaySeries(loads, first, today)
		snap.HistoryDays = len(series)
		snap.ACR, snap.ACRValid = load.ACR(series, b.loadTh)

		window := series
		if len(series) > b.loadTh.MonotonyWindowDays {
			window = series[len(series)-b.loadTh.MonotonyWindowDays:]
		}
		snap.Monotony, snap.MonotonyValid = load.Monotony(window, b.loadTh)
		snap.Strain = load.Strain(window, b.loadTh)

		points := fitness.ComputeSeries(athleteID, loads, today)
		if len(points) > 0 {
			snap.TSB = points[len(points)-1].TSB
		}

		painFrom := today.AddDate(0, 0, -b.cfg.PainWindow)
		for _, l := range loads {
			if l.PainFlag && !l.Day.Before(painFrom) {
				snap.PainFlag = true
				break
			}
		}
	}

	if len(samples) > 0 {
		latest := samples[len(samples)-1]
		snap.HasReadiness = true
		snap.ReadinessScore = latest.Score
		snap.ReadinessBand = latest.Band
		snap.DaysSinceCheckin = int(today.Sub(load.Midnight(latest.Day)).Hours() / 24)

		cutoff := load.Midnight(latest.Day).AddDate(0, 0, -3)
		for i := len(samples) - 1; i >= 0; i-- {
			if !samples[i].Day.After(cutoff) {
				snap.ReadinessDelta3d = latest.Score - samples[i].Score
				break
			}
		}
	}

	snap.PlanAdherence = adherence(loads, today, b.cfg.AdherenceDays)
	snap.DataCompleteness = completeness(loads, samples, today, b.cfg.LookbackDays)
	return snap, nil
}

// TauSettleDays is the extra history fetched beyond the chronic window so
// CTL is not dominated by its zero seed.
const TauSettleDays = 56

// adherence is the fraction of the trailing window's days with a logged
// session.
func adherence(loads []load.DailyLoad, today time.Time, windowDays int) float64 {
	if windowDays <= 0 {
		return 0
	}
	from := today.AddDate(0, 0, -(windowDays - 1))
	logged := 0
	for _, l := range loads {
		if !l.Day.Before(from) && !l.Day.After(today) {
			logged++
		}
	}
	return float64(logged) / float64(windowDays)
}

// completeness is the fraction of lookback days carrying either a log or a
// check-in; it feeds the generator's confidence score.
func completeness(loads []load.DailyLoad, samples []readiness.Sample, today time.Time, lookbackDays int) float64 {
	if lookbackDays <= 0 {
		return 0
	}
	from := today.AddDate(0, 0, -(lookbackDays - 1))
	days := make(map[time.Time]struct{})
	for _, l := range loads {
		if !l.Day.Before(from) && !l.Day.After(today) {
			days[load.Midnight(l.Day)] = struct{}{}
		}
	}
	for _, smp := range samples {
		if !smp.Day.Before(from) && !smp.Day.After(today) {
			days[load.Midnight(smp.Day)] = struct{}{}
		}
	}
	return float64(len(days)) / float64(lookbackDays)
}
