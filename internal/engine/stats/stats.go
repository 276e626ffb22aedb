// Package stats computes the SLA & queue read model in a single pass over
// one snapshot of the non-closed intervention set. Every field comes from
// the same snapshot, so counts never skew against each other; the view
// tolerates eventual consistency with in-flight decisions and is safe to
// poll without locking the engine.
package stats

import (
	"context"
	"sort"
	"time"

	"github.com/stridelabs/trainpulse/internal/clock"
	"github.com/stridelabs/trainpulse/internal/metrics"
	"github.com/stridelabs/trainpulse/internal/persistence"
)

// Stats is the aggregate read projection over the current queue.
type Stats struct {
	OpenCount      int       `json:"open_count"`
	HighPriority   int       `json:"high_priority"`
	ActionableNow  int       `json:"actionable_now"`
	Snoozed        int       `json:"snoozed"`
	SLADue24h      int       `json:"sla_due_24h"`
	SLADue72h      int       `json:"sla_due_72h"`
	MedianAgeHours float64   `json:"median_age_hours"`
	OldestAgeHours float64   `json:"oldest_age_hours"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// Config holds SLA windows and the priority cutoff.
type Config struct {
	DefaultSLAWindow time.Duration                            `yaml:"default_sla_window"`
	SLAWindows       map[persistence.ActionType]time.Duration `yaml:"sla_windows"`
	HighPriorityRisk float64                                  `yaml:"high_priority_risk"`
}

// DefaultConfig returns the production SLA settings.
func DefaultConfig() Config {
	return Config{
		DefaultSLAWindow: 7 * 24 * time.Hour,
		SLAWindows: map[persistence.ActionType]time.Duration{
			persistence.ActionFlagPain:      48 * time.Hour,
			persistence.ActionMissedCheckin: 96 * time.Hour,
		},
		HighPriorityRisk: 0.75,
	}
}

func (c Config) windowFor(action persistence.ActionType) time.Duration {
	if w, ok := c.SLAWindows[action]; ok {
		return w
	}
	return c.DefaultSLAWindow
}

// Compute derives Stats from one snapshot of non-closed rows. OpenCount
// counts Open rows only; Snoozed counts Deferred; ages and SLA buckets are
// over Open rows.
func Compute(items []persistence.Intervention, cfg Config, now time.Time) Stats {
	s := Stats{GeneratedAt: now}
	var openAges []float64

	for _, iv := range items {
		switch iv.Status {
		case persistence.StatusDeferred:
			s.Snoozed++
			continue
		case persistence.StatusOpen:
		default:
			continue
		}

		s.OpenCount++
		age := now.Sub(iv.CreatedAt)
		openAges = append(openAges, age.Hours())

		if iv.RiskScore >= cfg.HighPriorityRisk {
			s.HighPriority++
		}
		if iv.GuardrailPass {
			s.ActionableNow++
		}

		window := cfg.windowFor(iv.Action)
		if age >= window-24*time.Hour {
			s.SLADue24h++
		}
		if age >= window-72*time.Hour {
			s.SLADue72h++
		}
	}

	if len(openAges) > 0 {
		sort.Float64s(openAges)
		s.OldestAgeHours = openAges[len(openAges)-1]
		mid := len(openAges) / 2
		if len(openAges)%2 == 1 {
			s.MedianAgeHours = openAges[mid]
		} else {
			s.MedianAgeHours = (openAges[mid-1] + openAges[mid]) / 2
		}
	}
	return s
}

// Aggregator serves on-demand stats snapshots.
type Aggregator struct {
	repo persistence.InterventionRepo
	cfg  Config
	clk  clock.Clock
}

// NewAggregator wires the store and clock.
func NewAggregator(repo persistence.InterventionRepo, cfg Config, clk clock.Clock) *Aggregator {
	return &Aggregator{repo: repo, cfg: cfg, clk: clk}
}

// Current lists the non-closed set (optionally scoped to one athlete) and
// computes the projection from that single snapshot.
func (a *Aggregator) Current(ctx context.Context, athleteID string) (Stats, error) {
	items, err := a.repo.List(ctx, persistence.InterventionFilter{
		AthleteID: athleteID,
		Statuses:  []persistence.Status{persistence.StatusOpen, persistence.StatusDeferred},
	})
	if err != nil {
		return Stats{}, err
	}
	s := Compute(items, a.cfg, a.clk.Now())
	metrics.OpenInterventions.Set(float64(s.OpenCount))
	return s, nil
}
