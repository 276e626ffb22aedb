// Package memstore is the in-memory store used for tests and single-node
// runs without a database. All operations copy rows on the way in and out so
// callers never share mutable state with the store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stridelabs/trainpulse/internal/domain/fitness"
	"github.com/stridelabs/trainpulse/internal/domain/load"
	"github.com/stridelabs/trainpulse/internal/domain/performance"
	"github.com/stridelabs/trainpulse/internal/domain/readiness"
	"github.com/stridelabs/trainpulse/internal/persistence"
)

// Store implements every persistence interface behind one mutex.
type Store struct {
	mu            sync.RWMutex
	interventions map[string]persistence.Intervention
	order         []string // creation order for stable listings
	loads         map[string][]load.DailyLoad
	samples       map[string][]readiness.Sample
	phases        map[string]persistence.Phase
	athletes      []string
	fitnessSeries map[string][]fitness.Point
	estimates     map[string][]performance.Estimate
}

// New creates an empty store.
func New() *Store {
	return &Store{
		interventions: make(map[string]persistence.Intervention),
		loads:         make(map[string][]load.DailyLoad),
		samples:       make(map[string][]readiness.Sample),
		phases:        make(map[string]persistence.Phase),
		fitnessSeries: make(map[string][]fitness.Point),
		estimates:     make(map[string][]performance.Estimate),
	}
}

// --- InterventionRepo ---

func (s *Store) List(_ context.Context, filter persistence.InterventionFilter) ([]persistence.Intervention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[persistence.Status]bool, len(filter.Statuses))
	for _, st := range filter.Statuses {
		want[st] = true
	}

	var out []persistence.Intervention
	for _, id := range s.order {
		iv := s.interventions[id]
		if filter.AthleteID != "" && iv.AthleteID != filter.AthleteID {
			continue
		}
		if len(want) > 0 && !want[iv.Status] {
			continue
		}
		out = append(out, copyIntervention(iv))
	}
	return out, nil
}

func (s *Store) Get(_ context.Context, id string) (persistence.Intervention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iv, ok := s.interventions[id]
	if !ok {
		return persistence.Intervention{}, persistence.ErrNotFound
	}
	return copyIntervention(iv), nil
}

func (s *Store) Create(_ context.Context, iv persistence.Intervention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.interventions[iv.ID]; exists {
		return persistence.ErrConflict
	}
	// Dedup invariant: one Open/Deferred row per (athlete, action).
	for _, existing := range s.interventions {
		if existing.AthleteID == iv.AthleteID && existing.Action == iv.Action && existing.Active() {
			return persistence.ErrConflict
		}
	}
	s.interventions[iv.ID] = copyIntervention(iv)
	s.order = append(s.order, iv.ID)
	return nil
}

func (s *Store) FindActive(_ context.Context, athleteID string, action persistence.ActionType) (persistence.Intervention, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		iv := s.interventions[id]
		if iv.AthleteID == athleteID && iv.Action == action && iv.Active() {
			return copyIntervention(iv), true, nil
		}
	}
	return persistence.Intervention{}, false, nil
}

func (s *Store) TransitionCAS(_ context.Context, id string, observed persistence.Status, tr persistence.Transition, now time.Time) (persistence.Intervention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iv, ok := s.interventions[id]
	if !ok {
		return persistence.Intervention{}, persistence.ErrNotFound
	}
	if iv.Status != observed {
		return persistence.Intervention{}, persistence.ErrConflict
	}

	iv.Status = tr.To
	iv.CooldownUntil = copyTime(tr.CooldownUntil)
	iv.WhyFactors = append(append([]string{}, iv.WhyFactors...), tr.AppendFactors...)
	if tr.Note != "" {
		iv.DecisionNote = tr.Note
	}
	iv.UpdatedAt = now
	s.interventions[id] = iv
	return copyIntervention(iv), nil
}

func (s *Store) UpdateCandidate(_ context.Context, id string, upd persistence.CandidateUpdate, now time.Time) (persistence.Intervention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iv, ok := s.interventions[id]
	if !ok {
		return persistence.Intervention{}, persistence.ErrNotFound
	}
	merged := persistence.MergeFactors(append([]string{}, iv.WhyFactors...), upd.MergeFactors)
	changed := len(merged) != len(iv.WhyFactors) ||
		iv.RiskScore != upd.RiskScore ||
		iv.ConfidenceScore != upd.ConfidenceScore ||
		iv.GuardrailPass != upd.GuardrailPass ||
		iv.GuardrailReason != upd.GuardrailReason

	iv.RiskScore = upd.RiskScore
	iv.ConfidenceScore = upd.ConfidenceScore
	iv.GuardrailPass = upd.GuardrailPass
	iv.GuardrailReason = upd.GuardrailReason
	iv.ExpectedImpact = upd.ExpectedImpact
	iv.WhyFactors = merged
	if changed {
		iv.UpdatedAt = now
	}
	s.interventions[id] = iv
	return copyIntervention(iv), nil
}

// --- collaborator stores (seeded fixtures) ---

// AddAthlete registers an athlete on the roster.
func (s *Store) AddAthlete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.athletes {
		if existing == id {
			return
		}
	}
	s.athletes = append(s.athletes, id)
}

func (s *Store) AthleteIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.athletes...), nil
}

// PutDailyLoad upserts the one-per-athlete-day load row.
func (s *Store) PutDailyLoad(l load.DailyLoad) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := load.Midnight(l.Day)
	rows := s.loads[l.AthleteID]
	for i, existing := range rows {
		if existing.Day.Equal(day) {
			rows[i] = l
			return
		}
	}
	s.loads[l.AthleteID] = append(rows, l)
}

func (s *Store) DailyLoads(_ context.Context, athleteID string, from, to time.Time) ([]load.DailyLoad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []load.DailyLoad
	for _, l := range s.loads[athleteID] {
		if l.Day.Before(from) || l.Day.After(to) {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

// PutSample upserts the one-per-athlete-day check-in.
func (s *Store) PutSample(smp readiness.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.samples[smp.AthleteID]
	for i, existing := range rows {
		if existing.Day.Equal(smp.Day) {
			rows[i] = smp
			return
		}
	}
	s.samples[smp.AthleteID] = append(rows, smp)
}

func (s *Store) Samples(_ context.Context, athleteID string, from, to time.Time) ([]readiness.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []readiness.Sample
	for _, smp := range s.samples[athleteID] {
		if smp.Day.Before(from) || smp.Day.After(to) {
			continue
		}
		out = append(out, smp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

// SetPhase pins an athlete's current plan phase.
func (s *Store) SetPhase(athleteID string, phase persistence.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phases[athleteID] = phase
}

func (s *Store) CurrentPhase(_ context.Context, athleteID string, _ time.Time) (persistence.Phase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if phase, ok := s.phases[athleteID]; ok {
		return phase, nil
	}
	return persistence.PhaseBase, nil
}

// --- FitnessRepo ---

func (s *Store) ReplaceSeries(_ context.Context, athleteID string, points []fitness.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitnessSeries[athleteID] = append([]fitness.Point{}, points...)
	return nil
}

func (s *Store) Series(_ context.Context, athleteID string) ([]fitness.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]fitness.Point{}, s.fitnessSeries[athleteID]...), nil
}

// --- PerformanceRepo ---

func (s *Store) Add(_ context.Context, est performance.Estimate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.estimates[est.AthleteID] = append(s.estimates[est.AthleteID], est)
	return nil
}

func (s *Store) Estimates(_ context.Context, athleteID string) ([]performance.Estimate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]performance.Estimate{}, s.estimates[athleteID]...), nil
}

func copyIntervention(iv persistence.Intervention) persistence.Intervention {
	iv.WhyFactors = append([]string{}, iv.WhyFactors...)
	iv.CooldownUntil = copyTime(iv.CooldownUntil)
	return iv
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
