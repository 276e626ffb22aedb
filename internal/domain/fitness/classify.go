package fitness

// State is the qualitative fitness-fatigue classification derived jointly
// from TSB and the acute:chronic ratio.
type State string

const (
	StateRaceReady        State = "race_ready"
	StateFresh            State = "fresh"
	StateSlightlyFatigued State = "slightly_fatigued"
	StateFatigued         State = "fatigued"
	StateOverreached      State = "overreached"
	StateDetrained        State = "detrained"
	StateInsufficientData State = "insufficient_data"
)

// Band is the coarse readiness traffic light for the fitness series.
type Band string

const (
	BandGreen Band = "green"
	BandAmber Band = "amber"
	BandRed   Band = "red"
)

// MinHistoryDays is the minimum series length before any classification is
// trusted. Below it, insufficient_data dominates every other band.
const MinHistoryDays = 14

// Classify maps TSB and ACR onto the qualitative state. acrValid is false
// when the ratio is undefined (under seven days of history).
func Classify(tsb, acr float64, acrValid bool, historyDays int) State {
	if historyDays < MinHistoryDays {
		return StateInsufficientData
	}

	switch {
	case tsb <= -30:
		return StateOverreached
	case tsb <= -20 && acrValid && acr >= 1.5:
		return StateOverreached
	case tsb <= -10:
		return StateFatigued
	case tsb < 0:
		return StateSlightlyFatigued
	case tsb > 25 && acrValid && acr < 0.8:
		return StateDetrained
	case tsb >= 5 && tsb <= 25:
		return StateRaceReady
	default:
		return StateFresh
	}
}

// BandFor collapses a state into the green/amber/red readiness band.
func BandFor(state State) Band {
	switch state {
	case StateRaceReady, StateFresh:
		return BandGreen
	case StateOverreached:
		return BandRed
	default:
		return BandAmber
	}
}
