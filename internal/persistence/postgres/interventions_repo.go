package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/stridelabs/trainpulse/internal/persistence"
)

// interventionsSchema creates the interventions table. The partial unique
// index enforces the one-active-row-per-(athlete, action) dedup invariant at
// the store level, backing up the application check.
const interventionsSchema = `
CREATE TABLE IF NOT EXISTS interventions (
	id               TEXT PRIMARY KEY,
	athlete_id       TEXT NOT NULL,
	action           TEXT NOT NULL,
	status           TEXT NOT NULL,
	risk_score       DOUBLE PRECISION NOT NULL,
	confidence_score DOUBLE PRECISION NOT NULL,
	why_factors      JSONB NOT NULL DEFAULT '[]',
	guardrail_pass   BOOLEAN NOT NULL,
	guardrail_reason TEXT NOT NULL DEFAULT '',
	expected_impact  JSONB NOT NULL DEFAULT '{}',
	decision_note    TEXT NOT NULL DEFAULT '',
	cooldown_until   TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS interventions_active_slot
	ON interventions (athlete_id, action)
	WHERE status IN ('open', 'deferred');
`

// interventionsRepo implements persistence.InterventionRepo for PostgreSQL.
type interventionsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewInterventionsRepo creates the PostgreSQL intervention store.
func NewInterventionsRepo(db *sqlx.DB, timeout time.Duration) persistence.InterventionRepo {
	return &interventionsRepo{db: db, timeout: timeout}
}

// EnsureSchema creates the tables used by the postgres repos.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, schema := range []string{interventionsSchema, fitnessSchema, performanceSchema} {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

const interventionColumns = `id, athlete_id, action, status, risk_score, confidence_score,
	why_factors, guardrail_pass, guardrail_reason, expected_impact, decision_note,
	cooldown_until, created_at, updated_at`

func (r *interventionsRepo) List(ctx context.Context, filter persistence.InterventionFilter) ([]persistence.Intervention, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + interventionColumns + ` FROM interventions WHERE 1=1`
	args := []interface{}{}
	if filter.AthleteID != "" {
		args = append(args, filter.AthleteID)
		query += fmt.Sprintf(" AND athlete_id = $%d", len(args))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, pq.Array(statuses))
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	query += " ORDER BY created_at, id"

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list interventions: %w", err)
	}
	defer rows.Close()

	var out []persistence.Intervention
	for rows.Next() {
		iv, err := scanIntervention(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

func (r *interventionsRepo) Get(ctx context.Context, id string) (persistence.Intervention, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowxContext(ctx, `SELECT `+interventionColumns+` FROM interventions WHERE id = $1`, id)
	iv, err := scanRow(row)
	if err == sql.ErrNoRows {
		return persistence.Intervention{}, persistence.ErrNotFound
	}
	return iv, err
}

func (r *interventionsRepo) Create(ctx context.Context, iv persistence.Intervention) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	factorsJSON, impactJSON, err := encodeJSONCols(iv.WhyFactors, iv.ExpectedImpact)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO interventions (`+interventionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		iv.ID, iv.AthleteID, string(iv.Action), string(iv.Status),
		iv.RiskScore, iv.ConfidenceScore, factorsJSON,
		iv.GuardrailPass, iv.GuardrailReason, impactJSON, iv.DecisionNote,
		iv.CooldownUntil, iv.CreatedAt, iv.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("active slot taken for %s/%s: %w", iv.AthleteID, iv.Action, persistence.ErrConflict)
		}
		return fmt.Errorf("insert intervention: %w", err)
	}
	return nil
}

func (r *interventionsRepo) FindActive(ctx context.Context, athleteID string, action persistence.ActionType) (persistence.Intervention, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowxContext(ctx, `
		SELECT `+interventionColumns+` FROM interventions
		WHERE athlete_id = $1 AND action = $2 AND status IN ('open', 'deferred')`,
		athleteID, string(action))
	iv, err := scanRow(row)
	if err == sql.ErrNoRows {
		return persistence.Intervention{}, false, nil
	}
	if err != nil {
		return persistence.Intervention{}, false, err
	}
	return iv, true, nil
}

// TransitionCAS locks the row, compares the observed status and applies the
// transition inside one transaction. A moved row is a conflict, not a retry.
func (r *interventionsRepo) TransitionCAS(ctx context.Context, id string, observed persistence.Status, tr persistence.Transition, now time.Time) (persistence.Intervention, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return persistence.Intervention{}, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowxContext(ctx, `
		SELECT `+interventionColumns+` FROM interventions WHERE id = $1 FOR UPDATE`, id)
	iv, err := scanRow(row)
	if err == sql.ErrNoRows {
		return persistence.Intervention{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.Intervention{}, err
	}
	if iv.Status != observed {
		return persistence.Intervention{}, persistence.ErrConflict
	}

	iv.Status = tr.To
	iv.CooldownUntil = tr.CooldownUntil
	iv.WhyFactors = append(iv.WhyFactors, tr.AppendFactors...)
	if tr.Note != "" {
		iv.DecisionNote = tr.Note
	}
	iv.UpdatedAt = now

	factorsJSON, _, err := encodeJSONCols(iv.WhyFactors, iv.ExpectedImpact)
	if err != nil {
		return persistence.Intervention{}, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE interventions
		SET status = $2, cooldown_until = $3, why_factors = $4, decision_note = $5, updated_at = $6
		WHERE id = $1`,
		id, string(iv.Status), iv.CooldownUntil, factorsJSON, iv.DecisionNote, iv.UpdatedAt)
	if err != nil {
		return persistence.Intervention{}, fmt.Errorf("apply transition: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return persistence.Intervention{}, fmt.Errorf("commit transition: %w", err)
	}
	return iv, nil
}

func (r *interventionsRepo) UpdateCandidate(ctx context.Context, id string, upd persistence.CandidateUpdate, now time.Time) (persistence.Intervention, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return persistence.Intervention{}, fmt.Errorf("begin candidate update: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowxContext(ctx, `
		SELECT `+interventionColumns+` FROM interventions WHERE id = $1 FOR UPDATE`, id)
	iv, err := scanRow(row)
	if err == sql.ErrNoRows {
		return persistence.Intervention{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.Intervention{}, err
	}

	merged := persistence.MergeFactors(iv.WhyFactors, upd.MergeFactors)
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

	factorsJSON, impactJSON, err := encodeJSONCols(iv.WhyFactors, iv.ExpectedImpact)
	if err != nil {
		return persistence.Intervention{}, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE interventions
		SET risk_score = $2, confidence_score = $3, guardrail_pass = $4,
		    guardrail_reason = $5, expected_impact = $6, why_factors = $7, updated_at = $8
		WHERE id = $1`,
		id, iv.RiskScore, iv.ConfidenceScore, iv.GuardrailPass,
		iv.GuardrailReason, impactJSON, factorsJSON, iv.UpdatedAt)
	if err != nil {
		return persistence.Intervention{}, fmt.Errorf("apply candidate update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return persistence.Intervention{}, fmt.Errorf("commit candidate update: %w", err)
	}
	return iv, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRow(row rowScanner) (persistence.Intervention, error) {
	return scanIntervention(row)
}

func scanIntervention(row rowScanner) (persistence.Intervention, error) {
	var (
		iv          persistence.Intervention
		action      string
		status      string
		factorsJSON []byte
		impactJSON  []byte
		cooldown    sql.NullTime
	)
	err := row.Scan(&iv.ID, &iv.AthleteID, &action, &status,
		&iv.RiskScore, &iv.ConfidenceScore, &factorsJSON,
		&iv.GuardrailPass, &iv.GuardrailReason, &impactJSON, &iv.DecisionNote,
		&cooldown, &iv.CreatedAt, &iv.UpdatedAt)
	if err != nil {
		return persistence.Intervention{}, err
	}
	iv.Action = persistence.ActionType(action)
	iv.Status = persistence.Status(status)
	if cooldown.Valid {
		t := cooldown.Time
		iv.CooldownUntil = &t
	}
	if err := json.Unmarshal(factorsJSON, &iv.WhyFactors); err != nil {
		return persistence.Intervention{}, fmt.Errorf("decode why_factors: %w", err)
	}
	if err := json.Unmarshal(impactJSON, &iv.ExpectedImpact); err != nil {
		return persistence.Intervention{}, fmt.Errorf("decode expected_impact: %w", err)
	}
	return iv, nil
}

func encodeJSONCols(factors []string, impact persistence.Impact) ([]byte, []byte, error) {
	if factors == nil {
		factors = []string{}
	}
	factorsJSON, err := json.Marshal(factors)
	if err != nil {
		return nil, nil, fmt.Errorf("encode why_factors: %w", err)
	}
	impactJSON, err := json.Marshal(impact)
	if err != nil {
		return nil, nil, fmt.Errorf("encode expected_impact: %w", err)
	}
	return factorsJSON, impactJSON, nil
}
