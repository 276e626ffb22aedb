package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stridelabs/trainpulse/internal/domain/fitness"
	"github.com/stridelabs/trainpulse/internal/domain/performance"
	"github.com/stridelabs/trainpulse/internal/persistence"
)

const fitnessSchema = `
CREATE TABLE IF NOT EXISTS fitness_points (
	athlete_id TEXT NOT NULL,
	day        TIMESTAMPTZ NOT NULL,
	ctl        DOUBLE PRECISION NOT NULL,
	atl        DOUBLE PRECISION NOT NULL,
	tsb        DOUBLE PRECISION NOT NULL,
	load       DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (athlete_id, day)
);
`

const performanceSchema = `
CREATE TABLE IF NOT EXISTS performance_estimates (
	athlete_id      TEXT NOT NULL,
	date            TIMESTAMPTZ NOT NULL,
	vdot            DOUBLE PRECISION NOT NULL,
	distance_meters DOUBLE PRECISION NOT NULL,
	duration_ns     BIGINT NOT NULL,
	PRIMARY KEY (athlete_id, date)
);
`

// fitnessRepo stores the derived CTL/ATL/TSB series. The series is replaced
// wholesale on regeneration: it is a deterministic projection of load
// history, never edited row by row.
type fitnessRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewFitnessRepo creates the PostgreSQL fitness series store.
func NewFitnessRepo(db *sqlx.DB, timeout time.Duration) persistence.FitnessRepo {
	return &fitnessRepo{db: db, timeout: timeout}
}

func (r *fitnessRepo) ReplaceSeries(ctx context.Context, athleteID string, points []fitness.Point) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin series replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fitness_points WHERE athlete_id = $1`, athleteID); err != nil {
		return fmt.Errorf("clear fitness series: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fitness_points (athlete_id, day, ctl, atl, tsb, load)
		VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return fmt.Errorf("prepare fitness insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, athleteID, p.Day, p.CTL, p.ATL, p.TSB, p.Load); err != nil {
			return fmt.Errorf("insert fitness point %s: %w", p.Day.Format("2006-01-02"), err)
		}
	}
	return tx.Commit()
}

func (r *fitnessRepo) Series(ctx context.Context, athleteID string) ([]fitness.Point, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT athlete_id, day, ctl, atl, tsb, load
		FROM fitness_points WHERE athlete_id = $1 ORDER BY day`, athleteID)
	if err != nil {
		return nil, fmt.Errorf("list fitness series: %w", err)
	}
	defer rows.Close()

	var out []fitness.Point
	for rows.Next() {
		var p fitness.Point
		if err := rows.Scan(&p.AthleteID, &p.Day, &p.CTL, &p.ATL, &p.TSB, &p.Load); err != nil {
			return nil, fmt.Errorf("scan fitness point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// performanceRepo stores dated VDOT estimates.
type performanceRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPerformanceRepo creates the PostgreSQL estimate store.
func NewPerformanceRepo(db *sqlx.DB, timeout time.Duration) persistence.PerformanceRepo {
	return &performanceRepo{db: db, timeout: timeout}
}

func (r *performanceRepo) Add(ctx context.Context, est performance.Estimate) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO performance_estimates (athlete_id, date, vdot, distance_meters, duration_ns)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (athlete_id, date) DO UPDATE
		SET vdot = EXCLUDED.vdot, distance_meters = EXCLUDED.distance_meters,
		    duration_ns = EXCLUDED.duration_ns`,
		est.AthleteID, est.Date, est.VDOT, est.DistanceMeters, int64(est.Duration))
	if err != nil {
		return fmt.Errorf("insert estimate: %w", err)
	}
	return nil
}

func (r *performanceRepo) Estimates(ctx context.Context, athleteID string) ([]performance.Estimate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT athlete_id, date, vdot, distance_meters, duration_ns
		FROM performance_estimates WHERE athlete_id = $1 ORDER BY date`, athleteID)
	if err != nil {
		return nil, fmt.Errorf("list estimates: %w", err)
	}
	defer rows.Close()

	var out []performance.Estimate
	for rows.Next() {
		var (
			est        performance.Estimate
			durationNS int64
		)
		if err := rows.Scan(&est.AthleteID, &est.Date, &est.VDOT, &est.DistanceMeters, &durationNS); err != nil {
			return nil, fmt.Errorf("scan estimate: %w", err)
		}
		est.Duration = time.Duration(durationNS)
		est.Paces = performance.PacesFor(est.VDOT)
		out = append(out, est)
	}
	return out, rows.Err()
}
