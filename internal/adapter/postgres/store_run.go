package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetops/transitcore/internal/domain"
	"github.com/fleetops/transitcore/internal/domain/run"
)

// Store implements runstore.Store using PostgreSQL. Locations and student
// lists are first-class columns, serialized only at this boundary.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// runColumns is the SELECT column list for runs queries.
const runColumns = `id, run_type, status, start_time, end_time,
	pickup_latitude, pickup_longitude, pickup_address,
	dropoff_latitude, dropoff_longitude, dropoff_address,
	driver_id, pa_id, student_ids, schedule_type, recurrence_rule,
	next_occurrence, last_occurrence,
	estimated_distance, estimated_duration, optimized_route, traffic_conditions,
	created_at, updated_at`

// scanRun scans a row into a Run.
func scanRun(scanner interface{ Scan(dest ...any) error }, r *run.Run) error {
	return scanner.Scan(
		&r.ID, &r.Type, &r.Status, &r.StartTime, &r.EndTime,
		&r.PickupLocation.Latitude, &r.PickupLocation.Longitude, &r.PickupLocation.Address,
		&r.DropoffLocation.Latitude, &r.DropoffLocation.Longitude, &r.DropoffLocation.Address,
		&r.DriverID, &r.PAID, &r.StudentIDs, &r.ScheduleType, &r.RecurrenceRule,
		&r.NextOccurrence, &r.LastOccurrence,
		&r.EstimatedDistance, &r.EstimatedDuration, &r.OptimizedRoute, &r.TrafficConditions,
		&r.CreatedAt, &r.UpdatedAt,
	)
}

func (s *Store) Create(ctx context.Context, r *run.Run) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO runs (id, run_type, status, start_time, end_time,
			pickup_latitude, pickup_longitude, pickup_address,
			dropoff_latitude, dropoff_longitude, dropoff_address,
			driver_id, pa_id, student_ids, schedule_type, recurrence_rule,
			next_occurrence, last_occurrence,
			estimated_distance, estimated_duration, optimized_route, traffic_conditions)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		 RETURNING created_at, updated_at`,
		r.ID, r.Type, r.Status, r.StartTime, r.EndTime,
		r.PickupLocation.Latitude, r.PickupLocation.Longitude, r.PickupLocation.Address,
		r.DropoffLocation.Latitude, r.DropoffLocation.Longitude, r.DropoffLocation.Address,
		r.DriverID, r.PAID, r.StudentIDs, r.ScheduleType, r.RecurrenceRule,
		r.NextOccurrence, r.LastOccurrence,
		r.EstimatedDistance, r.EstimatedDuration, r.OptimizedRoute, r.TrafficConditions)

	if err := row.Scan(&r.CreatedAt, &r.UpdatedAt); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*run.Run, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM runs WHERE id = $1`, runColumns), id)

	var r run.Run
	if err := scanRun(row, &r); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get run %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &r, nil
}

func (s *Store) Update(ctx context.Context, r *run.Run) error {
	row := s.pool.QueryRow(ctx,
		`UPDATE runs SET run_type = $2, status = $3, start_time = $4, end_time = $5,
			pickup_latitude = $6, pickup_longitude = $7, pickup_address = $8,
			dropoff_latitude = $9, dropoff_longitude = $10, dropoff_address = $11,
			driver_id = $12, pa_id = $13, student_ids = $14, schedule_type = $15,
			recurrence_rule = $16, next_occurrence = $17, last_occurrence = $18,
			estimated_distance = $19, estimated_duration = $20,
			optimized_route = $21, traffic_conditions = $22, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		r.ID, r.Type, r.Status, r.StartTime, r.EndTime,
		r.PickupLocation.Latitude, r.PickupLocation.Longitude, r.PickupLocation.Address,
		r.DropoffLocation.Latitude, r.DropoffLocation.Longitude, r.DropoffLocation.Address,
		r.DriverID, r.PAID, r.StudentIDs, r.ScheduleType, r.RecurrenceRule,
		r.NextOccurrence, r.LastOccurrence,
		r.EstimatedDistance, r.EstimatedDuration, r.OptimizedRoute, r.TrafficConditions)

	if err := row.Scan(&r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("update run %s: %w", r.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("update run %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status run.Status, endTime *time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $2, end_time = COALESCE($3, end_time), updated_at = now()
		 WHERE id = $1`, id, status, endTime)
	if err != nil {
		return fmt.Errorf("update run status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update run status %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) List(ctx context.Context, f run.Filter) ([]run.Run, error) {
	// Zero filter values match everything; empty-string sentinels keep the
	// query a single prepared statement.
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM runs
		 WHERE ($1 = '' OR status = $1)
		   AND ($2 = '' OR run_type = $2)
		   AND ($3 = '' OR driver_id = $3)
		 ORDER BY created_at DESC`, runColumns),
		string(f.Status), string(f.Type), f.DriverID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

func (s *Store) ListActiveByDriver(ctx context.Context, driverID string, statuses []run.Status) ([]run.Run, error) {
	ss := make([]string, len(statuses))
	for i, st := range statuses {
		ss[i] = string(st)
	}
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM runs
		 WHERE driver_id = $1 AND status = ANY($2)
		 ORDER BY start_time ASC`, runColumns), driverID, ss)
	if err != nil {
		return nil, fmt.Errorf("list active runs for driver %s: %w", driverID, err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

func (s *Store) ListRecurring(ctx context.Context) ([]run.Run, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM runs
		 WHERE schedule_type <> 'ONE_TIME'
		   AND status IN ('PENDING', 'IN_PROGRESS')
		   AND (next_occurrence IS NULL OR next_occurrence < now())
		 ORDER BY start_time ASC`, runColumns))
	if err != nil {
		return nil, fmt.Errorf("list recurring runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

func collectRuns(rows pgx.Rows) ([]run.Run, error) {
	var runs []run.Run
	for rows.Next() {
		var r run.Run
		if err := scanRun(rows, &r); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
