package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"example.com/workouttracker/internal/domain"
	"example.com/workouttracker/internal/events"
	"example.com/workouttracker/internal/observability"
)

// Repository provides Postgres-backed persistence for workouts, the user
// aggregates they maintain, and the outbox events they emit.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save implements the workout persistence transaction. The header insert is a
// standalone statement that allocates the workout id; everything else (nested
// rows, aggregate increments, daily volume, outbox event) happens inside one
// transaction. If that transaction fails, the header is removed again by a
// compensating delete so no half-written workout survives.
func (r *Repository) Save(ctx context.Context, workout domain.ValidatedWorkout) (string, error) {
	workoutID := uuid.NewString()
	createdAt := workout.CreatedAt.UTC()

	if _, err := r.pool.Exec(ctx,
		`INSERT INTO workouts (id, user_id, created_at) VALUES ($1,$2,$3)`,
		workoutID, workout.UserID, createdAt,
	); err != nil {
		return "", fmt.Errorf("%w: insert workout header: %v", domain.ErrPersistenceFailure, err)
	}

	if nestedErr := r.writeNested(ctx, workoutID, createdAt, workout); nestedErr != nil {
		if compErr := r.compensate(ctx, workoutID); compErr != nil {
			observability.RecordCompensationFailed()
			log.WithFields(log.Fields{
				"workout_id":   workoutID,
				"user_id":      workout.UserID,
				"nested_error": nestedErr.Error(),
				"delete_error": compErr.Error(),
			}).Error("compensating delete failed, orphaned workout header needs manual reconciliation")
			return "", fmt.Errorf("%w: workout %s: nested write: %v, header delete: %v",
				domain.ErrCompensationFailed, workoutID, nestedErr, compErr)
		}
		observability.RecordCompensation()
		return "", fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, nestedErr)
	}

	observability.RecordWorkoutPersisted(createdAt)
	return workoutID, nil
}

// writeNested inserts the workout_exercise and set rows, applies the aggregate
// updates as atomic in-SQL increments, and records the outbox event, all in a
// single transaction.
func (r *Repository) writeNested(ctx context.Context, workoutID string, createdAt time.Time, workout domain.ValidatedWorkout) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	var volume float64
	setCount := 0
	for exIdx, exercise := range workout.Exercises {
		exerciseRowID := uuid.NewString()
		if _, err = tx.Exec(ctx,
			`INSERT INTO workout_exercises (id, workout_id, exercise_id, position, created_at)
             VALUES ($1,$2,$3,$4,$5)`,
			exerciseRowID, workoutID, exercise.ExerciseID, exIdx, createdAt,
		); err != nil {
			return fmt.Errorf("insert workout_exercise %d: %w", exIdx, err)
		}

		for setIdx, set := range exercise.Sets {
			if _, err = tx.Exec(ctx,
				`INSERT INTO sets (id, workout_exercise_id, reps, weight_kg, position, created_at)
                 VALUES ($1,$2,$3,$4,$5,$6)`,
				uuid.NewString(), exerciseRowID, set.Reps, set.WeightKg, setIdx, createdAt,
			); err != nil {
				return fmt.Errorf("insert set %d of exercise %d: %w", setIdx, exIdx, err)
			}
			volume += float64(set.Reps) * set.WeightKg
			setCount++
		}
	}

	// The increments run in SQL so concurrent saves for the same user are
	// sequenced by the row lock, never lost to a read-modify-write race.
	tag, err := tx.Exec(ctx,
		`UPDATE users
            SET total_volume = total_volume + $1,
                total_workouts = total_workouts + 1,
                updated_at = NOW()
          WHERE id = $2`,
		volume, workout.UserID,
	)
	if err != nil {
		return fmt.Errorf("update user aggregates: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s not found", workout.UserID)
	}

	if _, err = tx.Exec(ctx,
		`INSERT INTO daily_volume (user_id, date, volume)
         VALUES ($1, $2::date, $3)
         ON CONFLICT (user_id, date)
         DO UPDATE SET volume = daily_volume.volume + EXCLUDED.volume`,
		workout.UserID, createdAt, volume,
	); err != nil {
		return fmt.Errorf("upsert daily volume: %w", err)
	}

	if err = insertOutbox(ctx, tx, "workout.saved", workoutID, workout.UserID, events.WorkoutSaved{
		WorkoutID:     workoutID,
		UserID:        workout.UserID,
		Volume:        volume,
		ExerciseCount: len(workout.Exercises),
		SetCount:      setCount,
		CreatedAt:     createdAt,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// compensate removes the workout header written before the failed nested
// write.
func (r *Repository) compensate(ctx context.Context, workoutID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM workouts WHERE id = $1`, workoutID)
	return err
}

// Get retrieves the full nested tree for a workout, exercises joined to their
// catalog entries and ordered by position. Returns (nil, nil) when no header
// row matches.
func (r *Repository) Get(ctx context.Context, workoutID string) (*domain.Workout, error) {
	var workout domain.Workout
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, created_at FROM workouts WHERE id = $1`,
		workoutID,
	).Scan(&workout.ID, &workout.UserID, &workout.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	const query = `SELECT we.id, we.exercise_id, we.position, we.created_at,
               ae.name, ae.primary_muscle_group, COALESCE(ae.secondary_muscle_group, ''),
               s.id, s.reps, s.weight_kg, s.position, s.created_at
          FROM workout_exercises we
          JOIN available_exercises ae ON ae.id = we.exercise_id
          JOIN sets s ON s.workout_exercise_id = we.id
         WHERE we.workout_id = $1
         ORDER BY we.position, s.position`

	rows, err := r.pool.Query(ctx, query, workoutID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	index := make(map[string]int)
	for rows.Next() {
		var (
			exercise domain.WorkoutExercise
			set      domain.Set
		)
		if err := rows.Scan(
			&exercise.ID, &exercise.ExerciseID, &exercise.Position, &exercise.CreatedAt,
			&exercise.Name, &exercise.PrimaryMuscleGroup, &exercise.SecondaryMuscleGroup,
			&set.ID, &set.Reps, &set.WeightKg, &set.Position, &set.CreatedAt,
		); err != nil {
			return nil, err
		}

		pos, seen := index[exercise.ID]
		if !seen {
			pos = len(workout.Exercises)
			index[exercise.ID] = pos
			workout.Exercises = append(workout.Exercises, exercise)
		}
		workout.Exercises[pos].Sets = append(workout.Exercises[pos].Sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &workout, nil
}

// List returns workout summaries for a user, newest first.
func (r *Repository) List(ctx context.Context, userID string, limit, offset int) ([]domain.WorkoutSummary, error) {
	const query = `SELECT w.id, w.created_at,
               COALESCE(SUM(s.reps * s.weight_kg), 0),
               COUNT(DISTINCT we.id),
               COUNT(s.id)
          FROM workouts w
          LEFT JOIN workout_exercises we ON we.workout_id = w.id
          LEFT JOIN sets s ON s.workout_exercise_id = we.id
         WHERE w.user_id = $1
         GROUP BY w.id, w.created_at
         ORDER BY w.created_at DESC, w.id DESC
         LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]domain.WorkoutSummary, 0, limit)
	for rows.Next() {
		var s domain.WorkoutSummary
		if err := rows.Scan(&s.ID, &s.CreatedAt, &s.Volume, &s.ExerciseCount, &s.SetCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

// Delete verifies ownership, removes the workout tree via the FK cascade, and
// reverses the aggregate updates, all in one transaction.
func (r *Repository) Delete(ctx context.Context, userID, workoutID string) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	var (
		owner     string
		createdAt time.Time
	)
	err = tx.QueryRow(ctx,
		`SELECT user_id, created_at FROM workouts WHERE id = $1 FOR UPDATE`,
		workoutID,
	).Scan(&owner, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrWorkoutNotFound
		}
		return fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}
	if owner != userID {
		return domain.ErrWorkoutAccessDenied
	}

	var volume float64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(s.reps * s.weight_kg), 0)
           FROM sets s
           JOIN workout_exercises we ON s.workout_exercise_id = we.id
          WHERE we.workout_id = $1`,
		workoutID,
	).Scan(&volume)
	if err != nil {
		return fmt.Errorf("%w: recompute volume: %v", domain.ErrPersistenceFailure, err)
	}

	// Child rows go with the header through ON DELETE CASCADE; no
	// application-level looped deletes that could partially fail.
	if _, err = tx.Exec(ctx, `DELETE FROM workouts WHERE id = $1`, workoutID); err != nil {
		return fmt.Errorf("%w: delete workout: %v", domain.ErrPersistenceFailure, err)
	}

	if _, err = tx.Exec(ctx,
		`UPDATE users
            SET total_volume = total_volume - $1,
                total_workouts = total_workouts - 1,
                updated_at = NOW()
          WHERE id = $2`,
		volume, userID,
	); err != nil {
		return fmt.Errorf("%w: reverse user aggregates: %v", domain.ErrPersistenceFailure, err)
	}

	if _, err = tx.Exec(ctx,
		`UPDATE daily_volume SET volume = volume - $1
          WHERE user_id = $2 AND date = $3::date`,
		volume, userID, createdAt,
	); err != nil {
		return fmt.Errorf("%w: adjust daily volume: %v", domain.ErrPersistenceFailure, err)
	}

	if err = insertOutbox(ctx, tx, "workout.deleted", workoutID, userID, events.WorkoutDeleted{
		WorkoutID: workoutID,
		UserID:    userID,
		Volume:    volume,
		DeletedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}

	observability.RecordWorkoutDeleted()
	return nil
}

// Stats reads the running aggregates from the users row.
func (r *Repository) Stats(ctx context.Context, userID string) (*domain.UserStats, error) {
	var stats domain.UserStats
	err := r.pool.QueryRow(ctx,
		`SELECT total_volume, total_workouts FROM users WHERE id = $1`,
		userID,
	).Scan(&stats.TotalVolume, &stats.TotalWorkouts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &stats, nil
}

// VolumeByDay returns the daily_volume series for the last N days.
func (r *Repository) VolumeByDay(ctx context.Context, userID string, days int) ([]domain.DailyVolume, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT date, volume FROM daily_volume
          WHERE user_id = $1 AND date >= CURRENT_DATE - ($2::int - 1)
          ORDER BY date DESC`,
		userID, days,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	series := make([]domain.DailyVolume, 0, days)
	for rows.Next() {
		var dv domain.DailyVolume
		if err := rows.Scan(&dv.Date, &dv.Volume); err != nil {
			return nil, err
		}
		series = append(series, dv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return series, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, eventType, workoutID, userID string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s", workoutID, eventType)

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err = tx.Exec(ctx, stmt,
		"workout",
		workoutID,
		eventType,
		meta.Topic,
		meta.PartitionKeyFn(workoutID, userID),
		body,
		dedupeKey,
	)
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	PartitionKeyFn func(workoutID, userID string) string
}

var eventCatalog = map[string]EventMetadata{
	"workout.saved": {
		Topic: "workout_events",
		PartitionKeyFn: func(workoutID, userID string) string {
			return userID
		},
	},
	"workout.deleted": {
		Topic: "workout_events",
		PartitionKeyFn: func(workoutID, userID string) string {
			return userID
		},
	},
}
