// Package domain defines the business logic for the workout tracker.
package domain

import (
	"context"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
)

// WorkoutRepository captures persistence operations for workouts and the
// aggregates they maintain.
type WorkoutRepository interface {
	// Save persists the workout atomically: either the header, every
	// workout_exercise and set row, and the aggregate updates are all
	// durable, or none of them survive. Returns the allocated workout id.
	Save(ctx context.Context, workout ValidatedWorkout) (string, error)
	Get(ctx context.Context, workoutID string) (*Workout, error)
	List(ctx context.Context, userID string, limit, offset int) ([]WorkoutSummary, error)
	// Delete verifies ownership, cascade-deletes the workout tree, and
	// reverses the aggregate updates in one transaction.
	Delete(ctx context.Context, userID, workoutID string) error
	Stats(ctx context.Context, userID string) (*UserStats, error)
	VolumeByDay(ctx context.Context, userID string, days int) ([]DailyVolume, error)
}

// Service orchestrates workout workflows: validate, persist, query, delete.
type Service struct {
	repo    WorkoutRepository
	catalog CatalogChecker
}

// NewService constructs a Service.
func NewService(repo WorkoutRepository, catalog CatalogChecker) *Service {
	return &Service{repo: repo, catalog: catalog}
}

// SaveWorkout validates the submission and hands it to the transaction
// writer. The client-sent total volume is advisory; when it disagrees with
// the server-side recomputation the server value wins and the mismatch is
// logged.
func (s *Service) SaveWorkout(ctx context.Context, userID string, sub WorkoutSubmission) (string, error) {
	validated, err := ValidateWorkout(ctx, userID, sub, s.catalog)
	if err != nil {
		return "", err
	}

	if validated.CreatedAt.IsZero() {
		validated.CreatedAt = time.Now().UTC()
	}

	if sub.TotalVolume != 0 {
		if computed := validated.Volume(); math.Abs(computed-sub.TotalVolume) > 1e-9 {
			log.WithFields(log.Fields{
				"user_id":         userID,
				"client_volume":   sub.TotalVolume,
				"computed_volume": computed,
			}).Warn("client-submitted volume disagrees with server recomputation")
		}
	}

	return s.repo.Save(ctx, *validated)
}

// GetWorkout fetches the full nested tree and enforces ownership. A workout
// owned by another user is never returned, not even partially.
func (s *Service) GetWorkout(ctx context.Context, userID, workoutID string) (*Workout, error) {
	workout, err := s.repo.Get(ctx, workoutID)
	if err != nil {
		return nil, err
	}
	if workout == nil {
		return nil, ErrWorkoutNotFound
	}
	if workout.UserID != userID {
		return nil, ErrWorkoutAccessDenied
	}
	return workout, nil
}

// ListWorkouts returns the user's workouts newest first, paginated via
// offset/limit with a (page-1)*pageSize start.
func (s *Service) ListWorkouts(ctx context.Context, userID string, page, pageSize int) ([]WorkoutSummary, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize
	return s.repo.List(ctx, userID, pageSize, offset)
}

// DeleteWorkout removes a workout and reverses its effect on the user's
// aggregates. Ownership is verified inside the repository transaction so a
// concurrent delete cannot slip between check and removal.
func (s *Service) DeleteWorkout(ctx context.Context, userID, workoutID string) error {
	return s.repo.Delete(ctx, userID, workoutID)
}

// UserStats reads the running aggregate counters for the user.
func (s *Service) UserStats(ctx context.Context, userID string) (*UserStats, error) {
	return s.repo.Stats(ctx, userID)
}

// VolumeByDay returns the per-day volume series for the last N days, most
// recent first.
func (s *Service) VolumeByDay(ctx context.Context, userID string, days int) ([]DailyVolume, error) {
	return s.repo.VolumeByDay(ctx, userID, days)
}
