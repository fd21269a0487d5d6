package domain

import (
	"context"
	"fmt"
	"strings"
)

// CatalogChecker is the slice of the catalog the validator needs: resolving a
// batch of exercise ids to known/unknown.
type CatalogChecker interface {
	KnownExercises(ctx context.Context, ids []string) (map[string]bool, error)
}

// ValidateWorkout checks a submission against the business rules and returns
// the normalized workout, or a ValidationError listing every violation found.
// Rules are evaluated in order but never short-circuit, so the caller always
// receives the complete list. The authenticated user id is a precondition
// handled upstream; it is never part of the collected violations.
func ValidateWorkout(ctx context.Context, userID string, sub WorkoutSubmission, catalog CatalogChecker) (*ValidatedWorkout, error) {
	var violations []FieldViolation

	if len(sub.Exercises) == 0 {
		violations = append(violations, FieldViolation{
			Field:   "exercises",
			Message: "at least one exercise required",
		})
	}

	ids := make([]string, 0, len(sub.Exercises))
	for _, ex := range sub.Exercises {
		if strings.TrimSpace(ex.ExerciseID) != "" {
			ids = append(ids, ex.ExerciseID)
		}
	}

	known := map[string]bool{}
	if len(ids) > 0 {
		resolved, err := catalog.KnownExercises(ctx, ids)
		if err != nil {
			return nil, err
		}
		known = resolved
	}

	for i, ex := range sub.Exercises {
		if strings.TrimSpace(ex.ExerciseID) == "" {
			violations = append(violations, FieldViolation{
				Field:   fmt.Sprintf("exercises[%d].exercise_id", i),
				Message: "exercise_id is required",
			})
		} else if !known[ex.ExerciseID] {
			violations = append(violations, FieldViolation{
				Field:   fmt.Sprintf("exercises[%d].exercise_id", i),
				Message: fmt.Sprintf("unknown exercise %q", ex.ExerciseID),
			})
		}

		if len(ex.Sets) == 0 {
			violations = append(violations, FieldViolation{
				Field:   fmt.Sprintf("exercises[%d].sets", i),
				Message: "at least one set required",
			})
		}

		for j, set := range ex.Sets {
			if set.Reps < 1 {
				violations = append(violations, FieldViolation{
					Field:   fmt.Sprintf("exercises[%d].sets[%d].reps", i, j),
					Message: "reps must be >= 1",
				})
			}
			if set.WeightKg < 0 {
				violations = append(violations, FieldViolation{
					Field:   fmt.Sprintf("exercises[%d].sets[%d].weight_kg", i, j),
					Message: "weight_kg must be >= 0",
				})
			}
		}
	}

	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	validated := &ValidatedWorkout{
		UserID:    userID,
		CreatedAt: sub.CreatedAt,
		Exercises: make([]ValidatedExercise, 0, len(sub.Exercises)),
	}
	for _, ex := range sub.Exercises {
		ve := ValidatedExercise{
			ExerciseID: ex.ExerciseID,
			Name:       ex.Name,
			Sets:       make([]ValidatedSet, 0, len(ex.Sets)),
		}
		for _, set := range ex.Sets {
			ve.Sets = append(ve.Sets, ValidatedSet{Reps: set.Reps, WeightKg: set.WeightKg})
		}
		validated.Exercises = append(validated.Exercises, ve)
	}

	return validated, nil
}
