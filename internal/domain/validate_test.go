package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubCatalog struct {
	known map[string]bool
	err   error
}

func (s *stubCatalog) KnownExercises(ctx context.Context, ids []string) (map[string]bool, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = s.known[id]
	}
	return out, nil
}

func TestValidateWorkoutAccepts(t *testing.T) {
	catalog := &stubCatalog{known: map[string]bool{"bench-press": true, "squats": true}}

	sub := WorkoutSubmission{
		Exercises: []ExerciseSubmission{
			{
				ExerciseID: "bench-press",
				Name:       "Bench Press",
				Sets: []SetSubmission{
					{Reps: 10, WeightKg: 50},
					{Reps: 8, WeightKg: 60},
				},
			},
			{
				ExerciseID: "squats",
				Name:       "Squats",
				Sets:       []SetSubmission{{Reps: 5, WeightKg: 100}},
			},
		},
	}

	validated, err := ValidateWorkout(context.Background(), "user-1", sub, catalog)
	require.NoError(t, err)
	require.Equal(t, "user-1", validated.UserID)
	require.Len(t, validated.Exercises, 2)
	require.InDelta(t, 10*50+8*60+5*100, validated.Volume(), 1e-9)
}

func TestValidateWorkoutRejectsEmptyExercises(t *testing.T) {
	catalog := &stubCatalog{}

	_, err := ValidateWorkout(context.Background(), "user-1", WorkoutSubmission{}, catalog)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Len(t, validationErr.Violations, 1)
	require.Equal(t, "exercises", validationErr.Violations[0].Field)
}

func TestValidateWorkoutCollectsAllViolations(t *testing.T) {
	catalog := &stubCatalog{known: map[string]bool{"bench-press": true}}

	sub := WorkoutSubmission{
		Exercises: []ExerciseSubmission{
			{
				ExerciseID: "bench-press",
				Sets:       []SetSubmission{{Reps: 0, WeightKg: -5}},
			},
			{
				ExerciseID: "mystery-machine",
				Sets:       nil,
			},
			{
				ExerciseID: "",
				Sets:       []SetSubmission{{Reps: 3, WeightKg: 20}},
			},
		},
	}

	_, err := ValidateWorkout(context.Background(), "user-1", sub, catalog)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)

	fields := make([]string, 0, len(validationErr.Violations))
	for _, v := range validationErr.Violations {
		fields = append(fields, v.Field)
	}
	require.ElementsMatch(t, []string{
		"exercises[0].sets[0].reps",
		"exercises[0].sets[0].weight_kg",
		"exercises[1].exercise_id",
		"exercises[1].sets",
		"exercises[2].exercise_id",
	}, fields)
}

func TestValidateWorkoutZeroWeightSetIsValid(t *testing.T) {
	catalog := &stubCatalog{known: map[string]bool{"pull-up": true}}

	sub := WorkoutSubmission{
		Exercises: []ExerciseSubmission{
			{ExerciseID: "pull-up", Sets: []SetSubmission{{Reps: 12, WeightKg: 0}}},
		},
	}

	validated, err := ValidateWorkout(context.Background(), "user-1", sub, catalog)
	require.NoError(t, err)
	require.Zero(t, validated.Volume())
}

func TestValidateWorkoutPropagatesCatalogFailure(t *testing.T) {
	catalogErr := errors.New("connection refused")
	catalog := &stubCatalog{err: catalogErr}

	sub := WorkoutSubmission{
		Exercises: []ExerciseSubmission{
			{ExerciseID: "bench-press", Sets: []SetSubmission{{Reps: 10, WeightKg: 40}}},
		},
	}

	_, err := ValidateWorkout(context.Background(), "user-1", sub, catalog)
	require.ErrorIs(t, err, catalogErr)

	var validationErr *ValidationError
	require.False(t, errors.As(err, &validationErr), "catalog failures must not surface as validation errors")
}
