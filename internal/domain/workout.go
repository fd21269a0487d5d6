package domain

import "time"

// Set is a single performed set within a workout exercise.
type Set struct {
	ID        string
	Reps      int
	WeightKg  float64
	Position  int
	CreatedAt time.Time
}

// WorkoutExercise is one exercise performed during a workout, joined to its
// catalog entry for display.
type WorkoutExercise struct {
	ID                   string
	ExerciseID           string
	Name                 string
	PrimaryMuscleGroup   string
	SecondaryMuscleGroup string
	Position             int
	Sets                 []Set
	CreatedAt            time.Time
}

// Workout is the full nested tree stored in PostgreSQL: header plus exercises
// plus sets.
type Workout struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	Exercises []WorkoutExercise
}

// Volume returns the total volume of the workout in kg*reps.
func (w Workout) Volume() float64 {
	var total float64
	for _, ex := range w.Exercises {
		for _, set := range ex.Sets {
			total += float64(set.Reps) * set.WeightKg
		}
	}
	return total
}

// WorkoutSummary is the list-view projection of a workout.
type WorkoutSummary struct {
	ID            string
	CreatedAt     time.Time
	Volume        float64
	ExerciseCount int
	SetCount      int
}

// UserStats carries the running aggregates kept on the users row. They are
// maintained by atomic increments at save/delete time, never recomputed on read.
type UserStats struct {
	TotalVolume   float64
	TotalWorkouts int
}

// DailyVolume is one point of the per-user volume time series.
type DailyVolume struct {
	Date   time.Time
	Volume float64
}

// SetSubmission is a proposed set as sent by the client.
type SetSubmission struct {
	Reps     int
	WeightKg float64
}

// ExerciseSubmission is a proposed exercise with its sets.
type ExerciseSubmission struct {
	ExerciseID string
	Name       string
	Sets       []SetSubmission
}

// WorkoutSubmission is the raw payload handed to the validator. TotalVolume is
// advisory only; the authoritative volume is recomputed at persistence time.
type WorkoutSubmission struct {
	TotalVolume float64
	CreatedAt   time.Time
	Exercises   []ExerciseSubmission
}

// ValidatedSet mirrors SetSubmission after the business rules passed.
type ValidatedSet struct {
	Reps     int
	WeightKg float64
}

// ValidatedExercise is a normalized (exercise_id, name, sets) triple.
type ValidatedExercise struct {
	ExerciseID string
	Name       string
	Sets       []ValidatedSet
}

// ValidatedWorkout is the normalized structure the transaction writer accepts.
type ValidatedWorkout struct {
	UserID    string
	CreatedAt time.Time
	Exercises []ValidatedExercise
}

// Volume computes the authoritative total volume as sum(reps * weight_kg)
// over all sets. Zero-weight sets contribute 0 but remain valid sets.
func (v ValidatedWorkout) Volume() float64 {
	var total float64
	for _, ex := range v.Exercises {
		for _, set := range ex.Sets {
			total += float64(set.Reps) * set.WeightKg
		}
	}
	return total
}
