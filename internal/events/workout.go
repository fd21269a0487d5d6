// Package events defines the payloads published through the outbox.
package events

import "time"

// WorkoutSaved is emitted after a workout and its aggregates are durably
// written.
type WorkoutSaved struct {
	WorkoutID     string    `json:"workout_id"`
	UserID        string    `json:"user_id"`
	Volume        float64   `json:"volume"`
	ExerciseCount int       `json:"exercise_count"`
	SetCount      int       `json:"set_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// WorkoutDeleted is emitted after a workout is removed and its aggregate
// effects reversed.
type WorkoutDeleted struct {
	WorkoutID string    `json:"workout_id"`
	UserID    string    `json:"user_id"`
	Volume    float64   `json:"volume"`
	DeletedAt time.Time `json:"deleted_at"`
}
