package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	workoutPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "workout_tracker",
		Subsystem: "persistence",
		Name:      "last_workout_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent workout persisted to Postgres.",
	})
	workoutsSavedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "workout_tracker",
		Subsystem: "persistence",
		Name:      "workouts_saved_total",
		Help:      "Number of workouts durably written, nested rows and aggregates included.",
	})
	workoutsDeletedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "workout_tracker",
		Subsystem: "persistence",
		Name:      "workouts_deleted_total",
		Help:      "Number of workouts removed with their aggregate effects reversed.",
	})
	compensationsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "workout_tracker",
		Subsystem: "persistence",
		Name:      "compensating_deletes_total",
		Help:      "Number of workout headers rolled back after a nested-write failure.",
	})
	compensationFailedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "workout_tracker",
		Subsystem: "persistence",
		Name:      "compensation_failed_total",
		Help:      "Number of compensating deletes that themselves failed, leaving an orphaned workout header that needs manual reconciliation.",
	})
)

func init() {
	prometheus.MustRegister(
		workoutPersistGauge,
		workoutsSavedCounter,
		workoutsDeletedCounter,
		compensationsCounter,
		compensationFailedCounter,
	)
}

// RecordWorkoutPersisted updates the persistence watermark gauge and counter.
func RecordWorkoutPersisted(ts time.Time) {
	workoutsSavedCounter.Inc()
	if ts.IsZero() {
		return
	}
	workoutPersistGauge.Set(float64(ts.Unix()))
}

// RecordWorkoutDeleted counts a completed deletion.
func RecordWorkoutDeleted() {
	workoutsDeletedCounter.Inc()
}

// RecordCompensation counts a successful compensating delete.
func RecordCompensation() {
	compensationsCounter.Inc()
}

// RecordCompensationFailed counts a failed compensating delete. Alerting is
// expected to fire on any increase of this counter.
func RecordCompensationFailed() {
	compensationFailedCounter.Inc()
}
