package auth

// Known OAuth scopes used by the workout tracker.
const (
	ScopeWorkoutsWrite = "workouts:write"
	ScopeWorkoutsRead  = "workouts:read"
)
