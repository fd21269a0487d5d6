// Package api exposes HTTP handlers for the workout tracker.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"example.com/workouttracker/internal/auth"
	"example.com/workouttracker/internal/domain"
	"example.com/workouttracker/internal/persistence"
)

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	workouts *domain.Service
	catalog  *domain.CatalogService
}

// NewHandler builds a Handler.
func NewHandler(workouts *domain.Service, catalog *domain.CatalogService) *Handler {
	return &Handler{workouts: workouts, catalog: catalog}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/workouts", h.workoutsRoot)
	mux.HandleFunc("/v1/workouts/", h.workoutByID)
	mux.HandleFunc("/v1/exercises", h.listExercises)
	mux.HandleFunc("/v1/users/me/stats", h.userStats)
	mux.HandleFunc("/v1/users/me/volume", h.userVolume)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) workoutsRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.saveWorkout(w, r)
	case http.MethodGet:
		h.listWorkouts(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) workoutByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/workouts/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing workout id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getWorkout(w, r, id)
	case http.MethodDelete:
		h.deleteWorkout(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

// saveWorkout persists a submitted workout. Saves are not idempotent: a
// caller that times out must re-query its workout list before retrying,
// otherwise the retry can create a duplicate.
func (h *Handler) saveWorkout(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeWorkoutsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope workouts:write required")
		return
	}

	var req SaveWorkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if req.UserID != "" && req.UserID != claims.Subject {
		writeError(w, http.StatusForbidden, "forbidden", "payload user does not match authenticated principal")
		return
	}

	id, err := h.workouts.SaveWorkout(r.Context(), claims.Subject, req.toSubmission())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SaveWorkoutResponse{Success: true, ID: id})
}

func (h *Handler) getWorkout(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeWorkoutsRead) && !claims.HasScope(auth.ScopeWorkoutsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope workouts:read required")
		return
	}

	workout, err := h.workouts.GetWorkout(r.Context(), claims.Subject, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toWorkoutView(*workout))
}

func (h *Handler) listWorkouts(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeWorkoutsRead) && !claims.HasScope(auth.ScopeWorkoutsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope workouts:read required")
		return
	}

	page := persistence.ClampPage(queryInt(r, "page", 1))
	pageSize := persistence.ClampPageSize(queryInt(r, "page_size", persistence.DefaultPageSize))

	summaries, err := h.workouts.ListWorkouts(r.Context(), claims.Subject, page, pageSize)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	items := make([]WorkoutSummaryView, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, WorkoutSummaryView{
			ID:            s.ID,
			CreatedAt:     s.CreatedAt,
			TotalVolume:   s.Volume,
			ExerciseCount: s.ExerciseCount,
			SetCount:      s.SetCount,
		})
	}

	writeJSON(w, http.StatusOK, ListWorkoutsResponse{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
	})
}

func (h *Handler) deleteWorkout(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeWorkoutsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope workouts:write required")
		return
	}

	if err := h.workouts.DeleteWorkout(r.Context(), claims.Subject, id); err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DeleteWorkoutResponse{DeletedID: id})
}

func (h *Handler) listExercises(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	// The catalog needs no scope beyond general authenticated API access.
	if _, ok := auth.FromContext(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	catalog, err := h.catalog.ListExercises(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	grouped := make(map[string][]ExerciseView, len(catalog.Grouped))
	for group, exercises := range catalog.Grouped {
		views := make([]ExerciseView, 0, len(exercises))
		for _, ex := range exercises {
			views = append(views, toExerciseView(ex))
		}
		grouped[group] = views
	}

	flat := make([]ExerciseView, 0, len(catalog.Flat))
	for _, ex := range catalog.Flat {
		flat = append(flat, toExerciseView(ex))
	}

	writeJSON(w, http.StatusOK, CatalogResponse{Grouped: grouped, Flat: flat})
}

func (h *Handler) userStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeWorkoutsRead) && !claims.HasScope(auth.ScopeWorkoutsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope workouts:read required")
		return
	}

	stats, err := h.workouts.UserStats(r.Context(), claims.Subject)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UserStatsResponse{
		TotalVolume:   stats.TotalVolume,
		TotalWorkouts: stats.TotalWorkouts,
	})
}

func (h *Handler) userVolume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeWorkoutsRead) && !claims.HasScope(auth.ScopeWorkoutsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope workouts:read required")
		return
	}

	days := queryInt(r, "days", 30)
	if days < 1 {
		days = 30
	}
	if days > 365 {
		days = 365
	}

	series, err := h.workouts.VolumeByDay(r.Context(), claims.Subject, days)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	points := make([]DailyVolumeView, 0, len(series))
	for _, dv := range series {
		points = append(points, DailyVolumeView{
			Date:   dv.Date.Format("2006-01-02"),
			Volume: dv.Volume,
		})
	}

	writeJSON(w, http.StatusOK, DailyVolumeResponse{Days: days, Points: points})
}

// writeDomainError maps domain failures onto the HTTP error contract. Storage
// details never leak to the client; the full cause is logged server-side.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Type:       "validation_failed",
			Detail:     "workout payload failed validation",
			Violations: validationErr.Violations,
		})
	case errors.Is(err, domain.ErrWorkoutNotFound):
		writeError(w, http.StatusNotFound, "not_found", "workout not found")
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not_found", "user not found")
	case errors.Is(err, domain.ErrWorkoutAccessDenied):
		writeError(w, http.StatusForbidden, "forbidden", "workout belongs to another user")
	case errors.Is(err, domain.ErrCatalogUnavailable):
		log.Errorf("exercise catalog read failed: %v", err)
		writeError(w, http.StatusInternalServerError, "catalog_unavailable", "exercise catalog unavailable")
	default:
		log.Errorf("workout request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal server error")
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

// SetPayload is a proposed set in a save request.
type SetPayload struct {
	Reps     int     `json:"reps"`
	WeightKg float64 `json:"weight_kg"`
}

// ExercisePayload is a proposed exercise with its sets.
type ExercisePayload struct {
	ExerciseID string       `json:"exercise_id"`
	Name       string       `json:"name"`
	Sets       []SetPayload `json:"sets"`
}

// SaveWorkoutRequest is the payload for POST /v1/workouts. TotalVolume is
// advisory only; the server recomputes the authoritative value.
type SaveWorkoutRequest struct {
	UserID      string            `json:"user_id,omitempty"`
	Exercises   []ExercisePayload `json:"exercises"`
	TotalVolume float64           `json:"totalVolume"`
	CreatedAt   time.Time         `json:"created_at"`
}

func (r SaveWorkoutRequest) toSubmission() domain.WorkoutSubmission {
	sub := domain.WorkoutSubmission{
		TotalVolume: r.TotalVolume,
		CreatedAt:   r.CreatedAt,
		Exercises:   make([]domain.ExerciseSubmission, 0, len(r.Exercises)),
	}
	for _, ex := range r.Exercises {
		sets := make([]domain.SetSubmission, 0, len(ex.Sets))
		for _, set := range ex.Sets {
			sets = append(sets, domain.SetSubmission{Reps: set.Reps, WeightKg: set.WeightKg})
		}
		sub.Exercises = append(sub.Exercises, domain.ExerciseSubmission{
			ExerciseID: ex.ExerciseID,
			Name:       ex.Name,
			Sets:       sets,
		})
	}
	return sub
}

// SaveWorkoutResponse describes the response body for a save.
type SaveWorkoutResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// DeleteWorkoutResponse confirms a deletion.
type DeleteWorkoutResponse struct {
	DeletedID string `json:"deleted_id"`
}

// SetView exposes a stored set.
type SetView struct {
	ID       string  `json:"id"`
	Reps     int     `json:"reps"`
	WeightKg float64 `json:"weight_kg"`
	Position int     `json:"position"`
}

// WorkoutExerciseView exposes a stored exercise with its catalog details.
type WorkoutExerciseView struct {
	ID                   string    `json:"id"`
	ExerciseID           string    `json:"exercise_id"`
	Name                 string    `json:"name"`
	PrimaryMuscleGroup   string    `json:"primary_muscle_group"`
	SecondaryMuscleGroup string    `json:"secondary_muscle_group,omitempty"`
	Position             int       `json:"position"`
	Sets                 []SetView `json:"sets"`
}

// WorkoutView exposes the full nested tree of a workout.
type WorkoutView struct {
	ID          string                `json:"id"`
	UserID      string                `json:"user_id"`
	CreatedAt   time.Time             `json:"created_at"`
	TotalVolume float64               `json:"total_volume"`
	Exercises   []WorkoutExerciseView `json:"exercises"`
}

// WorkoutSummaryView is the list-view projection.
type WorkoutSummaryView struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	TotalVolume   float64   `json:"total_volume"`
	ExerciseCount int       `json:"exercise_count"`
	SetCount      int       `json:"set_count"`
}

// ListWorkoutsResponse packages list results.
type ListWorkoutsResponse struct {
	Items    []WorkoutSummaryView `json:"items"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

// ExerciseView exposes a catalog entry.
type ExerciseView struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	PrimaryMuscleGroup   string `json:"primary_muscle_group"`
	SecondaryMuscleGroup string `json:"secondary_muscle_group,omitempty"`
}

// CatalogResponse serves the catalog grouped by primary muscle group plus the
// flat list.
type CatalogResponse struct {
	Grouped map[string][]ExerciseView `json:"grouped"`
	Flat    []ExerciseView            `json:"flat"`
}

// UserStatsResponse exposes the running aggregates.
type UserStatsResponse struct {
	TotalVolume   float64 `json:"total_volume"`
	TotalWorkouts int     `json:"total_workouts"`
}

// DailyVolumeView is one point of the volume time series.
type DailyVolumeView struct {
	Date   string  `json:"date"`
	Volume float64 `json:"volume"`
}

// DailyVolumeResponse packages the volume series.
type DailyVolumeResponse struct {
	Days   int               `json:"days"`
	Points []DailyVolumeView `json:"points"`
}

// ValidationErrorResponse carries the complete violation list for a rejected
// submission.
type ValidationErrorResponse struct {
	Type       string                  `json:"type"`
	Detail     string                  `json:"detail"`
	Violations []domain.FieldViolation `json:"violations"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toExerciseView(ex domain.Exercise) ExerciseView {
	return ExerciseView{
		ID:                   ex.ID,
		Name:                 ex.Name,
		PrimaryMuscleGroup:   ex.PrimaryMuscleGroup,
		SecondaryMuscleGroup: ex.SecondaryMuscleGroup,
	}
}

func toWorkoutView(workout domain.Workout) WorkoutView {
	view := WorkoutView{
		ID:          workout.ID,
		UserID:      workout.UserID,
		CreatedAt:   workout.CreatedAt,
		TotalVolume: workout.Volume(),
		Exercises:   make([]WorkoutExerciseView, 0, len(workout.Exercises)),
	}
	for _, ex := range workout.Exercises {
		exView := WorkoutExerciseView{
			ID:                   ex.ID,
			ExerciseID:           ex.ExerciseID,
			Name:                 ex.Name,
			PrimaryMuscleGroup:   ex.PrimaryMuscleGroup,
			SecondaryMuscleGroup: ex.SecondaryMuscleGroup,
			Position:             ex.Position,
			Sets:                 make([]SetView, 0, len(ex.Sets)),
		}
		for _, set := range ex.Sets {
			exView.Sets = append(exView.Sets, SetView{
				ID:       set.ID,
				Reps:     set.Reps,
				WeightKg: set.WeightKg,
				Position: set.Position,
			})
		}
		view.Exercises = append(view.Exercises, exView)
	}
	return view
}
