package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/workouttracker/internal/domain"
)

// CatalogRepository reads the immutable available_exercises table. The
// catalog is seeded by migration and never written by the service.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository constructs a CatalogRepository.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// ListAll returns every catalog exercise.
func (r *CatalogRepository) ListAll(ctx context.Context) ([]domain.Exercise, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, primary_muscle_group, COALESCE(secondary_muscle_group, '')
           FROM available_exercises`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exercises []domain.Exercise
	for rows.Next() {
		var ex domain.Exercise
		if err := rows.Scan(&ex.ID, &ex.Name, &ex.PrimaryMuscleGroup, &ex.SecondaryMuscleGroup); err != nil {
			return nil, err
		}
		exercises = append(exercises, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return exercises, nil
}

// Exists resolves a batch of exercise ids against the catalog.
func (r *CatalogRepository) Exists(ctx context.Context, ids []string) (map[string]bool, error) {
	known := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return known, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id FROM available_exercises WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		known[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return known, nil
}
