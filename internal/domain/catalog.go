package domain

import (
	"context"
	"fmt"
	"sort"
)

// Exercise is an immutable catalog entry. The catalog is reference data seeded
// out of band; the service only ever reads it.
type Exercise struct {
	ID                   string
	Name                 string
	PrimaryMuscleGroup   string
	SecondaryMuscleGroup string
}

// Catalog bundles the two shapes the API serves: exercises grouped by primary
// muscle group, and the flat list.
type Catalog struct {
	Grouped map[string][]Exercise
	Flat    []Exercise
}

// CatalogRepository captures read-only catalog persistence.
type CatalogRepository interface {
	ListAll(ctx context.Context) ([]Exercise, error)
	Exists(ctx context.Context, ids []string) (map[string]bool, error)
}

// CatalogService exposes the exercise catalog reader.
type CatalogService struct {
	repo CatalogRepository
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(repo CatalogRepository) *CatalogService {
	return &CatalogService{repo: repo}
}

// ListExercises returns the catalog grouped by primary muscle group plus the
// flat list sorted by name. A backing-store failure surfaces as
// ErrCatalogUnavailable; retries are the caller's responsibility.
func (s *CatalogService) ListExercises(ctx context.Context) (Catalog, error) {
	exercises, err := s.repo.ListAll(ctx)
	if err != nil {
		return Catalog{}, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}

	sort.Slice(exercises, func(i, j int) bool {
		return exercises[i].Name < exercises[j].Name
	})

	grouped := make(map[string][]Exercise)
	for _, ex := range exercises {
		grouped[ex.PrimaryMuscleGroup] = append(grouped[ex.PrimaryMuscleGroup], ex)
	}

	return Catalog{Grouped: grouped, Flat: exercises}, nil
}

// KnownExercises resolves the given ids against the catalog. Used by the
// workout validator before persistence is attempted.
func (s *CatalogService) KnownExercises(ctx context.Context, ids []string) (map[string]bool, error) {
	known, err := s.repo.Exists(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	return known, nil
}
