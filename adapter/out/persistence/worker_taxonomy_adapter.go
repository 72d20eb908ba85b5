// Package persistence provides the Postgres adapters that load the versioned
// taxonomy and intent model snapshots at activation time.
package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"triage_worker/core/domain"
	"triage_worker/pkg/apperr"
)

// TaxonomyAdapter implements out.TaxonomyStore on Postgres. Snapshots are
// read-only; activation loads everything for one version into memory and the
// pipeline never touches the tables again.
type TaxonomyAdapter struct {
	db *pgxpool.Pool
}

// NewTaxonomyAdapter creates the adapter.
func NewTaxonomyAdapter(db *pgxpool.Pool) *TaxonomyAdapter {
	return &TaxonomyAdapter{db: db}
}

// LoadSnapshot reads every category of the version (including non-approved
// ones; the snapshot filters) together with its exemplar vectors.
func (a *TaxonomyAdapter) LoadSnapshot(ctx context.Context, taxonomyVersion, embedModelVersion string) (*domain.TaxonomySnapshot, error) {
	const categoryQuery = `
		SELECT category_id, label, status
		FROM taxonomy_categories
		WHERE taxonomy_version = $1 AND embed_model_version = $2
		ORDER BY category_id`

	rows, err := a.db.Query(ctx, categoryQuery, taxonomyVersion, embedModelVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to load taxonomy categories: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*domain.TaxonomyCategory)
	order := make([]string, 0)
	for rows.Next() {
		var cat domain.TaxonomyCategory
		var status string
		if err := rows.Scan(&cat.ID, &cat.Label, &status); err != nil {
			return nil, fmt.Errorf("failed to scan taxonomy category: %w", err)
		}
		cat.Status = domain.ApprovalStatus(status)
		byID[cat.ID] = &cat
		order = append(order, cat.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate taxonomy categories: %w", err)
	}

	if err := a.loadExemplars(ctx, taxonomyVersion, byID); err != nil {
		return nil, err
	}

	categories := make([]domain.TaxonomyCategory, 0, len(order))
	for _, id := range order {
		categories = append(categories, *byID[id])
	}

	snapshot := domain.NewTaxonomySnapshot(taxonomyVersion, embedModelVersion, categories)
	if snapshot.Empty() {
		return nil, apperr.TaxonomyUnavailable(taxonomyVersion)
	}
	return snapshot, nil
}

func (a *TaxonomyAdapter) loadExemplars(ctx context.Context, taxonomyVersion string, byID map[string]*domain.TaxonomyCategory) error {
	const exemplarQuery = `
		SELECT category_id, vector
		FROM taxonomy_exemplars
		WHERE taxonomy_version = $1
		ORDER BY category_id, position`

	rows, err := a.db.Query(ctx, exemplarQuery, taxonomyVersion)
	if err != nil {
		return fmt.Errorf("failed to load taxonomy exemplars: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var categoryID string
		var vector []float32
		if err := rows.Scan(&categoryID, &vector); err != nil {
			return fmt.Errorf("failed to scan taxonomy exemplar: %w", err)
		}
		if cat, ok := byID[categoryID]; ok {
			cat.Exemplars = append(cat.Exemplars, vector)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate taxonomy exemplars: %w", err)
	}
	return nil
}
