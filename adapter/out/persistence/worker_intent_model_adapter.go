package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"triage_worker/core/port/out"
	"triage_worker/pkg/apperr"
)

// IntentModelAdapter implements out.IntentModelStore on Postgres.
type IntentModelAdapter struct {
	db *pgxpool.Pool
}

// NewIntentModelAdapter creates the adapter.
func NewIntentModelAdapter(db *pgxpool.Pool) *IntentModelAdapter {
	return &IntentModelAdapter{db: db}
}

// LoadModel reads the linear head parameters of one model version. Class
// order is part of the model: argmax ties break to the earlier row.
func (a *IntentModelAdapter) LoadModel(ctx context.Context, version string) (*out.IntentModel, error) {
	const query = `
		SELECT label, weights, bias, category_ids
		FROM intent_model_classes
		WHERE model_version = $1
		ORDER BY position`

	rows, err := a.db.Query(ctx, query, version)
	if err != nil {
		return nil, fmt.Errorf("failed to load intent model %s: %w", version, err)
	}
	defer rows.Close()

	model := &out.IntentModel{Version: version}
	for rows.Next() {
		var class out.IntentClass
		if err := rows.Scan(&class.Label, &class.Weights, &class.Bias, &class.Categories); err != nil {
			return nil, fmt.Errorf("failed to scan intent class: %w", err)
		}
		model.Classes = append(model.Classes, class)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate intent classes: %w", err)
	}

	if len(model.Classes) == 0 {
		return nil, apperr.ConfigError("intent model version has no classes").
			WithDetail("model_version", version)
	}
	return model, nil
}
