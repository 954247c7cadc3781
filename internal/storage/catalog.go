package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/edupoints/edupoints/internal/errs"
	"github.com/edupoints/edupoints/internal/models"
)

// UpsertCatalogItem creates or updates the price and availability fields the
// ledger needs. Richer content management lives outside the engine.
func UpsertCatalogItem(ctx context.Context, item models.CatalogItem) (models.CatalogItem, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}

	_, err := DB.ExecContext(ctx, `
		INSERT INTO catalog_items (id, name, category, unit_points, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, category = EXCLUDED.category,
			unit_points = EXCLUDED.unit_points, is_active = EXCLUDED.is_active;
	`, item.ID, item.Name, item.Category, item.UnitPoints, item.IsActive)
	if err != nil {
		return models.CatalogItem{}, err
	}

	return item, nil
}

func GetCatalogItem(ctx context.Context, itemID uuid.UUID) (models.CatalogItem, error) {
	var item models.CatalogItem

	err := DB.QueryRowContext(ctx, `
		SELECT id, name, category, unit_points, is_active FROM catalog_items WHERE id = $1;
	`, itemID).Scan(&item.ID, &item.Name, &item.Category, &item.UnitPoints, &item.IsActive)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CatalogItem{}, errs.NotFound("catalog item", itemID.String())
		}
		return models.CatalogItem{}, err
	}

	return item, nil
}

func ListCatalogItems(ctx context.Context, activeOnly bool) ([]models.CatalogItem, error) {
	query := `SELECT id, name, category, unit_points, is_active FROM catalog_items ORDER BY name;`
	if activeOnly {
		query = `SELECT id, name, category, unit_points, is_active FROM catalog_items WHERE is_active ORDER BY name;`
	}

	rows, err := DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.CatalogItem
	for rows.Next() {
		var item models.CatalogItem
		err = rows.Scan(&item.ID, &item.Name, &item.Category, &item.UnitPoints, &item.IsActive)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}
