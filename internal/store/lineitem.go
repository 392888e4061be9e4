package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/nutriledger/internal/model"
	"github.com/dukerupert/nutriledger/internal/nutrition"
)

// MaxGrams rejects masses that can only be input mistakes.
const MaxGrams = 10000.0

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// itemTable describes one of the two line item tables. Both share the same
// shape and differ only in the parent column.
type itemTable struct {
	name      string
	parentCol string
}

var (
	mealItems    = itemTable{name: "meal_items", parentCol: "meal_id"}
	historyItems = itemTable{name: "history_items", parentCol: "history_id"}
)

func validateItems(items []model.ItemInput) error {
	for i, item := range items {
		if item.FoodID <= 0 {
			return validationf("items[%d]: food_id must be positive", i)
		}
		if !(item.Grams > 0) || item.Grams > MaxGrams {
			return validationf("items[%d]: grams must be > 0 and <= %g", i, MaxGrams)
		}
	}
	return nil
}

// checkFoodsExist verifies every referenced food in one query, before any
// row of the operation is written. The first missing id in input order is
// reported.
func checkFoodsExist(ctx context.Context, q queryer, items []model.ItemInput) error {
	if len(items) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(items))
	seen := make(map[int64]bool, len(items))
	for _, item := range items {
		if !seen[item.FoodID] {
			seen[item.FoodID] = true
			ids = append(ids, item.FoodID)
		}
	}

	query, args, err := sqlx.In(`SELECT id FROM foods WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("expand food ids: %w", err)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("check foods: %w", err)
	}
	defer rows.Close()

	found := make(map[int64]bool, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan food id: %w", err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("check foods: %w", err)
	}

	for _, id := range ids {
		if !found[id] {
			return notFoundf("food %d not found", id)
		}
	}
	return nil
}

// insert writes items under parentID, using the input order as position.
func (t itemTable) insert(ctx context.Context, tx *sql.Tx, parentID int64, items []model.ItemInput) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO `+t.name+` (`+t.parentCol+`, food_id, grams, position) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", t.name, err)
	}
	defer stmt.Close()

	for pos, item := range items {
		if _, err := stmt.ExecContext(ctx, parentID, item.FoodID, item.Grams, pos); err != nil {
			return wrapExec(fmt.Sprintf("insert %s[%d]", t.name, pos), err)
		}
	}
	return nil
}

// copyFrom duplicates the items of src's parent under dstParent as new,
// independent rows. Later changes to the source never reach the copy.
func (t itemTable) copyFrom(ctx context.Context, tx *sql.Tx, src itemTable, srcParent, dstParent int64) (int64, error) {
	result, err := tx.ExecContext(ctx,
		`INSERT INTO `+t.name+` (`+t.parentCol+`, food_id, grams, position)
		 SELECT ?, food_id, grams, position FROM `+src.name+` WHERE `+src.parentCol+` = ? ORDER BY position`,
		dstParent, srcParent,
	)
	if err != nil {
		return 0, wrapExec("copy "+src.name+" to "+t.name, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func scanLineItem(scanner interface{ Scan(...any) error }) (*model.LineItem, error) {
	var item model.LineItem
	var cluster sql.NullInt64

	err := scanner.Scan(
		&item.ID, &item.ParentID, &item.FoodID, &item.Grams, &item.Position,
		&item.Food.Name, &item.Food.Category, &item.Food.PortionG, &item.Food.Kcal,
		&item.Food.ProteinG, &item.Food.CarbG, &item.Food.FatG, &item.Food.Context, &cluster,
	)
	if err != nil {
		return nil, err
	}

	if cluster.Valid {
		item.Food.Cluster = &cluster.Int64
	}
	item.Totals = nutrition.Contribution(item.Portion())
	return &item, nil
}

// load fetches the items of all given parents in one query, joined with the
// catalog, grouped by parent and ordered by position.
func (t itemTable) load(ctx context.Context, q queryer, parentIDs []int64) (map[int64][]model.LineItem, error) {
	byParent := make(map[int64][]model.LineItem, len(parentIDs))
	if len(parentIDs) == 0 {
		return byParent, nil
	}

	query, args, err := sqlx.In(
		`SELECT i.id, i.`+t.parentCol+`, i.food_id, i.grams, i.position,
		        f.name, f.category, f.portion_g, f.kcal, f.protein_g, f.carb_g, f.fat_g, f.context, f.cluster
		 FROM `+t.name+` i
		 JOIN foods f ON f.id = i.food_id
		 WHERE i.`+t.parentCol+` IN (?)
		 ORDER BY i.`+t.parentCol+`, i.position`,
		parentIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("expand parent ids: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.name, err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanLineItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.name, err)
		}
		byParent[item.ParentID] = append(byParent[item.ParentID], *item)
	}
	return byParent, rows.Err()
}

// loadOne returns the items of a single parent, never nil.
func (t itemTable) loadOne(ctx context.Context, q queryer, parentID int64) ([]model.LineItem, error) {
	byParent, err := t.load(ctx, q, []int64{parentID})
	if err != nil {
		return nil, err
	}
	items := byParent[parentID]
	if items == nil {
		items = []model.LineItem{}
	}
	return items, nil
}

// totals aggregates the stored items of one parent.
func (t itemTable) totals(ctx context.Context, q queryer, parentID int64) (nutrition.Totals, error) {
	items, err := t.loadOne(ctx, q, parentID)
	if err != nil {
		return nutrition.Totals{}, err
	}
	return model.SumItems(items), nil
}
