package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/dukerupert/nutriledger/internal/model"
)

const (
	// MaxFoodListLimit caps an explicit catalog listing limit.
	MaxFoodListLimit = 1000

	defaultPortionG = 100.0
	maxFoodName     = 200
	maxCategory     = 100
	maxKcal         = 10000.0
	maxMacroG       = 1000.0
)

type FoodStore struct {
	db *sql.DB
}

func NewFoodStore(db *sql.DB) *FoodStore {
	return &FoodStore{db: db}
}

func scanFood(scanner interface{ Scan(...any) error }) (*model.Food, error) {
	var f model.Food
	var cluster sql.NullInt64

	err := scanner.Scan(
		&f.ID, &f.Name, &f.Category, &f.PortionG, &f.Kcal, &f.ProteinG, &f.CarbG, &f.FatG,
		&f.Context, &f.IncompatibleWith, &cluster,
	)
	if err != nil {
		return nil, err
	}

	if cluster.Valid {
		f.Cluster = &cluster.Int64
	}
	return &f, nil
}

const foodCols = `id, name, category, portion_g, kcal, protein_g, carb_g, fat_g, context, incompatible_with, cluster`

// nameKey is the form names are compared in for uniqueness: NFC normalised
// and case folded, so "PÃO" and "pão" collide like "RICE" and "rice".
func nameKey(name string) string {
	return cases.Fold().String(norm.NFC.String(name))
}

// normalizeFood trims the text fields, applies defaults and checks bounds.
func normalizeFood(in model.FoodInput) (model.FoodInput, float64, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	in.Context = strings.TrimSpace(in.Context)
	in.IncompatibleWith = strings.TrimSpace(in.IncompatibleWith)

	switch {
	case in.Name == "":
		return in, 0, validationf("name is required")
	case len(in.Name) > maxFoodName:
		return in, 0, validationf("name must be at most %d characters", maxFoodName)
	case len(in.Category) > maxCategory:
		return in, 0, validationf("category must be at most %d characters", maxCategory)
	case in.Context == "":
		return in, 0, validationf("context is required")
	case in.ID != nil && *in.ID <= 0:
		return in, 0, validationf("id must be positive")
	}

	portion := defaultPortionG
	if in.PortionG != nil {
		portion = *in.PortionG
	}
	if !(portion > 0) || portion > MaxGrams {
		return in, 0, validationf("portion_g must be > 0 and <= %g", MaxGrams)
	}

	if !(in.Kcal >= 0) || in.Kcal > maxKcal {
		return in, 0, validationf("kcal must be between 0 and %g", maxKcal)
	}
	for _, m := range []struct {
		name string
		v    float64
	}{
		{"protein_g", in.ProteinG}, {"carb_g", in.CarbG}, {"fat_g", in.FatG},
	} {
		if !(m.v >= 0) || m.v > maxMacroG {
			return in, 0, validationf("%s must be between 0 and %g", m.name, maxMacroG)
		}
	}

	return in, portion, nil
}

// Create adds a food to the catalog. Names are unique regardless of case.
func (s *FoodStore) Create(ctx context.Context, in model.FoodInput) (*model.Food, error) {
	in, portion, err := normalizeFood(in)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	key := nameKey(in.Name)
	err = tx.QueryRowContext(ctx, `SELECT id FROM foods WHERE name_key = ?`, key).Scan(&existing)
	if err == nil {
		return nil, conflictf("food %q already exists", in.Name)
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check duplicate food: %w", err)
	}

	var id sql.NullInt64
	if in.ID != nil {
		id = sql.NullInt64{Int64: *in.ID, Valid: true}
		err = tx.QueryRowContext(ctx, `SELECT id FROM foods WHERE id = ?`, *in.ID).Scan(&existing)
		if err == nil {
			return nil, conflictf("food id %d already exists", *in.ID)
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("check duplicate food id: %w", err)
		}
	}

	var cluster sql.NullInt64
	if in.Cluster != nil {
		cluster = sql.NullInt64{Int64: *in.Cluster, Valid: true}
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO foods (id, name, name_key, category, portion_g, kcal, protein_g, carb_g, fat_g, context, incompatible_with, cluster)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.Name, key, in.Category, portion, in.Kcal, in.ProteinG, in.CarbG, in.FatG,
		in.Context, in.IncompatibleWith, cluster,
	)
	if err != nil {
		return nil, wrapExec("insert food", err)
	}
	newID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit food: %w", err)
	}
	return s.GetByID(ctx, newID)
}

func (s *FoodStore) GetByID(ctx context.Context, id int64) (*model.Food, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+foodCols+` FROM foods WHERE id = ?`, id)
	f, err := scanFood(row)
	if err == sql.ErrNoRows {
		return nil, notFoundf("food %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get food: %w", err)
	}
	return f, nil
}

// List returns foods ordered by name. Category and Search match substrings
// without regard to case; Search covers both name and category. A zero
// Limit means no cap.
func (s *FoodStore) List(ctx context.Context, filter model.FoodFilter) ([]model.Food, error) {
	if filter.Limit < 0 || filter.Limit > MaxFoodListLimit {
		return nil, validationf("limit must be between 1 and %d", MaxFoodListLimit)
	}

	query := `SELECT ` + foodCols + ` FROM foods`
	var conds []string
	var args []any

	if c := strings.TrimSpace(filter.Category); c != "" {
		conds = append(conds, "category LIKE ?")
		args = append(args, "%"+c+"%")
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		conds = append(conds, "(name LIKE ? OR category LIKE ?)")
		args = append(args, "%"+q+"%", "%"+q+"%")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list foods: %w", err)
	}
	defer rows.Close()

	foods := []model.Food{}
	for rows.Next() {
		f, err := scanFood(rows)
		if err != nil {
			return nil, fmt.Errorf("scan food: %w", err)
		}
		foods = append(foods, *f)
	}
	return foods, rows.Err()
}

// ListCategories returns the distinct categories in ascending order.
func (s *FoodStore) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category FROM foods ORDER BY category ASC`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *FoodStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM foods`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count foods: %w", err)
	}
	return count, nil
}
