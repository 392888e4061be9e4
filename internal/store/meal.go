package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/nutriledger/internal/model"
	"github.com/dukerupert/nutriledger/internal/nutrition"
)

const (
	DefaultMealListLimit = 50
	MaxMealListLimit     = 100

	maxMealName = 200
	maxMealType = 50
)

type MealStore struct {
	db *sql.DB
}

func NewMealStore(db *sql.DB) *MealStore {
	return &MealStore{db: db}
}

func scanMeal(scanner interface{ Scan(...any) error }) (*model.Meal, error) {
	var m model.Meal
	var active int

	err := scanner.Scan(&m.ID, &m.Name, &m.Type, &m.Context, &m.Description, &m.Tags, &active, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	m.Active = active != 0
	return &m, nil
}

const mealCols = `id, name, type, context, description, tags, active, created_at`

func normalizeName(field, v string, max int) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", validationf("%s is required", field)
	}
	if len(v) > max {
		return "", validationf("%s must be at most %d characters", field, max)
	}
	return v, nil
}

// Create stores a meal and its items in one transaction and returns the new
// id with the computed totals. Every referenced food is checked before the
// first insert.
func (s *MealStore) Create(ctx context.Context, in model.MealInput) (int64, nutrition.Totals, error) {
	var err error
	if in.Name, err = normalizeName("name", in.Name, maxMealName); err != nil {
		return 0, nutrition.Totals{}, err
	}
	if in.Type, err = normalizeName("type", in.Type, maxMealType); err != nil {
		return 0, nutrition.Totals{}, err
	}
	if len(in.Items) == 0 {
		return 0, nutrition.Totals{}, validationf("at least one item is required")
	}
	if err := validateItems(in.Items); err != nil {
		return 0, nutrition.Totals{}, err
	}

	in.Context = strings.TrimSpace(in.Context)
	if in.Context == "" {
		in.Context = in.Type
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nutrition.Totals{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := checkFoodsExist(ctx, tx, in.Items); err != nil {
		return 0, nutrition.Totals{}, err
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO meals (name, type, context, description, tags) VALUES (?, ?, ?, ?, ?)`,
		in.Name, in.Type, in.Context, in.Description, in.Tags,
	)
	if err != nil {
		return 0, nutrition.Totals{}, wrapExec("insert meal", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, nutrition.Totals{}, fmt.Errorf("last insert id: %w", err)
	}

	if err := mealItems.insert(ctx, tx, id, in.Items); err != nil {
		return 0, nutrition.Totals{}, err
	}

	totals, err := mealItems.totals(ctx, tx, id)
	if err != nil {
		return 0, nutrition.Totals{}, err
	}

	if err := tx.Commit(); err != nil {
		return 0, nutrition.Totals{}, fmt.Errorf("commit meal: %w", err)
	}
	return id, totals, nil
}

func (s *MealStore) GetByID(ctx context.Context, id int64) (*model.Meal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mealCols+` FROM meals WHERE id = ?`, id)
	m, err := scanMeal(row)
	if err == sql.ErrNoRows {
		return nil, notFoundf("meal %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get meal: %w", err)
	}

	if m.Items, err = mealItems.loadOne(ctx, s.db, id); err != nil {
		return nil, err
	}
	m.Totals = model.SumItems(m.Items)
	return m, nil
}

// List returns meals newest first, each with its items and totals. Items for
// the whole page are fetched in a single query.
func (s *MealStore) List(ctx context.Context, filter model.MealFilter) ([]model.Meal, error) {
	limit := filter.Limit
	if limit == 0 {
		limit = DefaultMealListLimit
	}
	if limit < 1 || limit > MaxMealListLimit {
		return nil, validationf("limit must be between 1 and %d", MaxMealListLimit)
	}

	active := 1
	if filter.Active != nil && !*filter.Active {
		active = 0
	}

	query := `SELECT ` + mealCols + ` FROM meals WHERE active = ?`
	args := []any{active}
	if t := strings.TrimSpace(filter.Type); t != "" {
		query += ` AND type = ?`
		args = append(args, t)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list meals: %w", err)
	}

	meals := []model.Meal{}
	for rows.Next() {
		m, err := scanMeal(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan meal: %w", err)
		}
		meals = append(meals, *m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list meals: %w", err)
	}

	ids := make([]int64, len(meals))
	for i := range meals {
		ids[i] = meals[i].ID
	}
	byMeal, err := mealItems.load(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range meals {
		meals[i].Items = byMeal[meals[i].ID]
		if meals[i].Items == nil {
			meals[i].Items = []model.LineItem{}
		}
		meals[i].Totals = model.SumItems(meals[i].Items)
	}
	return meals, nil
}

// ListTypes returns the distinct types of active meals in ascending order.
func (s *MealStore) ListTypes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT type FROM meals WHERE active = 1 ORDER BY type ASC`)
	if err != nil {
		return nil, fmt.Errorf("list meal types: %w", err)
	}
	defer rows.Close()

	types := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan meal type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// Update applies the non-nil fields of u. Items are never touched.
func (s *MealStore) Update(ctx context.Context, id int64, u model.MealUpdate) (*model.Meal, error) {
	if u.Empty() {
		return nil, validationf("no fields to update")
	}

	var sets []string
	var args []any

	if u.Name != nil {
		name, err := normalizeName("name", *u.Name, maxMealName)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "name = ?")
		args = append(args, name)
	}
	if u.Type != nil {
		typ, err := normalizeName("type", *u.Type, maxMealType)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "type = ?")
		args = append(args, typ)
	}
	if u.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *u.Description)
	}
	if u.Tags != nil {
		sets = append(sets, "tags = ?")
		args = append(args, *u.Tags)
	}
	if u.Context != nil {
		sets = append(sets, "context = ?")
		args = append(args, strings.TrimSpace(*u.Context))
	}
	if u.Active != nil {
		var a int
		if *u.Active {
			a = 1
		}
		sets = append(sets, "active = ?")
		args = append(args, a)
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, `UPDATE meals SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, wrapExec("update meal", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, notFoundf("meal %d not found", id)
	}
	return s.GetByID(ctx, id)
}

// Delete removes a meal permanently. Its items go with it; history entries
// that were recorded from it keep their own copies.
func (s *MealStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM meals WHERE id = ?`, id)
	if err != nil {
		return wrapExec("delete meal", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFoundf("meal %d not found", id)
	}
	return nil
}
