package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/nutriledger/internal/model"
	"github.com/dukerupert/nutriledger/internal/nutrition"
)

type HistoryStore struct {
	db *sql.DB
}

func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

func scanHistory(scanner interface{ Scan(...any) error }) (*model.HistoryEntry, error) {
	var h model.HistoryEntry
	var mealID sql.NullInt64

	err := scanner.Scan(&h.ID, &h.Date, &mealID, &h.Name, &h.Type, &h.Description, &h.Tags, &h.CreatedAt)
	if err != nil {
		return nil, err
	}

	if mealID.Valid {
		h.MealID = &mealID.Int64
	}
	return &h, nil
}

const historyCols = `id, date, meal_id, name, type, description, tags, created_at`

func validateDate(date string) error {
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return validationf("date must be formatted as YYYY-MM-DD")
	}
	return nil
}

// Create records a consumption. With a meal id the meal's current items are
// copied into the entry as a snapshot; otherwise the supplied items are
// stored. Everything happens in one transaction.
func (s *HistoryStore) Create(ctx context.Context, in model.HistoryInput) (int64, nutrition.Totals, error) {
	in.Date = strings.TrimSpace(in.Date)
	if err := validateDate(in.Date); err != nil {
		return 0, nutrition.Totals{}, err
	}
	var err error
	if in.Name, err = normalizeName("name", in.Name, maxMealName); err != nil {
		return 0, nutrition.Totals{}, err
	}
	if in.Type, err = normalizeName("type", in.Type, maxMealType); err != nil {
		return 0, nutrition.Totals{}, err
	}
	if in.MealID == nil && len(in.Items) == 0 {
		return 0, nutrition.Totals{}, validationf("items are required when meal_id is not set")
	}
	if in.MealID != nil && *in.MealID <= 0 {
		return 0, nutrition.Totals{}, validationf("meal_id must be positive")
	}
	if err := validateItems(in.Items); err != nil {
		return 0, nutrition.Totals{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nutrition.Totals{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var mealID sql.NullInt64
	if in.MealID != nil {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM meals WHERE id = ?`, *in.MealID).Scan(&one)
		if err == sql.ErrNoRows {
			return 0, nutrition.Totals{}, notFoundf("meal %d not found", *in.MealID)
		}
		if err != nil {
			return 0, nutrition.Totals{}, fmt.Errorf("check meal: %w", err)
		}
		mealID = sql.NullInt64{Int64: *in.MealID, Valid: true}
	}
	if err := checkFoodsExist(ctx, tx, in.Items); err != nil {
		return 0, nutrition.Totals{}, err
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO history (date, meal_id, name, type, description, tags) VALUES (?, ?, ?, ?, ?, ?)`,
		in.Date, mealID, in.Name, in.Type, in.Description, in.Tags,
	)
	if err != nil {
		return 0, nutrition.Totals{}, wrapExec("insert history", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, nutrition.Totals{}, fmt.Errorf("last insert id: %w", err)
	}

	if mealID.Valid {
		// Snapshot: the entry owns copies, not a live reference to the meal's items.
		if _, err := historyItems.copyFrom(ctx, tx, mealItems, mealID.Int64, id); err != nil {
			return 0, nutrition.Totals{}, err
		}
	} else if err := historyItems.insert(ctx, tx, id, in.Items); err != nil {
		return 0, nutrition.Totals{}, err
	}

	totals, err := historyItems.totals(ctx, tx, id)
	if err != nil {
		return 0, nutrition.Totals{}, err
	}

	if err := tx.Commit(); err != nil {
		return 0, nutrition.Totals{}, fmt.Errorf("commit history: %w", err)
	}
	return id, totals, nil
}

func (s *HistoryStore) GetByID(ctx context.Context, id int64) (*model.HistoryEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+historyCols+` FROM history WHERE id = ?`, id)
	h, err := scanHistory(row)
	if err == sql.ErrNoRows {
		return nil, notFoundf("history entry %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}

	if h.Items, err = historyItems.loadOne(ctx, s.db, id); err != nil {
		return nil, err
	}
	h.Totals = model.SumItems(h.Items)
	return h, nil
}

// List returns entries newest first, each with its items and totals.
func (s *HistoryStore) List(ctx context.Context, filter model.HistoryFilter) ([]model.HistoryEntry, error) {
	query := `SELECT ` + historyCols + ` FROM history WHERE 1=1`
	var args []any

	if d := strings.TrimSpace(filter.Date); d != "" {
		if err := validateDate(d); err != nil {
			return nil, err
		}
		query += ` AND date = ?`
		args = append(args, d)
	}
	if len(filter.Types) > 0 {
		query += ` AND type IN (?` + strings.Repeat(", ?", len(filter.Types)-1) + `)`
		for _, t := range filter.Types {
			args = append(args, t)
		}
	}
	for _, tag := range filter.Tags {
		query += ` AND tags LIKE ?`
		args = append(args, "%"+tag+"%")
	}
	if text := strings.TrimSpace(filter.Text); text != "" {
		query += ` AND (name LIKE ? OR description LIKE ?)`
		args = append(args, "%"+text+"%", "%"+text+"%")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	entries := []model.HistoryEntry{}
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entries = append(entries, *h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	ids := make([]int64, len(entries))
	for i := range entries {
		ids[i] = entries[i].ID
	}
	byEntry, err := historyItems.load(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Items = byEntry[entries[i].ID]
		if entries[i].Items == nil {
			entries[i].Items = []model.LineItem{}
		}
		entries[i].Totals = model.SumItems(entries[i].Items)
	}
	return entries, nil
}

func (s *HistoryStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id)
	if err != nil {
		return wrapExec("delete history", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFoundf("history entry %d not found", id)
	}
	return nil
}

// SplitList turns a comma-separated query value into trimmed, non-empty parts.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
