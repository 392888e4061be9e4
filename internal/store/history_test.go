package store

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/dukerupert/nutriledger/internal/model"
	"github.com/dukerupert/nutriledger/internal/nutrition"
)

func TestHistoryCreateFromMealCopiesItems(t *testing.T) {
	db, fs, ms, hs := setupLedgerTestDB(t)
	ctx := context.Background()
	egg := mustCreateFood(t, fs, eggInput())

	mealID, mealTotals, err := ms.Create(ctx, model.MealInput{
		Name: "Ovos", Type: "cafe", Items: []model.ItemInput{{FoodID: egg.ID, Grams: 100}},
	})
	if err != nil {
		t.Fatalf("create meal: %v", err)
	}

	id, totals, err := hs.Create(ctx, model.HistoryInput{
		Date: "2025-01-15", MealID: &mealID, Name: "Ovos", Type: "cafe",
	})
	if err != nil {
		t.Fatalf("create history: %v", err)
	}
	if totals != mealTotals {
		t.Errorf("history totals %+v, want meal totals %+v", totals, mealTotals)
	}

	h, err := hs.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if h.MealID == nil || *h.MealID != mealID {
		t.Errorf("meal_id = %v, want %d", h.MealID, mealID)
	}
	if h.Date != "2025-01-15" {
		t.Errorf("date = %q", h.Date)
	}
	if len(h.Items) != 1 || h.Items[0].FoodID != egg.ID || h.Items[0].Grams != 100 || h.Items[0].Position != 0 {
		t.Fatalf("items = %+v", h.Items)
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM history_items WHERE history_id = ?`, id); n != 1 {
		t.Errorf("history_items = %d, want 1", n)
	}
}

func TestHistorySnapshotSurvivesMealChanges(t *testing.T) {
	db, fs, ms, hs := setupLedgerTestDB(t)
	ctx := context.Background()
	egg := mustCreateFood(t, fs, eggInput())
	mealID := mustCreateMeal(t, ms, model.MealInput{
		Name: "Ovos", Type: "cafe", Items: []model.ItemInput{{FoodID: egg.ID, Grams: 100}},
	})

	id, _, err := hs.Create(ctx, model.HistoryInput{Date: "2025-01-15", MealID: &mealID, Name: "Ovos", Type: "cafe"})
	if err != nil {
		t.Fatalf("create history: %v", err)
	}

	// Editing the meal's items afterwards must not reach the copy.
	if _, err := db.Exec(`UPDATE meal_items SET grams = 500 WHERE meal_id = ?`, mealID); err != nil {
		t.Fatalf("edit meal items: %v", err)
	}
	h, err := hs.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if h.Items[0].Grams != 100 {
		t.Errorf("history grams = %v, want 100", h.Items[0].Grams)
	}

	// Deleting the meal keeps the entry and its items; the reference is cleared.
	if err := ms.Delete(ctx, mealID); err != nil {
		t.Fatalf("delete meal: %v", err)
	}
	h, err = hs.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get history after meal delete: %v", err)
	}
	if h.MealID != nil {
		t.Errorf("meal_id = %d, want nil", *h.MealID)
	}
	if len(h.Items) != 1 {
		t.Errorf("items = %d, want 1", len(h.Items))
	}
}

func TestHistoryCreateWithItems(t *testing.T) {
	_, fs, _, hs := setupLedgerTestDB(t)
	ctx := context.Background()
	egg := mustCreateFood(t, fs, eggInput())
	riceIn := eggInput()
	riceIn.Name = "Arroz"
	riceIn.PortionG = ptr(100.0)
	riceIn.Kcal, riceIn.ProteinG, riceIn.CarbG, riceIn.FatG = 128, 2.5, 28, 0.2
	rice := mustCreateFood(t, fs, riceIn)

	id, totals, err := hs.Create(ctx, model.HistoryInput{
		Date: "2025-02-01", Name: "Almoço", Type: "almoco", Tags: "treino",
		Items: []model.ItemInput{{FoodID: rice.ID, Grams: 150}, {FoodID: egg.ID, Grams: 50}},
	})
	if err != nil {
		t.Fatalf("create history: %v", err)
	}
	// 1.5 * rice + 1 * egg
	assertTotals(t, totals, nutrition.Totals{Kcal: 270.0, Protein: 10.3, Carb: 42.6, Fat: 5.6})

	h, err := hs.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if h.MealID != nil {
		t.Errorf("meal_id = %v, want nil", *h.MealID)
	}
	if len(h.Items) != 2 || h.Items[0].FoodID != rice.ID || h.Items[1].FoodID != egg.ID {
		t.Errorf("items = %+v", h.Items)
	}
}

func TestHistoryCreateValidation(t *testing.T) {
	db, fs, _, hs := setupLedgerTestDB(t)
	egg := mustCreateFood(t, fs, eggInput())
	items := []model.ItemInput{{FoodID: egg.ID, Grams: 10}}

	cases := []struct {
		name string
		in   model.HistoryInput
	}{
		{"neither meal nor items", model.HistoryInput{Date: "2025-01-01", Name: "x", Type: "cafe"}},
		{"bad date", model.HistoryInput{Date: "01/02/2025", Name: "x", Type: "cafe", Items: items}},
		{"missing date", model.HistoryInput{Name: "x", Type: "cafe", Items: items}},
		{"blank name", model.HistoryInput{Date: "2025-01-01", Name: " ", Type: "cafe", Items: items}},
		{"blank type", model.HistoryInput{Date: "2025-01-01", Name: "x", Items: items}},
		{"zero meal id", model.HistoryInput{Date: "2025-01-01", MealID: ptr(int64(0)), Name: "x", Type: "cafe"}},
		{"negative grams", model.HistoryInput{Date: "2025-01-01", Name: "x", Type: "cafe", Items: []model.ItemInput{{FoodID: egg.ID, Grams: -1}}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := hs.Create(context.Background(), tc.in)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}

	if n := countRows(t, db, `SELECT COUNT(*) FROM history`); n != 0 {
		t.Errorf("history rows = %d, want 0", n)
	}
}

func TestHistoryCreateNotFound(t *testing.T) {
	db, fs, _, hs := setupLedgerTestDB(t)
	ctx := context.Background()
	egg := mustCreateFood(t, fs, eggInput())

	_, _, err := hs.Create(ctx, model.HistoryInput{Date: "2025-01-01", MealID: ptr(int64(77)), Name: "x", Type: "cafe"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing meal: err = %v, want ErrNotFound", err)
	}

	_, _, err = hs.Create(ctx, model.HistoryInput{
		Date: "2025-01-01", Name: "x", Type: "cafe",
		Items: []model.ItemInput{{FoodID: egg.ID, Grams: 10}, {FoodID: 555, Grams: 10}},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing food: err = %v, want ErrNotFound", err)
	}

	if n := countRows(t, db, `SELECT COUNT(*) FROM history`); n != 0 {
		t.Errorf("history rows = %d, want 0", n)
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM history_items`); n != 0 {
		t.Errorf("history_items rows = %d, want 0", n)
	}
}

func TestHistoryListFilters(t *testing.T) {
	_, fs, _, hs := setupLedgerTestDB(t)
	ctx := context.Background()
	egg := mustCreateFood(t, fs, eggInput())
	items := []model.ItemInput{{FoodID: egg.ID, Grams: 50}}

	create := func(date, name, typ, desc, tags string) int64 {
		t.Helper()
		id, _, err := hs.Create(ctx, model.HistoryInput{
			Date: date, Name: name, Type: typ, Description: desc, Tags: tags, Items: items,
		})
		if err != nil {
			t.Fatalf("create history %q: %v", name, err)
		}
		return id
	}

	a := create("2025-03-01", "Omelete", "cafe", "com queijo", "treino,lowcarb")
	b := create("2025-03-01", "Marmita", "almoco", "frango", "treino")
	c := create("2025-03-02", "Sopa", "jantar", "legumes", "lowcarb")

	ids := func(entries []model.HistoryEntry) []int64 {
		out := []int64{}
		for _, e := range entries {
			out = append(out, e.ID)
		}
		return out
	}

	cases := []struct {
		name   string
		filter model.HistoryFilter
		want   []int64
	}{
		{"all newest first", model.HistoryFilter{}, []int64{c, b, a}},
		{"by date", model.HistoryFilter{Date: "2025-03-01"}, []int64{b, a}},
		{"by types", model.HistoryFilter{Types: []string{"cafe", "jantar"}}, []int64{c, a}},
		{"tags are AND", model.HistoryFilter{Tags: []string{"treino", "lowcarb"}}, []int64{a}},
		{"tag substring", model.HistoryFilter{Tags: []string{"low"}}, []int64{c, a}},
		{"text in name", model.HistoryFilter{Text: "marm"}, []int64{b}},
		{"text in description", model.HistoryFilter{Text: "QUEIJO"}, []int64{a}},
		{"combined", model.HistoryFilter{Date: "2025-03-01", Tags: []string{"treino"}, Types: []string{"almoco"}}, []int64{b}},
		{"no match", model.HistoryFilter{Date: "2024-12-31"}, []int64{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := hs.List(ctx, tc.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if !reflect.DeepEqual(ids(got), tc.want) {
				t.Errorf("ids = %v, want %v", ids(got), tc.want)
			}
			for _, e := range got {
				if len(e.Items) != 1 {
					t.Errorf("entry %d items = %d, want 1", e.ID, len(e.Items))
				}
				assertTotals(t, e.Totals, nutrition.Totals{Kcal: 78, Protein: 6.5, Carb: 0.6, Fat: 5.3})
			}
		})
	}

	if _, err := hs.List(ctx, model.HistoryFilter{Date: "March 1"}); !errors.Is(err, ErrValidation) {
		t.Errorf("bad date filter: err = %v, want ErrValidation", err)
	}
}

func TestHistoryDeleteCascadesItems(t *testing.T) {
	db, fs, _, hs := setupLedgerTestDB(t)
	ctx := context.Background()
	egg := mustCreateFood(t, fs, eggInput())

	id, _, err := hs.Create(ctx, model.HistoryInput{
		Date: "2025-01-01", Name: "x", Type: "cafe",
		Items: []model.ItemInput{{FoodID: egg.ID, Grams: 10}, {FoodID: egg.ID, Grams: 20}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := hs.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM history_items WHERE history_id = ?`, id); n != 0 {
		t.Errorf("history_items after delete = %d, want 0", n)
	}
	if _, err := hs.GetByID(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("get deleted: err = %v, want ErrNotFound", err)
	}
	if err := hs.Delete(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" cafe, almoco ,,jantar ")
	want := []string{"cafe", "almoco", "jantar"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitList = %v, want %v", got, want)
	}
	if got := SplitList(""); len(got) != 0 {
		t.Errorf("SplitList(\"\") = %v, want empty", got)
	}
}
