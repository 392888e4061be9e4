package model

import "github.com/dukerupert/nutriledger/internal/nutrition"

// LineItem is one food and its mass inside a meal or a history entry.
// ParentID is the owning meal or history entry.
type LineItem struct {
	ID       int64            `json:"id"`
	ParentID int64            `json:"parent_id"`
	FoodID   int64            `json:"food_id"`
	Grams    float64          `json:"grams"`
	Position int              `json:"position"`
	Food     FoodSummary      `json:"food"`
	Totals   nutrition.Totals `json:"totals"`
}

// FoodSummary carries the catalog fields shown next to a line item.
type FoodSummary struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	PortionG float64 `json:"portion_g"`
	Kcal     float64 `json:"kcal"`
	ProteinG float64 `json:"protein_g"`
	CarbG    float64 `json:"carb_g"`
	FatG     float64 `json:"fat_g"`
	Context  string  `json:"context"`
	Cluster  *int64  `json:"cluster"`
}

func (i LineItem) Portion() nutrition.Portion {
	return nutrition.Portion{
		Grams:    i.Grams,
		PortionG: i.Food.PortionG,
		Kcal:     i.Food.Kcal,
		ProteinG: i.Food.ProteinG,
		CarbG:    i.Food.CarbG,
		FatG:     i.Food.FatG,
	}
}

// SumItems runs the aggregation over items.
func SumItems(items []LineItem) nutrition.Totals {
	portions := make([]nutrition.Portion, len(items))
	for i, item := range items {
		portions[i] = item.Portion()
	}
	return nutrition.Sum(portions)
}

type ItemInput struct {
	FoodID int64   `json:"food_id"`
	Grams  float64 `json:"grams"`
}
