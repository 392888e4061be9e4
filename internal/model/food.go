package model

type Food struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Category         string  `json:"category"`
	PortionG         float64 `json:"portion_g"`
	Kcal             float64 `json:"kcal"`
	ProteinG         float64 `json:"protein_g"`
	CarbG            float64 `json:"carb_g"`
	FatG             float64 `json:"fat_g"`
	Context          string  `json:"context"`
	IncompatibleWith string  `json:"incompatible_with"`
	Cluster          *int64  `json:"cluster"`
}

// FoodInput is the payload for adding a food to the catalog. ID is only set
// when importing rows whose ids are assigned upstream. A nil PortionG means
// the default 100 g reference portion.
type FoodInput struct {
	ID               *int64   `json:"id,omitempty"`
	Name             string   `json:"name"`
	Category         string   `json:"category"`
	PortionG         *float64 `json:"portion_g"`
	Kcal             float64  `json:"kcal"`
	ProteinG         float64  `json:"protein_g"`
	CarbG            float64  `json:"carb_g"`
	FatG             float64  `json:"fat_g"`
	Context          string   `json:"context"`
	IncompatibleWith string   `json:"incompatible_with"`
	Cluster          *int64   `json:"cluster"`
}

type FoodFilter struct {
	Category string
	Search   string
	Limit    int
}
