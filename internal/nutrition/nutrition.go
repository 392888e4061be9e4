// Package nutrition derives energy and macronutrient totals from food portions.
//
// Every value scales linearly with mass: an item weighing grams g of a food whose
// nutrient values are given per portion p contributes (g / p) * value. Sums are
// accumulated at full precision; rounding to one decimal only happens when a
// Totals value is presented.
package nutrition

import (
	"encoding/json"
	"math"
)

// Portion is one line item as seen by the aggregation: the mass eaten plus the
// food's reference portion and per-portion nutrient values.
type Portion struct {
	Grams    float64
	PortionG float64
	Kcal     float64
	ProteinG float64
	CarbG    float64
	FatG     float64
}

// Totals holds the four derived scalars.
type Totals struct {
	Kcal    float64
	Protein float64
	Carb    float64
	Fat     float64
}

// Contribution returns what a single portion adds to a sum.
// PortionG is never zero: the catalog rejects non-positive reference portions.
func Contribution(p Portion) Totals {
	ratio := p.Grams / p.PortionG
	return Totals{
		Kcal:    ratio * p.Kcal,
		Protein: ratio * p.ProteinG,
		Carb:    ratio * p.CarbG,
		Fat:     ratio * p.FatG,
	}
}

// Sum aggregates the portions. An empty slice yields zero totals.
func Sum(portions []Portion) Totals {
	var t Totals
	for _, p := range portions {
		t = t.Add(Contribution(p))
	}
	return t
}

// Add returns the element-wise sum of t and o.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		Kcal:    t.Kcal + o.Kcal,
		Protein: t.Protein + o.Protein,
		Carb:    t.Carb + o.Carb,
		Fat:     t.Fat + o.Fat,
	}
}

// Rounded returns a copy with every scalar rounded to one decimal place.
func (t Totals) Rounded() Totals {
	return Totals{
		Kcal:    Round1(t.Kcal),
		Protein: Round1(t.Protein),
		Carb:    Round1(t.Carb),
		Fat:     Round1(t.Fat),
	}
}

// Round1 rounds v half away from zero to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// MarshalJSON always emits the rounded representation.
func (t Totals) MarshalJSON() ([]byte, error) {
	r := t.Rounded()
	return json.Marshal(struct {
		Kcal    float64 `json:"kcal"`
		Protein float64 `json:"protein"`
		Carb    float64 `json:"carb"`
		Fat     float64 `json:"fat"`
	}{r.Kcal, r.Protein, r.Carb, r.Fat})
}

// UnmarshalJSON reads the representation produced by MarshalJSON.
func (t *Totals) UnmarshalJSON(data []byte) error {
	var v struct {
		Kcal    float64 `json:"kcal"`
		Protein float64 `json:"protein"`
		Carb    float64 `json:"carb"`
		Fat     float64 `json:"fat"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*t = Totals{Kcal: v.Kcal, Protein: v.Protein, Carb: v.Carb, Fat: v.Fat}
	return nil
}
