package model

import (
	"time"

	"github.com/dukerupert/nutriledger/internal/nutrition"
)

type Meal struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Type        string           `json:"type"`
	Context     string           `json:"context"`
	Description string           `json:"description"`
	Tags        string           `json:"tags"`
	Active      bool             `json:"active"`
	CreatedAt   time.Time        `json:"created_at"`
	Items       []LineItem       `json:"items"`
	Totals      nutrition.Totals `json:"totals"`
}

type MealInput struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Context     string      `json:"context"`
	Description string      `json:"description"`
	Tags        string      `json:"tags"`
	Items       []ItemInput `json:"items"`
}

// MealUpdate lists the scalar fields that may change after creation.
// Nil fields are left untouched.
type MealUpdate struct {
	Name        *string `json:"name"`
	Type        *string `json:"type"`
	Description *string `json:"description"`
	Tags        *string `json:"tags"`
	Context     *string `json:"context"`
	Active      *bool   `json:"active"`
}

func (u MealUpdate) Empty() bool {
	return u.Name == nil && u.Type == nil && u.Description == nil &&
		u.Tags == nil && u.Context == nil && u.Active == nil
}

// MealFilter narrows a meal listing. A nil Active means active meals only.
type MealFilter struct {
	Type   string
	Active *bool
	Limit  int
}
