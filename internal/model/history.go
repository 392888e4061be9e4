package model

import (
	"time"

	"github.com/dukerupert/nutriledger/internal/nutrition"
)

// DateLayout is the calendar date format used for history entries.
const DateLayout = "2006-01-02"

type HistoryEntry struct {
	ID          int64            `json:"id"`
	Date        string           `json:"date"`
	MealID      *int64           `json:"meal_id"`
	Name        string           `json:"name"`
	Type        string           `json:"type"`
	Description string           `json:"description"`
	Tags        string           `json:"tags"`
	CreatedAt   time.Time        `json:"created_at"`
	Items       []LineItem       `json:"items"`
	Totals      nutrition.Totals `json:"totals"`
}

// HistoryInput records a consumption. Either MealID or Items must be set;
// with MealID the meal's current items are copied into the entry.
type HistoryInput struct {
	Date        string      `json:"date"`
	MealID      *int64      `json:"meal_id"`
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Tags        string      `json:"tags"`
	Items       []ItemInput `json:"items"`
}

// HistoryFilter narrows a history listing. Every tag must match as a
// substring; Types match exactly.
type HistoryFilter struct {
	Date  string
	Types []string
	Tags  []string
	Text  string
}
