package services

import (
	"math"

	"github.com/equential/classvote/internal/models"
)

// VotesPerOption counts choices per option id. Every option of the item is
// present in the result, zero-voted options included.
func VotesPerOption(item *models.ClassificationItem) map[string]int {
	votes := make(map[string]int, len(item.Options))
	for _, opt := range item.Options {
		votes[opt.ID] = 0
	}
	for _, c := range item.Choices {
		if _, ok := votes[c.OptionID]; ok {
			votes[c.OptionID]++
		}
	}
	return votes
}

// VotesPerCategory sums the item's option votes by category. The result is
// pre-seeded with every declared category so zero-vote categories are present.
func VotesPerCategory(categories []string, item *models.ClassificationItem) map[string]int {
	votes := make(map[string]int, len(categories))
	for _, cat := range categories {
		votes[cat] = 0
	}
	optCats := item.OptionCategories()
	for _, c := range item.Choices {
		if cat, ok := optCats[c.OptionID]; ok {
			votes[cat]++
		}
	}
	return votes
}

// percentages converts counts to percentages of total, rounded to 2 decimals.
// Every key stays present; all values are 0 when total is 0.
func percentages(counts map[string]int, total int) map[string]float64 {
	out := make(map[string]float64, len(counts))
	for k, v := range counts {
		if total == 0 {
			out[k] = 0
			continue
		}
		out[k] = round2(float64(v) / float64(total) * 100)
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round1(v float64) float64 { return math.Round(v*10) / 10 }
