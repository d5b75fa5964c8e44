package services

import (
	"math"
	"testing"

	"github.com/equential/classvote/internal/models"
)

func talliedItem() *models.ClassificationItem {
	return &models.ClassificationItem{
		ItemID:  "1",
		Content: "Q1",
		Options: []models.Option{
			{ID: "1_0", Text: "a", Category: "A"},
			{ID: "1_1", Text: "b", Category: "B"},
			{ID: "1_2", Text: "c", Category: "A"},
		},
		Choices: []models.Choice{
			{UserEmail: "u1@example.com", OptionID: "1_0"},
			{UserEmail: "u2@example.com", OptionID: "1_0"},
			{UserEmail: "u3@example.com", OptionID: "1_1"},
		},
	}
}

func TestVotesPerOption(t *testing.T) {
	votes := VotesPerOption(talliedItem())
	if len(votes) != 3 {
		t.Fatalf("expected an entry per option, got %v", votes)
	}
	if votes["1_0"] != 2 || votes["1_1"] != 1 || votes["1_2"] != 0 {
		t.Fatalf("unexpected counts: %v", votes)
	}

	total := 0
	for _, n := range votes {
		total += n
	}
	if total != 3 {
		t.Fatalf("counts must sum to choice count, got %d", total)
	}
}

func TestVotesPerCategorySeedsAllCategories(t *testing.T) {
	votes := VotesPerCategory([]string{"A", "B", "C"}, talliedItem())
	if votes["A"] != 2 || votes["B"] != 1 {
		t.Fatalf("unexpected category counts: %v", votes)
	}
	if n, ok := votes["C"]; !ok || n != 0 {
		t.Fatalf("declared category C must be present with 0 votes: %v", votes)
	}
}

func TestVotesPerCategoryIgnoresStaleOptionIDs(t *testing.T) {
	item := talliedItem()
	item.Choices = append(item.Choices, models.Choice{UserEmail: "u4@example.com", OptionID: "gone"})
	votes := VotesPerCategory([]string{"A", "B"}, item)
	if votes["A"] != 2 || votes["B"] != 1 {
		t.Fatalf("stale option id must not be counted: %v", votes)
	}
}

func TestPercentagesSumToHundred(t *testing.T) {
	counts := map[string]int{"A": 1, "B": 1, "C": 1}
	pcts := percentages(counts, 3)
	sum := 0.0
	for _, p := range pcts {
		if p != 33.33 {
			t.Fatalf("expected 33.33 per key, got %v", pcts)
		}
		sum += p
	}
	if math.Abs(sum-100) > 0.5 {
		t.Fatalf("percentages should sum to ~100, got %f", sum)
	}
}

func TestPercentagesZeroTotal(t *testing.T) {
	pcts := percentages(map[string]int{"A": 0, "B": 0}, 0)
	for k, p := range pcts {
		if p != 0 {
			t.Fatalf("zero total must yield 0%% for %s, got %f", k, p)
		}
	}
	if len(pcts) != 2 {
		t.Fatalf("all keys must stay present: %v", pcts)
	}
}
