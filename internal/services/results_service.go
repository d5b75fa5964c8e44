package services

import (
	"github.com/equential/classvote/internal/bayes"
	"github.com/equential/classvote/internal/models"
)

// ResultsStore abstracts the read-only lookups the results views need.
type ResultsStore interface {
	GetExperiment(id string) (*models.Experiment, error)
	ListVoters() ([]*models.User, error)
}

// ResultsService aggregates raw choices into per-option and per-category
// tallies and runs the Bayesian comparison across categories. All operations
// are read-only over the stored experiments.
type ResultsService struct {
	store   ResultsStore
	newTest func() *bayes.BinaryTest
}

func NewResultsService(store ResultsStore) *ResultsService {
	return &ResultsService{store: store, newTest: bayes.NewBinaryTest}
}

// ItemResults is the tally for a single classification item.
type ItemResults struct {
	ItemID                 string             `json:"item_id"`
	Content                string             `json:"content"`
	Options                []models.Option    `json:"options"`
	OptionCategories       map[string]string  `json:"option_categories"`
	TotalVotes             int                `json:"total_votes"`
	VotesPerOption         map[string]int     `json:"votes_per_option"`
	VotesPerCategory       map[string]int     `json:"votes_per_category"`
	PercentagesPerOption   map[string]float64 `json:"percentages_per_option"`
	PercentagesPerCategory map[string]float64 `json:"percentages_per_category"`
}

// ExperimentTotals is the whole-experiment aggregate used by the export
// summary. TotalPossibleVotes is a theoretical ceiling (items x voters), not a
// correctness constraint.
type ExperimentTotals struct {
	ID                     string             `json:"id"`
	Name                   string             `json:"name"`
	Instructions           string             `json:"instructions"`
	Categories             []string           `json:"categories"`
	TotalItems             int                `json:"total_items"`
	TotalUsers             int                `json:"total_users"`
	TotalVotes             int                `json:"total_votes"`
	TotalPossibleVotes     int                `json:"total_possible_votes"`
	VotesPerCategory       map[string]int     `json:"votes_per_category"`
	PercentagesPerCategory map[string]float64 `json:"percentages_per_category"`
}

// ItemResults tallies one item of the experiment. A zero-vote item yields zero
// counts and zero percentages for every option and category.
func (s *ResultsService) ItemResults(expID, itemID string) (*ItemResults, error) {
	exp, err := s.store.GetExperiment(expID)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, NewNotFoundError("experiment not found")
	}
	item := exp.ItemByID(itemID)
	if item == nil {
		return nil, NewNotFoundError("item not found")
	}
	totalVotes := len(item.Choices)
	votesPerOption := VotesPerOption(item)
	votesPerCategory := VotesPerCategory(exp.Categories, item)
	return &ItemResults{
		ItemID:                 item.ItemID,
		Content:                item.Content,
		Options:                item.Options,
		OptionCategories:       item.OptionCategories(),
		TotalVotes:             totalVotes,
		VotesPerOption:         votesPerOption,
		VotesPerCategory:       votesPerCategory,
		PercentagesPerOption:   percentages(votesPerOption, totalVotes),
		PercentagesPerCategory: percentages(votesPerCategory, totalVotes),
	}, nil
}

// ExperimentTotals aggregates category votes across every item of the
// experiment and reports the export summary counters.
func (s *ResultsService) ExperimentTotals(expID string) (*ExperimentTotals, error) {
	exp, err := s.store.GetExperiment(expID)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, NewNotFoundError("experiment not found")
	}
	voters, err := s.store.ListVoters()
	if err != nil {
		return nil, err
	}
	votesPerCategory, totalVotes := aggregateCategoryVotes(exp)
	return &ExperimentTotals{
		ID:                     exp.ID,
		Name:                   exp.Name,
		Instructions:           exp.Instructions,
		Categories:             exp.Categories,
		TotalItems:             len(exp.Items),
		TotalUsers:             len(voters),
		TotalVotes:             totalVotes,
		TotalPossibleVotes:     len(exp.Items) * len(voters),
		VotesPerCategory:       votesPerCategory,
		PercentagesPerCategory: percentages(votesPerCategory, totalVotes),
	}, nil
}

// Compare runs the Bayesian comparison over aggregate category counts. Each
// category becomes one arm with the shared totalVotes denominator: the
// aggregate is "this category's share of all votes cast", not an independent
// per-category trial count. A zero denominator is replaced by 1 so the
// posterior stays defined while every positives count is 0.
func (s *ResultsService) Compare(categories []string, votesPerCategory map[string]int, totalVotes int) map[string]bayes.ArmResult {
	totals := totalVotes
	if totals == 0 {
		totals = 1
	}
	test := s.newTest()
	for _, cat := range categories {
		test.AddArm(cat, votesPerCategory[cat], totals)
	}
	out := make(map[string]bayes.ArmResult, len(categories))
	for _, res := range test.Evaluate() {
		out[res.Arm] = res
	}
	return out
}

// ExperimentComparison aggregates the experiment and compares its categories.
func (s *ResultsService) ExperimentComparison(expID string) (map[string]bayes.ArmResult, error) {
	exp, err := s.store.GetExperiment(expID)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, NewNotFoundError("experiment not found")
	}
	votesPerCategory, totalVotes := aggregateCategoryVotes(exp)
	return s.Compare(exp.Categories, votesPerCategory, totalVotes), nil
}

// aggregateCategoryVotes sums category votes across all items. The total is
// the raw choice count, not the sum of the category counts, so it matches the
// per-item tally even if a stored choice fails to resolve to a category.
func aggregateCategoryVotes(exp *models.Experiment) (map[string]int, int) {
	votes := make(map[string]int, len(exp.Categories))
	for _, cat := range exp.Categories {
		votes[cat] = 0
	}
	total := 0
	for i := range exp.Items {
		total += len(exp.Items[i].Choices)
		for cat, n := range VotesPerCategory(exp.Categories, &exp.Items[i]) {
			votes[cat] += n
		}
	}
	return votes, total
}
