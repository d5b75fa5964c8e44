package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/equential/classvote/internal/models"
)

// ExperimentStore abstracts persistence operations required by ExperimentService.
type ExperimentStore interface {
	InsertExperiment(exp *models.Experiment) error
	GetExperiment(id string) (*models.Experiment, error)
	ListExperiments() ([]*models.Experiment, error)
	DeleteExperiment(id string) error
	ListVoters() ([]*models.User, error)
	SaveUser(u *models.User) error
}

// ExperimentImport is the bulk-import payload an admin uploads. Item and
// option ids are auto-assigned sequentially; the category set is derived from
// the description keys.
type ExperimentImport struct {
	Name                 string            `json:"name"`
	Instructions         string            `json:"instructions"`
	Items                []ImportItem      `json:"items"`
	CategoryDescriptions map[string]string `json:"category_descriptions"`
}

type ImportItem struct {
	Content string         `json:"content"`
	Options []ImportOption `json:"options"`
}

type ImportOption struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

type ExperimentService struct {
	store       ExperimentStore
	idGenerator func() string
}

func NewExperimentService(store ExperimentStore) *ExperimentService {
	return &ExperimentService{store: store, idGenerator: func() string { return shortID(8) }}
}

// CreateExperiment validates the import payload, builds the experiment with
// auto-assigned ids (item "<i+1>", option "<i+1>_<j>") and enrolls every
// existing voter by generating a fresh link for each.
func (s *ExperimentService) CreateExperiment(payload *ExperimentImport) (*models.Experiment, error) {
	if payload == nil {
		return nil, NewInvalidError("missing required field: payload")
	}
	if strings.TrimSpace(payload.Name) == "" {
		return nil, NewInvalidError("missing required field: name")
	}
	if strings.TrimSpace(payload.Instructions) == "" {
		return nil, NewInvalidError("missing required field: instructions")
	}
	if len(payload.Items) == 0 {
		return nil, NewInvalidError("missing required field: items")
	}
	if len(payload.CategoryDescriptions) == 0 {
		return nil, NewInvalidError("missing required field: category_descriptions")
	}

	categories := make([]string, 0, len(payload.CategoryDescriptions))
	for cat := range payload.CategoryDescriptions {
		categories = append(categories, cat)
	}
	sort.Strings(categories)
	declared := make(map[string]bool, len(categories))
	for _, cat := range categories {
		declared[cat] = true
	}

	items := make([]models.ClassificationItem, 0, len(payload.Items))
	for i, src := range payload.Items {
		if strings.TrimSpace(src.Content) == "" {
			return nil, NewInvalidError(fmt.Sprintf("missing required field: items[%d].content", i))
		}
		if len(src.Options) < 2 {
			return nil, NewInvalidError(fmt.Sprintf("items[%d] needs at least 2 options", i))
		}
		options := make([]models.Option, 0, len(src.Options))
		for j, opt := range src.Options {
			if strings.TrimSpace(opt.Text) == "" {
				return nil, NewInvalidError(fmt.Sprintf("missing required field: items[%d].options[%d].text", i, j))
			}
			if !declared[opt.Category] {
				return nil, NewInvalidError(fmt.Sprintf("items[%d].options[%d] has undeclared category %q", i, j, opt.Category))
			}
			options = append(options, models.Option{
				ID:       fmt.Sprintf("%d_%d", i+1, j),
				Text:     opt.Text,
				Category: opt.Category,
			})
		}
		items = append(items, models.ClassificationItem{
			ItemID:  strconv.Itoa(i + 1),
			Content: src.Content,
			Options: options,
			Choices: []models.Choice{},
		})
	}

	exp := &models.Experiment{
		ID:                   s.idGenerator(),
		Name:                 payload.Name,
		Instructions:         payload.Instructions,
		Items:                items,
		Categories:           categories,
		CategoryDescriptions: payload.CategoryDescriptions,
	}
	if err := s.store.InsertExperiment(exp); err != nil {
		return nil, err
	}

	// New experiments enroll every existing voter.
	voters, err := s.store.ListVoters()
	if err != nil {
		return nil, err
	}
	for _, u := range voters {
		if u.ExperimentLinks == nil {
			u.ExperimentLinks = map[string]string{}
		}
		u.ExperimentLinks[exp.ID] = uuid.NewString()
		if err := s.store.SaveUser(u); err != nil {
			return nil, err
		}
	}
	return exp, nil
}

func (s *ExperimentService) GetExperiment(id string) (*models.Experiment, error) {
	exp, err := s.store.GetExperiment(id)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, NewNotFoundError("experiment not found")
	}
	return exp, nil
}

func (s *ExperimentService) ListExperiments() ([]*models.Experiment, error) {
	return s.store.ListExperiments()
}

// DeleteExperiment removes the experiment document; all contained choices go
// with it. Links held by users are not rewritten, the progress view skips
// links whose experiment no longer resolves.
func (s *ExperimentService) DeleteExperiment(id string) error {
	exp, err := s.store.GetExperiment(id)
	if err != nil {
		return err
	}
	if exp == nil {
		return NewNotFoundError("experiment not found")
	}
	return s.store.DeleteExperiment(id)
}

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
