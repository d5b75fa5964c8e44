package services

import (
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/equential/classvote/internal/models"
)

// VoteStore abstracts persistence operations required by VoteService.
type VoteStore interface {
	SaveExperiment(exp *models.Experiment) error
}

// VoteService owns the vote ledger: it records choices and answers item
// selection queries for the voting flow. One service instance serves every
// request, so the random source is guarded by a mutex (math/rand.Rand is not
// safe for concurrent use).
type VoteService struct {
	store VoteStore

	mu  sync.Mutex
	rng *rand.Rand
}

func NewVoteService(store VoteStore) *VoteService {
	return &VoteService{
		store: store,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RecordChoice records the user's vote for one item. Any prior choice by the
// same user on that item is replaced, so an item never holds more than one
// choice per user. The whole experiment document is persisted under a version
// check; a racing writer surfaces as a conflict error and the caller must
// re-read and resubmit. Returns false when the item or option id does not
// resolve.
func (s *VoteService) RecordChoice(exp *models.Experiment, itemID, userEmail, optionID string) (bool, error) {
	if exp == nil {
		return false, NewInvalidError("experiment required")
	}
	if strings.TrimSpace(userEmail) == "" {
		return false, NewInvalidError("user email required")
	}
	item := exp.ItemByID(itemID)
	if item == nil {
		return false, nil
	}
	opt := item.OptionByID(optionID)
	if opt == nil {
		return false, nil
	}
	kept := item.Choices[:0]
	for _, c := range item.Choices {
		if c.UserEmail != userEmail {
			kept = append(kept, c)
		}
	}
	item.Choices = append(kept, models.Choice{UserEmail: userEmail, OptionID: opt.ID})
	if err := s.store.SaveExperiment(exp); err != nil {
		if errors.Is(err, models.ErrVersionConflict) {
			return false, NewConflictError("experiment was updated concurrently, resubmit the vote")
		}
		return false, err
	}
	return true, nil
}

// UnansweredItems returns every item without a choice by the user, in the
// experiment's stored item order. An empty result means the user has completed
// the experiment.
func (s *VoteService) UnansweredItems(exp *models.Experiment, userEmail string) []*models.ClassificationItem {
	out := []*models.ClassificationItem{}
	for i := range exp.Items {
		if !exp.Items[i].HasChoiceBy(userEmail) {
			out = append(out, &exp.Items[i])
		}
	}
	return out
}

// SelectNext picks one item uniformly at random from the unanswered set.
// Callers must check for an empty set first.
func (s *VoteService) SelectNext(unanswered []*models.ClassificationItem) *models.ClassificationItem {
	s.mu.Lock()
	idx := s.rng.Intn(len(unanswered))
	s.mu.Unlock()
	return unanswered[idx]
}

// PresentationCopy returns a display copy of the item with its options in a
// uniform random order. The stored item is untouched; option ids are stable
// across shuffles, so submitted choices always reference the original option.
func (s *VoteService) PresentationCopy(item *models.ClassificationItem) models.ClassificationItem {
	shuffled := make([]models.Option, len(item.Options))
	copy(shuffled, item.Options)
	s.mu.Lock()
	s.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	s.mu.Unlock()
	out := *item
	out.Options = shuffled
	return out
}
