package services

import (
	"sync"
	"testing"

	"github.com/equential/classvote/internal/models"
)

type stubVoteStore struct {
	saves int
}

func (s *stubVoteStore) SaveExperiment(exp *models.Experiment) error {
	s.saves++
	return nil
}

func twoItemExperiment() *models.Experiment {
	return &models.Experiment{
		ID:           "E1",
		Name:         "Preference Test",
		Categories:   []string{"A", "B"},
		CategoryDescriptions: map[string]string{"A": "first", "B": "second"},
		Items: []models.ClassificationItem{
			{
				ItemID:  "1",
				Content: "Q1",
				Options: []models.Option{
					{ID: "1_0", Text: "a", Category: "A"},
					{ID: "1_1", Text: "b", Category: "B"},
				},
			},
			{
				ItemID:  "2",
				Content: "Q2",
				Options: []models.Option{
					{ID: "2_0", Text: "c", Category: "A"},
					{ID: "2_1", Text: "d", Category: "B"},
				},
			},
		},
	}
}

func TestRecordChoiceReplacesPrior(t *testing.T) {
	store := &stubVoteStore{}
	svc := NewVoteService(store)
	exp := twoItemExperiment()

	for _, optID := range []string{"1_0", "1_1"} {
		ok, err := svc.RecordChoice(exp, "1", "x@example.com", optID)
		if err != nil {
			t.Fatalf("RecordChoice error: %v", err)
		}
		if !ok {
			t.Fatalf("expected choice %s to be accepted", optID)
		}
	}

	item := exp.ItemByID("1")
	if len(item.Choices) != 1 {
		t.Fatalf("expected exactly one choice, got %d", len(item.Choices))
	}
	if item.Choices[0].OptionID != "1_1" {
		t.Fatalf("expected last vote to win, got %s", item.Choices[0].OptionID)
	}
	votes := VotesPerCategory(exp.Categories, item)
	if votes["A"] != 0 || votes["B"] != 1 {
		t.Fatalf("unexpected category tally: %v", votes)
	}
	if store.saves != 2 {
		t.Fatalf("expected 2 saves, got %d", store.saves)
	}
}

func TestRecordChoiceIdempotent(t *testing.T) {
	svc := NewVoteService(&stubVoteStore{})
	exp := twoItemExperiment()

	for i := 0; i < 3; i++ {
		if ok, err := svc.RecordChoice(exp, "1", "x@example.com", "1_0"); err != nil || !ok {
			t.Fatalf("RecordChoice attempt %d: ok=%v err=%v", i, ok, err)
		}
	}
	item := exp.ItemByID("1")
	if len(item.Choices) != 1 || item.Choices[0].OptionID != "1_0" {
		t.Fatalf("repeated identical votes changed state: %+v", item.Choices)
	}
}

func TestRecordChoiceRejectsUnknownIDs(t *testing.T) {
	store := &stubVoteStore{}
	svc := NewVoteService(store)
	exp := twoItemExperiment()

	if ok, err := svc.RecordChoice(exp, "missing", "x@example.com", "1_0"); err != nil || ok {
		t.Fatalf("unknown item: ok=%v err=%v", ok, err)
	}
	if ok, err := svc.RecordChoice(exp, "1", "x@example.com", "9_9"); err != nil || ok {
		t.Fatalf("unknown option: ok=%v err=%v", ok, err)
	}
	if store.saves != 0 {
		t.Fatalf("rejected votes must not persist, got %d saves", store.saves)
	}
}

type conflictVoteStore struct{}

func (conflictVoteStore) SaveExperiment(*models.Experiment) error {
	return models.ErrVersionConflict
}

func TestRecordChoiceReportsConflict(t *testing.T) {
	svc := NewVoteService(conflictVoteStore{})
	exp := twoItemExperiment()

	_, err := svc.RecordChoice(exp, "1", "x@example.com", "1_0")
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorConflict {
		t.Fatalf("version conflict must surface as conflict error, got %v", err)
	}
}

func TestRecordChoiceKeepsOtherUsers(t *testing.T) {
	svc := NewVoteService(&stubVoteStore{})
	exp := twoItemExperiment()

	if _, err := svc.RecordChoice(exp, "1", "x@example.com", "1_0"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RecordChoice(exp, "1", "y@example.com", "1_1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RecordChoice(exp, "1", "x@example.com", "1_1"); err != nil {
		t.Fatal(err)
	}
	item := exp.ItemByID("1")
	if len(item.Choices) != 2 {
		t.Fatalf("expected one choice per user, got %+v", item.Choices)
	}
}

func TestUnansweredItems(t *testing.T) {
	svc := NewVoteService(&stubVoteStore{})
	exp := twoItemExperiment()

	unanswered := svc.UnansweredItems(exp, "x@example.com")
	if len(unanswered) != 2 {
		t.Fatalf("expected both items unanswered, got %d", len(unanswered))
	}
	if unanswered[0].ItemID != "1" || unanswered[1].ItemID != "2" {
		t.Fatalf("unanswered items must follow stored order: %v", unanswered)
	}

	if _, err := svc.RecordChoice(exp, "1", "x@example.com", "1_0"); err != nil {
		t.Fatal(err)
	}
	unanswered = svc.UnansweredItems(exp, "x@example.com")
	if len(unanswered) != 1 || unanswered[0].ItemID != "2" {
		t.Fatalf("expected only item 2 unanswered, got %v", unanswered)
	}
	for _, it := range unanswered {
		if it.HasChoiceBy("x@example.com") {
			t.Fatalf("unanswered set contains answered item %s", it.ItemID)
		}
	}

	if _, err := svc.RecordChoice(exp, "2", "x@example.com", "2_1"); err != nil {
		t.Fatal(err)
	}
	if got := svc.UnansweredItems(exp, "x@example.com"); len(got) != 0 {
		t.Fatalf("expected completion, got %v", got)
	}
}

func TestSelectNextReturnsMember(t *testing.T) {
	svc := NewVoteService(&stubVoteStore{})
	exp := twoItemExperiment()
	unanswered := svc.UnansweredItems(exp, "x@example.com")
	for i := 0; i < 20; i++ {
		next := svc.SelectNext(unanswered)
		if next.ItemID != "1" && next.ItemID != "2" {
			t.Fatalf("SelectNext returned foreign item %q", next.ItemID)
		}
	}
}

func TestConcurrentItemSelection(t *testing.T) {
	svc := NewVoteService(&stubVoteStore{})
	exp := twoItemExperiment()
	unanswered := svc.UnansweredItems(exp, "x@example.com")

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				next := svc.SelectNext(unanswered)
				copyItem := svc.PresentationCopy(next)
				if len(copyItem.Options) != len(next.Options) {
					t.Error("presentation copy lost options")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestPresentationCopyShufflesWithoutMutating(t *testing.T) {
	svc := NewVoteService(&stubVoteStore{})
	item := &models.ClassificationItem{
		ItemID:  "1",
		Content: "Q1",
		Options: []models.Option{
			{ID: "1_0", Text: "a", Category: "A"},
			{ID: "1_1", Text: "b", Category: "B"},
			{ID: "1_2", Text: "c", Category: "A"},
			{ID: "1_3", Text: "d", Category: "B"},
		},
	}
	originalOrder := make([]string, len(item.Options))
	for i, o := range item.Options {
		originalOrder[i] = o.ID
	}

	for i := 0; i < 10; i++ {
		copyItem := svc.PresentationCopy(item)
		if len(copyItem.Options) != len(item.Options) {
			t.Fatalf("option count changed: %d", len(copyItem.Options))
		}
		seen := map[string]models.Option{}
		for _, o := range copyItem.Options {
			seen[o.ID] = o
		}
		for _, orig := range item.Options {
			got, ok := seen[orig.ID]
			if !ok {
				t.Fatalf("option %s missing after shuffle", orig.ID)
			}
			if got.Text != orig.Text || got.Category != orig.Category {
				t.Fatalf("option %s mutated: %+v", orig.ID, got)
			}
		}
	}

	for i, o := range item.Options {
		if o.ID != originalOrder[i] {
			t.Fatalf("stored item order mutated at %d: %s", i, o.ID)
		}
	}
}
