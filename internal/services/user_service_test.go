package services

import (
	"testing"

	"github.com/equential/classvote/internal/models"
)

type stubUserStore struct {
	users       map[string]*models.User
	experiments map[string]*models.Experiment
}

func newStubUserStore() *stubUserStore {
	return &stubUserStore{
		users:       map[string]*models.User{},
		experiments: map[string]*models.Experiment{},
	}
}

func (s *stubUserStore) InsertUser(u *models.User) error {
	s.users[u.ID] = u
	return nil
}

func (s *stubUserStore) GetUser(id string) (*models.User, error) {
	return s.users[id], nil
}

func (s *stubUserStore) FindUserByEmail(email string) (*models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (s *stubUserStore) FindUserByAccessID(accessID string) (*models.User, error) {
	for _, u := range s.users {
		if u.AccessID == accessID {
			return u, nil
		}
	}
	return nil, nil
}

func (s *stubUserStore) ListVoters() ([]*models.User, error) {
	out := []*models.User{}
	for _, u := range s.users {
		if !u.IsAdmin {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *stubUserStore) SaveUser(u *models.User) error {
	s.users[u.ID] = u
	return nil
}

func (s *stubUserStore) DeleteUser(id string) error {
	delete(s.users, id)
	return nil
}

func (s *stubUserStore) GetExperiment(id string) (*models.Experiment, error) {
	return s.experiments[id], nil
}

func (s *stubUserStore) ListExperiments() ([]*models.Experiment, error) {
	out := []*models.Experiment{}
	for _, exp := range s.experiments {
		out = append(out, exp)
	}
	return out, nil
}

func TestCreateUserEnrollsIntoExistingExperiments(t *testing.T) {
	store := newStubUserStore()
	store.experiments["E1"] = &models.Experiment{ID: "E1", Name: "one"}
	store.experiments["E2"] = &models.Experiment{ID: "E2", Name: "two"}
	svc := NewUserService(store)

	u, err := svc.CreateUser("Voter@Example.COM", "Ada Voter", false)
	if err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	if u.Email != "voter@example.com" {
		t.Fatalf("email must be lowercased, got %s", u.Email)
	}
	if u.AccessID == "" || u.ID == "" {
		t.Fatalf("ids must be assigned: %+v", u)
	}
	if len(u.ExperimentLinks) != 2 {
		t.Fatalf("expected a link per experiment, got %v", u.ExperimentLinks)
	}
	if u.ExperimentLinks["E1"] == u.ExperimentLinks["E2"] {
		t.Fatal("tokens must differ per experiment")
	}
}

func TestCreateUserAdminGetsNoLinks(t *testing.T) {
	store := newStubUserStore()
	store.experiments["E1"] = &models.Experiment{ID: "E1", Name: "one"}
	svc := NewUserService(store)

	u, err := svc.CreateUser("admin@example.com", "Root Admin", true)
	if err != nil {
		t.Fatal(err)
	}
	if !u.IsAdmin {
		t.Fatal("expected admin flag set")
	}
	if len(u.ExperimentLinks) != 0 {
		t.Fatalf("admins are not enrolled, got %v", u.ExperimentLinks)
	}
	voters, _ := store.ListVoters()
	if len(voters) != 0 {
		t.Fatalf("admin must not be listed as voter: %v", voters)
	}
}

func TestCreateUserValidation(t *testing.T) {
	svc := NewUserService(newStubUserStore())

	if _, err := svc.CreateUser("not-an-email", "Name", false); err == nil {
		t.Fatal("expected invalid email error")
	}
	if _, err := svc.CreateUser("a@b.com", "  ", false); err == nil {
		t.Fatal("expected missing full_name error")
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	svc := NewUserService(newStubUserStore())

	if _, err := svc.CreateUser("dup@example.com", "First", false); err != nil {
		t.Fatal(err)
	}
	_, err := svc.CreateUser("DUP@example.com", "Second", false)
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestDeleteUserKeepsRecordedChoices(t *testing.T) {
	store := newStubUserStore()
	exp := twoItemExperiment()
	exp.Items[0].Choices = []models.Choice{{UserEmail: "gone@example.com", OptionID: "1_0"}}
	store.experiments[exp.ID] = exp
	store.users["u1"] = &models.User{ID: "u1", Email: "gone@example.com"}
	svc := NewUserService(store)

	if err := svc.DeleteUser("u1"); err != nil {
		t.Fatalf("DeleteUser error: %v", err)
	}
	if _, ok := store.users["u1"]; ok {
		t.Fatal("user record should be gone")
	}
	if len(store.experiments[exp.ID].Items[0].Choices) != 1 {
		t.Fatal("recorded choices must survive user deletion")
	}

	err := svc.DeleteUser("u1")
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestLookupByAccessID(t *testing.T) {
	store := newStubUserStore()
	store.users["u1"] = &models.User{ID: "u1", Email: "a@b.com", AccessID: "tok"}
	svc := NewUserService(store)

	u, err := svc.LookupByAccessID("tok")
	if err != nil || u.ID != "u1" {
		t.Fatalf("lookup failed: %v %v", u, err)
	}
	if _, err := svc.LookupByAccessID("nope"); err == nil {
		t.Fatal("expected not_found")
	}
	if _, err := svc.LookupByAccessID("  "); err == nil {
		t.Fatal("expected invalid for blank access id")
	}
}

func TestLookupUserByLink(t *testing.T) {
	store := newStubUserStore()
	store.users["u1"] = &models.User{
		ID:              "u1",
		Email:           "a@b.com",
		ExperimentLinks: map[string]string{"E1": "link-token"},
	}
	svc := NewUserService(store)

	u, err := svc.LookupUserByLink("link-token")
	if err != nil || u.ID != "u1" {
		t.Fatalf("lookup failed: %v %v", u, err)
	}
	if got := svc.LinkedExperimentID(u, "link-token"); got != "E1" {
		t.Fatalf("expected E1, got %q", got)
	}
	if got := svc.LinkedExperimentID(u, "other"); got != "" {
		t.Fatalf("foreign token must not resolve, got %q", got)
	}
	if _, err := svc.LookupUserByLink("unknown"); err == nil {
		t.Fatal("expected not_found for unknown token")
	}
}

func TestGenerateLinkReplacesPriorToken(t *testing.T) {
	store := newStubUserStore()
	u := &models.User{ID: "u1", Email: "a@b.com", ExperimentLinks: map[string]string{"E1": "old"}}
	store.users["u1"] = u
	svc := NewUserService(store)

	token, err := svc.GenerateLink(u, "E1")
	if err != nil {
		t.Fatal(err)
	}
	if token == "old" || u.ExperimentLinks["E1"] != token {
		t.Fatalf("expected fresh token, got %q map=%v", token, u.ExperimentLinks)
	}
	if store.users["u1"].ExperimentLinks["E1"] != token {
		t.Fatal("link change must be persisted")
	}
}

func TestProgressFor(t *testing.T) {
	store := newStubUserStore()
	exp := twoItemExperiment()
	exp.Items[0].Choices = []models.Choice{{UserEmail: "a@b.com", OptionID: "1_0"}}
	store.experiments[exp.ID] = exp
	u := &models.User{
		ID:    "u1",
		Email: "a@b.com",
		ExperimentLinks: map[string]string{
			exp.ID:  "tok1",
			"stale": "tok2",
		},
	}
	svc := NewUserService(store)

	progress, err := svc.ProgressFor(u)
	if err != nil {
		t.Fatal(err)
	}
	if len(progress) != 1 {
		t.Fatalf("stale links must be skipped, got %v", progress)
	}
	p := progress[0]
	if p.ExperimentName != exp.Name || p.AccessLink != "tok1" {
		t.Fatalf("unexpected progress entry: %+v", p)
	}
	if p.TotalItems != 2 || p.AnsweredItems != 1 || p.ProgressPercentage != 50.0 {
		t.Fatalf("unexpected progress numbers: %+v", p)
	}
}

func TestProgressForOrderedByName(t *testing.T) {
	store := newStubUserStore()
	store.experiments["E1"] = &models.Experiment{ID: "E1", Name: "zeta"}
	store.experiments["E2"] = &models.Experiment{ID: "E2", Name: "alpha"}
	u := &models.User{
		ID:              "u1",
		Email:           "a@b.com",
		ExperimentLinks: map[string]string{"E1": "t1", "E2": "t2"},
	}
	svc := NewUserService(store)

	progress, err := svc.ProgressFor(u)
	if err != nil {
		t.Fatal(err)
	}
	if len(progress) != 2 || progress[0].ExperimentName != "alpha" {
		t.Fatalf("expected name order, got %v", progress)
	}
	if progress[0].ProgressPercentage != 0 {
		t.Fatalf("empty experiment must report 0%%: %+v", progress[0])
	}
}
