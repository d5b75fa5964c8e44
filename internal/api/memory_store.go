package api

import (
	"sort"
	"strings"
	"sync"

	"github.com/equential/classvote/internal/models"
)

// MemoryStore keeps both collections in process memory. It is the
// zero-config fallback driver and the store used by tests. Reads hand out
// deep copies so callers see document-store semantics: mutations only become
// visible through an explicit save.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]*models.User
	experiments map[string]*models.Experiment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       map[string]*models.User{},
		experiments: map[string]*models.Experiment{},
	}
}

func cloneUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	out := *u
	out.ExperimentLinks = make(map[string]string, len(u.ExperimentLinks))
	for k, v := range u.ExperimentLinks {
		out.ExperimentLinks[k] = v
	}
	return &out
}

func cloneExperiment(e *models.Experiment) *models.Experiment {
	if e == nil {
		return nil
	}
	out := *e
	out.Categories = append([]string(nil), e.Categories...)
	out.CategoryDescriptions = make(map[string]string, len(e.CategoryDescriptions))
	for k, v := range e.CategoryDescriptions {
		out.CategoryDescriptions[k] = v
	}
	out.Items = make([]models.ClassificationItem, len(e.Items))
	for i, it := range e.Items {
		ci := it
		ci.Options = append([]models.Option(nil), it.Options...)
		ci.Choices = append([]models.Choice(nil), it.Choices...)
		out.Items[i] = ci
	}
	return &out
}

func (s *MemoryStore) InsertUser(u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *MemoryStore) GetUser(id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneUser(s.users[id]), nil
}

func (s *MemoryStore) FindUserByEmail(email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) FindUserByAccessID(accessID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.AccessID == accessID {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListVoters() ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.User{}
	for _, u := range s.users {
		if !u.IsAdmin {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *MemoryStore) SaveUser(u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *MemoryStore) DeleteUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	return nil
}

func (s *MemoryStore) InsertExperiment(exp *models.Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.experiments[exp.ID] = cloneExperiment(exp)
	return nil
}

func (s *MemoryStore) GetExperiment(id string) (*models.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneExperiment(s.experiments[id]), nil
}

func (s *MemoryStore) ListExperiments() ([]*models.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Experiment{}
	for _, e := range s.experiments {
		out = append(out, cloneExperiment(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SaveExperiment overwrites the whole stored document, but only when the
// caller's version matches the stored one. The stored version is then
// incremented.
func (s *MemoryStore) SaveExperiment(exp *models.Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.experiments[exp.ID]
	if !ok || current.Version != exp.Version {
		return models.ErrVersionConflict
	}
	saved := cloneExperiment(exp)
	saved.Version++
	s.experiments[exp.ID] = saved
	return nil
}

func (s *MemoryStore) DeleteExperiment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.experiments, id)
	return nil
}
