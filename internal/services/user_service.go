package services

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/equential/classvote/internal/models"
)

// UserStore abstracts persistence operations required by UserService.
type UserStore interface {
	InsertUser(u *models.User) error
	GetUser(id string) (*models.User, error)
	FindUserByEmail(email string) (*models.User, error)
	FindUserByAccessID(accessID string) (*models.User, error)
	ListVoters() ([]*models.User, error)
	SaveUser(u *models.User) error
	DeleteUser(id string) error
	GetExperiment(id string) (*models.Experiment, error)
	ListExperiments() ([]*models.Experiment, error)
}

// UserService owns users and the access-link registry mapping opaque tokens
// to experiments.
type UserService struct {
	store UserStore
}

func NewUserService(store UserStore) *UserService {
	return &UserService{store: store}
}

// LinkProgress describes one linked experiment on a user's overview page.
type LinkProgress struct {
	ExperimentName     string  `json:"experiment_name"`
	AccessLink         string  `json:"access_link"`
	TotalItems         int     `json:"total_items"`
	AnsweredItems      int     `json:"answered_items"`
	ProgressPercentage float64 `json:"progress_percentage"`
}

// CreateUser registers a user. A new voter is enrolled into every existing
// experiment by generating one link per experiment.
func (s *UserService) CreateUser(email, fullName string, isAdmin bool) (*models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, NewInvalidError("valid email required")
	}
	if strings.TrimSpace(fullName) == "" {
		return nil, NewInvalidError("full_name required")
	}
	existing, err := s.store.FindUserByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewConflictError("email already registered")
	}
	u := &models.User{
		ID:              shortID(12),
		Email:           email,
		FullName:        fullName,
		AccessID:        uuid.NewString(),
		IsAdmin:         isAdmin,
		ExperimentLinks: map[string]string{},
	}
	if err := s.store.InsertUser(u); err != nil {
		return nil, err
	}
	if !isAdmin {
		exps, err := s.store.ListExperiments()
		if err != nil {
			return nil, err
		}
		for _, exp := range exps {
			if _, err := s.GenerateLink(u, exp.ID); err != nil {
				return nil, err
			}
		}
	}
	return u, nil
}

// ListVoters returns every non-admin user.
func (s *UserService) ListVoters() ([]*models.User, error) {
	return s.store.ListVoters()
}

// DeleteUser removes the user and their link map. Choices the user recorded
// on items are deliberately left in place, so historical tallies keep
// counting them under the original email.
func (s *UserService) DeleteUser(id string) error {
	u, err := s.store.GetUser(id)
	if err != nil {
		return err
	}
	if u == nil {
		return NewNotFoundError("user not found")
	}
	return s.store.DeleteUser(id)
}

// LookupByAccessID resolves a user from their self-service access token.
func (s *UserService) LookupByAccessID(accessID string) (*models.User, error) {
	if strings.TrimSpace(accessID) == "" {
		return nil, NewInvalidError("access_id required")
	}
	u, err := s.store.FindUserByAccessID(accessID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, NewNotFoundError("user not found")
	}
	return u, nil
}

// LookupUserByLink scans every voter's link map for the token. Linear in the
// number of users; fine at this scale.
func (s *UserService) LookupUserByLink(token string) (*models.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, NewInvalidError("token required")
	}
	voters, err := s.store.ListVoters()
	if err != nil {
		return nil, err
	}
	for _, u := range voters {
		if u.ExperimentForLink(token) != "" {
			return u, nil
		}
	}
	return nil, NewNotFoundError("no user for link")
}

// LinkedExperimentID reverse-looks-up the token in the user's own link map.
// Empty result means the token is not one of the user's links.
func (s *UserService) LinkedExperimentID(u *models.User, token string) string {
	return u.ExperimentForLink(token)
}

// GenerateLink creates a fresh token for the experiment, replacing any prior
// one, and persists the user.
func (s *UserService) GenerateLink(u *models.User, experimentID string) (string, error) {
	if u.ExperimentLinks == nil {
		u.ExperimentLinks = map[string]string{}
	}
	token := uuid.NewString()
	u.ExperimentLinks[experimentID] = token
	if err := s.store.SaveUser(u); err != nil {
		return "", err
	}
	return token, nil
}

// ProgressFor reports, per linked experiment, how far the user has come.
// Links whose experiment no longer exists are skipped. Output is ordered by
// experiment name so the overview is stable.
func (s *UserService) ProgressFor(u *models.User) ([]LinkProgress, error) {
	out := []LinkProgress{}
	for expID, token := range u.ExperimentLinks {
		exp, err := s.store.GetExperiment(expID)
		if err != nil {
			return nil, err
		}
		if exp == nil {
			continue
		}
		answered := 0
		for i := range exp.Items {
			if exp.Items[i].HasChoiceBy(u.Email) {
				answered++
			}
		}
		pct := 0.0
		if len(exp.Items) > 0 {
			pct = round1(float64(answered) / float64(len(exp.Items)) * 100)
		}
		out = append(out, LinkProgress{
			ExperimentName:     exp.Name,
			AccessLink:         token,
			TotalItems:         len(exp.Items),
			AnsweredItems:      answered,
			ProgressPercentage: pct,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExperimentName < out[j].ExperimentName })
	return out, nil
}
