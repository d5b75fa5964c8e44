package api

import (
	"github.com/equential/classvote/internal/models"
	"github.com/equential/classvote/internal/services"
)

// Store is the document-store surface the server needs, over two collections:
// users and experiments. Saves rewrite the whole document. SaveExperiment is
// version-checked (models.ErrVersionConflict on a lost race) because
// concurrent votes mutate the same document; SaveUser is a plain overwrite.
type Store interface {
	InsertUser(u *models.User) error
	GetUser(id string) (*models.User, error)
	FindUserByEmail(email string) (*models.User, error)
	FindUserByAccessID(accessID string) (*models.User, error)
	ListVoters() ([]*models.User, error)
	SaveUser(u *models.User) error
	DeleteUser(id string) error

	InsertExperiment(exp *models.Experiment) error
	GetExperiment(id string) (*models.Experiment, error)
	ListExperiments() ([]*models.Experiment, error)
	SaveExperiment(exp *models.Experiment) error
	DeleteExperiment(id string) error
}

// Every Store implementation also satisfies the narrow per-service interfaces.
var (
	_ services.VoteStore       = Store(nil)
	_ services.ResultsStore    = Store(nil)
	_ services.ExperimentStore = Store(nil)
	_ services.UserStore       = Store(nil)

	_ Store = (*MemoryStore)(nil)
)
