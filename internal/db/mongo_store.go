package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/equential/classvote/internal/api"
	"github.com/equential/classvote/internal/models"
)

const opTimeout = 5 * time.Second

// MongoStore persists users and experiments as whole documents in two
// collections. Experiments nest their items, options and choices; a save
// replaces the full document (last writer wins on concurrent saves).
type MongoStore struct {
	client      *mongo.Client
	users       *mongo.Collection
	experiments *mongo.Collection
}

var _ api.Store = (*MongoStore)(nil)

// NewMongoStore connects and pings the server. A failed ping is returned as
// an error; the caller must not serve traffic without storage.
func NewMongoStore(ctx context.Context, url, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(url).
		SetServerSelectionTimeout(opTimeout))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	database := client.Database(dbName)
	return &MongoStore{
		client:      client,
		users:       database.Collection("users"),
		experiments: database.Collection("experiments"),
	}, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

func (s *MongoStore) InsertUser(u *models.User) error {
	ctx, cancel := opCtx()
	defer cancel()
	_, err := s.users.InsertOne(ctx, u)
	return err
}

func (s *MongoStore) GetUser(id string) (*models.User, error) {
	return s.findUser(bson.M{"_id": id})
}

func (s *MongoStore) FindUserByEmail(email string) (*models.User, error) {
	return s.findUser(bson.M{"email": email})
}

func (s *MongoStore) FindUserByAccessID(accessID string) (*models.User, error) {
	return s.findUser(bson.M{"access_id": accessID})
}

func (s *MongoStore) findUser(filter bson.M) (*models.User, error) {
	ctx, cancel := opCtx()
	defer cancel()
	var u models.User
	err := s.users.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *MongoStore) ListVoters() ([]*models.User, error) {
	ctx, cancel := opCtx()
	defer cancel()
	cur, err := s.users.Find(ctx, bson.M{"is_admin": false},
		options.Find().SetSort(bson.D{{Key: "email", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []*models.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) SaveUser(u *models.User) error {
	ctx, cancel := opCtx()
	defer cancel()
	_, err := s.users.ReplaceOne(ctx, bson.M{"_id": u.ID}, u,
		options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) DeleteUser(id string) error {
	ctx, cancel := opCtx()
	defer cancel()
	_, err := s.users.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *MongoStore) InsertExperiment(exp *models.Experiment) error {
	ctx, cancel := opCtx()
	defer cancel()
	_, err := s.experiments.InsertOne(ctx, exp)
	return err
}

func (s *MongoStore) GetExperiment(id string) (*models.Experiment, error) {
	ctx, cancel := opCtx()
	defer cancel()
	var exp models.Experiment
	err := s.experiments.FindOne(ctx, bson.M{"_id": id}).Decode(&exp)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &exp, nil
}

func (s *MongoStore) ListExperiments() ([]*models.Experiment, error) {
	ctx, cancel := opCtx()
	defer cancel()
	cur, err := s.experiments.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []*models.Experiment
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveExperiment replaces the stored document wholesale, matching on both id
// and the version the caller read. No match means a concurrent writer bumped
// the version first (or the experiment is gone).
func (s *MongoStore) SaveExperiment(exp *models.Experiment) error {
	ctx, cancel := opCtx()
	defer cancel()
	next := *exp
	next.Version = exp.Version + 1
	res, err := s.experiments.ReplaceOne(ctx,
		bson.M{"_id": exp.ID, "version": exp.Version}, &next)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return models.ErrVersionConflict
	}
	return nil
}

func (s *MongoStore) DeleteExperiment(id string) error {
	ctx, cancel := opCtx()
	defer cancel()
	_, err := s.experiments.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
