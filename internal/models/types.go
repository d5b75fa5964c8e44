package models

import "errors"

// ErrVersionConflict is returned by a store when a version-checked save loses
// the race against a concurrent writer. Callers re-read and retry, or give up.
var ErrVersionConflict = errors.New("document version conflict")

// Choice is one user's current selection for one item. An item holds at most
// one Choice per user email; recording a new vote replaces the old one.
type Choice struct {
	UserEmail string `bson:"user_email" json:"user_email"`
	OptionID  string `bson:"option_id" json:"option_id"`
}

// Option is a selectable answer tagged with a category. Options are created at
// experiment-definition time and never mutated.
type Option struct {
	ID       string `bson:"id" json:"id"`
	Text     string `bson:"text" json:"text"`
	Category string `bson:"category" json:"category"`
}

// ClassificationItem is one classification question with its options and the
// choices collected so far. Only the Choices slice mutates after creation.
type ClassificationItem struct {
	ItemID  string   `bson:"item_id" json:"item_id"`
	Content string   `bson:"content" json:"content"`
	Options []Option `bson:"options" json:"options"`
	Choices []Choice `bson:"choices" json:"choices"`
}

// OptionByID returns the option with the given id, or nil.
func (it *ClassificationItem) OptionByID(optionID string) *Option {
	for i := range it.Options {
		if it.Options[i].ID == optionID {
			return &it.Options[i]
		}
	}
	return nil
}

// OptionCategories maps each option id to its category.
func (it *ClassificationItem) OptionCategories() map[string]string {
	out := make(map[string]string, len(it.Options))
	for _, opt := range it.Options {
		out[opt.ID] = opt.Category
	}
	return out
}

// HasChoiceBy reports whether the user has a recorded choice on this item.
func (it *ClassificationItem) HasChoiceBy(userEmail string) bool {
	for _, c := range it.Choices {
		if c.UserEmail == userEmail {
			return true
		}
	}
	return false
}

// Experiment is a named collection of classification items with a fixed
// category taxonomy. Items and categories are immutable after creation; only
// the nested choices mutate. Version guards saves: a store accepts a save only
// when the stored version matches, then increments it, so two concurrent
// vote submissions cannot silently drop each other's choice.
type Experiment struct {
	ID                   string               `bson:"_id" json:"id"`
	Version              int64                `bson:"version" json:"version"`
	Name                 string               `bson:"name" json:"name"`
	Instructions         string               `bson:"instructions" json:"instructions"`
	Items                []ClassificationItem `bson:"items" json:"items"`
	Categories           []string             `bson:"categories" json:"categories"`
	CategoryDescriptions map[string]string    `bson:"category_descriptions" json:"category_descriptions"`
}

// ItemByID returns the item with the given id, or nil.
func (e *Experiment) ItemByID(itemID string) *ClassificationItem {
	for i := range e.Items {
		if e.Items[i].ItemID == itemID {
			return &e.Items[i]
		}
	}
	return nil
}

// User is a voter or an admin. ExperimentLinks maps an experiment id to the
// opaque token granting this user voting access to that experiment; a user has
// exactly one live link per experiment. Deleting a user does not remove their
// choices from items; orphaned choices stay counted under the original email.
type User struct {
	ID              string            `bson:"_id" json:"id"`
	Email           string            `bson:"email" json:"email"`
	FullName        string            `bson:"full_name" json:"full_name"`
	AccessID        string            `bson:"access_id" json:"access_id"`
	IsAdmin         bool              `bson:"is_admin" json:"is_admin"`
	ExperimentLinks map[string]string `bson:"experiment_links" json:"experiment_links"`
}

// ExperimentForLink returns the experiment id the token belongs to, or "".
func (u *User) ExperimentForLink(token string) string {
	for expID, t := range u.ExperimentLinks {
		if t == token {
			return expID
		}
	}
	return ""
}
