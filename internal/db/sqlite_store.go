package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/equential/classvote/internal/api"
	"github.com/equential/classvote/internal/models"
)

// SQLiteStore keeps the same document shapes as the Mongo store in a local
// SQLite file: one row per document, nested structures JSON-encoded. Saves
// rewrite the whole row, preserving the full-aggregate overwrite semantics.
type SQLiteStore struct {
	db *sql.DB
}

var _ api.Store = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id               TEXT PRIMARY KEY,
    email            TEXT NOT NULL,
    full_name        TEXT NOT NULL,
    access_id        TEXT NOT NULL,
    is_admin         INTEGER NOT NULL DEFAULT 0,
    experiment_links TEXT
);
CREATE TABLE IF NOT EXISTS experiments (
    id                    TEXT PRIMARY KEY,
    version               INTEGER NOT NULL DEFAULT 0,
    name                  TEXT NOT NULL,
    instructions          TEXT NOT NULL,
    items                 TEXT NOT NULL,
    categories            TEXT NOT NULL,
    category_descriptions TEXT
);
`

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// OpenSQLiteStore opens (creating if needed) the database file at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", path)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	store, err := NewSQLiteStore(sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSON[T any](raw sql.NullString) (T, error) {
	var out T
	if !raw.Valid || raw.String == "" {
		return out, nil
	}
	err := json.Unmarshal([]byte(raw.String), &out)
	return out, err
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func (s *SQLiteStore) writeUser(u *models.User) error {
	links, err := encodeJSON(u.ExperimentLinks)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO users (id, email, full_name, access_id, is_admin, experiment_links)
      VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.FullName, u.AccessID, boolToInt64(u.IsAdmin), links)
	return err
}

func (s *SQLiteStore) InsertUser(u *models.User) error { return s.writeUser(u) }
func (s *SQLiteStore) SaveUser(u *models.User) error   { return s.writeUser(u) }

func (s *SQLiteStore) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var isAdmin int64
	var links sql.NullString
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.AccessID, &isAdmin, &links)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.IsAdmin = isAdmin != 0
	if u.ExperimentLinks, err = decodeJSON[map[string]string](links); err != nil {
		return nil, err
	}
	return &u, nil
}

const userColumns = "id, email, full_name, access_id, is_admin, experiment_links"

func (s *SQLiteStore) GetUser(id string) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (s *SQLiteStore) FindUserByEmail(email string) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, email))
}

func (s *SQLiteStore) FindUserByAccessID(accessID string) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE access_id = ?`, accessID))
}

func (s *SQLiteStore) ListVoters() ([]*models.User, error) {
	rows, err := s.db.Query(`SELECT ` + userColumns + ` FROM users WHERE is_admin = 0 ORDER BY email ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*models.User{}
	for rows.Next() {
		var u models.User
		var isAdmin int64
		var links sql.NullString
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.AccessID, &isAdmin, &links); err != nil {
			return nil, err
		}
		u.IsAdmin = isAdmin != 0
		if u.ExperimentLinks, err = decodeJSON[map[string]string](links); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteUser(id string) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	return err
}

type experimentRow struct {
	items, categories, descriptions string
}

func encodeExperiment(exp *models.Experiment) (experimentRow, error) {
	var row experimentRow
	var err error
	if row.items, err = encodeJSON(exp.Items); err != nil {
		return row, err
	}
	if row.categories, err = encodeJSON(exp.Categories); err != nil {
		return row, err
	}
	row.descriptions, err = encodeJSON(exp.CategoryDescriptions)
	return row, err
}

func (s *SQLiteStore) InsertExperiment(exp *models.Experiment) error {
	row, err := encodeExperiment(exp)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO experiments (id, version, name, instructions, items, categories, category_descriptions)
      VALUES (?, ?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.Version, exp.Name, exp.Instructions, row.items, row.categories, row.descriptions)
	return err
}

// SaveExperiment rewrites the whole row under a version check, mirroring the
// document overwrite the Mongo store performs. A non-matching version means a
// concurrent writer got there first.
func (s *SQLiteStore) SaveExperiment(exp *models.Experiment) error {
	row, err := encodeExperiment(exp)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE experiments
      SET version = version + 1, name = ?, instructions = ?, items = ?, categories = ?, category_descriptions = ?
      WHERE id = ? AND version = ?`,
		exp.Name, exp.Instructions, row.items, row.categories, row.descriptions,
		exp.ID, exp.Version)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrVersionConflict
	}
	return nil
}

const experimentColumns = "id, version, name, instructions, items, categories, category_descriptions"

func scanExperimentFields(exp *models.Experiment, items, categories, descriptions sql.NullString) error {
	var err error
	if exp.Items, err = decodeJSON[[]models.ClassificationItem](items); err != nil {
		return err
	}
	if exp.Categories, err = decodeJSON[[]string](categories); err != nil {
		return err
	}
	exp.CategoryDescriptions, err = decodeJSON[map[string]string](descriptions)
	return err
}

func (s *SQLiteStore) GetExperiment(id string) (*models.Experiment, error) {
	row := s.db.QueryRow(`SELECT `+experimentColumns+` FROM experiments WHERE id = ?`, id)
	var exp models.Experiment
	var items, categories, descriptions sql.NullString
	err := row.Scan(&exp.ID, &exp.Version, &exp.Name, &exp.Instructions, &items, &categories, &descriptions)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := scanExperimentFields(&exp, items, categories, descriptions); err != nil {
		return nil, err
	}
	return &exp, nil
}

func (s *SQLiteStore) ListExperiments() ([]*models.Experiment, error) {
	rows, err := s.db.Query(`SELECT ` + experimentColumns + ` FROM experiments ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*models.Experiment{}
	for rows.Next() {
		var exp models.Experiment
		var items, categories, descriptions sql.NullString
		if err := rows.Scan(&exp.ID, &exp.Version, &exp.Name, &exp.Instructions, &items, &categories, &descriptions); err != nil {
			return nil, err
		}
		if err := scanExperimentFields(&exp, items, categories, descriptions); err != nil {
			return nil, err
		}
		out = append(out, &exp)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteExperiment(id string) error {
	_, err := s.db.Exec(`DELETE FROM experiments WHERE id = ?`, id)
	return err
}
