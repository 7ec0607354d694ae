package auth

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pborman/uuid"

	"github.com/atlasdatatech/mvt-server/internal/catalog"
)

// Store persists Users and their group memberships. It shares the
// config database with catalog.SQLiteStore's groups table: a user's
// groups are looked up by id, not duplicated.
type Store interface {
	ListUsers() ([]User, error)
	FindUserByID(id string) (*User, error)
	FindUserByUsername(username string) (*User, error)
	CreateUser(u User) (User, error)
	UpdateUser(u User) error
	DeleteUser(id string) error
}

// SQLiteStore is the Store backed by the same SQLite config database
// catalog.SQLiteStore uses, following the teacher's single
// config-store-per-process convention.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore wraps an already-open config database handle.
func OpenSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// BootstrapSchema creates the users/user_groups tables if absent. The
// server calls it at startup after catalog.SQLiteStore.BootstrapSchema,
// and tests call it against an in-memory database.
func (s *SQLiteStore) BootstrapSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL,
	password_hash TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS user_groups (
	user_id TEXT NOT NULL,
	group_id TEXT NOT NULL,
	PRIMARY KEY (user_id, group_id)
);
`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) groupsForUser(id string) ([]catalog.Group, error) {
	rows, err := s.db.Query(`
SELECT g.id, g.name, g.description FROM groups g
JOIN user_groups ug ON ug.group_id = g.id
WHERE ug.user_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []catalog.Group
	for rows.Next() {
		var g catalog.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *SQLiteStore) scanUser(row scanner) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash); err != nil {
		return User{}, err
	}
	groups, err := s.groupsForUser(u.ID)
	if err != nil {
		return User{}, err
	}
	u.Groups = groups
	return u, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLiteStore) ListUsers() ([]User, error) {
	rows, err := s.db.Query(`SELECT id, username, email, password_hash FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) FindUserByID(id string) (*User, error) {
	row := s.db.QueryRow(`SELECT id, username, email, password_hash FROM users WHERE id = ?`, id)
	u, err := s.scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStore) FindUserByUsername(username string) (*User, error) {
	row := s.db.QueryRow(`SELECT id, username, email, password_hash FROM users WHERE username = ?`, username)
	u, err := s.scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStore) CreateUser(u User) (User, error) {
	if u.ID == "" {
		u.ID = uuid.New()
	}
	if _, err := s.db.Exec(`INSERT INTO users (id, username, email, password_hash) VALUES (?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash); err != nil {
		return User{}, fmt.Errorf("inserting user: %w", err)
	}
	if err := s.replaceGroups(u.ID, u.Groups); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *SQLiteStore) UpdateUser(u User) error {
	if _, err := s.db.Exec(`UPDATE users SET username = ?, email = ?, password_hash = ? WHERE id = ?`,
		u.Username, u.Email, u.PasswordHash, u.ID); err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	return s.replaceGroups(u.ID, u.Groups)
}

func (s *SQLiteStore) replaceGroups(userID string, groups []catalog.Group) error {
	if _, err := s.db.Exec(`DELETE FROM user_groups WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clearing user groups: %w", err)
	}
	for _, g := range groups {
		if _, err := s.db.Exec(`INSERT INTO user_groups (user_id, group_id) VALUES (?, ?)`, userID, g.ID); err != nil {
			return fmt.Errorf("assigning group %s: %w", g.ID, err)
		}
	}
	return nil
}

func (s *SQLiteStore) DeleteUser(id string) error {
	if _, err := s.db.Exec(`DELETE FROM user_groups WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("clearing user groups: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}
