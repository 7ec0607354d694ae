package catalog

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pborman/uuid"
)

// Store is the persistence contract the Catalog commits every mutation
// to before updating its in-memory copy.
type Store interface {
	LoadLayers() ([]Layer, error)
	CreateLayer(Layer) error
	UpdateLayer(Layer) error
	DeleteLayer(id string) error
	SwitchPublished(id string) error

	ListCategories() ([]Category, error)
	CreateCategory(Category) (Category, error)
	UpdateCategory(Category) error
	DeleteCategory(id string) error

	ListGroups() ([]Group, error)
	CreateGroup(Group) (Group, error)
	UpdateGroup(Group) error
	DeleteGroup(id string) error
}

// SQLiteStore is the Store backed by the SQLite configuration database
// (categories/groups/layers tables), modeled on config/layers.rs,
// config/categories.rs and config/groups.rs.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (without creating schema) the SQLite database at
// path. Schema creation is a separate BootstrapSchema call.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// DB returns the underlying database handle so other stores (auth's
// user/group tables) can share one SQLite connection with the catalog
// store instead of opening a second one.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// BootstrapSchema creates the categories/groups/layers tables if they do
// not already exist. The server calls it at startup; tests call it
// against an in-memory database.
func (s *SQLiteStore) BootstrapSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS categories (
			id TEXT PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS groups (
			id TEXT PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS layers (
			id TEXT PRIMARY KEY,
			category TEXT NOT NULL REFERENCES categories(id),
			geometry TEXT NOT NULL,
			name TEXT NOT NULL,
			alias TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			schema TEXT NOT NULL,
			table_name TEXT NOT NULL,
			fields TEXT NOT NULL,
			filter TEXT,
			srid INTEGER,
			geom TEXT,
			sql_mode TEXT,
			buffer INTEGER,
			extent INTEGER,
			zmin INTEGER,
			zmax INTEGER,
			zmax_do_not_simplify INTEGER,
			buffer_do_not_simplify INTEGER,
			extent_do_not_simplify INTEGER,
			clip_geom INTEGER,
			delete_cache_on_start INTEGER,
			max_cache_age INTEGER,
			max_records INTEGER,
			published INTEGER NOT NULL DEFAULT 0,
			url TEXT,
			groups TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("bootstrapping schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) groupsByIDs(ids []string) ([]Group, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.Query("SELECT id, name, description FROM groups WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// LoadLayers loads every layer, left-joined with its category, matching
// config/layers.rs::get_layers.
func (s *SQLiteStore) LoadLayers() ([]Layer, error) {
	rows, err := s.db.Query(`
		SELECT
			l.id, l.category, c.name, c.description,
			l.geometry, l.name, l.alias, l.description, l.schema, l.table_name, l.fields,
			l.filter, l.srid, l.geom, l.sql_mode, l.buffer, l.extent, l.zmin, l.zmax,
			l.zmax_do_not_simplify, l.buffer_do_not_simplify, l.extent_do_not_simplify,
			l.clip_geom, l.delete_cache_on_start, l.max_cache_age, l.max_records,
			l.published, l.url, l.groups
		FROM layers l
		LEFT JOIN categories c ON l.category = c.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Layer
	for rows.Next() {
		l, groupIDsCSV, err := scanLayer(rows)
		if err != nil {
			return nil, err
		}
		if groupIDsCSV != "" {
			l.Groups, err = s.groupsByIDs(strings.Split(groupIDsCSV, ","))
			if err != nil {
				return nil, err
			}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLayer(row scanner) (Layer, string, error) {
	var (
		l                     Layer
		fieldsCSV, groupsCSV  string
		srid, buffer, extent  sql.NullInt64
		zmin, zmax            sql.NullInt64
		zmaxDNS, bufferDNS    sql.NullInt64
		extentDNS             sql.NullInt64
		clipGeom, deleteCache sql.NullInt64
		maxCacheAge, maxRecs  sql.NullInt64
		filter, geom, sqlMode sql.NullString
		url                   sql.NullString
	)
	err := row.Scan(
		&l.ID, &l.Category.ID, &l.Category.Name, &l.Category.Description,
		&l.Geometry, &l.Name, &l.Alias, &l.Description, &l.Schema, &l.TableName, &fieldsCSV,
		&filter, &srid, &geom, &sqlMode, &buffer, &extent, &zmin, &zmax,
		&zmaxDNS, &bufferDNS, &extentDNS,
		&clipGeom, &deleteCache, &maxCacheAge, &maxRecs,
		&l.Published, &url, &groupsCSV,
	)
	if err != nil {
		return Layer{}, "", err
	}

	l.Fields = splitTrimmed(fieldsCSV)
	l.Filter = nullStringPtr(filter)
	l.Geom = nullStringPtr(geom)
	l.SQLMode = nullStringPtr(sqlMode)
	l.URL = nullStringPtr(url)
	l.SRID = nullUint32Ptr(srid)
	l.Buffer = nullUint32Ptr(buffer)
	l.Extent = nullUint32Ptr(extent)
	l.ZMin = nullUint32Ptr(zmin)
	l.ZMax = nullUint32Ptr(zmax)
	l.ZMaxDoNotSimplify = nullUint32Ptr(zmaxDNS)
	l.BufferDoNotSimplify = nullUint32Ptr(bufferDNS)
	l.ExtentDoNotSimplify = nullUint32Ptr(extentDNS)
	l.ClipGeom = nullBoolPtr(clipGeom)
	l.DeleteCacheOnStart = nullBoolPtr(deleteCache)
	l.MaxCacheAge = nullUint64Ptr(maxCacheAge)
	l.MaxRecords = nullUint64Ptr(maxRecs)

	return l, groupsCSV, nil
}

func splitTrimmed(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func nullStringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func nullUint32Ptr(n sql.NullInt64) *uint32 {
	if !n.Valid {
		return nil
	}
	v := uint32(n.Int64)
	return &v
}

func nullUint64Ptr(n sql.NullInt64) *uint64 {
	if !n.Valid {
		return nil
	}
	v := uint64(n.Int64)
	return &v
}

func nullBoolPtr(n sql.NullInt64) *bool {
	if !n.Valid {
		return nil
	}
	v := n.Int64 != 0
	return &v
}

// CreateLayer inserts a new row; ids are minted by the caller (AddLayer
// via Catalog) using pborman/uuid if empty.
func (s *SQLiteStore) CreateLayer(l Layer) error {
	if l.ID == "" {
		l.ID = uuid.New()
	}
	_, err := s.db.Exec(`
		INSERT INTO layers (
			id, category, geometry, name, alias, description, schema, table_name, fields,
			filter, srid, geom, sql_mode, buffer, extent, zmin, zmax,
			zmax_do_not_simplify, buffer_do_not_simplify, extent_do_not_simplify,
			clip_geom, delete_cache_on_start, max_cache_age, max_records, published, url, groups
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		l.ID, l.Category.ID, l.Geometry, l.Name, l.Alias, l.Description, l.Schema, l.TableName,
		strings.Join(l.Fields, ","),
		l.Filter, l.SRID, l.Geom, l.SQLMode, l.Buffer, l.Extent, l.ZMin, l.ZMax,
		l.ZMaxDoNotSimplify, l.BufferDoNotSimplify, l.ExtentDoNotSimplify,
		l.ClipGeom, l.DeleteCacheOnStart, l.MaxCacheAge, l.MaxRecords, l.Published, l.URL,
		groupIDsCSV(l.Groups),
	)
	return err
}

// UpdateLayer replaces a row by id.
func (s *SQLiteStore) UpdateLayer(l Layer) error {
	_, err := s.db.Exec(`
		UPDATE layers SET
			category=?, geometry=?, name=?, alias=?, description=?, schema=?, table_name=?, fields=?,
			filter=?, srid=?, geom=?, sql_mode=?, buffer=?, extent=?, zmin=?, zmax=?,
			zmax_do_not_simplify=?, buffer_do_not_simplify=?, extent_do_not_simplify=?,
			clip_geom=?, delete_cache_on_start=?, max_cache_age=?, max_records=?, published=?, url=?, groups=?
		WHERE id=?
	`,
		l.Category.ID, l.Geometry, l.Name, l.Alias, l.Description, l.Schema, l.TableName,
		strings.Join(l.Fields, ","),
		l.Filter, l.SRID, l.Geom, l.SQLMode, l.Buffer, l.Extent, l.ZMin, l.ZMax,
		l.ZMaxDoNotSimplify, l.BufferDoNotSimplify, l.ExtentDoNotSimplify,
		l.ClipGeom, l.DeleteCacheOnStart, l.MaxCacheAge, l.MaxRecords, l.Published, l.URL,
		groupIDsCSV(l.Groups),
		l.ID,
	)
	return err
}

func groupIDsCSV(groups []Group) string {
	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	return strings.Join(ids, ",")
}

// DeleteLayer removes a row by id.
func (s *SQLiteStore) DeleteLayer(id string) error {
	_, err := s.db.Exec("DELETE FROM layers WHERE id=?", id)
	return err
}

// SwitchPublished flips a layer's published column.
func (s *SQLiteStore) SwitchPublished(id string) error {
	_, err := s.db.Exec("UPDATE layers SET published = NOT published WHERE id=?", id)
	return err
}

// ListCategories returns every category.
func (s *SQLiteStore) ListCategories() ([]Category, error) {
	rows, err := s.db.Query("SELECT id, name, description FROM categories")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCategory inserts a category, minting an id if absent.
func (s *SQLiteStore) CreateCategory(c Category) (Category, error) {
	if c.ID == "" {
		c.ID = uuid.New()
	}
	_, err := s.db.Exec("INSERT INTO categories (id, name, description) VALUES (?, ?, ?)", c.ID, c.Name, c.Description)
	return c, err
}

func (s *SQLiteStore) UpdateCategory(c Category) error {
	_, err := s.db.Exec("UPDATE categories SET name=?, description=? WHERE id=?", c.Name, c.Description, c.ID)
	return err
}

// DeleteCategory refuses deletion while any layer still references the
// category, matching SPEC_FULL §3's Category invariant.
func (s *SQLiteStore) DeleteCategory(id string) error {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM layers WHERE category=?", id).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("category %s still referenced by %s layer(s)", id, strconv.Itoa(count))
	}
	_, err := s.db.Exec("DELETE FROM categories WHERE id=?", id)
	return err
}

func (s *SQLiteStore) ListGroups() ([]Group, error) {
	rows, err := s.db.Query("SELECT id, name, description FROM groups")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateGroup(g Group) (Group, error) {
	if g.ID == "" {
		g.ID = uuid.New()
	}
	_, err := s.db.Exec("INSERT INTO groups (id, name, description) VALUES (?, ?, ?)", g.ID, g.Name, g.Description)
	return g, err
}

func (s *SQLiteStore) UpdateGroup(g Group) error {
	_, err := s.db.Exec("UPDATE groups SET name=?, description=? WHERE id=?", g.Name, g.Description, g.ID)
	return err
}

func (s *SQLiteStore) DeleteGroup(id string) error {
	_, err := s.db.Exec("DELETE FROM groups WHERE id=?", id)
	return err
}
