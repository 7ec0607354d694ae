package auth

import (
	"database/sql"
	"net/http"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"github.com/atlasdatatech/mvt-server/internal/catalog"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(`CREATE TABLE groups (id TEXT PRIMARY KEY, name TEXT NOT NULL, description TEXT NOT NULL DEFAULT '')`); err != nil {
		t.Fatalf("creating groups table: %v", err)
	}

	s := OpenSQLiteStore(db)
	if err := s.BootstrapSchema(); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return s
}

func seedGroup(t *testing.T, store *SQLiteStore, id, name string) catalog.Group {
	t.Helper()
	if _, err := store.db.Exec(`INSERT INTO groups (id, name, description) VALUES (?, ?, ?)`, id, name, ""); err != nil {
		t.Fatalf("seeding group: %v", err)
	}
	return catalog.Group{ID: id, Name: name}
}

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	return string(h)
}

func TestIssueTokenAndAuthenticateBearer(t *testing.T) {
	store := newTestStore(t)
	group := seedGroup(t, store, "g-1", "operator")

	created, err := store.CreateUser(User{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: hash(t, "s3cret"),
		Groups:       []catalog.Group{group},
	})
	if err != nil {
		t.Fatalf("creating user: %v", err)
	}

	p, err := NewProvider(store, "test-secret")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	token, err := p.IssueToken("alice", "s3cret")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	user := p.authenticateBearer(token)
	if user == nil || user.ID != created.ID {
		t.Fatalf("expected to resolve user %s, got %+v", created.ID, user)
	}
}

func TestIssueTokenWrongPasswordFails(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.CreateUser(User{Username: "bob", PasswordHash: hash(t, "correct")}); err != nil {
		t.Fatalf("creating user: %v", err)
	}
	p, err := NewProvider(store, "secret")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if _, err := p.IssueToken("bob", "wrong"); err == nil {
		t.Fatal("expected error for wrong password")
	}
}

func TestAuthorizeOpenLayerWithNoGroups(t *testing.T) {
	store := newTestStore(t)
	p, err := NewProvider(store, "secret")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	req, _ := http.NewRequest("GET", "/tile", nil)
	if !p.Authorize(req, catalog.Layer{}, false) {
		t.Fatal("expected layer with no groups to be open to everyone")
	}
}

func TestAuthorizeDeniesWithoutMatchingGroupOrSession(t *testing.T) {
	store := newTestStore(t)
	group := seedGroup(t, store, "g-1", "operator")
	p, err := NewProvider(store, "secret")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	req, _ := http.NewRequest("GET", "/tile", nil)
	layer := catalog.Layer{Groups: []catalog.Group{group}}
	if p.Authorize(req, layer, false) {
		t.Fatal("expected denial with no credentials and no session")
	}
}

func TestAuthorizeAllowsAuthenticatedSessionEvenWithoutGroupOverlap(t *testing.T) {
	store := newTestStore(t)
	group := seedGroup(t, store, "g-1", "operator")
	p, err := NewProvider(store, "secret")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	req, _ := http.NewRequest("GET", "/tile", nil)
	layer := catalog.Layer{Groups: []catalog.Group{group}}
	if !p.Authorize(req, layer, true) {
		t.Fatal("expected an authenticated session to browse regardless of group overlap")
	}
}

func TestAuthorizeBasicAuthWithMatchingGroup(t *testing.T) {
	store := newTestStore(t)
	group := seedGroup(t, store, "g-1", "operator")
	if _, err := store.CreateUser(User{
		Username:     "carol",
		PasswordHash: hash(t, "pw"),
		Groups:       []catalog.Group{group},
	}); err != nil {
		t.Fatalf("creating user: %v", err)
	}

	p, err := NewProvider(store, "secret")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	req, _ := http.NewRequest("GET", "/tile", nil)
	req.SetBasicAuth("carol", "pw")

	layer := catalog.Layer{Groups: []catalog.Group{group}}
	if !p.Authorize(req, layer, false) {
		t.Fatal("expected basic-auth user sharing the layer's group to be authorized")
	}
}

func TestUpdateUserMissingIDIsNoop(t *testing.T) {
	store := newTestStore(t)
	p, err := NewProvider(store, "secret")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if err := p.UpdateUser(User{ID: "does-not-exist", Username: "ghost"}); err != nil {
		t.Fatalf("expected no error updating an unknown user, got %v", err)
	}
}
