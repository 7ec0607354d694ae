package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/atlasdatatech/mvt-server/internal/auth"
	"github.com/atlasdatatech/mvt-server/internal/cache"
	"github.com/atlasdatatech/mvt-server/internal/catalog"
	"github.com/atlasdatatech/mvt-server/internal/tileservice"
)

type fakeExecutor struct{ tile []byte }

func (f *fakeExecutor) Run(ctx context.Context, layer catalog.Layer, z, x, y int, whereClause string, bindings []string) ([]byte, error) {
	return f.tile, nil
}

type memAuthStore struct{ users []auth.User }

func (s *memAuthStore) ListUsers() ([]auth.User, error) { return s.users, nil }
func (s *memAuthStore) FindUserByID(id string) (*auth.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, nil
}
func (s *memAuthStore) FindUserByUsername(username string) (*auth.User, error) {
	for _, u := range s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, nil
}
func (s *memAuthStore) CreateUser(u auth.User) (auth.User, error) {
	s.users = append(s.users, u)
	return u, nil
}
func (s *memAuthStore) UpdateUser(u auth.User) error { return nil }
func (s *memAuthStore) DeleteUser(id string) error   { return nil }

func newTestAPI(t *testing.T) (*API, *catalog.Catalog, catalog.Category) {
	t.Helper()
	store, err := catalog.OpenSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open catalog store: %v", err)
	}
	if err := store.BootstrapSchema(); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	category, err := store.CreateCategory(catalog.Category{Name: "public"})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	cat, err := catalog.New(store)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}

	cacheFacade, err := cache.New(cache.Options{FilesystemRoot: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}

	authProvider, err := auth.NewProvider(&memAuthStore{}, "secret")
	if err != nil {
		t.Fatalf("auth.NewProvider: %v", err)
	}

	api := &API{
		Tiles: &tileservice.Service{
			Catalog:  cat,
			Cache:    cacheFacade,
			Auth:     authProvider,
			Executor: &fakeExecutor{tile: []byte("tile-bytes")},
		},
		Catalog: cat,
		Auth:    authProvider,
	}
	return api, cat, category
}

func TestRouterServesSingleLayerTile(t *testing.T) {
	api, cat, category := newTestAPI(t)
	if err := cat.AddLayer(catalog.Layer{
		ID: "l1", Category: category, Name: "roads", Schema: "public",
		TableName: "roads", Fields: []string{"id"}, Published: true,
	}); err != nil {
		t.Fatalf("AddLayer: %v", err)
	}

	router := NewRouter(api)
	req := httptest.NewRequest(http.MethodGet, "/services/tiles/public:roads/3/2/5.pbf", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "tile-bytes" {
		t.Fatalf("expected tile bytes in body, got %q", rec.Body.String())
	}
	if rec.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("expected X-Cache: MISS, got %q", rec.Header().Get("X-Cache"))
	}
	if rec.Header().Get("Content-Type") != tileservice.ContentType {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
}

func TestRouterSingleLayerRejectedFilterIs400JSON(t *testing.T) {
	api, cat, category := newTestAPI(t)
	tautology := "1=1"
	if err := cat.AddLayer(catalog.Layer{
		ID: "l1", Category: category, Name: "roads", Schema: "public",
		TableName: "roads", Fields: []string{"id"}, Published: true,
		Filter: &tautology,
	}); err != nil {
		t.Fatalf("AddLayer: %v", err)
	}

	router := NewRouter(api)
	req := httptest.NewRequest(http.MethodGet, "/services/tiles/public:roads/3/2/5.pbf", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected a JSON error body, got Content-Type %q", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if body["message"] == "" {
		t.Fatalf("expected a non-empty message field, got %+v", body)
	}
}

func TestRouterSingleLayerNotFoundIs404(t *testing.T) {
	api, _, _ := newTestAPI(t)
	router := NewRouter(api)

	req := httptest.NewRequest(http.MethodGet, "/services/tiles/public:missing/3/2/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRouterCompositeAggregatesHeaders(t *testing.T) {
	api, cat, category := newTestAPI(t)
	for _, name := range []string{"roads", "buildings"} {
		if err := cat.AddLayer(catalog.Layer{
			ID: name, Category: category, Name: name, Schema: "public",
			TableName: name, Fields: []string{"id"}, Published: true,
		}); err != nil {
			t.Fatalf("AddLayer %s: %v", name, err)
		}
	}
	router := NewRouter(api)

	req := httptest.NewRequest(http.MethodGet, "/services/tiles/composite/public:roads,public:buildings/3/2/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() != len("tile-bytes")*2 {
		t.Fatalf("expected concatenated bytes from both layers, got %d bytes", rec.Body.Len())
	}
	if !strings.Contains(rec.Header().Get("X-Cache"), "MISS: 2") {
		t.Fatalf("expected 2 misses reported, got %q", rec.Header().Get("X-Cache"))
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	api, _, _ := newTestAPI(t)
	router := NewRouter(api)

	body, _ := json.Marshal(catalog.Category{Name: "parks"})
	req := httptest.NewRequest(http.MethodPost, "/admin/categories", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without admin credentials, got %d", rec.Code)
	}
}

func TestAdminCreateCategoryWithAdminUser(t *testing.T) {
	api, _, _ := newTestAPI(t)

	created, err := api.Auth.CreateUser(auth.User{
		Username: "root",
		Groups:   []catalog.Group{{ID: "g-admin", Name: "admin"}},
	}, "password123")
	if err != nil {
		t.Fatalf("creating admin user: %v", err)
	}
	token, err := api.Auth.IssueToken("root", "password123")
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	_ = created

	router := NewRouter(api)
	body, _ := json.Marshal(catalog.Category{Name: "parks"})
	req := httptest.NewRequest(http.MethodPost, "/admin/categories", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}
