package catalog

import (
	"testing"

	"github.com/go-test/deep"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.BootstrapSchema(); err != nil {
		t.Fatalf("bootstrap schema: %v", err)
	}
	return store
}

func seedCategory(t *testing.T, store *SQLiteStore, name string) Category {
	t.Helper()
	c, err := store.CreateCategory(Category{Name: name, Description: name + " layers"})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	return c
}

func TestCatalogAddFindUpdateDelete(t *testing.T) {
	store := newTestStore(t)
	cat := seedCategory(t, store, "public")

	c, err := New(store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	layer := Layer{
		ID:        "layer-1",
		Category:  cat,
		Geometry:  "polygons",
		Name:      "roads",
		Schema:    "public",
		TableName: "roads",
		Fields:    []string{"id", "name"},
		Published: true,
	}
	if err := c.AddLayer(layer); err != nil {
		t.Fatalf("AddLayer: %v", err)
	}

	got, ok := c.FindByID("layer-1", StateAny)
	if !ok {
		t.Fatal("expected to find layer by id")
	}
	if diff := deep.Equal(got.Fields, layer.Fields); diff != nil {
		t.Errorf("fields mismatch: %v", diff)
	}

	got, ok = c.FindByCategoryAndName("public", "roads", StatePublished)
	if !ok || got.Name != "roads" {
		t.Fatalf("expected published lookup to find roads layer, got %+v ok=%v", got, ok)
	}

	layer.Alias = "Roads Layer"
	if err := c.UpdateLayer(layer); err != nil {
		t.Fatalf("UpdateLayer: %v", err)
	}
	got, _ = c.FindByID("layer-1", StateAny)
	if got.Alias != "Roads Layer" {
		t.Fatalf("expected updated alias, got %q", got.Alias)
	}

	if err := c.TogglePublished("layer-1"); err != nil {
		t.Fatalf("TogglePublished: %v", err)
	}
	got, _ = c.FindByID("layer-1", StateAny)
	if got.Published {
		t.Fatal("expected layer to be unpublished after toggle")
	}
	if _, ok := c.FindByID("layer-1", StatePublished); ok {
		t.Fatal("unpublished layer should not appear in Published-state lookup")
	}

	if err := c.DeleteLayer("layer-1"); err != nil {
		t.Fatalf("DeleteLayer: %v", err)
	}
	if _, ok := c.FindByID("layer-1", StateAny); ok {
		t.Fatal("expected layer to be gone after delete")
	}
}

func TestCatalogUpdateMissingLayerIsNoop(t *testing.T) {
	store := newTestStore(t)
	seedCategory(t, store, "public")
	c, err := New(store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = c.UpdateLayer(Layer{
		ID: "missing", Name: "x", Schema: "s", TableName: "t", Fields: []string{"id"},
	})
	if err != nil {
		t.Fatalf("UpdateLayer on missing id should not error: %v", err)
	}
}

func TestLayerDefaults(t *testing.T) {
	l := Layer{}
	if l.GetGeom() != "geom" || l.GetSQLMode() != "CTE" || l.GetSRID() != 4326 ||
		l.GetBuffer() != 256 || l.GetExtent() != 4096 || l.GetZMin() != 0 || l.GetZMax() != 22 ||
		l.GetZMaxDoNotSimplify() != 16 || l.GetBufferDoNotSimplify() != 256 ||
		l.GetExtentDoNotSimplify() != 4096 || !l.GetClipGeom() || l.GetDeleteCacheOnStart() ||
		l.GetMaxCacheAge() != 0 || l.GetMaxRecords() != 0 {
		t.Fatalf("unexpected defaults: %+v", l)
	}
}

func TestLayerValidate(t *testing.T) {
	l := Layer{Name: "roads", Schema: "public", TableName: "roads", Fields: []string{"id"}}
	if err := l.Validate(); err != nil {
		t.Fatalf("expected valid layer, got %v", err)
	}

	bad := l
	zmin := uint32(10)
	zmax := uint32(5)
	bad.ZMin, bad.ZMax = &zmin, &zmax
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for zmin > zmax")
	}
}

func TestSortByCategoryAndName(t *testing.T) {
	layers := []Layer{
		{Category: Category{Name: "Zoo"}, Name: "b"},
		{Category: Category{Name: "zoo"}, Name: "a"},
		{Category: Category{Name: "Apple"}, Name: "z"},
	}
	SortByCategoryAndName(layers)
	if layers[0].Category.Name != "Apple" {
		t.Fatalf("expected Apple category first, got %+v", layers)
	}
	if layers[1].Name != "a" || layers[2].Name != "b" {
		t.Fatalf("expected zoo layers sorted by name, got %+v", layers[1:])
	}
}
