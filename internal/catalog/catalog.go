package catalog

import (
	"sync"

	"github.com/pborman/uuid"

	"github.com/atlasdatatech/mvt-server/internal/apperr"
	"github.com/atlasdatatech/mvt-server/internal/applog"
)

// Catalog is the single in-memory collection of Layers, guarded by a
// many-readers/one-writer lock. Every mutating operation persists to the
// Store first, then updates the in-memory copy -- following the
// persist-then-mutate pattern the original catalog used (config/layers.rs
// calls, then the in-memory Vec is updated).
type Catalog struct {
	mu     sync.RWMutex
	layers []Layer
	store  Store
}

// New loads the catalog's layers from store.
func New(store Store) (*Catalog, error) {
	layers, err := store.LoadLayers()
	if err != nil {
		return nil, &apperr.ConfigStoreError{Op: "load layers", Detail: err}
	}
	return &Catalog{layers: layers, store: store}, nil
}

func stateMatches(l *Layer, state StateLayer) bool {
	return state == StateAny || l.Published
}

// FindByID returns a copy of the layer with id, if present and matching state.
func (c *Catalog) FindByID(id string, state StateLayer) (Layer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, l := range c.layers {
		if l.ID == id && stateMatches(&l, state) {
			return l, true
		}
	}
	return Layer{}, false
}

// FindByName returns a copy of the first layer named name.
func (c *Catalog) FindByName(name string, state StateLayer) (Layer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, l := range c.layers {
		if l.Name == name && stateMatches(&l, state) {
			return l, true
		}
	}
	return Layer{}, false
}

// FindByCategoryAndName returns a copy of the layer identified by
// category name + layer name.
func (c *Catalog) FindByCategoryAndName(category, name string, state StateLayer) (Layer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, l := range c.layers {
		if l.Category.Name == category && l.Name == name && stateMatches(&l, state) {
			return l, true
		}
	}
	return Layer{}, false
}

// FindByCategory returns copies of every layer in category.
func (c *Catalog) FindByCategory(category string, state StateLayer) []Layer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Layer
	for _, l := range c.layers {
		if l.Category.Name == category && stateMatches(&l, state) {
			out = append(out, l)
		}
	}
	return out
}

// Published returns copies of every published layer.
func (c *Catalog) Published() []Layer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Layer
	for _, l := range c.layers {
		if l.Published {
			out = append(out, l)
		}
	}
	return out
}

// All returns copies of every layer, published or not.
func (c *Catalog) All() []Layer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Layer, len(c.layers))
	copy(out, c.layers)
	return out
}

// AddLayer validates, persists, then appends layer, minting an id first
// if it has none.
func (c *Catalog) AddLayer(l Layer) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if l.ID == "" {
		l.ID = uuid.New()
	}
	if err := c.store.CreateLayer(l); err != nil {
		return &apperr.ConfigStoreError{Op: "create layer", Detail: err}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.layers = append(c.layers, l)
	return nil
}

// UpdateLayer validates, persists, then replaces the in-memory copy by id.
// A missing id logs a warning rather than failing, matching the original
// source's "layer not found" println.
func (c *Catalog) UpdateLayer(l Layer) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if err := c.store.UpdateLayer(l); err != nil {
		return &apperr.ConfigStoreError{Op: "update layer", Detail: err}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.layers {
		if c.layers[i].ID == l.ID {
			c.layers[i] = l
			return nil
		}
	}
	applog.Warnf("update_layer: layer not found: %s", l.ID)
	return nil
}

// DeleteLayer persists removal, then drops the in-memory copy.
func (c *Catalog) DeleteLayer(id string) error {
	if err := c.store.DeleteLayer(id); err != nil {
		return &apperr.ConfigStoreError{Op: "delete layer", Detail: err}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.layers[:0:0]
	for _, l := range c.layers {
		if l.ID != id {
			out = append(out, l)
		}
	}
	c.layers = out
	return nil
}

// Categories returns every category known to the store.
func (c *Catalog) Categories() ([]Category, error) {
	cats, err := c.store.ListCategories()
	if err != nil {
		return nil, &apperr.ConfigStoreError{Op: "list categories", Detail: err}
	}
	return cats, nil
}

// CreateCategory persists a new category. Categories aren't cached in
// memory beyond the copy embedded in each Layer, so no in-memory update
// is needed here.
func (c *Catalog) CreateCategory(cat Category) (Category, error) {
	created, err := c.store.CreateCategory(cat)
	if err != nil {
		return Category{}, &apperr.ConfigStoreError{Op: "create category", Detail: err}
	}
	return created, nil
}

// UpdateCategory persists a category edit.
func (c *Catalog) UpdateCategory(cat Category) error {
	if err := c.store.UpdateCategory(cat); err != nil {
		return &apperr.ConfigStoreError{Op: "update category", Detail: err}
	}
	return nil
}

// DeleteCategory removes a category; the store refuses if layers still
// reference it.
func (c *Catalog) DeleteCategory(id string) error {
	if err := c.store.DeleteCategory(id); err != nil {
		return &apperr.ConfigStoreError{Op: "delete category", Detail: err}
	}
	return nil
}

// Groups returns every group known to the store.
func (c *Catalog) Groups() ([]Group, error) {
	groups, err := c.store.ListGroups()
	if err != nil {
		return nil, &apperr.ConfigStoreError{Op: "list groups", Detail: err}
	}
	return groups, nil
}

// CreateGroup persists a new group.
func (c *Catalog) CreateGroup(g Group) (Group, error) {
	created, err := c.store.CreateGroup(g)
	if err != nil {
		return Group{}, &apperr.ConfigStoreError{Op: "create group", Detail: err}
	}
	return created, nil
}

// UpdateGroup persists a group edit.
func (c *Catalog) UpdateGroup(g Group) error {
	if err := c.store.UpdateGroup(g); err != nil {
		return &apperr.ConfigStoreError{Op: "update group", Detail: err}
	}
	return nil
}

// DeleteGroup removes a group.
func (c *Catalog) DeleteGroup(id string) error {
	if err := c.store.DeleteGroup(id); err != nil {
		return &apperr.ConfigStoreError{Op: "delete group", Detail: err}
	}
	return nil
}

// TogglePublished flips a layer's published flag.
func (c *Catalog) TogglePublished(id string) error {
	if err := c.store.SwitchPublished(id); err != nil {
		return &apperr.ConfigStoreError{Op: "switch published", Detail: err}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.layers {
		if c.layers[i].ID == id {
			c.layers[i].Published = !c.layers[i].Published
			return nil
		}
	}
	applog.Warnf("toggle_published: layer not found: %s", id)
	return nil
}
