// Package httpapi wires the tile and admin HTTP surfaces onto an
// httptreemux router, following the teacher's register-then-serve
// convention (cmd/internal/register) adapted from provider wiring to
// HTTP route wiring.
package httpapi

import (
	"github.com/dimfeld/httptreemux"

	"github.com/atlasdatatech/mvt-server/internal/auth"
	"github.com/atlasdatatech/mvt-server/internal/catalog"
	"github.com/atlasdatatech/mvt-server/internal/tileservice"
)

// API bundles the dependencies every handler needs.
type API struct {
	Tiles   *tileservice.Service
	Catalog *catalog.Catalog
	Auth    *auth.Provider
}

// NewRouter builds the full HTTP surface: the three tile endpoints
// (SPEC_FULL §6) and the admin CRUD surface over categories, groups,
// and layers.
func NewRouter(api *API) *httptreemux.TreeMux {
	router := httptreemux.New()

	router.GET("/services/tiles/:layer_name/:z/:x/:y", api.handleSingleLayer)
	router.GET("/services/tiles/composite/:layers/:z/:x/:y", api.handleComposite)
	router.GET("/services/tiles/category/:category/:z/:x/:y", api.handleCategory)

	router.POST("/admin/categories", api.requireAdmin(api.handleCreateCategory))
	router.PUT("/admin/categories/:id", api.requireAdmin(api.handleUpdateCategory))
	router.DELETE("/admin/categories/:id", api.requireAdmin(api.handleDeleteCategory))

	router.POST("/admin/groups", api.requireAdmin(api.handleCreateGroup))
	router.PUT("/admin/groups/:id", api.requireAdmin(api.handleUpdateGroup))
	router.DELETE("/admin/groups/:id", api.requireAdmin(api.handleDeleteGroup))

	router.POST("/admin/layers", api.requireAdmin(api.handleCreateLayer))
	router.PUT("/admin/layers/:id", api.requireAdmin(api.handleUpdateLayer))
	router.DELETE("/admin/layers/:id", api.requireAdmin(api.handleDeleteLayer))
	router.PATCH("/admin/layers/:id/publish", api.requireAdmin(api.handleTogglePublish))

	return router
}
