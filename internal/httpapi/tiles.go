package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/atlasdatatech/mvt-server/internal/apperr"
	"github.com/atlasdatatech/mvt-server/internal/applog"
	"github.com/atlasdatatech/mvt-server/internal/tileservice"
)

// parseTileCoords converts the z/x/y path params, tolerating an
// optional ".pbf" suffix on y (the spec's documented URL shape).
func parseTileCoords(params map[string]string) (z, x, y int, ok bool) {
	var err error
	if z, err = strconv.Atoi(params["z"]); err != nil {
		return 0, 0, 0, false
	}
	if x, err = strconv.Atoi(params["x"]); err != nil {
		return 0, 0, 0, false
	}
	yRaw := strings.TrimSuffix(params["y"], ".pbf")
	if y, err = strconv.Atoi(yRaw); err != nil {
		return 0, 0, 0, false
	}
	return z, x, y, true
}

func filterParams(r *http.Request) map[string]string {
	out := make(map[string]string)
	for key, values := range r.URL.Query() {
		if tileservice.ReservedParams[key] || len(values) == 0 {
			continue
		}
		out[key] = values[0]
	}
	return out
}

func (a *API) handleSingleLayer(w http.ResponseWriter, r *http.Request, params map[string]string) {
	w.Header().Set("Content-Type", tileservice.ContentType)

	z, x, y, ok := parseTileCoords(params)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	category, name, _ := strings.Cut(params["layer_name"], ":")

	resp, err := a.Tiles.SingleLayer(r.Context(), r, category, name, z, x, y, filterParams(r), a.Auth.SessionAuthenticated(r))
	if err != nil {
		var rejected *apperr.SqlInjectionError
		if errors.As(err, &rejected) {
			writeJSONError(w, http.StatusBadRequest, rejected.Error())
			return
		}
		applog.Errorf("httpapi: single layer %s:%s: %v", category, name, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	switch {
	case resp.NotFound:
		w.WriteHeader(http.StatusNotFound)
		return
	case resp.Denied:
		w.WriteHeader(http.StatusForbidden)
		return
	case resp.OutOfRange:
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.Header().Set("X-Data-Source-Time", strconv.FormatInt(resp.DataSourceMS, 10))
	if resp.CacheHit {
		w.Header().Set("X-Cache", "HIT Cached")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	_, _ = w.Write(resp.Tile)
}

func (a *API) handleComposite(w http.ResponseWriter, r *http.Request, params map[string]string) {
	w.Header().Set("Content-Type", tileservice.ContentType)

	z, x, y, ok := parseTileCoords(params)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	layerNames := strings.Split(params["layers"], ",")

	resp := a.Tiles.Composite(r.Context(), r, layerNames, z, x, y, a.Auth.SessionAuthenticated(r))
	writeMultiResponse(w, resp)
}

func (a *API) handleCategory(w http.ResponseWriter, r *http.Request, params map[string]string) {
	w.Header().Set("Content-Type", tileservice.ContentType)

	z, x, y, ok := parseTileCoords(params)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	resp := a.Tiles.Category(r.Context(), r, params["category"], z, x, y, a.Auth.SessionAuthenticated(r))
	writeMultiResponse(w, resp)
}

func writeMultiResponse(w http.ResponseWriter, resp tileservice.MultiResponse) {
	if resp.DataSourceTimes != "" {
		w.Header().Set("X-Data-Source-Time", resp.DataSourceTimes)
	}
	w.Header().Set("X-Cache", resp.CacheHeader())
	_, _ = w.Write(resp.Tile)
}
