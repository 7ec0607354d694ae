// Package tileservice implements the orchestration pipeline shared by
// the single-layer, composite, and category tile endpoints: cache
// lookup, PostGIS fallback, and the header semantics the original
// source's services/tiles.rs establishes for each.
package tileservice

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atlasdatatech/mvt-server/internal/apperr"
	"github.com/atlasdatatech/mvt-server/internal/applog"
	"github.com/atlasdatatech/mvt-server/internal/auth"
	"github.com/atlasdatatech/mvt-server/internal/cache"
	"github.com/atlasdatatech/mvt-server/internal/catalog"
	"github.com/atlasdatatech/mvt-server/internal/filter"
	"github.com/atlasdatatech/mvt-server/internal/metrics"
	"github.com/atlasdatatech/mvt-server/internal/sqlguard"
)

// ContentType is the response media type for every tile endpoint.
const ContentType = "application/x-protobuf;type=mapbox-vector"

// ReservedParams are query-string keys the filter DSL never consumes
// because the router already bound them to path parameters.
var ReservedParams = map[string]bool{"layer_name": true, "layers": true, "category": true, "x": true, "y": true, "z": true}

// Executor is the PostGIS query runner, implemented by *mvtpg.Executor.
type Executor interface {
	Run(ctx context.Context, layer catalog.Layer, z, x, y int, whereClause string, bindings []string) ([]byte, error)
}

// Service wires the catalog, cache, auth gate, and PostGIS executor
// into the three tile handlers.
type Service struct {
	Catalog  *catalog.Catalog
	Cache    cache.Facade
	Auth     *auth.Provider
	Executor Executor
}

// Result is one layer's contribution to a response: its encoded tile
// bytes and the "name: Nms" fragment for X-Data-Source-Time.
type Result struct {
	Tile        []byte
	TimingLabel string
	CacheHit    bool
}

// SingleResponse is what the single-layer endpoint hands back to HTTP
// plumbing; Denied/NotFound/OutOfRange let the caller pick a status
// code without tileservice importing net/http status conventions.
type SingleResponse struct {
	Tile         []byte
	DataSourceMS int64
	CacheHit     bool
	NotFound     bool
	Denied       bool
	OutOfRange   bool
}

func (s *Service) getTile(ctx context.Context, layer catalog.Layer, x, y, z int, whereClause string, bindings []string) ([]byte, bool, error) {
	maxAge := time.Duration(layer.GetMaxCacheAge()) * time.Second
	requestFilterEmpty := strings.TrimSpace(whereClause) == ""
	layerKey := layer.CompositeName()

	if requestFilterEmpty {
		if data, ok, err := s.Cache.Get(layerKey, z, x, y, maxAge); err == nil && ok {
			metrics.RecordCacheHit(layer.Name)
			return data, true, nil
		}
	}

	localWhere := whereClause
	if staticFilter := layer.GetFilter(); staticFilter != "" {
		if err := sqlguard.Validate(staticFilter); err != nil {
			applog.Warnf("tileservice: layer %s has an invalid static filter: %v", layerKey, err)
			return nil, false, &apperr.SqlInjectionError{Reason: err.Error()}
		}
		if localWhere != "" {
			localWhere += " AND "
		}
		localWhere += staticFilter
	}

	if strings.TrimSpace(localWhere) != "" {
		if err := sqlguard.Validate(localWhere); err != nil {
			return nil, false, &apperr.SqlInjectionError{Reason: err.Error()}
		}
	}

	start := time.Now()
	tile, err := s.Executor.Run(ctx, layer, z, x, y, localWhere, bindings)
	metrics.ObserveQuerySeconds(layer.Name, time.Since(start).Seconds())
	if err != nil {
		return nil, false, err
	}

	if requestFilterEmpty {
		if err := s.Cache.Put(layerKey, z, x, y, tile, maxAge); err != nil {
			applog.Warnf("tileservice: caching tile for %s: %v", layerKey, err)
		}
	}
	metrics.RecordCacheMiss(layer.Name)
	return tile, false, nil
}

// SingleLayer serves the single-layer tile endpoint: "/services/tiles/{category}:{name}/{z}/{x}/{y}".
func (s *Service) SingleLayer(ctx context.Context, req *http.Request, category, name string, z, x, y int, filterParams map[string]string, sessionAuthenticated bool) (SingleResponse, error) {
	layer, ok := s.Catalog.FindByCategoryAndName(category, name, catalog.StatePublished)
	if !ok {
		applog.Warnf("tileservice: layer %s:%s not found", category, name)
		return SingleResponse{NotFound: true}, nil
	}

	if !s.Auth.Authorize(req, layer, sessionAuthenticated) {
		metrics.RecordAuthDenial(layer.Name)
		return SingleResponse{Denied: true}, nil
	}

	if uint32(z) < layer.GetZMin() || uint32(z) > layer.GetZMax() {
		return SingleResponse{OutOfRange: true}, nil
	}

	conditions := filter.Parse(filterParams)
	whereClause, bindings := filter.NewBuilder(9).Build(conditions)

	start := time.Now()
	tile, cacheHit, err := s.getTile(ctx, layer, x, y, z, whereClause, bindings)
	elapsed := time.Since(start)
	if err != nil {
		return SingleResponse{}, err
	}

	return SingleResponse{
		Tile:         tile,
		DataSourceMS: elapsed.Milliseconds(),
		CacheHit:     cacheHit,
	}, nil
}

// MultiResponse is the shared shape of the composite and category
// endpoints: per-layer failures are swallowed (matching the original
// source's "continue, don't abort" loop), so only a byte-concatenated
// body and aggregate headers come back.
type MultiResponse struct {
	Tile             []byte
	DataSourceTimes  string
	CacheHits        int
	CacheMisses      int
}

func (r MultiResponse) CacheHeader() string {
	return fmt.Sprintf("HIT: %d, MISS: %d", r.CacheHits, r.CacheMisses)
}

func (s *Service) runMultiple(ctx context.Context, req *http.Request, layers []catalog.Layer, x, y, z int, sessionAuthenticated bool) MultiResponse {
	var (
		out    []byte
		timing []string
		hits   int
		misses int
	)

	for _, layer := range layers {
		if !s.Auth.Authorize(req, layer, sessionAuthenticated) {
			metrics.RecordAuthDenial(layer.Name)
			continue
		}
		if uint32(z) < layer.GetZMin() || uint32(z) > layer.GetZMax() {
			continue
		}

		start := time.Now()
		tile, cacheHit, err := s.getTile(ctx, layer, x, y, z, "", nil)
		elapsed := time.Since(start)
		if err != nil {
			applog.Errorf("tileservice: layer %s: %v", layer.CompositeName(), err)
			continue
		}

		timing = append(timing, layer.Name+": "+strconv.FormatInt(elapsed.Milliseconds(), 10)+"ms")
		if cacheHit {
			hits++
		} else {
			misses++
		}
		out = append(out, tile...)
	}

	return MultiResponse{
		Tile:            out,
		DataSourceTimes: strings.Join(timing, ", "),
		CacheHits:       hits,
		CacheMisses:     misses,
	}
}

// Composite serves "/services/tiles/composite/{layer1,layer2,...}/{z}/{x}/{y}": each
// "category:name" entry is resolved and rendered independently, with a
// missing or unauthorized layer skipped rather than failing the request.
func (s *Service) Composite(ctx context.Context, req *http.Request, layerNames []string, z, x, y int, sessionAuthenticated bool) MultiResponse {
	var layers []catalog.Layer
	for _, raw := range layerNames {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		category, layerName, _ := strings.Cut(name, ":")
		layer, ok := s.Catalog.FindByCategoryAndName(category, layerName, catalog.StatePublished)
		if !ok {
			applog.Warnf("tileservice: layer %s not found", name)
			continue
		}
		layers = append(layers, layer)
	}
	return s.runMultiple(ctx, req, layers, x, y, z, sessionAuthenticated)
}

// Category serves "/services/tiles/category/{category}/{z}/{x}/{y}": every
// published layer in the category is rendered, in catalog order.
func (s *Service) Category(ctx context.Context, req *http.Request, category string, z, x, y int, sessionAuthenticated bool) MultiResponse {
	layers := s.Catalog.FindByCategory(category, catalog.StatePublished)
	return s.runMultiple(ctx, req, layers, x, y, z, sessionAuthenticated)
}
