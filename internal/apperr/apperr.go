// Package apperr defines the tile server's typed error taxonomy. Each
// kind is its own struct, following the Err...{} idiom the teacher uses
// in provider/postgis (ErrLayerNotFound, ErrGeomFieldNotFound, ...), so
// callers can type-switch or errors.As onto a specific kind rather than
// matching on string messages.
package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// LayerNotFoundError is returned when a requested layer (by id, or by
// category+name) does not exist in the Published or Any view.
type LayerNotFoundError struct {
	Category string
	Name     string
}

func (e *LayerNotFoundError) Error() string {
	return fmt.Sprintf("layer not found: %s:%s", e.Category, e.Name)
}
func (e *LayerNotFoundError) HTTPStatus() int { return 404 }

// ZoomOutOfRangeError is returned when a request's z falls outside a
// layer's [zmin, zmax] window.
type ZoomOutOfRangeError struct {
	Layer       string
	Zoom        int
	ZMin, ZMax  int
}

func (e *ZoomOutOfRangeError) Error() string {
	return fmt.Sprintf("zoom %d out of range [%d,%d] for layer %s", e.Zoom, e.ZMin, e.ZMax, e.Layer)
}
func (e *ZoomOutOfRangeError) HTTPStatus() int { return 400 }

// AuthDeniedError is returned when a request is not authorized for a
// layer's groups.
type AuthDeniedError struct {
	Layer string
}

func (e *AuthDeniedError) Error() string { return "authorization denied for layer " + e.Layer }
func (e *AuthDeniedError) HTTPStatus() int { return 403 }

// SqlInjectionError carries the reason from a sqlguard.Validate
// rejection, re-wrapped here so the tile pipeline can map it to a status
// without importing sqlguard from every layer.
type SqlInjectionError struct {
	Reason string
}

func (e *SqlInjectionError) Error() string { return "sql injection rejected: " + e.Reason }
func (e *SqlInjectionError) HTTPStatus() int { return 400 }

// DatabaseError wraps a lower-level Postgres/pgx failure. Detail is
// logged, never returned to the client.
type DatabaseError struct {
	Detail error
}

func (e *DatabaseError) Error() string   { return "database error: " + e.Detail.Error() }
func (e *DatabaseError) Unwrap() error   { return e.Detail }
func (e *DatabaseError) HTTPStatus() int { return 500 }

// NewDatabaseError attaches a stack trace to a raw pgx error via
// pkg/errors before wrapping it, so a logged DatabaseError carries
// where the query failed, not just what pgx reported.
func NewDatabaseError(err error) *DatabaseError {
	return &DatabaseError{Detail: errors.WithStack(err)}
}

// CacheBackendError is a non-fatal cache failure; the tile pipeline logs
// it and proceeds as if the cache were cold.
type CacheBackendError struct {
	Op     string
	Detail error
}

func (e *CacheBackendError) Error() string {
	return fmt.Sprintf("cache %s failed: %v", e.Op, e.Detail)
}
func (e *CacheBackendError) Unwrap() error { return e.Detail }

// ConfigStoreError wraps a failure persisting a catalog/category/group
// mutation to the SQLite configuration store.
type ConfigStoreError struct {
	Op     string
	Detail error
}

func (e *ConfigStoreError) Error() string {
	return fmt.Sprintf("config store %s failed: %v", e.Op, e.Detail)
}
func (e *ConfigStoreError) Unwrap() error   { return e.Detail }
func (e *ConfigStoreError) HTTPStatus() int { return 500 }

// AuthProviderError is returned by the AuthProvider itself (bad token,
// lookup failure) and is always treated as AuthDenied by callers.
type AuthProviderError struct {
	Detail error
}

func (e *AuthProviderError) Error() string { return "auth provider error: " + e.Detail.Error() }
func (e *AuthProviderError) Unwrap() error { return e.Detail }
func (e *AuthProviderError) HTTPStatus() int { return 403 }

// HTTPStatuser is implemented by every error kind above except
// CacheBackendError (which never reaches an HTTP handler directly).
type HTTPStatuser interface {
	error
	HTTPStatus() int
}

// StatusFor returns the HTTP status an error should map to, defaulting
// to 500 for errors that don't implement HTTPStatuser.
func StatusFor(err error) int {
	if hs, ok := err.(HTTPStatuser); ok {
		return hs.HTTPStatus()
	}
	return 500
}
