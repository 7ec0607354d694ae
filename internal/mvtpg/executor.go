// Package mvtpg is the PgExecutor: it fills the MVT SQL template for a
// layer, binds parameters, and runs one QueryRow against PostGIS. MVT
// encoding itself is entirely PostGIS's (ST_AsMVT, ST_AsMVTGeom); this
// package never constructs or decodes a vector tile in Go.
package mvtpg

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx"
	"github.com/jackc/pgx/pgtype"

	"github.com/atlasdatatech/mvt-server/internal/apperr"
	"github.com/atlasdatatech/mvt-server/internal/catalog"
)

// PoolConfig configures the underlying pgx connection pool.
type PoolConfig struct {
	Host, Port, Database, User, Password string
	SSLMode, SSLKey, SSLCert, SSLRootCert string
	MaxConnections                        int
}

// Executor runs MVT-producing queries against a pgx connection pool.
type Executor struct {
	pool *pgx.ConnPool
}

// NewExecutor opens the connection pool, adapted from the teacher's
// provider/postgis.CreateProvider.
func NewExecutor(cfg PoolConfig) (*Executor, error) {
	port, err := strconv.ParseUint(cfg.Port, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", cfg.Port, err)
	}

	cc := pgx.ConnConfig{
		Host:     cfg.Host,
		Port:     uint16(port),
		Database: cfg.Database,
		User:     cfg.User,
		Password: cfg.Password,
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	if err := ConfigTLS(sslMode, cfg.SSLKey, cfg.SSLCert, cfg.SSLRootCert, &cc); err != nil {
		return nil, err
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 5
	}

	pool, err := pgx.NewConnPool(pgx.ConnPoolConfig{
		ConnConfig:     cc,
		MaxConnections: maxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("creating postgis connection pool: %w", err)
	}
	return &Executor{pool: pool}, nil
}

// ConfigTLS configures a pgx.ConnConfig's TLS settings from an sslmode
// string, adapted unchanged in spirit from provider/postgis.ConfigTLS.
func ConfigTLS(sslMode, sslKey, sslCert, sslRootCert string, cc *pgx.ConnConfig) error {
	switch sslMode {
	case "disable":
		cc.UseFallbackTLS = false
		cc.TLSConfig = nil
		cc.FallbackTLSConfig = nil
		return nil
	case "allow":
		cc.UseFallbackTLS = true
		cc.FallbackTLSConfig = &tls.Config{InsecureSkipVerify: true}
	case "prefer":
		cc.TLSConfig = &tls.Config{InsecureSkipVerify: true}
		cc.UseFallbackTLS = true
		cc.FallbackTLSConfig = nil
	case "require":
		cc.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	case "verify-ca", "verify-full":
		cc.TLSConfig = &tls.Config{ServerName: cc.Host}
	default:
		return fmt.Errorf("invalid sslmode: %q", sslMode)
	}

	if sslRootCert != "" {
		pool := x509.NewCertPool()
		ca, err := os.ReadFile(sslRootCert)
		if err != nil {
			return fmt.Errorf("reading CA file %q: %w", sslRootCert, err)
		}
		if !pool.AppendCertsFromPEM(ca) {
			return fmt.Errorf("adding CA to cert pool")
		}
		cc.TLSConfig.RootCAs = pool
		cc.TLSConfig.ClientCAs = pool
	}

	if (sslCert == "") != (sslKey == "") {
		return fmt.Errorf("both sslcert and sslkey are required")
	} else if sslCert != "" {
		cert, err := tls.LoadX509KeyPair(sslCert, sslKey)
		if err != nil {
			return fmt.Errorf("reading client cert/key: %w", err)
		}
		cc.TLSConfig.Certificates = []tls.Certificate{cert}
	}
	return nil
}

// Close releases the pool's connections.
func (e *Executor) Close() { e.pool.Close() }

const cteTemplate = `
WITH mvtgeom AS (
	SELECT
		{fields},
		ST_AsMVTGeom(
			ST_Transform({geom}, 3857),
			ST_TileEnvelope($1, $2, $3),
			$4, $5, $6
		) AS geom
	FROM "{schema}"."{table}"
	WHERE {geom} && ST_Transform(ST_TileEnvelope($1, $2, $3), $7)
		AND {geom} IS NOT NULL
		{query_placeholder}
	{limit_placeholder}
)
SELECT ST_AsMVT(mvtgeom.*, $8, $4, 'geom') AS tile FROM mvtgeom;
`

const subqueryTemplate = `
SELECT ST_AsMVT(tile, $8, $4, 'geom') FROM (
	SELECT
		{fields},
		ST_AsMVTGeom(
			ST_Transform({geom}, 3857),
			ST_TileEnvelope($1, $2, $3),
			$4, $5, $6
		) AS geom
	FROM "{schema}"."{table}"
	WHERE {geom} && ST_Transform(ST_TileEnvelope($1, $2, $3), $7)
		AND {geom} IS NOT NULL
		{query_placeholder}
	{limit_placeholder}
) as tile;
`

// convertFields double-quotes each output column, following the
// teacher's identifier-quoting convention.
func convertFields(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(quoted, ", ")
}

// buildQuery fills the SQL template for layer/tile/where-clause and
// returns the final SQL plus its positional arguments ($1.. in order).
// Kept as a standalone function so the template-fill and binding-
// coercion rules can be unit tested without a database.
func buildQuery(layer catalog.Layer, z, x, y int, whereClause string, bindings []string) (string, []interface{}) {
	var queryPlaceholder string
	if strings.TrimSpace(whereClause) != "" {
		queryPlaceholder = " AND " + whereClause
	}

	buffer, extent := layer.GetBuffer(), layer.GetExtent()
	if uint32(z) >= layer.GetZMaxDoNotSimplify() {
		buffer, extent = layer.GetBufferDoNotSimplify(), layer.GetExtentDoNotSimplify()
	}

	var limitClause string
	if max := layer.GetMaxRecords(); max > 0 {
		limitClause = fmt.Sprintf("ORDER BY RANDOM() LIMIT %d", max)
	}

	template := subqueryTemplate
	if layer.GetSQLMode() == "CTE" {
		template = cteTemplate
	}

	sql := template
	sql = strings.ReplaceAll(sql, "{fields}", convertFields(layer.Fields))
	sql = strings.ReplaceAll(sql, "{schema}", strings.ReplaceAll(layer.Schema, `"`, `""`))
	sql = strings.ReplaceAll(sql, "{table}", strings.ReplaceAll(layer.TableName, `"`, `""`))
	sql = strings.ReplaceAll(sql, "{geom}", layer.GetGeom())
	sql = strings.ReplaceAll(sql, "{query_placeholder}", queryPlaceholder)
	sql = strings.ReplaceAll(sql, "{limit_placeholder}", limitClause)

	args := []interface{}{
		z, x, y, int(extent), int(buffer), layer.GetClipGeom(), int(layer.GetSRID()), layer.Name,
	}
	for _, b := range bindings {
		args = append(args, coerceBinding(b))
	}
	return sql, args
}

// Run executes the MVT query for one layer/tile/where-clause and returns
// the encoded tile bytes (empty, not an error, if ST_AsMVT returns NULL).
func (e *Executor) Run(ctx context.Context, layer catalog.Layer, z, x, y int, whereClause string, bindings []string) ([]byte, error) {
	sql, args := buildQuery(layer, z, x, y, whereClause, bindings)

	var tile pgtype.Bytea
	row := e.pool.QueryRowEx(ctx, sql, nil, args...)
	if err := row.Scan(&tile); err != nil {
		return nil, apperr.NewDatabaseError(err)
	}
	return tile.Bytes, nil
}

// coerceBinding mirrors query_database's binding rule: try int64, then
// float64, else bind as text.
func coerceBinding(raw string) interface{} {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
