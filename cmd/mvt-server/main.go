// Command mvt-server is the tile server's process entrypoint: it loads
// configuration, wires the PostGIS executor, catalog, cache, and auth
// provider into an HTTP router, and serves until an interrupt signal
// arrives.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atlasdatatech/mvt-server/internal/applog"
	"github.com/atlasdatatech/mvt-server/internal/auth"
	"github.com/atlasdatatech/mvt-server/internal/cache"
	"github.com/atlasdatatech/mvt-server/internal/catalog"
	"github.com/atlasdatatech/mvt-server/internal/config"
	"github.com/atlasdatatech/mvt-server/internal/httpapi"
	"github.com/atlasdatatech/mvt-server/internal/metrics"
	"github.com/atlasdatatech/mvt-server/internal/mvtpg"
	"github.com/atlasdatatech/mvt-server/internal/tileservice"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the server's TOML config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	applog.SetLevel(*logLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		applog.Errorf("loading config: %v", err)
		os.Exit(1)
	}

	executor, err := mvtpg.NewExecutor(mvtpg.PoolConfig{
		Host:           cfg.Database.Host,
		Port:           strconv.FormatUint(uint64(cfg.Database.Port), 10),
		Database:       cfg.Database.Database,
		User:           cfg.Database.User,
		Password:       cfg.Database.Password,
		SSLMode:        cfg.Database.SSLMode,
		SSLKey:         cfg.Database.SSLKey,
		SSLCert:        cfg.Database.SSLCert,
		SSLRootCert:    cfg.Database.SSLRootCert,
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		applog.Errorf("connecting to postgis: %v", err)
		os.Exit(1)
	}
	defer executor.Close()

	configStore, err := catalog.OpenSQLiteStore(cfg.Database.ConfigStorePath)
	if err != nil {
		applog.Errorf("opening config store: %v", err)
		os.Exit(1)
	}
	if err := configStore.BootstrapSchema(); err != nil {
		applog.Errorf("bootstrapping config store schema: %v", err)
		os.Exit(1)
	}

	cat, err := catalog.New(configStore)
	if err != nil {
		applog.Errorf("loading catalog: %v", err)
		os.Exit(1)
	}

	authStore := auth.OpenSQLiteStore(configStore.DB())
	if err := authStore.BootstrapSchema(); err != nil {
		applog.Errorf("bootstrapping auth schema: %v", err)
		os.Exit(1)
	}

	authProvider, err := auth.NewProvider(authStore, cfg.Auth.JWTSecret)
	if err != nil {
		applog.Errorf("loading auth provider: %v", err)
		os.Exit(1)
	}

	cacheFacade, err := cache.New(cache.Options{
		FilesystemRoot: cfg.Cache.Dir,
		RedisAddr:      cfg.Cache.RedisAddr,
		RedisDB:        cfg.Cache.RedisDB,
	}, deleteCacheOnStartNames(cat))
	if err != nil {
		applog.Errorf("initializing cache: %v", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	metrics.MustRegister(registry)

	api := &httpapi.API{
		Tiles: &tileservice.Service{
			Catalog:  cat,
			Cache:    cacheFacade,
			Auth:     authProvider,
			Executor: executor,
		},
		Catalog: cat,
		Auth:    authProvider,
	}

	mux := http.NewServeMux()
	mux.Handle("/", httpapi.NewRouter(api))
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         cfg.Webserver.HostPort,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		applog.Infof("mvt-server listening on %s", cfg.Webserver.HostPort)
		serveErr <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			applog.Errorf("server exited: %v", err)
		}
	case sig := <-sigCh:
		applog.Infof("received signal %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			applog.Errorf("graceful shutdown: %v", err)
		}
	}
}

// deleteCacheOnStartNames collects the composite names of every layer
// flagged DeleteCacheOnStart, so cache.New can purge them before the
// server starts accepting requests.
func deleteCacheOnStartNames(cat *catalog.Catalog) []string {
	var names []string
	for _, l := range cat.All() {
		if l.GetDeleteCacheOnStart() {
			names = append(names, l.CompositeName())
		}
	}
	return names
}
