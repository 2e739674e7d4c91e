package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wuzuhao/regions-data/internal/api"
	"github.com/wuzuhao/regions-data/internal/config"
	"github.com/wuzuhao/regions-data/internal/metrics"
	"github.com/wuzuhao/regions-data/internal/region"
	"github.com/wuzuhao/regions-data/internal/reload"
	"github.com/wuzuhao/regions-data/internal/storage"
)

// Name identifies the application in logs and on the index route.
const Name = "regions-data"

// App encapsulates the application dependencies and HTTP server.
type App struct {
	cfg      config.Config
	dataPath string
	storage  storage.Storage
	handler  *api.Handler
	router   http.Handler
	metrics  *metrics.Metrics
	watcher  *reload.Watcher
	logger   *zap.Logger
	server   *http.Server

	ready    chan struct{}
	addrMu   sync.RWMutex
	boundTo  string
	loadLock sync.Mutex
	loaded   fileVersion
}

// fileVersion identifies the data file contents a dataset was loaded from.
type fileVersion struct {
	modTime time.Time
	size    int64
}

func (v fileVersion) equal(o fileVersion) bool {
	return v.modTime.Equal(o.modTime) && v.size == o.size
}

// New initializes the application with all dependencies from the provided
// configuration. The region dataset is loaded before New returns, so a bad
// data file fails startup before any port is bound.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	dataPath, err := resolveDataFile(cfg.DataFile)
	if err != nil {
		return nil, fmt.Errorf("locate region dataset: %w", err)
	}

	app := &App{
		cfg:      cfg,
		dataPath: dataPath,
		storage:  storage.NewMemoryStorage(),
		metrics:  metrics.New(),
		logger:   logger,
		ready:    make(chan struct{}),
	}

	if err := app.loadDataset(); err != nil {
		return nil, fmt.Errorf("failed to load region dataset: %w", err)
	}

	app.handler = api.NewHandler(app.storage)
	app.router = api.NewRouter(app.handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithTrustForwardedFor(cfg.TrustForwardedFor),
		api.WithMetrics(app.metrics),
	)
	app.server = NewServer(cfg, BuildRootHandler(app.router, app.metrics.Handler()))

	if cfg.Reload {
		watcher, err := reload.New(dataPath, app.reloadDataset, logger,
			reload.WithDebounce(cfg.ReloadDebounce),
			reload.WithResultHook(app.metrics.ObserveReload),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create data watcher: %w", err)
		}
		app.watcher = watcher
	}

	return app, nil
}

// BuildRootHandler mounts the API under /api/, Prometheus metrics under
// /metrics and a service index at /.
func BuildRootHandler(apiHandler, metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name": Name,
			"endpoints": []string{
				"/api/health",
				"/api/provinces",
				"/api/children/{parentCode}",
				"/api/regions/{code}",
				"/api/search?q=",
				"/api/stats",
				"/metrics",
			},
		})
	}))

	return mux
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Run binds the listener and serves until ctx is cancelled or the server
// fails. When reload is enabled the data watcher runs alongside the server.
// Cancellation triggers a graceful shutdown bounded by ShutdownGracePeriod.
func (a *App) Run(ctx context.Context) error {
	if a.watcher != nil {
		if err := a.watcher.Start(); err != nil {
			return fmt.Errorf("start data watcher: %w", err)
		}
		// Edits made between New and Start produced no event.
		a.reloadIfChanged()
	}

	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		if a.watcher != nil {
			_ = a.watcher.Close()
		}
		return fmt.Errorf("listen on %s: %w", a.server.Addr, err)
	}

	a.addrMu.Lock()
	a.boundTo = ln.Addr().String()
	a.addrMu.Unlock()

	a.logger.Info("server listening",
		zap.String("app", Name),
		zap.String("addr", ln.Addr().String()),
		zap.Bool("reload", a.cfg.Reload),
		zap.String("data_file", a.dataPath),
	)

	serveErr := make(chan error, 1)
	go func() {
		defer close(serveErr)
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()

	var wg sync.WaitGroup
	if a.watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.watcher.Run(watchCtx); err != nil {
				a.logger.Error("data watcher stopped", zap.Error(err))
			}
		}()
	}
	close(a.ready)

	select {
	case err, ok := <-serveErr:
		stopWatch()
		wg.Wait()
		if ok && err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	stopWatch()
	err = a.shutdown()
	wg.Wait()
	return err
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := a.server.Close(); closeErr != nil {
			a.logger.Error("forced close failed", zap.Error(closeErr))
			return fmt.Errorf("close server: %w", closeErr)
		}
	}
	return nil
}

// Ready is closed once the listener is bound and, in reload mode, the data
// file is being watched.
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// Addr returns the bound listener address, or the configured one before Run.
func (a *App) Addr() string {
	a.addrMu.RLock()
	defer a.addrMu.RUnlock()
	if a.boundTo != "" {
		return a.boundTo
	}
	return a.server.Addr
}

// Server returns the HTTP server instance.
func (a *App) Server() *http.Server {
	return a.server
}

func (a *App) loadDataset() error {
	a.loadLock.Lock()
	defer a.loadLock.Unlock()

	version, err := statVersion(a.dataPath)
	if err != nil {
		return err
	}
	ds, err := region.LoadFile(a.dataPath)
	if err != nil {
		return err
	}
	if err := a.storage.Replace(ds); err != nil {
		return err
	}
	a.loaded = version
	a.metrics.SetRegions(ds.Len())

	stats := ds.Stats()
	a.logger.Info("region dataset loaded",
		zap.String("path", a.dataPath),
		zap.Int("provinces", stats.Provinces),
		zap.Int("total", stats.Total),
	)
	return nil
}

func (a *App) reloadDataset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.loadDataset()
}

func (a *App) reloadIfChanged() {
	current, err := statVersion(a.dataPath)
	a.loadLock.Lock()
	unchanged := err == nil && current.equal(a.loaded)
	a.loadLock.Unlock()
	if unchanged {
		return
	}

	err = a.loadDataset()
	if err != nil {
		a.logger.Error("reload failed, keeping previous data", zap.String("path", a.dataPath), zap.Error(err))
	}
	a.metrics.ObserveReload(err)
}

func statVersion(path string) (fileVersion, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileVersion{}, fmt.Errorf("stat dataset: %w", err)
	}
	return fileVersion{modTime: info.ModTime(), size: info.Size()}, nil
}

// resolveDataFile returns path as is when it exists or is absolute;
// relative paths not found in the working directory are searched for in its
// parents.
func resolveDataFile(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	if _, err := os.Stat(path); err == nil {
		return filepath.Abs(path)
	}
	return resolveProjectPath(path)
}

// resolveProjectPath locates a file or directory relative to the project root by walking up the directory tree.
func resolveProjectPath(relative string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, relative)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("unable to locate %s", relative)
}
