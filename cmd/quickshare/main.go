// Package main provides the quickshare binary entry point. It loads
// configuration from environment variables, opens the share registry and blob
// storage under the data directory, and serves the HTTP API until interrupted.
//
// The application flow:
//  1. Load defaults and apply environment variables.
//  2. Validate configuration.
//  3. Open the SQLite registry and filesystem blob store.
//  4. Start the janitor and metrics flush loops.
//  5. Serve HTTP until SIGINT/SIGTERM, then drain and shut down.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/quickshare/quickshare/internal/app"
	"github.com/quickshare/quickshare/internal/config"
	"github.com/quickshare/quickshare/internal/httpx"
	"github.com/quickshare/quickshare/internal/janitor"
	"github.com/quickshare/quickshare/internal/metrics"
	"github.com/quickshare/quickshare/internal/pipe"
	"github.com/quickshare/quickshare/internal/store"
	"github.com/quickshare/quickshare/internal/store/filesystem"
	"github.com/quickshare/quickshare/internal/store/sqlite"
	"github.com/quickshare/quickshare/web"
)

// realClock implements app.Clock using time.Now.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "err", err)
		os.Exit(2)
	}
	return cfg
}

func ensureDataDir(dir string) (string, string) {
	if st, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if mkErr := os.MkdirAll(dir, 0o700); mkErr != nil {
				slog.Error("failed to create data directory", "dir", dir, "err", mkErr)
				os.Exit(3)
			}
		} else {
			slog.Error("stat data directory", "dir", dir, "err", err)
			os.Exit(3)
		}
	} else if !st.IsDir() {
		slog.Error("data path not directory", "dir", dir)
		os.Exit(3)
	}
	blobDir := filepath.Join(dir, "blobs")
	if err := os.MkdirAll(blobDir, 0o700); err != nil {
		slog.Error("create blobs dir", "err", err)
		os.Exit(5)
	}
	return dir, blobDir
}

func openDatabase(cfg *config.Config) (*sql.DB, *sqlite.Index) {
	db, err := sql.Open("sqlite3", cfg.SQLiteDSN())
	if err != nil {
		slog.Error("open sqlite driver", "err", err)
		os.Exit(4)
	}
	idx, err := sqlite.New(db)
	if err != nil {
		slog.Error("init sqlite schema", "err", err)
		os.Exit(4)
	}
	return db, idx
}

func newBlobStorage(blobDir string) *filesystem.BlobStore {
	blobs, err := filesystem.New(blobDir)
	if err != nil {
		slog.Error("init blob storage", "err", err)
		os.Exit(5)
	}
	return blobs
}

func buildService(st *store.Store, cfg *config.Config, clock app.Clock, rec app.Recorder) *app.Service {
	return &app.Service{
		Store:    st,
		Clock:    clock,
		Recorder: rec,
		MaxBytes: int64(cfg.MaxBytes),
		MinTTL:   cfg.MinTTL,
		MaxTTL:   cfg.MaxTTL,
	}
}

func buildHandler(cfg *config.Config, svc *app.Service, db *sql.DB, blobDir string, hub *pipe.Hub, mgr *metrics.Manager) http.Handler {
	readiness := func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		if _, err := os.ReadDir(blobDir); err != nil {
			return err
		}
		return nil
	}
	h := httpx.New(svc, int64(cfg.MaxBytes), readiness)
	h.Index = web.IndexHTML
	h.NoUpload = cfg.NoUpload
	if hub != nil {
		h.Pipes = httpx.PipeHub{Hub: hub}
	}
	h.Metrics = metrics.Handler(mgr, cfg.MetricsToken)
	return h.Router()
}

// newServer bounds only the header read; uploads, downloads, and pipe
// rendezvous legitimately hold connections open for a long time.
func newServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func run() error {
	cfg := loadConfig()
	_, blobDir := ensureDataDir(cfg.DataDir)
	db, idx := openDatabase(cfg)
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := metrics.New(db, metrics.Config{})
	if err := mgr.InitSchema(ctx); err != nil {
		slog.Error("init metrics schema", "err", err)
		os.Exit(4)
	}
	mgr.Start(ctx)

	blobs := newBlobStorage(blobDir)
	st := store.New(idx, blobs)
	clock := realClock{}
	svc := buildService(st, cfg, clock, metrics.ServiceRecorder{M: mgr})

	jan := janitor.New(st, janitor.Config{
		OnCycle: func(deleted, orphans int) {
			if deleted > 0 {
				mgr.Inc(metrics.CounterSharesReaped, int64(deleted))
				mgr.Observe(metrics.SummaryReapedPerCycle, int64(deleted))
			}
			if orphans > 0 {
				mgr.Inc(metrics.CounterOrphansDeleted, int64(orphans))
			}
		},
	})
	jan.Start(ctx)

	var hub *pipe.Hub
	if !cfg.NoPipe {
		hub = pipe.New(slog.Default())
		hub.OnRelayed = func() { mgr.Inc(metrics.CounterPipesRelayed, 1) }
	}

	srv := newServer(cfg, buildHandler(cfg, svc, db, blobDir, hub, mgr))
	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()

	slog.Info("starting server", "addr", cfg.Addr, "pid", os.Getpid())
	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	jan.Stop()
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mgr.Stop(flushCtx)
	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
