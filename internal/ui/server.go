// Package ui provides the browser workspace for LeapDoc.
package ui

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapdoc/internal/container"
	"github.com/leapstack-labs/leapdoc/internal/credential"
	"github.com/leapstack-labs/leapdoc/internal/dataset"
	"github.com/leapstack-labs/leapdoc/internal/engine"
	previewFeature "github.com/leapstack-labs/leapdoc/internal/ui/features/preview"
	"github.com/leapstack-labs/leapdoc/internal/ui/notifier"
	"github.com/leapstack-labs/leapdoc/internal/ui/resources"
	"github.com/leapstack-labs/leapdoc/internal/ui/router"
	"github.com/leapstack-labs/leapdoc/internal/ui/views"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

const watchDebounce = 100 * time.Millisecond

// Server is the workspace server.
type Server struct {
	engine       *engine.Engine
	credential   *credential.Holder
	store        core.Store
	sessionStore *sessions.CookieStore
	port         int
	watch        bool
	dataPath     string
	templatePath string
	datasetOpts  dataset.Options
	title        string
	archiveName  string
	logger       *slog.Logger
	notifier     *notifier.Notifier
}

// Config holds configuration for the workspace server.
type Config struct {
	Engine     *engine.Engine
	Credential *credential.Holder
	Store      core.Store
	Port       int
	// Watch reloads DataPath and TemplatePath when they change on disk.
	Watch         bool
	DataPath      string
	TemplatePath  string
	Dataset       dataset.Options
	SessionSecret string
	Title         string
	ArchiveName   string
	Logger        *slog.Logger
}

// NewServer creates a new workspace server instance.
func NewServer(cfg Config) *Server {
	sessionStore := NewSessionStore(cfg.SessionSecret)
	sessionStore.MaxAge(86400 * 30) // 30 days
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Server{
		engine:       cfg.Engine,
		credential:   cfg.Credential,
		store:        cfg.Store,
		sessionStore: sessionStore,
		port:         cfg.Port,
		watch:        cfg.Watch,
		dataPath:     cfg.DataPath,
		templatePath: cfg.TemplatePath,
		datasetOpts:  cfg.Dataset,
		title:        cfg.Title,
		archiveName:  cfg.ArchiveName,
		logger:       logger,
		notifier:     notifier.New(),
	}
}

// NewSessionStore returns a cookie store that signs and encrypts its
// cookies, since they carry the service API key. Both keys are derived from
// secret; an empty secret gives random keys, so cookies do not outlive the
// process.
func NewSessionStore(secret string) *sessions.CookieStore {
	if secret == "" {
		return sessions.NewCookieStore(securecookie.GenerateRandomKey(64), securecookie.GenerateRandomKey(32))
	}
	hashKey := sha512.Sum512([]byte("leapdoc/session/auth:" + secret))
	blockKey := sha256.Sum256([]byte("leapdoc/session/encrypt:" + secret))
	return sessions.NewCookieStore(hashKey[:], blockKey[:])
}

// Handler builds the HTTP handler with all routes mounted.
func (s *Server) Handler() (http.Handler, error) {
	v, err := views.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load views: %w", err)
	}

	preview := previewFeature.NewHandlers(
		s.engine,
		s.credential,
		s.sessionStore,
		s.notifier,
		v,
		s.logger,
		previewFeature.Options{
			Title:       s.title,
			ArchiveName: s.archiveName,
			Dataset:     s.datasetOpts,
		},
	)

	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	if err := router.SetupRoutes(r, preview, s.store, v, s.IsDev()); err != nil {
		return nil, fmt.Errorf("failed to setup routes: %w", err)
	}
	return r, nil
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting workspace server", "addr", fmt.Sprintf("http://localhost:%d", s.port))

	handler, err := s.Handler()
	if err != nil {
		return err
	}

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watch {
		eg.Go(func() error {
			return s.watchFiles(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down workspace server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// IsDev returns true when assets are served from the filesystem.
func (s *Server) IsDev() bool {
	return resources.Dev
}

// Notifier returns the server's notifier for SSE updates.
func (s *Server) Notifier() *notifier.Notifier {
	return s.notifier
}

// watchedFiles maps each watched file to the directory holding it.
// Editors often replace files on save, so directories are watched.
func (s *Server) watchedFiles() map[string]string {
	files := make(map[string]string)
	for _, p := range []string{s.dataPath, s.templatePath} {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		files[abs] = filepath.Dir(abs)
	}
	return files
}

// watchFiles reloads the dataset or template when they change and pushes
// the new state to every connected browser.
func (s *Server) watchFiles(ctx context.Context) error {
	files := s.watchedFiles()
	if len(files) == 0 {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	dirs := make(map[string]bool)
	for _, dir := range files {
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := watcher.Add(dir); err != nil {
			// Don't fail - continue without watching this directory
			s.logger.Error("failed to watch directory", "dir", dir, "error", err)
		}
	}

	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
	)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if _, watched := files[name]; !watched {
				continue
			}

			mu.Lock()
			if t, ok := timers[name]; ok {
				t.Stop()
			}
			timers[name] = time.AfterFunc(watchDebounce, func() {
				s.reload(ctx, name)
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}

// reload re-reads a changed file into the engine and notifies clients.
func (s *Server) reload(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	s.logger.Debug("file changed, reloading", "file", path)

	var err error
	switch {
	case s.dataPath != "" && sameFile(path, s.dataPath):
		_, err = s.engine.LoadFile(path, s.datasetOpts)
	case s.templatePath != "" && sameFile(path, s.templatePath):
		err = s.reloadTemplate(ctx, path)
	}
	if err != nil {
		s.logger.Error("reload failed", "file", path, "error", err)
		return
	}

	s.notifier.Broadcast(notifier.Event{Source: filepath.Base(path)})
}

func (s *Server) reloadTemplate(ctx context.Context, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // watched path comes from the configuration
	if err != nil {
		return err
	}
	c, err := container.Open(filepath.Base(path), data)
	if err != nil {
		return err
	}
	_, err = s.engine.UseTemplate(ctx, c)
	return err
}

func sameFile(a, b string) bool {
	absB, err := filepath.Abs(b)
	if err != nil {
		return false
	}
	return a == absB
}
