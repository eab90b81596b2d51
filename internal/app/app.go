package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"forkchat/internal/backup"
	"forkchat/pkg/api"
	"forkchat/pkg/api/handlers"
	"forkchat/pkg/config"
	"forkchat/pkg/llm"
	"forkchat/pkg/logger"
	"forkchat/pkg/models"
	"forkchat/pkg/persist"
	"forkchat/pkg/store"
)

// App wires the services and owns their lifecycle. Every dependency is
// constructed once here and passed explicitly; nothing looks anything up
// through package globals.
type App struct {
	cfg  *config.Config
	addr string

	gw    *persist.Gateway
	store *store.Store
	srv   *http.Server
}

// New builds the application: opens the snapshot store, loads (or seeds)
// state, constructs the model gateway, and assembles the HTTP handler.
func New(cfg *config.Config, addr, dbPath string) (*App, error) {
	gw, err := persist.Open(dbPath, cfg.Persist.Debounce.Duration())
	if err != nil {
		return nil, err
	}

	settings := defaultSettings(cfg)
	st := store.New(settings)

	snap, err := gw.Load()
	if err != nil {
		gw.Close()
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if snap != nil {
		st.ReplaceAll(snap)
		logger.Info("state_loaded", "threads", len(snap.Threads), "messages", len(snap.Messages))
	}
	mainID := st.Bootstrap("Main Thread")
	logger.Info("main_thread_ready", "id", mainID)

	gw.SetSource(st.Snapshot)
	st.OnDirty(gw.Schedule)

	var model handlers.Streamer
	client, err := llm.New(cfg.Model)
	switch {
	case err == nil:
		model = client
	case errors.Is(err, llm.ErrMissingAPIKey):
		logger.Warn("model_gateway_disabled", "reason", "no api key configured")
	default:
		gw.Close()
		return nil, err
	}

	h := &handlers.Handlers{Store: st, Persist: gw, Model: model}
	a := &App{
		cfg:   cfg,
		addr:  addr,
		gw:    gw,
		store: st,
		srv:   &http.Server{Addr: addr, Handler: api.New(h, cfg)},
	}
	return a, nil
}

// Run starts the backup scheduler and the HTTP server and blocks until ctx
// is canceled or a fatal server error occurs. Shutdown flushes a final
// snapshot before the database closes.
func (a *App) Run(ctx context.Context) error {
	stopBackup, err := backup.Start(ctx, a.cfg.Backup, a.gw)
	if err != nil {
		return err
	}
	defer stopBackup()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listening", "addr", a.addr)
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		a.close()
		return err
	}
	return a.close()
}

func (a *App) close() error {
	if err := a.gw.Save(); err != nil {
		logger.Error("final_save_failed", "error", err)
	}
	return a.gw.Close()
}

// defaultSettings merges configured defaults over the built-in ones.
func defaultSettings(cfg *config.Config) models.Settings {
	s := models.DefaultSettings()
	d := cfg.Defaults
	if d.Temperature != nil {
		s.Temperature = *d.Temperature
	}
	if d.MaxTokens != nil {
		s.MaxTokens = *d.MaxTokens
	}
	if d.MaxContextMessages != nil {
		v := *d.MaxContextMessages
		s.MaxContextMessages = &v
	}
	if d.ShowThinkingMode != nil {
		s.ShowThinkingMode = *d.ShowThinkingMode
	}
	if d.ShowInlineForks != nil {
		s.ShowInlineForks = *d.ShowInlineForks
	}
	return s
}
