package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/camgestures/internal/app"
	"github.com/ayusman/camgestures/internal/events"
	"github.com/ayusman/camgestures/internal/server"
	"github.com/ayusman/camgestures/internal/server/api"
	"github.com/ayusman/camgestures/internal/store"
	"github.com/ayusman/camgestures/internal/tray"
)

func newRunCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the camera, train the gestures and serve the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.noTray, "no-tray", false, "run without the system tray icon")
	return cmd
}

func run(ctx context.Context, opts *options) error {
	cfg, logger := opts.cfg, opts.logger

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	a, err := app.New(app.Config{Settings: cfg, Store: st, Logger: logger})
	if err != nil {
		return err
	}

	hub := server.NewEventHub(logger)
	a.Subscribe(events.Wildcard, hub.HandleEvent)
	a.OnChange(hub.HandleState)

	var tr *tray.Tray
	if !opts.noTray {
		tr = tray.New()
		a.OnChange(tr.Update)
	}

	if err := a.Start(); err != nil {
		return err
	}
	defer a.Stop()

	var plugins api.PluginLookup
	if p := a.Plugins(); p != nil {
		plugins = p
	}
	staticDir := cfg.Server.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	srv := server.New(server.Config{
		StaticDir: staticDir,
		Store:     st,
		Session:   a,
		Plugins:   plugins,
		Preview:   a.Preview(),
		Hub:       hub,
		Metrics:   a.Metrics().Handler(),
		Logger:    logger,
	})

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(cfg.Server.Address); err != nil {
			serveErr <- err
			cancel()
		}
	}()

	if tr != nil {
		tr.OnReset(a.Reset)
		tr.OnSettings(func() { openBrowser(settingsURL(cfg.Server.Address)) })
		tr.OnQuit(cancel)
		go func() {
			<-ctx.Done()
			tr.Quit()
		}()
		tr.Run()
		cancel()
	} else {
		<-ctx.Done()
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server shutdown")
	}

	select {
	case err := <-serveErr:
		return err
	default:
	}
	return nil
}

// settingsURL turns a listen address into a browsable URL.
func settingsURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_ = cmd.Start()
}
