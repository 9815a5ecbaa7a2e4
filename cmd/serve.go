package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v3"

	"github.com/endomorphosis/websearch/pkg/api"
	"github.com/endomorphosis/websearch/pkg/firehose"
	"github.com/endomorphosis/websearch/pkg/log"
)

// ServeCommand creates the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Listen address (overrides the config file)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, c.String("config"), c.String("listen"))
		},
	}
}

func serve(ctx context.Context, configPath, listenOverride string) error {
	logger := log.ForService("serve")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	listen := cfg.API.Listen
	if listenOverride != "" {
		listen = listenOverride
	}

	hub := firehose.NewHub(0)

	current, err := buildStack(cfg)
	if err != nil {
		return err
	}

	// Reload-retired stacks stay open until shutdown: requests that started
	// before a swap may still hold the old archive handle.
	stacks := []*stack{current}
	defer func() {
		for _, s := range stacks {
			s.Close()
		}
	}()

	buildHandler := func(s *stack) http.Handler {
		server := api.NewServer(api.Options{
			Services:        s.services,
			DefaultProvider: defaultProvider,
			Caches:          s.caches,
			Dists:           s.dists,
			Archive:         s.archive,
			Hub:             hub,
		})
		mux := http.NewServeMux()
		server.RegisterRoutes(mux)
		return api.RequestIDMiddleware(api.CorsMiddleware(mux))
	}

	handler := newReloadableHandler(buildHandler(current))

	httpServer := &http.Server{
		Addr:              listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// Watch the config file so edits are noticed without a restart. Reload
	// is advisory: a broken new config keeps the old one running.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("failed to create config file watcher: %v", err)
		watcher = nil
	} else {
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Warnf("failed to close config file watcher: %v", err)
			}
		}()
		// Watch the directory: editors replace the file, which would
		// invalidate a direct watch.
		if err := watcher.Add(filepath.Dir(configPath)); err != nil {
			logger.Warnf("failed to watch config file %s: %v", configPath, err)
		} else {
			logger.Infof("watching config file for changes: %s", configPath)
		}
	}

	var watcherEvents chan fsnotify.Event
	var watcherErrors chan error
	if watcher != nil {
		watcherEvents = watcher.Events
		watcherErrors = watcher.Errors
	}

	reload := func() {
		newCfg, err := loadConfig(configPath)
		if err != nil {
			logger.Warnf("config reload failed, keeping the old configuration: %v", err)
			return
		}
		newStack, err := buildStack(newCfg)
		if err != nil {
			logger.Warnf("config reload failed, keeping the old configuration: %v", err)
			return
		}

		stacks = append(stacks, newStack)
		handler.Swap(buildHandler(newStack))
		logger.Infof("configuration reloaded")
	}

	shutdown := func() error {
		fmt.Println("\nShutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}

	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				logger.Infof("received SIGHUP, reloading configuration")
				reload()
			case syscall.SIGINT, syscall.SIGTERM:
				return shutdown()
			}
		case event, ok := <-watcherEvents:
			if !ok {
				watcherEvents = nil
				continue
			}
			if event.Name != configPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				logger.Infof("config file changed, reloading")
				reload()
			}
		case err, ok := <-watcherErrors:
			if !ok {
				watcherErrors = nil
				continue
			}
			logger.Warnf("config watcher error: %v", err)
		case err := <-errCh:
			return fmt.Errorf("http server: %w", err)
		case <-ctx.Done():
			return shutdown()
		}
	}
}
