package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	httpadapter "github.com/aretw0/flowchat/pkg/adapters/http"
	"github.com/aretw0/flowchat/pkg/adapters/mcp"
)

// ShutdownTimeout bounds the graceful stop of servers and the final snapshot flush.
const ShutdownTimeout = 10 * time.Second

// Serve runs the HTTP API until ctx is done, then drains sessions.
func Serve(ctx context.Context, app *App) error {
	handler, err := httpadapter.NewHandler(ctx, app.Manager, app.Loader,
		httpadapter.WithLogger(app.Logger),
		httpadapter.WithMetrics(app.Registry),
		httpadapter.WithAllowedOrigins(origins(app.Config.AllowedOrigins)...),
		httpadapter.WithAutoStart(app.Config.AutoStart),
		httpadapter.WithRestartPolicy(app.Config.Restart()),
		withChecks(app.Checks),
	)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              app.Config.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return app.runWith(ctx, func(ctx context.Context) error {
		serverErrors := make(chan error, 1)
		go func() {
			app.Logger.Info("http server listening", "addr", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				app.Logger.Warn("graceful shutdown did not complete", "err", err)
				_ = srv.Close()
			}
			return nil
		}
	})
}

// ServeMCP runs the MCP server on the given transport ("stdio" or "sse").
func ServeMCP(ctx context.Context, app *App, transport, baseURL string) error {
	srv := mcp.NewServer(app.Manager, app.Loader,
		mcp.WithLogger(app.Logger),
		mcp.WithRestartPolicy(app.Config.Restart()),
	)

	return app.runWith(ctx, func(ctx context.Context) error {
		switch transport {
		case "stdio":
			return srv.ServeStdio()
		case "sse":
			err := srv.ServeSSE(ctx, app.Config.Addr, baseURL)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		default:
			return fmt.Errorf("unknown transport %q, supported: stdio, sse", transport)
		}
	})
}

// runWith runs the session manager next to fn, then shuts sessions down and
// releases the backends.
func (a *App) runWith(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.Manager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error("session manager stopped", "err", err)
		}
	}()

	runErr := fn(ctx)
	cancel()
	wg.Wait()

	shutdownCtx, stop := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer stop()
	if err := a.Manager.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("session shutdown incomplete", "err", err)
	}
	return errors.Join(runErr, a.Close(shutdownCtx))
}

func withChecks(checks map[string]httpadapter.HealthCheck) httpadapter.Option {
	return func(s *httpadapter.Server) {
		for name, check := range checks {
			httpadapter.WithHealthCheck(name, check)(s)
		}
	}
}

func origins(configured []string) []string {
	if len(configured) == 0 {
		return []string{"*"}
	}
	return configured
}
