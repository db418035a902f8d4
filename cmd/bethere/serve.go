package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/nuru484/BeThere-server/internal/config"
	httptransport "github.com/nuru484/BeThere-server/internal/http"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "with-worker",
				Usage: "also run the job worker and the daily sweep in this process",
			},
		},
		Action: func(c *cli.Context) error {
			ctx := c.Context
			rt, err := bootstrap(ctx, config.KeyAccessTokenSecret)
			if err != nil {
				return err
			}
			defer rt.close()

			svc := rt.services()
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return rt.serveHTTP(ctx, svc) })
			if c.Bool("with-worker") {
				g.Go(func() error { return rt.runWorker(ctx, svc) })
			}
			return g.Wait()
		},
	}
}

func (r *runner) handler(svc *services) http.Handler {
	return httptransport.NewRouter(httptransport.RouterConfig{
		Events:     httptransport.NewEventHandler(svc.events, r.cfg.Location, r.logger),
		Attendance: httptransport.NewAttendanceHandler(svc.attendance, r.logger),
		Auth:       httptransport.RequireToken([]byte(r.cfg.AccessTokenSecret), r.logger),
		Health:     r.store,
		Middleware: []func(http.Handler) http.Handler{httptransport.RequestLogger(r.logger)},
	})
}

// serveHTTP listens until ctx is cancelled, then drains open requests.
func (r *runner) serveHTTP(ctx context.Context, svc *services) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", r.cfg.Port),
		Handler:           r.handler(svc),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("failed to shutdown server", "error", err)
		}
	}()

	r.logger.Info("BeThere API listening", "addr", server.Addr, "timezone", r.cfg.Location.String())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
