package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"layoutbot/internal/bot"
	"layoutbot/internal/observability"
)

func (c *cli) runServe(ctx context.Context) error {
	a, err := buildApp(ctx, c.cfg, c.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.store.Close(); err != nil {
			c.log.Error("close store", "err", err)
		}
	}()

	if err := bot.RegisterCommands(ctx, a.telegram); err != nil {
		c.log.Warn("command menu not updated", "err", err)
	}

	poller, err := bot.NewPoller(a.telegram, a.dispatcher, c.cfg.PollTimeout, c.log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.Run(gctx)
	})
	g.Go(func() error {
		return a.retention.Start(gctx)
	})
	if c.cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              c.cfg.MetricsAddr,
			Handler:           observability.NewRouter(a.store),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			c.log.Info("metrics listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	c.log.Info("layoutbot running", "username", a.me.Username)
	err = g.Wait()
	c.log.Info("layoutbot stopped")
	return err
}
