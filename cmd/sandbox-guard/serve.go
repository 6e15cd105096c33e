package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clearid-dev/sandbox-guard/guard"
	"github.com/clearid-dev/sandbox-guard/internal/config"
	"github.com/clearid-dev/sandbox-guard/internal/log"
	"github.com/clearid-dev/sandbox-guard/internal/server"
	"github.com/clearid-dev/sandbox-guard/store"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sandbox proxy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	return cmd
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log.Init(cfg.LogLevel)

	upstream, err := url.Parse(cfg.Upstream)
	if err != nil {
		return fmt.Errorf("parse upstream %q: %w", cfg.Upstream, err)
	}

	st := pickStore(cfg)
	g := guard.New(cfg.GuardPolicy(), st, nil)
	srv := server.New(cfg.ListenAddr, g, st, upstream)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-stop:
		log.Logger().Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// pickStore prefers Redis when configured and reachable so multiple proxy
// instances share flags and the rate-limit window, and falls back to the
// in-memory store otherwise.
func pickStore(cfg *config.Config) store.Store {
	if !cfg.Redis.Enabled {
		return store.NewMemory()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Logger().Warn("redis unreachable, using in-memory store", zap.Error(err))
		_ = client.Close()
		return store.NewMemory()
	}
	log.Logger().Info("using redis store", zap.String("addr", cfg.Redis.Addr))
	return store.NewRedis(client, cfg.Redis.Prefix)
}
