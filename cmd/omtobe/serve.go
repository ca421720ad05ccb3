package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"omtobe/internal/app"
	"omtobe/internal/logger"
	"omtobe/internal/scheduler"
	"omtobe/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the cycle reset scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			conn, cfg, err := app.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer conn.Close()
			if secret := viper.GetString("jwt-secret"); secret != "" {
				cfg.Auth.JWTSecret = secret
			}
			if cfg.Auth.JWTSecret == "" && !cfg.Auth.AllowLegacyUserHeader {
				return fmt.Errorf("OMTOBE_JWT_SECRET or auth.jwt_secret is required for bearer auth")
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}

			log, err := logger.New(cfg.Logging.Mode)
			if err != nil {
				return err
			}
			defer log.Sync()

			e, cleanup, err := app.BuildEngine(ctx, conn, cfg, log)
			if err != nil {
				return err
			}
			defer cleanup()

			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:             cfg.Auth.JWTSecret,
					AllowLegacyUserHeader: cfg.Auth.AllowLegacyUserHeader,
					DevLoginEnabled:       cfg.Auth.DevLoginEnabled,
				},
				CORSOrigins: cfg.Server.CORSOrigins,
				Logger:      log,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
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
			if !noScheduler {
				sched := &scheduler.Scheduler{
					Sweeper:  e,
					Interval: time.Duration(cfg.Scheduler.ResetIntervalSeconds) * time.Second,
					Log:      log,
				}
				g.Go(func() error { return sched.Run(gctx) })
			}

			log.Info("serving omtobe api", "addr", addr, "base_path", basePath, "sources", cfg.Sources.Mode, "lock", cfg.Lock.Backend)
			fmt.Printf("Serving Omtobe API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n", addr, basePath, basePath, basePath)
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not run the cycle reset scheduler")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens (env OMTOBE_JWT_SECRET)")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}
