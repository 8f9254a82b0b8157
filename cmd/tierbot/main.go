package main

import (
	"context"
	"fmt"
	"net/http"
	"tierbot/internal/config"
	"tierbot/internal/constants"
	"tierbot/internal/discord"
	fxmodules "tierbot/internal/fx"
	"tierbot/internal/server"
	"tierbot/internal/sweep"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.NopLogger,
		fx.Invoke(runBot),
		fx.Invoke(runSweeper),
		fx.Invoke(runServer),
	).Run()
}

func runBot(lc fx.Lifecycle, bot *discord.Bot, logger zerolog.Logger) {
	if bot == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return bot.Start()
		},
		OnStop: func(ctx context.Context) error {
			if err := bot.Stop(); err != nil {
				logger.Warn().Err(err).Msg("error closing discord session")
			}
			return nil
		},
	})
}

func runSweeper(lc fx.Lifecycle, sweeper *sweep.Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sweeper.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return sweeper.Stop(ctx)
		},
	})
}

func runServer(
	lc fx.Lifecycle,
	admin *server.AdminServer,
	cfg *config.Config,
	logger zerolog.Logger,
) {
	if cfg.AdminToken == "" {
		logger.Warn().Msg("ADMIN_TOKEN not set, admin API is unauthenticated")
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: admin.Handler(logger, cfg.AdminToken),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
				return err
			}
			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
