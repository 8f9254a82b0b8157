package fx

import (
	"context"
	"tierbot/internal/api"
	"tierbot/internal/config"
	"tierbot/internal/database"
	"tierbot/internal/discord"
	"tierbot/internal/domain"
	"tierbot/internal/logger"
	"tierbot/internal/membership"
	"tierbot/internal/notify"
	"tierbot/internal/reconcile"
	"tierbot/internal/repository"
	"tierbot/internal/server"
	"tierbot/internal/service"
	"tierbot/internal/sweep"
	"tierbot/internal/tier"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideConfig() (*config.Config, error) {
	return config.Load(logger.New())
}

func ProvideLogger(cfg *config.Config) zerolog.Logger {
	return logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
}

func ProvideLadder(cfg *config.Config) (*tier.Ladder, error) {
	if len(cfg.Tiers) == 0 {
		return tier.NewLadder(tier.DefaultLabels)
	}
	return tier.NewLadder(cfg.Tiers)
}

func ProvideRegions(cfg *config.Config) domain.Regions {
	if len(cfg.Regions) == 0 {
		return domain.NewRegions(domain.DefaultRegions)
	}
	return domain.NewRegions(cfg.Regions)
}

func ProvideStore(lc fx.Lifecycle, cfg *config.Config, logger zerolog.Logger) (repository.Store, error) {
	if cfg.StoreDriver != config.StoreDriverSQLite {
		return repository.NewJSONStore(cfg.StorePath, logger), nil
	}

	db, err := database.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}
			return nil
		},
	})
	return repository.NewSQLiteStore(db, logger), nil
}

func ProvideEngine(ladder *tier.Ladder, store repository.Store, logger zerolog.Logger) (*reconcile.Engine, error) {
	return reconcile.NewEngine(context.Background(), ladder, store, logger)
}

// ProvideSession returns nil when the bot runs without discord.
func ProvideSession(cfg *config.Config) (*discordgo.Session, error) {
	if !cfg.DiscordEnabled {
		return nil, nil
	}
	return discord.NewSession(cfg.DiscordToken)
}

func ProvideGuild(cfg *config.Config, session *discordgo.Session, logger zerolog.Logger) *discord.Guild {
	if session == nil {
		return nil
	}
	return discord.NewGuild(session, cfg.GuildID, logger)
}

func ProvideMembership(guild *discord.Guild, logger zerolog.Logger) membership.Client {
	if guild == nil {
		logger.Warn().Msg("discord disabled, using in-memory membership")
		return membership.NewMemory()
	}
	return guild
}

func ProvideNotifier(cfg *config.Config, session *discordgo.Session, logger zerolog.Logger) notify.Notifier {
	multi := notify.NewMulti(logger, notify.NewLog(logger))
	if session != nil && cfg.AnnounceChannelID != "" {
		multi.Add(discord.NewAnnouncer(session, cfg.AnnounceChannelID))
	}
	if cfg.WebhookURL != "" {
		multi.Add(notify.NewWebhook(api.NewWebhookClient(cfg.WebhookURL, nil)))
	}
	return multi
}

func ProvideSweeper(cfg *config.Config, svc *service.TierService, logger zerolog.Logger) *sweep.Sweeper {
	return sweep.NewSweeper(svc, cfg.SweepInterval, logger)
}

func ProvideAdminServer(svc *service.TierService, sweeper *sweep.Sweeper) *server.AdminServer {
	return server.NewAdminServer(svc, sweeper)
}

func ProvideBot(session *discordgo.Session, guild *discord.Guild, svc *service.TierService, logger zerolog.Logger) *discord.Bot {
	if session == nil {
		return nil
	}
	return discord.NewBot(session, guild, svc, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideConfig),
	fx.Provide(ProvideLogger),
	fx.Provide(ProvideLadder),
	fx.Provide(ProvideRegions),
	// storage
	fx.Provide(ProvideStore),
	fx.Provide(ProvideEngine),
	// discord
	fx.Provide(ProvideSession),
	fx.Provide(ProvideGuild),
	fx.Provide(ProvideMembership),
	fx.Provide(ProvideNotifier),
	// svc
	fx.Provide(service.NewTierService),
	fx.Provide(ProvideSweeper),
	// server
	fx.Provide(ProvideAdminServer),
	fx.Provide(ProvideBot),
)
