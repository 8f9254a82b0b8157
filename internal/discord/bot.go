package discord

import (
	"context"
	"errors"
	"fmt"
	"tierbot/internal/constants"
	"tierbot/internal/domain"
	"tierbot/internal/service"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// Bot routes gateway events for one guild into the tier service.
type Bot struct {
	session *discordgo.Session
	guild   *Guild
	svc     *service.TierService
	logger  zerolog.Logger

	commands []*discordgo.ApplicationCommand
	removers []func()
}

func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	return s, nil
}

func NewBot(session *discordgo.Session, guild *Guild, svc *service.TierService, logger zerolog.Logger) *Bot {
	return &Bot{
		session:  session,
		guild:    guild,
		svc:      svc,
		logger:   logger.With().Str("component", "discord_bot").Logger(),
		commands: Commands(svc.Tiers(), svc.Regions()),
	}
}

// Start opens the gateway and registers the guild's slash commands.
func (b *Bot) Start() error {
	b.removers = append(b.removers,
		b.session.AddHandler(b.onReady),
		b.session.AddHandler(b.onInteraction),
		b.session.AddHandler(b.onMemberUpdate),
		b.session.AddHandler(b.onMemberRemove),
		b.session.AddHandler(func(_ *discordgo.Session, _ *discordgo.GuildRoleUpdate) { b.guild.InvalidateRoles() }),
		b.session.AddHandler(func(_ *discordgo.Session, _ *discordgo.GuildRoleDelete) { b.guild.InvalidateRoles() }),
	)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	registered, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, b.guild.ID(), b.commands)
	if err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	b.logger.Info().Int("commands", len(registered)).Msg("synced commands")
	return nil
}

func (b *Bot) Stop() error {
	for _, remove := range b.removers {
		remove()
	}
	b.removers = nil
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info().Str("user", r.User.Username).Msg("connected to discord")
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.GuildID != b.guild.ID() {
		b.respondNow(i, "This bot only manages tiers in its home server.")
		return
	}

	inv := parseInvocation(i.ApplicationCommandData(), interactionUserID(i))

	// acknowledge within discord's 3s window; roster reconciles can take longer
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: replyFlags(inv.Name)},
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to defer interaction")
		return
	}

	logger := b.logger.With().Str("command", inv.Name).Str("actor", inv.Actor).Str("member_id", inv.MemberID).Logger()
	logger.Info().Msg("command received")

	ctx, cancel := context.WithTimeout(logger.WithContext(context.Background()), constants.RequestTimeout)
	defer cancel()
	reply := Execute(ctx, b.svc, inv)

	edit := &discordgo.WebhookEdit{Content: &reply.Content}
	if len(reply.Embeds) > 0 {
		edit.Embeds = &reply.Embeds
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, edit); err != nil {
		logger.Error().Err(err).Msg("failed to send command reply")
	}
}

func (b *Bot) respondNow(i *discordgo.InteractionCreate, content string) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content, Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to respond to interaction")
	}
}

// onMemberUpdate catches role edits made directly in discord.
func (b *Bot) onMemberUpdate(s *discordgo.Session, u *discordgo.GuildMemberUpdate) {
	if u.Member == nil || u.User == nil || u.GuildID != b.guild.ID() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), constants.RequestTimeout)
	defer cancel()

	roles, err := b.guild.RoleSet(ctx, u.Roles)
	if err != nil {
		b.logger.Warn().Err(err).Str("member_id", u.User.ID).Msg("failed to resolve member roles")
		return
	}
	b.sync(ctx, domain.MemberSnapshot{MemberID: u.User.ID, DisplayName: memberName(u.Member), Roles: roles})
}

func (b *Bot) onMemberRemove(s *discordgo.Session, r *discordgo.GuildMemberRemove) {
	if r.Member == nil || r.User == nil || r.GuildID != b.guild.ID() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), constants.RequestTimeout)
	defer cancel()
	b.sync(ctx, domain.MemberSnapshot{MemberID: r.User.ID, Roles: domain.NewRoleSet()})
}

func (b *Bot) sync(ctx context.Context, member domain.MemberSnapshot) {
	if err := b.svc.Sync(ctx, member); err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error().Err(err).Str("member_id", member.MemberID).Msg("failed to reconcile member")
	}
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
