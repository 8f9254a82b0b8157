package discord

import (
	"context"
	"fmt"
	"tierbot/internal/domain"
	"tierbot/internal/notify"

	"github.com/bwmarrin/discordgo"
)

// Announcer posts tier changes to a guild channel.
type Announcer struct {
	session   RESTSession
	channelID string
}

func NewAnnouncer(session RESTSession, channelID string) *Announcer {
	return &Announcer{session: session, channelID: channelID}
}

func (a *Announcer) Notify(ctx context.Context, change domain.TierChange) error {
	embed := toMessageEmbed(notify.Embed(change))
	if _, err := a.session.ChannelMessageSendEmbed(a.channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to announce in channel %s: %w", a.channelID, err)
	}
	return nil
}
