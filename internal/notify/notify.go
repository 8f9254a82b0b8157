// Package notify announces tier changes to operators and the community.
package notify

import (
	"context"
	"errors"
	"fmt"
	"tierbot/internal/api"
	"tierbot/internal/domain"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	ColorAssigned = 0x3498db
	ColorRemoved  = 0xe74c3c
	ColorDemoted  = 0xe67e22

	dateLayout = "2006-01-02 15:04:05"
)

type Notifier interface {
	Notify(ctx context.Context, change domain.TierChange) error
}

// NewChange stamps a change with a fresh event id and the current time.
func NewChange(kind domain.ChangeKind, actor string, rec domain.TierRecord, affectedTier string) (domain.TierChange, error) {
	id, err := gonanoid.New()
	if err != nil {
		return domain.TierChange{}, fmt.Errorf("failed to generate nanoid: %w", err)
	}
	change := domain.TierChange{
		ID:           id,
		Kind:         kind,
		Actor:        actor,
		MemberID:     rec.MemberID,
		DisplayName:  rec.DisplayName,
		Tier:         affectedTier,
		Region:       rec.Region,
		GameUsername: rec.GameUsername,
		At:           time.Now(),
	}
	if kind != domain.ChangeRemoved {
		change.CurrentTier = rec.Tier
	}
	return change, nil
}

// Embed renders a change as a Discord embed.
func Embed(change domain.TierChange) api.Embed {
	embed := api.Embed{
		Timestamp: change.At.UTC().Format(time.RFC3339),
		Footer:    &api.EmbedFooter{Text: change.ID},
	}

	switch change.Kind {
	case domain.ChangeAssigned:
		embed.Title = "Tier Assigned"
		embed.Color = ColorAssigned
	case domain.ChangeDemoted:
		embed.Title = "Tier Removed"
		embed.Color = ColorDemoted
	default:
		embed.Title = "Tier Removed"
		embed.Color = ColorRemoved
	}

	add := func(name, value string) {
		if value == "" {
			return
		}
		embed.Fields = append(embed.Fields, api.EmbedField{Name: name, Value: value})
	}

	add("Username", change.GameUsername)
	add("Discord", discordLabel(change))
	add("Tier", change.Tier)
	if change.Kind == domain.ChangeDemoted || (change.Kind == domain.ChangeAssigned && change.CurrentTier != change.Tier) {
		add("Current Tier", change.CurrentTier)
	}
	add("Region", change.Region)
	add("By", mention(change.Actor))
	add("Date", change.At.Format(dateLayout))
	return embed
}

func discordLabel(change domain.TierChange) string {
	if change.MemberID == "" {
		return change.DisplayName
	}
	if change.DisplayName == "" {
		return mention(change.MemberID)
	}
	return fmt.Sprintf("%s (%s)", change.DisplayName, mention(change.MemberID))
}

func mention(id string) string {
	if id == "" {
		return ""
	}
	return "<@" + id + ">"
}

// Log writes changes to the structured log.
type Log struct {
	logger zerolog.Logger
}

func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger.With().Str("component", "notify").Logger()}
}

func (l *Log) Notify(ctx context.Context, change domain.TierChange) error {
	l.logger.Info().
		Str("event_id", change.ID).
		Str("kind", string(change.Kind)).
		Str("actor", change.Actor).
		Str("member_id", change.MemberID).
		Str("tier", change.Tier).
		Str("current_tier", change.CurrentTier).
		Str("region", change.Region).
		Str("username", change.GameUsername).
		Time("at", change.At).
		Msg("tier change")
	return nil
}

// Webhook posts changes to a webhook as embeds.
type Webhook struct {
	client *api.WebhookClient
}

func NewWebhook(client *api.WebhookClient) *Webhook {
	return &Webhook{client: client}
}

func (w *Webhook) Notify(ctx context.Context, change domain.TierChange) error {
	return w.client.Execute(ctx, api.WebhookPayload{Embeds: []api.Embed{Embed(change)}})
}

// Multi delivers every change to all of its notifiers concurrently.
type Multi struct {
	notifiers []Notifier
	logger    zerolog.Logger
}

func NewMulti(logger zerolog.Logger, notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers, logger: logger}
}

func (m *Multi) Add(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

func (m *Multi) Notify(ctx context.Context, change domain.TierChange) error {
	errs := make([]error, len(m.notifiers))

	var g errgroup.Group
	for i, n := range m.notifiers {
		g.Go(func() error {
			if err := n.Notify(ctx, change); err != nil {
				m.logger.Warn().Err(err).Str("event_id", change.ID).Msgf("notifier %T failed", n)
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
