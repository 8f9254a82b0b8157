package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"tierbot/internal/domain"
	"tierbot/internal/service"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	CommandGiveTier   = "givetier"
	CommandRemoveTier = "removetier"
	CommandTier       = "tier"
	CommandDatabase   = "database"
)

// Commands returns the slash command definitions for the given tiers and regions.
func Commands(tiers, regions []string) []*discordgo.ApplicationCommand {
	manageRoles := int64(discordgo.PermissionManageRoles)

	tierChoices := choices(tiers)
	regionChoices := choices(regions)

	memberOpt := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "member",
		Description: "Member to update",
		Required:    true,
	}
	tierOpt := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "tier",
		Description: "Tier",
		Required:    true,
		Choices:     tierChoices,
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:                     CommandGiveTier,
			Description:              "Assign a tier to a player",
			DefaultMemberPermissions: &manageRoles,
			Options: []*discordgo.ApplicationCommandOption{
				memberOpt,
				tierOpt,
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "region",
					Description: "Player region",
					Choices:     regionChoices,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "username",
					Description: "In-game username",
				},
			},
		},
		{
			Name:                     CommandRemoveTier,
			Description:              "Remove a tier from a player",
			DefaultMemberPermissions: &manageRoles,
			Options:                  []*discordgo.ApplicationCommandOption{memberOpt, tierOpt},
		},
		{
			Name:        CommandTier,
			Description: "Show a player's tier",
			Options:     []*discordgo.ApplicationCommandOption{memberOpt},
		},
		{
			Name:                     CommandDatabase,
			Description:              "Show all players with tiers",
			DefaultMemberPermissions: &manageRoles,
		},
	}
}

// discord allows at most 25 choices per option
func choices(values []string) []*discordgo.ApplicationCommandOptionChoice {
	if len(values) > 25 {
		return nil
	}
	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(values))
	for _, v := range values {
		out = append(out, &discordgo.ApplicationCommandOptionChoice{Name: v, Value: v})
	}
	return out
}

// Invocation is a parsed slash command.
type Invocation struct {
	Name     string
	Actor    string
	MemberID string
	Tier     string
	Region   string
	Username string
}

// Reply is what the bot sends back to the invoking admin.
type Reply struct {
	Content string
	Embeds  []*discordgo.MessageEmbed
}

// replyFlags keeps command replies private to the invoking admin, except the
// database listing which is posted to the channel.
func replyFlags(name string) discordgo.MessageFlags {
	if name == CommandDatabase {
		return 0
	}
	return discordgo.MessageFlagsEphemeral
}

func parseInvocation(data discordgo.ApplicationCommandInteractionData, actor string) Invocation {
	inv := Invocation{Name: data.Name, Actor: actor}
	for _, opt := range data.Options {
		switch opt.Name {
		case "member":
			inv.MemberID = opt.UserValue(nil).ID
		case "tier":
			inv.Tier = opt.StringValue()
		case "region":
			inv.Region = opt.StringValue()
		case "username":
			inv.Username = opt.StringValue()
		}
	}
	return inv
}

// Execute runs a command against the tier service.
func Execute(ctx context.Context, svc *service.TierService, inv Invocation) Reply {
	switch inv.Name {
	case CommandGiveTier:
		rec, err := svc.GiveTier(ctx, service.GiveTierRequest{
			Actor:    inv.Actor,
			MemberID: inv.MemberID,
			Tier:     inv.Tier,
			Region:   inv.Region,
			Username: inv.Username,
		})
		if err != nil {
			return errorReply(err)
		}
		if !strings.EqualFold(rec.Tier, inv.Tier) {
			return Reply{Content: fmt.Sprintf("Tier assigned successfully! <@%s> keeps their higher tier %s.", rec.MemberID, rec.Tier)}
		}
		return Reply{Content: "Tier assigned successfully!"}

	case CommandRemoveTier:
		rec, err := svc.RemoveTier(ctx, service.RemoveTierRequest{Actor: inv.Actor, MemberID: inv.MemberID, Tier: inv.Tier})
		if err != nil {
			return errorReply(err)
		}
		if rec != nil {
			return Reply{Content: fmt.Sprintf("Tier removed successfully! <@%s> is now %s.", rec.MemberID, rec.Tier)}
		}
		return Reply{Content: "Tier removed successfully!"}

	case CommandTier:
		rec, err := svc.GetTier(ctx, inv.MemberID)
		if err != nil {
			return errorReply(err)
		}
		return Reply{Embeds: []*discordgo.MessageEmbed{RecordEmbed(rec)}}

	case CommandDatabase:
		records, err := svc.Database(ctx)
		if err != nil {
			return errorReply(err)
		}
		return Reply{Embeds: DatabaseEmbeds(records, time.Now())}
	}

	return Reply{Content: fmt.Sprintf("Unknown command %q.", inv.Name)}
}

func errorReply(err error) Reply {
	switch {
	case errors.Is(err, domain.ErrRoleNotRecognized):
		return Reply{Content: "Invalid tier! " + err.Error()}
	case errors.Is(err, domain.ErrRegionNotRecognized):
		return Reply{Content: "Invalid region! " + err.Error()}
	case errors.Is(err, domain.ErrMemberNotFound):
		return Reply{Content: "That player has no tier."}
	case errors.Is(err, domain.ErrRoleGrantFailed):
		return Reply{Content: "I don't have permission to assign roles!"}
	case errors.Is(err, domain.ErrRoleRevokeFailed):
		return Reply{Content: "I don't have permission to remove roles!"}
	default:
		return Reply{Content: "Something went wrong, the tier change was not saved. Please try again."}
	}
}
