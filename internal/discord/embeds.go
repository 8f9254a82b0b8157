package discord

import (
	"fmt"
	"strings"
	"tierbot/internal/api"
	"tierbot/internal/constants"
	"tierbot/internal/domain"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

const (
	colorDatabase = 0x2ecc71
	colorInfo     = 0x95a5a6
	maxEmbeds     = 10
)

func toMessageEmbed(e api.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:     e.Title,
		Color:     e.Color,
		Timestamp: e.Timestamp,
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if e.Footer != nil {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer.Text}
	}
	return out
}

// RecordEmbed shows one member's tier.
func RecordEmbed(rec domain.TierRecord) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Discord", Value: fmt.Sprintf("%s (<@%s>)", rec.DisplayName, rec.MemberID)},
		{Name: "Tier", Value: rec.Tier, Inline: true},
		{Name: "Region", Value: rec.Region, Inline: true},
		{Name: "Username", Value: rec.GameUsername, Inline: true},
	}
	if !rec.LastUpdated.IsZero() {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Last Updated", Value: rec.LastUpdated.Format("2006-01-02 15:04:05")})
	}
	return &discordgo.MessageEmbed{
		Title:  "Player Tier",
		Color:  colorInfo,
		Fields: fields,
	}
}

// DatabaseEmbeds lists records one per line, split into fields of at most
// 1024 characters and embeds of at most 25 fields.
func DatabaseEmbeds(records []domain.TierRecord, now time.Time) []*discordgo.MessageEmbed {
	newEmbed := func() *discordgo.MessageEmbed {
		return &discordgo.MessageEmbed{
			Title:     "Player Database",
			Color:     colorDatabase,
			Timestamp: now.UTC().Format(time.RFC3339),
		}
	}

	if len(records) == 0 {
		e := newEmbed()
		e.Description = "No players found in database!"
		return []*discordgo.MessageEmbed{e}
	}

	var chunks []string
	var b strings.Builder
	for _, r := range records {
		line := fmt.Sprintf("%s - %s - %s\n", r.DisplayName, r.Region, r.Tier)
		if len(line) > constants.EmbedFieldMaxChars {
			line = clip(line, constants.EmbedFieldMaxChars-1) + "\n"
		}
		if b.Len()+len(line) > constants.EmbedFieldMaxChars {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		b.WriteString(line)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}

	var embeds []*discordgo.MessageEmbed
	current := newEmbed()
	for i, chunk := range chunks {
		if len(current.Fields) == constants.EmbedMaxFields {
			embeds = append(embeds, current)
			if len(embeds) == maxEmbeds {
				break
			}
			current = newEmbed()
		}
		name := "Players"
		if i > 0 {
			name = fmt.Sprintf("Players %d", i+1)
		}
		current.Fields = append(current.Fields, &discordgo.MessageEmbedField{Name: name, Value: chunk})
	}
	if len(embeds) < maxEmbeds && len(current.Fields) > 0 {
		embeds = append(embeds, current)
	}
	return embeds
}

// clip cuts s to at most max bytes without splitting a rune.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
