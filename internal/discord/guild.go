// Package discord binds the tier commands and the membership client to a
// single Discord guild.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"tierbot/internal/constants"
	"tierbot/internal/domain"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// RESTSession is the subset of *discordgo.Session the bot calls.
type RESTSession interface {
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMembers(guildID string, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildRoleCreate(guildID string, data *discordgo.RoleParams, options ...discordgo.RequestOption) (*discordgo.Role, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Guild implements membership.Client for one guild. Roles are addressed by
// name; ids are resolved through a cache refreshed on miss.
type Guild struct {
	session RESTSession
	guildID string
	logger  zerolog.Logger

	mu       sync.RWMutex
	roleName map[string]string // id -> name
	roleID   map[string]string // name -> id
}

func NewGuild(session RESTSession, guildID string, logger zerolog.Logger) *Guild {
	return &Guild{
		session:  session,
		guildID:  guildID,
		logger:   logger.With().Str("component", "discord_guild").Str("guild_id", guildID).Logger(),
		roleName: map[string]string{},
		roleID:   map[string]string{},
	}
}

func (g *Guild) ID() string {
	return g.guildID
}

func (g *Guild) CurrentRoles(ctx context.Context, memberID string) (domain.MemberRoleSet, error) {
	m, err := g.session.GuildMember(g.guildID, memberID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrMemberNotFound, memberID)
		}
		return nil, fmt.Errorf("failed to fetch member %s: %w", memberID, err)
	}
	return g.RoleSet(ctx, m.Roles)
}

func (g *Guild) DisplayName(ctx context.Context, memberID string) (string, error) {
	m, err := g.session.GuildMember(g.guildID, memberID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: %s", domain.ErrMemberNotFound, memberID)
		}
		return "", fmt.Errorf("failed to fetch member %s: %w", memberID, err)
	}
	return memberName(m), nil
}

// GrantRole adds the named role, creating it in the guild first if needed.
func (g *Guild) GrantRole(ctx context.Context, memberID, role string) error {
	roleID, err := g.ensureRole(ctx, role)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrRoleGrantFailed, err)
	}
	if err := g.session.GuildMemberRoleAdd(g.guildID, memberID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrRoleGrantFailed, describe(err))
	}
	g.logger.Debug().Str("member_id", memberID).Str("role", role).Msg("role granted")
	return nil
}

func (g *Guild) RevokeRole(ctx context.Context, memberID, role string) error {
	roleID, ok, err := g.lookupRole(ctx, role)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrRoleRevokeFailed, err)
	}
	if !ok {
		return nil
	}
	if err := g.session.GuildMemberRoleRemove(g.guildID, memberID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrRoleRevokeFailed, describe(err))
	}
	g.logger.Debug().Str("member_id", memberID).Str("role", role).Msg("role revoked")
	return nil
}

// ListMembers pages through the whole guild roster.
func (g *Guild) ListMembers(ctx context.Context) ([]domain.MemberSnapshot, error) {
	var members []*discordgo.Member

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return g.refreshRoles(egCtx)
	})
	eg.Go(func() error {
		after := ""
		for {
			page, err := g.session.GuildMembers(g.guildID, after, constants.MemberPageSize, discordgo.WithContext(egCtx))
			if err != nil {
				return fmt.Errorf("failed to list guild members: %w", err)
			}
			members = append(members, page...)
			if len(page) < constants.MemberPageSize {
				return nil
			}
			after = page[len(page)-1].User.ID
		}
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.MemberSnapshot, 0, len(members))
	for _, m := range members {
		if m.User == nil || m.User.Bot {
			continue
		}
		out = append(out, domain.MemberSnapshot{
			MemberID:    m.User.ID,
			DisplayName: memberName(m),
			Roles:       g.cachedRoleSet(m.Roles),
		})
	}

	g.logger.Debug().Int("members", len(out)).Msg("roster listed")
	return out, nil
}

// RoleSet resolves role ids to names, refreshing the cache once on a miss.
func (g *Guild) RoleSet(ctx context.Context, roleIDs []string) (domain.MemberRoleSet, error) {
	g.mu.RLock()
	missing := false
	for _, id := range roleIDs {
		if _, ok := g.roleName[id]; !ok {
			missing = true
			break
		}
	}
	g.mu.RUnlock()

	if missing {
		if err := g.refreshRoles(ctx); err != nil {
			return nil, err
		}
	}
	return g.cachedRoleSet(roleIDs), nil
}

// InvalidateRoles drops the role cache after role edits in the guild.
func (g *Guild) InvalidateRoles() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roleName = map[string]string{}
	g.roleID = map[string]string{}
}

func (g *Guild) cachedRoleSet(roleIDs []string) domain.MemberRoleSet {
	g.mu.RLock()
	defer g.mu.RUnlock()
	set := make(domain.MemberRoleSet, len(roleIDs))
	for _, id := range roleIDs {
		if name, ok := g.roleName[id]; ok {
			set[name] = struct{}{}
		}
	}
	return set
}

func (g *Guild) refreshRoles(ctx context.Context) error {
	roles, err := g.session.GuildRoles(g.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to list guild roles: %w", err)
	}

	byID := make(map[string]string, len(roles))
	byName := make(map[string]string, len(roles))
	for _, r := range roles {
		byID[r.ID] = r.Name
		// keep the first role when names collide
		if _, dup := byName[r.Name]; !dup {
			byName[r.Name] = r.ID
		}
	}

	g.mu.Lock()
	g.roleName, g.roleID = byID, byName
	g.mu.Unlock()
	return nil
}

func (g *Guild) lookupRole(ctx context.Context, name string) (string, bool, error) {
	g.mu.RLock()
	id, ok := g.roleID[name]
	g.mu.RUnlock()
	if ok {
		return id, true, nil
	}

	if err := g.refreshRoles(ctx); err != nil {
		return "", false, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok = g.roleID[name]
	return id, ok, nil
}

func (g *Guild) ensureRole(ctx context.Context, name string) (string, error) {
	id, ok, err := g.lookupRole(ctx, name)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}

	role, err := g.session.GuildRoleCreate(g.guildID, &discordgo.RoleParams{Name: name}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to create role %s: %w", name, describe(err))
	}
	g.logger.Info().Str("role", name).Str("role_id", role.ID).Msg("tier role created")

	g.mu.Lock()
	g.roleName[role.ID] = role.Name
	g.roleID[role.Name] = role.ID
	g.mu.Unlock()
	return role.ID, nil
}

func memberName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User == nil {
		return ""
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}

func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

func describe(err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden {
		return fmt.Errorf("missing permission to manage roles: %w", err)
	}
	return err
}
