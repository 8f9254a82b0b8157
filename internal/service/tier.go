package service

import (
	"context"
	"errors"
	"fmt"
	"tierbot/internal/constants"
	"tierbot/internal/domain"
	"tierbot/internal/membership"
	"tierbot/internal/notify"
	"tierbot/internal/reconcile"

	"github.com/rs/zerolog"
)

// TierService implements the admin tier commands on top of the engine.
type TierService struct {
	engine   *reconcile.Engine
	members  membership.Client
	notifier notify.Notifier
	regions  domain.Regions
	logger   zerolog.Logger
}

func NewTierService(engine *reconcile.Engine, members membership.Client, notifier notify.Notifier, regions domain.Regions, logger zerolog.Logger) *TierService {
	return &TierService{
		engine:   engine,
		members:  members,
		notifier: notifier,
		regions:  regions,
		logger:   logger.With().Str("component", "tier_service").Logger(),
	}
}

type GiveTierRequest struct {
	Actor    string
	MemberID string
	Tier     string
	Region   string
	Username string
}

type RemoveTierRequest struct {
	Actor    string
	MemberID string
	Tier     string
}

func (s *TierService) Tiers() []string {
	return s.engine.Ladder().Labels()
}

func (s *TierService) Regions() []string {
	return s.regions.Names()
}

// GiveTier grants the tier role and records the member's resulting tier.
func (s *TierService) GiveTier(ctx context.Context, req GiveTierRequest) (domain.TierRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	label, err := s.engine.Ladder().Parse(req.Tier)
	if err != nil {
		return domain.TierRecord{}, err
	}
	region := ""
	if req.Region != "" {
		if region, err = s.regions.Parse(req.Region); err != nil {
			return domain.TierRecord{}, err
		}
	}

	s.logger.Info().Str("actor", req.Actor).Str("member_id", req.MemberID).Str("tier", label).Msg("giving tier")

	_, existed := s.engine.Get(req.MemberID)

	if err := s.members.GrantRole(ctx, req.MemberID, label); err != nil {
		s.logger.Error().Err(err).Str("member_id", req.MemberID).Str("tier", label).Msg("failed to grant role")
		return domain.TierRecord{}, wrapIf(err, domain.ErrRoleGrantFailed)
	}

	roles, err := s.members.CurrentRoles(ctx, req.MemberID)
	if err != nil {
		return domain.TierRecord{}, fmt.Errorf("failed to read roles after grant: %w", err)
	}
	name := s.displayName(ctx, req.MemberID)

	rec, err := s.engine.Assign(ctx, reconcile.AssignInput{
		MemberID:     req.MemberID,
		DisplayName:  name,
		Role:         label,
		Roles:        roles,
		GameUsername: req.Username,
		Region:       region,
		NewMember:    !existed,
	})
	if err != nil {
		return domain.TierRecord{}, err
	}

	s.announce(ctx, domain.ChangeAssigned, req.Actor, rec, label)
	return rec, nil
}

// RemoveTier revokes the tier role. The returned record is nil when the
// member has no tier left, otherwise it carries the tier they fell back to.
func (s *TierService) RemoveTier(ctx context.Context, req RemoveTierRequest) (*domain.TierRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	label, err := s.engine.Ladder().Parse(req.Tier)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("actor", req.Actor).Str("member_id", req.MemberID).Str("tier", label).Msg("removing tier")

	before, err := s.rolesOrEmpty(ctx, req.MemberID)
	if err != nil {
		return nil, err
	}
	if before.Has(label) {
		if err := s.members.RevokeRole(ctx, req.MemberID, label); err != nil {
			s.logger.Error().Err(err).Str("member_id", req.MemberID).Str("tier", label).Msg("failed to revoke role")
			return nil, wrapIf(err, domain.ErrRoleRevokeFailed)
		}
	}

	after, err := s.rolesOrEmpty(ctx, req.MemberID)
	if err != nil {
		return nil, err
	}

	prev, existed := s.engine.Get(req.MemberID)
	rec, err := s.engine.Unassign(ctx, req.MemberID, label, after)
	if err != nil {
		return nil, err
	}

	changed := before.Has(label) || (existed && (rec == nil || rec.Tier != prev.Tier))
	if changed {
		if rec == nil {
			if !existed {
				prev = domain.TierRecord{MemberID: req.MemberID, DisplayName: s.displayName(ctx, req.MemberID)}
			}
			s.announce(ctx, domain.ChangeRemoved, req.Actor, prev, label)
		} else {
			s.announce(ctx, domain.ChangeDemoted, req.Actor, *rec, label)
		}
	}
	return rec, nil
}

// GetTier reconciles the member against their current roles and returns the
// record, or domain.ErrMemberNotFound when they hold no tier.
func (s *TierService) GetTier(ctx context.Context, memberID string) (domain.TierRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	roles, err := s.rolesOrEmpty(ctx, memberID)
	if err != nil {
		return domain.TierRecord{}, err
	}

	rec, _, err := s.engine.ReconcileOne(ctx, domain.MemberSnapshot{
		MemberID:    memberID,
		DisplayName: s.displayName(ctx, memberID),
		Roles:       roles,
	})
	if err != nil {
		return domain.TierRecord{}, err
	}
	if rec == nil {
		return domain.TierRecord{}, fmt.Errorf("%w: %s has no tier", domain.ErrMemberNotFound, memberID)
	}
	return *rec, nil
}

// Database reconciles the whole roster and lists every record, highest tier first.
func (s *TierService) Database(ctx context.Context) ([]domain.TierRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.SweepTimeout)
	defer cancel()

	if _, err := s.Reconcile(ctx); err != nil {
		return nil, err
	}
	return s.engine.All(), nil
}

// Reconcile runs one full roster pass and returns the changed count.
func (s *TierService) Reconcile(ctx context.Context) (int, error) {
	roster, err := s.members.ListMembers(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list members")
		return 0, fmt.Errorf("failed to list members: %w", err)
	}
	return s.engine.ReconcileAll(ctx, roster)
}

// Sync reconciles one member whose roles changed outside of the commands.
func (s *TierService) Sync(ctx context.Context, member domain.MemberSnapshot) error {
	_, outcome, err := s.engine.ReconcileOne(ctx, member)
	if err != nil {
		return err
	}
	if outcome.TierChanged() {
		s.logger.Info().Str("member_id", member.MemberID).Stringer("outcome", outcome).Msg("out-of-band tier change reconciled")
	}
	return nil
}

func (s *TierService) announce(ctx context.Context, kind domain.ChangeKind, actor string, rec domain.TierRecord, affected string) {
	change, err := notify.NewChange(kind, actor, rec, affected)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to build tier change")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.NotifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(ctx, change); err != nil {
		s.logger.Warn().Err(err).Str("event_id", change.ID).Msg("failed to announce tier change")
	}
}

func (s *TierService) rolesOrEmpty(ctx context.Context, memberID string) (domain.MemberRoleSet, error) {
	roles, err := s.members.CurrentRoles(ctx, memberID)
	if errors.Is(err, domain.ErrMemberNotFound) {
		return domain.NewRoleSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read roles: %w", err)
	}
	return roles, nil
}

func (s *TierService) displayName(ctx context.Context, memberID string) string {
	name, err := s.members.DisplayName(ctx, memberID)
	if err != nil {
		s.logger.Debug().Err(err).Str("member_id", memberID).Msg("display name unavailable")
		return ""
	}
	return name
}

func wrapIf(err, kind error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// Records lists the stored records without touching the platform.
func (s *TierService) Records() []domain.TierRecord {
	return s.engine.All()
}
