// Package reconcile keeps the persisted tier records in step with the tier
// roles members actually hold.
//
// Every operation derives the member's tier from the full current role set,
// never from a delta, so any operation can be re-run safely. All mutations
// go through one mutex covering load, compute, write and persist.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"tierbot/internal/domain"
	"tierbot/internal/repository"
	"tierbot/internal/tier"
	"time"

	"github.com/rs/zerolog"
)

// Outcome describes what a reconciliation did to one member's record.
type Outcome int

const (
	Unchanged Outcome = iota
	Created
	Updated
	Deleted
	// Refreshed means only cached metadata such as the display name changed.
	Refreshed
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	case Refreshed:
		return "refreshed"
	default:
		return "unchanged"
	}
}

// TierChanged reports whether the member's derived tier moved.
func (o Outcome) TierChanged() bool {
	return o == Created || o == Updated || o == Deleted
}

type Engine struct {
	mu      sync.Mutex
	ladder  *tier.Ladder
	store   repository.Store
	records repository.Records
	logger  zerolog.Logger
	now     func() time.Time
}

// NewEngine loads the current records from store and returns an engine that owns them.
func NewEngine(ctx context.Context, ladder *tier.Ladder, store repository.Store, logger zerolog.Logger) (*Engine, error) {
	records, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tier records: %w", err)
	}
	if records == nil {
		records = repository.Records{}
	}

	logger.Info().Int("records", len(records)).Msg("tier records loaded")
	return &Engine{
		ladder:  ladder,
		store:   store,
		records: records,
		logger:  logger.With().Str("component", "reconcile").Logger(),
		now:     time.Now,
	}, nil
}

// SetClock replaces the time source used for last_updated.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

func (e *Engine) Ladder() *tier.Ladder {
	return e.ladder
}

// AssignInput describes a manual tier grant that already happened on the platform.
type AssignInput struct {
	MemberID    string
	DisplayName string
	Role        string
	// Roles is the member's role set read after the grant.
	Roles domain.MemberRoleSet
	// GameUsername and Region are kept from the existing record when empty.
	GameUsername string
	Region       string
	// NewMember is set when the member had no record before the grant. A
	// record that appeared since came from a reconcile racing the grant, so
	// its username and region defaults are not kept.
	NewMember bool
}

// Assign records a manual grant. The stored tier is the highest tier in
// in.Roles, which is not necessarily in.Role.
func (e *Engine) Assign(ctx context.Context, in AssignInput) (domain.TierRecord, error) {
	if !e.ladder.Contains(in.Role) {
		return domain.TierRecord{}, fmt.Errorf("%w: %q", domain.ErrRoleNotRecognized, in.Role)
	}
	if !in.Roles.Has(in.Role) {
		return domain.TierRecord{}, fmt.Errorf("%w: member %s does not hold %s", domain.ErrRoleGrantFailed, in.MemberID, in.Role)
	}
	highest, _ := e.ladder.Highest(in.Roles)

	e.mu.Lock()
	defer e.mu.Unlock()

	prev, existed := e.records[in.MemberID]
	next := prev
	if in.NewMember {
		next.GameUsername = ""
		next.Region = ""
	}
	next.MemberID = in.MemberID
	next.Tier = highest
	next.LastUpdated = e.now()
	if in.DisplayName != "" {
		next.DisplayName = in.DisplayName
	}
	if in.GameUsername != "" {
		next.GameUsername = in.GameUsername
	} else if next.GameUsername == "" {
		next.GameUsername = domain.Unknown
	}
	if in.Region != "" {
		next.Region = in.Region
	} else if next.Region == "" {
		next.Region = domain.UnknownRegion
	}

	snapshot := e.records.Clone()
	e.records[in.MemberID] = next
	if err := e.persist(ctx, snapshot); err != nil {
		return domain.TierRecord{}, err
	}

	e.logger.Info().
		Str("member_id", in.MemberID).
		Str("role", in.Role).
		Str("tier", highest).
		Str("previous_tier", prev.Tier).
		Bool("created", !existed).
		Msg("tier assigned")
	return next, nil
}

// Unassign records a manual revoke that already happened on the platform.
// It returns nil when the member holds no tier role afterwards.
func (e *Engine) Unassign(ctx context.Context, memberID, removedRole string, rolesAfter domain.MemberRoleSet) (*domain.TierRecord, error) {
	if !e.ladder.Contains(removedRole) {
		return nil, fmt.Errorf("%w: %q", domain.ErrRoleNotRecognized, removedRole)
	}
	if rolesAfter.Has(removedRole) {
		return nil, fmt.Errorf("%w: member %s still holds %s", domain.ErrRoleRevokeFailed, memberID, removedRole)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := e.records.Clone()
	rec, outcome := e.syncLocked(domain.MemberSnapshot{MemberID: memberID, Roles: rolesAfter})
	if outcome != Unchanged {
		if err := e.persist(ctx, snapshot); err != nil {
			return nil, err
		}
	}

	e.logger.Info().
		Str("member_id", memberID).
		Str("removed_role", removedRole).
		Stringer("outcome", outcome).
		Msg("tier unassigned")
	return rec, nil
}

// ReconcileOne syncs one member's record with the given role set.
func (e *Engine) ReconcileOne(ctx context.Context, member domain.MemberSnapshot) (*domain.TierRecord, Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := e.records.Clone()
	rec, outcome := e.syncLocked(member)
	if outcome == Unchanged {
		e.logger.Debug().Str("member_id", member.MemberID).Msg("tier already in sync")
		return rec, outcome, nil
	}
	if err := e.persist(ctx, snapshot); err != nil {
		return nil, Unchanged, err
	}

	e.logger.Info().
		Str("member_id", member.MemberID).
		Stringer("outcome", outcome).
		Msg("tier reconciled")
	return rec, outcome, nil
}

// ReconcileAll syncs every member in the snapshot and persists once. Members
// absent from the snapshot are left alone. The count covers records whose
// tier was created, changed or deleted.
func (e *Engine) ReconcileAll(ctx context.Context, members []domain.MemberSnapshot) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := e.records.Clone()
	changed, dirty := 0, false
	for _, m := range members {
		_, outcome := e.syncLocked(m)
		if outcome.TierChanged() {
			changed++
		}
		if outcome != Unchanged {
			dirty = true
		}
	}

	if dirty {
		if err := e.persist(ctx, snapshot); err != nil {
			return 0, err
		}
	}

	e.logger.Info().
		Int("members", len(members)).
		Int("changed", changed).
		Msg("roster reconciled")
	return changed, nil
}

// Get returns the stored record for memberID.
func (e *Engine) Get(memberID string) (domain.TierRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[memberID]
	return rec, ok
}

// All returns every record, highest tier first.
func (e *Engine) All() []domain.TierRecord {
	e.mu.Lock()
	out := make([]domain.TierRecord, 0, len(e.records))
	for _, r := range e.records {
		out = append(out, r)
	}
	e.mu.Unlock()

	e.ladder.Sort(out)
	return out
}

// syncLocked applies member's derived tier to the in-memory map. Caller holds e.mu.
func (e *Engine) syncLocked(member domain.MemberSnapshot) (*domain.TierRecord, Outcome) {
	prev, existed := e.records[member.MemberID]
	highest, hasTier := e.ladder.Highest(member.Roles)

	switch {
	case !hasTier && !existed:
		return nil, Unchanged
	case !hasTier:
		delete(e.records, member.MemberID)
		return nil, Deleted
	case !existed:
		name := member.DisplayName
		username := name
		if username == "" {
			username = domain.Unknown
		}
		rec := domain.TierRecord{
			MemberID:     member.MemberID,
			DisplayName:  name,
			GameUsername: username,
			Region:       domain.UnknownRegion,
			Tier:         highest,
			LastUpdated:  e.now(),
		}
		e.records[member.MemberID] = rec
		return &rec, Created
	}

	next := prev
	outcome := Unchanged
	if prev.Tier != highest {
		next.Tier = highest
		next.LastUpdated = e.now()
		outcome = Updated
	}
	if member.DisplayName != "" && member.DisplayName != prev.DisplayName {
		next.DisplayName = member.DisplayName
		if outcome == Unchanged {
			outcome = Refreshed
		}
	}
	if outcome != Unchanged {
		e.records[member.MemberID] = next
	}
	return &next, outcome
}

// persist saves the in-memory map, restoring snapshot if the save fails so
// memory never runs ahead of the durable copy. Caller holds e.mu.
func (e *Engine) persist(ctx context.Context, snapshot repository.Records) error {
	if err := e.store.Save(ctx, e.records); err != nil {
		e.records = snapshot
		e.logger.Error().Err(err).Msg("failed to persist tier records, changes rolled back")
		return fmt.Errorf("failed to persist tier records: %w", err)
	}
	return nil
}
