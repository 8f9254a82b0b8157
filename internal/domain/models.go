package domain

import (
	"time"
)

const (
	Unknown       = "unknown"
	UnknownRegion = Unknown
)

// TierRecord is the persisted tier state of one community member.
type TierRecord struct {
	MemberID     string
	DisplayName  string
	GameUsername string
	Region       string
	Tier         string
	LastUpdated  time.Time
}

// MemberRoleSet holds the role names a member currently has on the platform.
type MemberRoleSet map[string]struct{}

func NewRoleSet(roles ...string) MemberRoleSet {
	set := make(MemberRoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

func (s MemberRoleSet) Has(role string) bool {
	_, ok := s[role]
	return ok
}

func (s MemberRoleSet) Names() []string {
	names := make([]string, 0, len(s))
	for r := range s {
		names = append(names, r)
	}
	return names
}

// MemberSnapshot is one roster entry: a member and the roles held at read time.
type MemberSnapshot struct {
	MemberID    string
	DisplayName string
	Roles       MemberRoleSet
}

type ChangeKind string

const (
	ChangeAssigned ChangeKind = "assigned"
	ChangeRemoved  ChangeKind = "removed"
	ChangeDemoted  ChangeKind = "demoted"
)

// TierChange carries everything an announcement needs.
type TierChange struct {
	ID           string // nanoid
	Kind         ChangeKind
	Actor        string
	MemberID     string
	DisplayName  string
	Tier         string // tier affected by the command
	CurrentTier  string // tier after the change, empty when no tier remains
	Region       string
	GameUsername string
	At           time.Time
}
