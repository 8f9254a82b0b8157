// Package membership describes the role-based membership system that is the
// source of truth for which tier roles a member holds.
package membership

import (
	"context"
	"tierbot/internal/domain"
)

// Client reads and mutates one community's roster. GrantRole and RevokeRole
// return errors wrapping domain.ErrRoleGrantFailed / domain.ErrRoleRevokeFailed,
// and CurrentRoles returns domain.ErrMemberNotFound for members that left.
type Client interface {
	CurrentRoles(ctx context.Context, memberID string) (domain.MemberRoleSet, error)
	DisplayName(ctx context.Context, memberID string) (string, error)
	GrantRole(ctx context.Context, memberID, role string) error
	RevokeRole(ctx context.Context, memberID, role string) error
	ListMembers(ctx context.Context) ([]domain.MemberSnapshot, error)
}
