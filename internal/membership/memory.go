package membership

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"tierbot/internal/domain"
)

type memoryMember struct {
	name  string
	roles domain.MemberRoleSet
}

// Memory is an in-process Client. It backs the offline mode and tests.
type Memory struct {
	mu      sync.RWMutex
	members map[string]*memoryMember
	denied  map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		members: map[string]*memoryMember{},
		denied:  map[string]bool{},
	}
}

// Put adds or replaces a member with the given roles.
func (m *Memory) Put(memberID, name string, roles ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[memberID] = &memoryMember{name: name, roles: domain.NewRoleSet(roles...)}
}

// Remove drops a member from the roster as if they left the community.
func (m *Memory) Remove(memberID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members, memberID)
}

// SetRoles replaces a member's roles outside of any command.
func (m *Memory) SetRoles(memberID string, roles ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mem, ok := m.members[memberID]; ok {
		mem.roles = domain.NewRoleSet(roles...)
	}
}

// Deny makes grants and revokes of role fail, like a role above the bot's own.
func (m *Memory) Deny(role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denied[role] = true
}

func (m *Memory) CurrentRoles(ctx context.Context, memberID string) (domain.MemberRoleSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[memberID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrMemberNotFound, memberID)
	}
	return domain.NewRoleSet(mem.roles.Names()...), nil
}

func (m *Memory) DisplayName(ctx context.Context, memberID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[memberID]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrMemberNotFound, memberID)
	}
	return mem.name, nil
}

func (m *Memory) GrantRole(ctx context.Context, memberID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[memberID]
	if !ok {
		return fmt.Errorf("%w: %w", domain.ErrRoleGrantFailed, domain.ErrMemberNotFound)
	}
	if m.denied[role] {
		return fmt.Errorf("%w: missing permission for %s", domain.ErrRoleGrantFailed, role)
	}
	mem.roles[role] = struct{}{}
	return nil
}

func (m *Memory) RevokeRole(ctx context.Context, memberID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[memberID]
	if !ok {
		return fmt.Errorf("%w: %w", domain.ErrRoleRevokeFailed, domain.ErrMemberNotFound)
	}
	if m.denied[role] {
		return fmt.Errorf("%w: missing permission for %s", domain.ErrRoleRevokeFailed, role)
	}
	delete(mem.roles, role)
	return nil
}

func (m *Memory) ListMembers(ctx context.Context) ([]domain.MemberSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.MemberSnapshot, 0, len(m.members))
	for id, mem := range m.members {
		out = append(out, domain.MemberSnapshot{
			MemberID:    id,
			DisplayName: mem.name,
			Roles:       domain.NewRoleSet(mem.roles.Names()...),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}
