// Package tier defines the closed, totally ordered set of tier labels and the
// "highest wins" rule used to collapse a member's roles into a single tier.
package tier

import (
	"fmt"
	"sort"
	"strings"
	"tierbot/internal/domain"
)

// DefaultLabels lists the tiers in ascending rank order. Every high tier
// outranks every low tier.
var DefaultLabels = []string{"LT5", "LT4", "LT3", "LT2", "LT1", "HT5", "HT4", "HT3", "HT2", "HT1"}

type Ladder struct {
	labels []string
	rank   map[string]int
	fold   map[string]string
}

// NewLadder builds a ladder from labels given lowest first.
func NewLadder(labels []string) (*Ladder, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("tier ladder needs at least one label")
	}

	l := &Ladder{
		labels: make([]string, 0, len(labels)),
		rank:   make(map[string]int, len(labels)),
		fold:   make(map[string]string, len(labels)),
	}
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			return nil, fmt.Errorf("tier ladder contains an empty label")
		}
		key := strings.ToLower(label)
		if _, dup := l.fold[key]; dup {
			return nil, fmt.Errorf("tier ladder contains duplicate label %q", label)
		}
		l.rank[label] = len(l.labels)
		l.fold[key] = label
		l.labels = append(l.labels, label)
	}
	return l, nil
}

func MustLadder(labels []string) *Ladder {
	l, err := NewLadder(labels)
	if err != nil {
		panic(err)
	}
	return l
}

// Rank returns the position of label in the ladder, or -1 if it is not a tier.
func (l *Ladder) Rank(label string) int {
	if r, ok := l.rank[label]; ok {
		return r
	}
	return -1
}

func (l *Ladder) Contains(label string) bool {
	_, ok := l.rank[label]
	return ok
}

// Parse resolves user input to a canonical label, ignoring case.
func (l *Ladder) Parse(s string) (string, error) {
	if label, ok := l.fold[strings.ToLower(strings.TrimSpace(s))]; ok {
		return label, nil
	}
	return "", fmt.Errorf("%w: %q (use one of %s)", domain.ErrRoleNotRecognized, s, strings.Join(l.labels, ", "))
}

// Highest returns the highest ranked tier among roles. Roles that are not
// tiers are ignored; ok is false when none remain.
func (l *Ladder) Highest(roles domain.MemberRoleSet) (label string, ok bool) {
	best := -1
	for role := range roles {
		if r, found := l.rank[role]; found && r > best {
			best = r
		}
	}
	if best < 0 {
		return "", false
	}
	return l.labels[best], true
}

func (l *Ladder) Labels() []string {
	return append([]string(nil), l.labels...)
}

// Sort orders records highest tier first, breaking ties by display name.
func (l *Ladder) Sort(records []domain.TierRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		ri, rj := l.Rank(records[i].Tier), l.Rank(records[j].Tier)
		if ri != rj {
			return ri > rj
		}
		return strings.ToLower(records[i].DisplayName) < strings.ToLower(records[j].DisplayName)
	})
}
