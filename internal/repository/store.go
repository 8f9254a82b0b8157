package repository

import (
	"context"
	"tierbot/internal/domain"
)

// Records maps member id to that member's tier record.
type Records map[string]domain.TierRecord

func (r Records) Clone() Records {
	out := make(Records, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Store persists the full record mapping. Load never fails on missing or
// unreadable state; it returns an empty mapping instead. Save replaces the
// persisted mapping so that a later Load sees either the old or the new one.
type Store interface {
	Load(ctx context.Context) (Records, error)
	Save(ctx context.Context, records Records) error
}
