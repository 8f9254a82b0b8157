package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"tierbot/internal/domain"
	"tierbot/internal/repository"
	"tierbot/internal/tier"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenarioLadder = tier.MustLadder([]string{"LT5", "LT4", "LT3", "LT2", "LT1", "HT5", "HT4", "HT3", "HT2", "HT1"})

// memStore is a Store that counts saves and can be told to fail.
type memStore struct {
	mu      sync.Mutex
	data    repository.Records
	saves   int
	failErr error
}

func (s *memStore) Load(ctx context.Context) (repository.Records, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone(), nil
}

func (s *memStore) Save(ctx context.Context, records repository.Records) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.saves++
	s.data = records.Clone()
	return nil
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newEngine(t *testing.T, seed repository.Records) (*Engine, *memStore, *fixedClock) {
	t.Helper()
	if seed == nil {
		seed = repository.Records{}
	}
	store := &memStore{data: seed}
	e, err := NewEngine(context.Background(), scenarioLadder, store, zerolog.Nop())
	require.NoError(t, err)

	clock := &fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	e.SetClock(clock.Now)
	return e, store, clock
}

func snap(id string, roles ...string) domain.MemberSnapshot {
	return domain.MemberSnapshot{MemberID: id, Roles: domain.NewRoleSet(roles...)}
}

func TestScenario_HighThenDemote(t *testing.T) {
	e, _, _ := newEngine(t, nil)
	ctx := context.Background()

	rec, outcome, err := e.ReconcileOne(ctx, snap("X", "LT3", "HT5"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, Created, outcome)
	assert.Equal(t, "HT5", rec.Tier)

	rec, outcome, err = e.ReconcileOne(ctx, snap("X", "LT3"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, Updated, outcome)
	assert.Equal(t, "LT3", rec.Tier)

	stored, ok := e.Get("X")
	require.True(t, ok)
	assert.Equal(t, "LT3", stored.Tier)
}

func TestReconcileOne_Idempotent(t *testing.T) {
	e, store, _ := newEngine(t, nil)
	ctx := context.Background()

	first, _, err := e.ReconcileOne(ctx, snap("A", "HT3", "Member"))
	require.NoError(t, err)
	saves := store.saveCount()

	second, outcome, err := e.ReconcileOne(ctx, snap("A", "HT3", "Member"))
	require.NoError(t, err)
	assert.Equal(t, Unchanged, outcome)
	assert.Equal(t, *first, *second)
	assert.Equal(t, saves, store.saveCount(), "second reconcile must not write")
}

func TestReconcileOne_UnknownMemberWithoutTierIsNoop(t *testing.T) {
	e, store, _ := newEngine(t, nil)

	rec, outcome, err := e.ReconcileOne(context.Background(), snap("ghost", "Member"))
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, Unchanged, outcome)
	assert.Zero(t, store.saveCount())
}

func TestReconcileOne_RefreshesDisplayName(t *testing.T) {
	e, _, clock := newEngine(t, nil)
	ctx := context.Background()

	_, _, err := e.ReconcileOne(ctx, domain.MemberSnapshot{MemberID: "A", DisplayName: "old", Roles: domain.NewRoleSet("LT1")})
	require.NoError(t, err)
	before, _ := e.Get("A")

	clock.Advance(time.Hour)
	rec, outcome, err := e.ReconcileOne(ctx, domain.MemberSnapshot{MemberID: "A", DisplayName: "new", Roles: domain.NewRoleSet("LT1")})
	require.NoError(t, err)
	assert.Equal(t, Refreshed, outcome)
	assert.False(t, outcome.TierChanged())
	assert.Equal(t, "new", rec.DisplayName)
	assert.True(t, before.LastUpdated.Equal(rec.LastUpdated), "display name refresh keeps last_updated")
}

func TestReconcileOne_TierChangeBumpsLastUpdated(t *testing.T) {
	e, _, clock := newEngine(t, nil)
	ctx := context.Background()

	first, _, err := e.ReconcileOne(ctx, snap("A", "LT4"))
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	second, _, err := e.ReconcileOne(ctx, snap("A", "HT4"))
	require.NoError(t, err)
	assert.True(t, second.LastUpdated.After(first.LastUpdated))
}

func TestAssign(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesRecord", func(t *testing.T) {
		e, store, _ := newEngine(t, nil)

		rec, err := e.Assign(ctx, AssignInput{
			MemberID:     "A",
			DisplayName:  "alpha",
			Role:         "HT2",
			Roles:        domain.NewRoleSet("HT2"),
			GameUsername: "AlphaPvP",
			Region:       "NA",
		})
		require.NoError(t, err)
		assert.Equal(t, "HT2", rec.Tier)
		assert.Equal(t, "AlphaPvP", rec.GameUsername)
		assert.Equal(t, "NA", rec.Region)
		assert.Equal(t, "alpha", rec.DisplayName)
		assert.Equal(t, 1, store.saveCount())
		assert.Contains(t, store.data, "A")
	})

	t.Run("DefaultsUnknownMetadata", func(t *testing.T) {
		e, _, _ := newEngine(t, nil)

		rec, err := e.Assign(ctx, AssignInput{MemberID: "A", Role: "LT1", Roles: domain.NewRoleSet("LT1")})
		require.NoError(t, err)
		assert.Equal(t, domain.Unknown, rec.GameUsername)
		assert.Equal(t, domain.UnknownRegion, rec.Region)
	})

	t.Run("PreservesUsername", func(t *testing.T) {
		e, _, _ := newEngine(t, repository.Records{
			"A": {MemberID: "A", GameUsername: "AlphaPvP", Region: "EU", Tier: "LT4"},
		})

		rec, err := e.Assign(ctx, AssignInput{MemberID: "A", Role: "LT2", Roles: domain.NewRoleSet("LT4", "LT2")})
		require.NoError(t, err)
		assert.Equal(t, "LT2", rec.Tier)
		assert.Equal(t, "AlphaPvP", rec.GameUsername)
		assert.Equal(t, "EU", rec.Region)
	})

	t.Run("NewMemberDropsReconcileDefaults", func(t *testing.T) {
		e, _, _ := newEngine(t, nil)
		// a role event for the grant reconciled before the assign
		_, _, err := e.ReconcileOne(ctx, domain.MemberSnapshot{MemberID: "A", DisplayName: "alpha", Roles: domain.NewRoleSet("LT1")})
		require.NoError(t, err)

		rec, err := e.Assign(ctx, AssignInput{MemberID: "A", DisplayName: "alpha", Role: "LT1", Roles: domain.NewRoleSet("LT1"), NewMember: true})
		require.NoError(t, err)
		assert.Equal(t, domain.Unknown, rec.GameUsername)
		assert.Equal(t, domain.UnknownRegion, rec.Region)
	})

	t.Run("HigherExistingRoleWins", func(t *testing.T) {
		e, _, _ := newEngine(t, nil)

		rec, err := e.Assign(ctx, AssignInput{MemberID: "A", Role: "LT5", Roles: domain.NewRoleSet("HT1", "LT5")})
		require.NoError(t, err)
		assert.Equal(t, "HT1", rec.Tier)
	})

	t.Run("RejectsUnknownRole", func(t *testing.T) {
		e, store, _ := newEngine(t, nil)

		_, err := e.Assign(ctx, AssignInput{MemberID: "A", Role: "Moderator", Roles: domain.NewRoleSet("Moderator")})
		require.ErrorIs(t, err, domain.ErrRoleNotRecognized)
		assert.Zero(t, store.saveCount())
	})

	t.Run("RejectsGrantThatDidNotHappen", func(t *testing.T) {
		e, store, _ := newEngine(t, nil)

		_, err := e.Assign(ctx, AssignInput{MemberID: "A", Role: "HT3", Roles: domain.NewRoleSet()})
		require.ErrorIs(t, err, domain.ErrRoleGrantFailed)
		assert.Zero(t, store.saveCount())
		_, ok := e.Get("A")
		assert.False(t, ok)
	})
}

func TestUnassign(t *testing.T) {
	ctx := context.Background()

	t.Run("DemotesToNextHighest", func(t *testing.T) {
		e, _, _ := newEngine(t, repository.Records{
			"A": {MemberID: "A", GameUsername: "alpha", Region: "AS", Tier: "HT3"},
		})

		rec, err := e.Unassign(ctx, "A", "HT3", domain.NewRoleSet("LT1"))
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "LT1", rec.Tier)
		assert.Equal(t, "alpha", rec.GameUsername)
		assert.Equal(t, "AS", rec.Region)
	})

	t.Run("DeletesWhenNoTierLeft", func(t *testing.T) {
		e, store, _ := newEngine(t, repository.Records{
			"A": {MemberID: "A", Tier: "LT2"},
		})

		rec, err := e.Unassign(ctx, "A", "LT2", domain.NewRoleSet())
		require.NoError(t, err)
		assert.Nil(t, rec)
		_, ok := e.Get("A")
		assert.False(t, ok)
		assert.NotContains(t, store.data, "A")
	})

	t.Run("UnknownMemberIsNoop", func(t *testing.T) {
		e, store, _ := newEngine(t, nil)

		rec, err := e.Unassign(ctx, "nobody", "LT2", domain.NewRoleSet())
		require.NoError(t, err)
		assert.Nil(t, rec)
		assert.Zero(t, store.saveCount())
	})

	t.Run("RejectsRevokeThatDidNotHappen", func(t *testing.T) {
		e, _, _ := newEngine(t, repository.Records{"A": {MemberID: "A", Tier: "LT2"}})

		_, err := e.Unassign(ctx, "A", "LT2", domain.NewRoleSet("LT2"))
		require.ErrorIs(t, err, domain.ErrRoleRevokeFailed)
		rec, ok := e.Get("A")
		require.True(t, ok)
		assert.Equal(t, "LT2", rec.Tier)
	})

	t.Run("RejectsUnknownRole", func(t *testing.T) {
		e, _, _ := newEngine(t, nil)

		_, err := e.Unassign(ctx, "A", "HT0", domain.NewRoleSet())
		require.ErrorIs(t, err, domain.ErrRoleNotRecognized)
	})
}

func TestReconcileAll_Convergence(t *testing.T) {
	e, store, _ := newEngine(t, repository.Records{
		"same":    {MemberID: "same", Tier: "HT4"},
		"demoted": {MemberID: "demoted", Tier: "HT1"},
		"gone":    {MemberID: "gone", Tier: "LT5"},
		"absent":  {MemberID: "absent", Tier: "LT3"},
	})

	roster := []domain.MemberSnapshot{
		snap("same", "HT4"),
		snap("demoted", "LT2", "LT4"),
		snap("gone", "Member"),
		snap("new", "HT5", "LT1"),
		snap("bystander", "Member"),
	}

	changed, err := e.ReconcileAll(context.Background(), roster)
	require.NoError(t, err)
	assert.Equal(t, 3, changed)
	assert.Equal(t, 1, store.saveCount(), "a pass persists once")

	for _, m := range roster {
		want, hasTier := scenarioLadder.Highest(m.Roles)
		rec, ok := e.Get(m.MemberID)
		require.Equal(t, hasTier, ok, m.MemberID)
		if hasTier {
			assert.Equal(t, want, rec.Tier, m.MemberID)
		}
	}

	absent, ok := e.Get("absent")
	require.True(t, ok, "members missing from the snapshot are untouched")
	assert.Equal(t, "LT3", absent.Tier)

	again, err := e.ReconcileAll(context.Background(), roster)
	require.NoError(t, err)
	assert.Zero(t, again)
	assert.Equal(t, 1, store.saveCount())
}

func TestPersistFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	e, store, _ := newEngine(t, repository.Records{"A": {MemberID: "A", Tier: "LT2"}})
	store.failErr = errors.New("disk full")

	_, err := e.Assign(ctx, AssignInput{MemberID: "B", Role: "HT1", Roles: domain.NewRoleSet("HT1")})
	require.Error(t, err)
	_, ok := e.Get("B")
	assert.False(t, ok)

	_, err = e.Unassign(ctx, "A", "LT2", domain.NewRoleSet())
	require.Error(t, err)
	rec, ok := e.Get("A")
	require.True(t, ok)
	assert.Equal(t, "LT2", rec.Tier)

	_, err = e.ReconcileAll(ctx, []domain.MemberSnapshot{snap("A", "HT1"), snap("C", "LT1")})
	require.Error(t, err)
	rec, _ = e.Get("A")
	assert.Equal(t, "LT2", rec.Tier)
	_, ok = e.Get("C")
	assert.False(t, ok)
}

func TestAll_SortedHighestFirst(t *testing.T) {
	e, _, _ := newEngine(t, repository.Records{
		"a": {MemberID: "a", DisplayName: "a", Tier: "LT3"},
		"b": {MemberID: "b", DisplayName: "b", Tier: "HT2"},
		"c": {MemberID: "c", DisplayName: "c", Tier: "LT5"},
	})

	all := e.All()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"HT2", "LT3", "LT5"}, []string{all[0].Tier, all[1].Tier, all[2].Tier})
}

func TestConcurrentReconcileIsSerialized(t *testing.T) {
	e, _, _ := newEngine(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			roles := []string{"LT3"}
			if i%2 == 0 {
				roles = append(roles, "HT5")
			}
			_, _, err := e.ReconcileOne(ctx, snap("X", roles...))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// whatever ran last, the next pass from the authoritative roles converges
	rec, _, err := e.ReconcileOne(ctx, snap("X", "LT3", "HT5"))
	require.NoError(t, err)
	assert.Equal(t, "HT5", rec.Tier)
}

func TestEngineWithJSONStoreSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tier_data.json")

	e, err := NewEngine(ctx, scenarioLadder, repository.NewJSONStore(path, zerolog.Nop()), zerolog.Nop())
	require.NoError(t, err)
	_, err = e.Assign(ctx, AssignInput{MemberID: "A", Role: "HT2", Roles: domain.NewRoleSet("HT2"), GameUsername: "alpha", Region: "EU"})
	require.NoError(t, err)

	restarted, err := NewEngine(ctx, scenarioLadder, repository.NewJSONStore(path, zerolog.Nop()), zerolog.Nop())
	require.NoError(t, err)
	rec, ok := restarted.Get("A")
	require.True(t, ok)
	assert.Equal(t, "HT2", rec.Tier)
	assert.Equal(t, "alpha", rec.GameUsername)
	assert.Equal(t, "EU", rec.Region)
}
