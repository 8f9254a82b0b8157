package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"tierbot/internal/domain"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingNotifier struct {
	calls atomic.Int32
	err   error
}

func (c *countingNotifier) Notify(ctx context.Context, change domain.TierChange) error {
	c.calls.Add(1)
	return c.err
}

func fieldMap(t *testing.T, change domain.TierChange) map[string]string {
	t.Helper()
	out := map[string]string{}
	for _, f := range Embed(change).Fields {
		out[f.Name] = f.Value
	}
	return out
}

func TestNewChange(t *testing.T) {
	rec := domain.TierRecord{MemberID: "42", DisplayName: "nova", GameUsername: "NovaPvP", Region: "NA", Tier: "HT2"}

	assigned, err := NewChange(domain.ChangeAssigned, "7", rec, "LT3")
	require.NoError(t, err)
	assert.Len(t, assigned.ID, 21)
	assert.Equal(t, "HT2", assigned.CurrentTier)
	assert.Equal(t, "LT3", assigned.Tier)

	removed, err := NewChange(domain.ChangeRemoved, "7", rec, "HT2")
	require.NoError(t, err)
	assert.Empty(t, removed.CurrentTier)
	assert.NotEqual(t, assigned.ID, removed.ID)
}

func TestEmbed(t *testing.T) {
	at := time.Date(2025, 3, 4, 18, 30, 15, 0, time.UTC)

	t.Run("Assigned", func(t *testing.T) {
		change := domain.TierChange{ID: "evt", Kind: domain.ChangeAssigned, Actor: "1", MemberID: "2", DisplayName: "nova",
			Tier: "HT3", CurrentTier: "HT3", Region: "EU", GameUsername: "NovaPvP", At: at}

		embed := Embed(change)
		assert.Equal(t, "Tier Assigned", embed.Title)
		assert.Equal(t, ColorAssigned, embed.Color)
		assert.Equal(t, "evt", embed.Footer.Text)

		fields := fieldMap(t, change)
		assert.Equal(t, "NovaPvP", fields["Username"])
		assert.Equal(t, "nova (<@2>)", fields["Discord"])
		assert.Equal(t, "HT3", fields["Tier"])
		assert.Equal(t, "EU", fields["Region"])
		assert.Equal(t, "<@1>", fields["By"])
		assert.NotContains(t, fields, "Current Tier")
	})

	t.Run("AssignedBelowExisting", func(t *testing.T) {
		fields := fieldMap(t, domain.TierChange{Kind: domain.ChangeAssigned, Tier: "LT5", CurrentTier: "HT1", At: at})
		assert.Equal(t, "HT1", fields["Current Tier"])
	})

	t.Run("Demoted", func(t *testing.T) {
		change := domain.TierChange{Kind: domain.ChangeDemoted, Tier: "HT3", CurrentTier: "LT1", At: at}
		embed := Embed(change)
		assert.Equal(t, "Tier Removed", embed.Title)
		assert.Equal(t, ColorDemoted, embed.Color)
		assert.Equal(t, "LT1", fieldMap(t, change)["Current Tier"])
	})

	t.Run("Removed", func(t *testing.T) {
		change := domain.TierChange{Kind: domain.ChangeRemoved, Tier: "LT2", At: at}
		embed := Embed(change)
		assert.Equal(t, ColorRemoved, embed.Color)
		fields := fieldMap(t, change)
		assert.NotContains(t, fields, "Region")
		assert.Equal(t, "2025-03-04 18:30:15", fields["Date"])
	})
}

func TestMulti(t *testing.T) {
	ok := &countingNotifier{}
	failing := &countingNotifier{err: errors.New("channel gone")}
	multi := NewMulti(zerolog.Nop(), ok, failing, NewLog(zerolog.Nop()))

	err := multi.Notify(context.Background(), domain.TierChange{ID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel gone")
	assert.EqualValues(t, 1, ok.calls.Load())
	assert.EqualValues(t, 1, failing.calls.Load())

	multi = NewMulti(zerolog.Nop())
	multi.Add(ok)
	require.NoError(t, multi.Notify(context.Background(), domain.TierChange{}))
	assert.EqualValues(t, 2, ok.calls.Load())
}
