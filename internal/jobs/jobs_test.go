package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"clinic-portal-server/internal/models"
	"clinic-portal-server/internal/store"
	"clinic-portal-server/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurgeRefreshTokens(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens := memory.NewRefreshTokenStore()

	for _, tok := range []models.RefreshToken{
		{UserID: "u1", Token: "live", ExpiresAt: now.Add(time.Hour)},
		{UserID: "u1", Token: "expired", ExpiresAt: now.Add(-time.Hour)},
		{UserID: "u2", Token: "revoked", ExpiresAt: now.Add(time.Hour), IsRevoked: true},
	} {
		tok := tok
		require.NoError(t, tokens.Create(ctx, &tok))
	}

	n, err := PurgeRefreshTokens(ctx, tokens, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = tokens.FindUsable(ctx, "live", now)
	assert.NoError(t, err)
	_, err = tokens.FindUsable(ctx, "expired", now)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

type failingTokens struct {
	store.RefreshTokenStore
}

func (failingTokens) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, errors.New("connection reset")
}

func TestPurgeRefreshTokens_Error(t *testing.T) {
	_, err := PurgeRefreshTokens(context.Background(), failingTokens{}, time.Now())
	assert.ErrorContains(t, err, "delete expired refresh tokens")
}

func TestNewScheduler(t *testing.T) {
	_, err := NewScheduler("not a schedule", memory.NewRefreshTokenStore())
	assert.Error(t, err)

	s, err := NewScheduler("5 0 * * *", memory.NewRefreshTokenStore())
	require.NoError(t, err)
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.Len(t, s.cron.Entries(), 1)
}
