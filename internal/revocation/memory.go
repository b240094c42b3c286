package revocation

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryDenylist keeps revoked ids in process. Revocations are lost on
// restart and not shared between replicas.
type MemoryDenylist struct {
	cache *cache.Cache
	now   func() time.Time
}

var _ Denylist = (*MemoryDenylist)(nil)

// NewMemoryDenylist builds an in-process denylist that sweeps expired
// entries every cleanupInterval.
func NewMemoryDenylist(cleanupInterval time.Duration) *MemoryDenylist {
	return &MemoryDenylist{
		cache: cache.New(cache.NoExpiration, cleanupInterval),
		now:   time.Now,
	}
}

func (d *MemoryDenylist) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(d.now())
	if ttl <= 0 {
		return nil
	}
	d.cache.Set(jti, struct{}{}, ttl)
	return nil
}

func (d *MemoryDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	_, found := d.cache.Get(jti)
	return found, nil
}
