// Package revocation tracks access tokens revoked before their expiry,
// keyed by the token's jti claim.
package revocation

import (
	"context"
	"time"
)

// Denylist records revoked token ids until the token would have expired
// anyway.
type Denylist interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
