// Package lease provides a Redis-backed mutual-exclusion lease so only
// one orchestrator instance processes a given monitored system's
// pipeline (scoring, windowing, meta-analysis, alert evaluation) at a
// time (§5 Concurrency & Resource Model).
package lease

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codeready-toolchain/sentinel/pkg/errs"
)

// ErrNotHeld is returned by Release/Renew when the caller no longer
// holds the lease (it expired or another holder stole it).
var ErrNotHeld = errors.New("lease: not held")

const keyPrefix = "sentinel:lease:"

// Manager issues per-system leases backed by Redis SET NX PX.
type Manager struct {
	client *redis.Client
}

// NewManager wraps an existing Redis client.
func NewManager(client *redis.Client) *Manager {
	return &Manager{client: client}
}

// Lease is a held lock on one system's pipeline, identified by token so
// Release only succeeds for the holder that acquired it.
type Lease struct {
	key   string
	token string
	mgr   *Manager
}

// Acquire attempts to take the lease for systemID, holding it for ttl.
// ok is false if another holder currently owns it. A Manager with no
// Redis client (single-process deployments) always succeeds with a
// no-op lease.
func (m *Manager) Acquire(ctx context.Context, systemID string, ttl time.Duration) (*Lease, bool, error) {
	if m.client == nil {
		return &Lease{mgr: m}, true, nil
	}
	token := newToken()
	key := keyPrefix + systemID
	ok, err := m.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, errs.Wrap(errs.ErrTransientIO, "acquire lease", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lease{key: key, token: token, mgr: m}, true, nil
}

// releaseScript only deletes the key if it still holds this token,
// preventing a slow holder from deleting a lease someone else already
// reacquired after expiry.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// Release gives up the lease if still held by this token.
func (l *Lease) Release(ctx context.Context) error {
	if l.mgr.client == nil {
		return nil
	}
	n, err := l.mgr.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Int64()
	if err != nil {
		return errs.Wrap(errs.ErrTransientIO, "release lease", err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

const renewScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end`

// Renew extends the lease's TTL if still held by this token. Callers
// running a long-running retention sweep should renew periodically
// rather than taking one huge initial TTL.
func (l *Lease) Renew(ctx context.Context, ttl time.Duration) error {
	if l.mgr.client == nil {
		return nil
	}
	n, err := l.mgr.client.Eval(ctx, renewScript, []string{l.key}, l.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return errs.Wrap(errs.ErrTransientIO, "renew lease", err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func newToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 32)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0xf]
	}
	return string(out)
}
