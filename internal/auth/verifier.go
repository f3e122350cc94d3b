package auth

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"time"
)

const (
	// Hex-encoded session tickets from the game client land well under this;
	// anything larger is garbage and is rejected before any remote call.
	maxTicketLength = 4096
)

var (
	// ErrInvalidTicket: the ticket is empty or malformed. No authority call
	// was made; retrying the same ticket will never succeed.
	ErrInvalidTicket = errors.New("invalid session ticket")

	// ErrTicketRejected: the authority examined the ticket and said no.
	ErrTicketRejected = errors.New("session ticket rejected")

	// ErrAuthorityUnavailable: the authority could not be reached or timed
	// out. Distinct from rejection so callers may retry.
	ErrAuthorityUnavailable = errors.New("ticket authority unavailable")
)

// TicketAuthority validates a session ticket with an external identity
// provider and returns the Steam id it belongs to.
type TicketAuthority interface {
	CheckTicket(ctx context.Context, ticket string) (int64, error)
}

// Verifier resolves session tickets to Steam ids, caching positive results
// for a short TTL so ticket replay by the same client does not hammer the
// authority. Failed verifications are never cached, and a cached identity is
// never trusted past its expiry.
type Verifier struct {
	authority TicketAuthority
	ttl       time.Duration

	mu    sync.Mutex
	cache map[[32]byte]cacheEntry

	now func() time.Time
}

type cacheEntry struct {
	steamID   int64
	expiresAt time.Time
}

func NewVerifier(authority TicketAuthority, ttl time.Duration) *Verifier {
	return &Verifier{
		authority: authority,
		ttl:       ttl,
		cache:     make(map[[32]byte]cacheEntry),
		now:       time.Now,
	}
}

// Verify resolves ticket to a Steam id.
//
// Malformed tickets fail with ErrInvalidTicket without contacting the
// authority. On a cache hit within the TTL the cached id is returned with no
// remote call; otherwise the authority is consulted once and a successful
// result is cached.
func (v *Verifier) Verify(ctx context.Context, ticket string) (int64, error) {
	if err := validateTicket(ticket); err != nil {
		return 0, err
	}

	// Cache keys are hashes so raw tickets never sit in process memory.
	key := sha256.Sum256([]byte(ticket))

	if id, ok := v.lookup(key); ok {
		return id, nil
	}

	id, err := v.authority.CheckTicket(ctx, ticket)
	if err != nil {
		return 0, err
	}

	if v.ttl > 0 {
		v.mu.Lock()
		v.cache[key] = cacheEntry{steamID: id, expiresAt: v.now().Add(v.ttl)}
		v.mu.Unlock()
	}
	return id, nil
}

func (v *Verifier) lookup(key [32]byte) (int64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.cache[key]
	if !ok {
		return 0, false
	}
	if !v.now().Before(e.expiresAt) {
		delete(v.cache, key)
		return 0, false
	}
	return e.steamID, true
}

// Sweep drops expired cache entries. Called periodically from the server's GC
// wiring; correctness never depends on it (lookup re-checks expiry).
func (v *Verifier) Sweep() {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	for key, e := range v.cache {
		if !now.Before(e.expiresAt) {
			delete(v.cache, key)
		}
	}
}

// CacheLen returns the number of cached verifications (for testing/monitoring).
func (v *Verifier) CacheLen() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.cache)
}

// validateTicket rejects obviously malformed tickets before any remote call.
// The game client sends hex-encoded session tickets, so anything outside
// graphic ASCII (or absurdly long) can be refused locally.
func validateTicket(ticket string) error {
	if ticket == "" || len(ticket) > maxTicketLength {
		return ErrInvalidTicket
	}
	for i := 0; i < len(ticket); i++ {
		if ticket[i] <= ' ' || ticket[i] > '~' {
			return ErrInvalidTicket
		}
	}
	return nil
}
