// Package nonces issues and consumes single-use anti-replay tokens.
package nonces

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// tokenBytes gives 256 bits of entropy per token.
const tokenBytes = 32

// DefaultTTL is how long an issued nonce stays consumable.
const DefaultTTL = 10 * time.Minute

// Store persists nonces. Consume must be a single atomic store primitive: for
// concurrent calls with the same token exactly one may return nil, the others
// fail with ErrNotFound or ErrAlreadyUsed. Expired tokens fail with ErrExpired
// and are deleted.
type Store interface {
	Put(ctx context.Context, n Nonce) error
	Consume(ctx context.Context, token string, now time.Time) error
}

// Guard is the NonceGuard: it issues tokens and consumes them exactly once.
type Guard struct {
	store      Store
	ttl        time.Duration
	randReader io.Reader
	nowFunc    func() time.Time
	logger     *slog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.nowFunc = now }
}

// WithRandReader overrides crypto/rand as the token source.
func WithRandReader(r io.Reader) Option {
	return func(g *Guard) { g.randReader = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// NewGuard returns a Guard backed by store.
func NewGuard(store Store, opts ...Option) *Guard {
	g := &Guard{
		store:      store,
		ttl:        DefaultTTL,
		randReader: rand.Reader,
		nowFunc:    time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Issue generates, persists and returns a new token.
func (g *Guard) Issue(ctx context.Context, client ClientContext) (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := io.ReadFull(g.randReader, b); err != nil {
		return "", fmt.Errorf("read nonce entropy: %w", err)
	}
	token := hex.EncodeToString(b)

	now := g.nowFunc().UTC()
	n := Nonce{
		Token:     token,
		IP:        client.IP,
		UserAgent: client.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(g.ttl).Unix(),
	}
	if err := g.store.Put(ctx, n); err != nil {
		return "", fmt.Errorf("store nonce: %w", err)
	}

	g.logger.InfoContext(ctx, "nonce issued", "nonce", Redact(token), "ip", client.IP)
	return token, nil
}

// Consume validates and deletes token. The returned error satisfies
// errors.Is(err, ErrNonce) for every rejection.
func (g *Guard) Consume(ctx context.Context, token string) error {
	if token == "" {
		return ErrNotFound
	}
	if err := g.store.Consume(ctx, token, g.nowFunc()); err != nil {
		return err
	}
	g.logger.InfoContext(ctx, "nonce consumed", "nonce", Redact(token))
	return nil
}

// Redact shortens a token for logs.
func Redact(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "…"
}
