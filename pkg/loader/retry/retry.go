// Package retry implements the round-robin endpoint pool with
// per-endpoint cooldown shared by every loader that calls out to a
// set of interchangeable remote endpoints (chain RPC nodes,
// geolocation providers) — the same retry-with-cooldown discipline
// pkg/scheduler/job.go applies per tick, but scoped to picking the
// next endpoint to try rather than the next tick attempt (spec.md §2,
// §7).
package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoEndpoints is returned when a Pool has nothing configured.
var ErrNoEndpoints = errors.New("retry: no endpoints configured")

// ErrAllEndpointsCoolingDown is returned when every endpoint in the
// pool is currently in its post-failure cooldown window.
var ErrAllEndpointsCoolingDown = errors.New("retry: all endpoints cooling down")

type endpointState struct {
	addr        string
	coolUntil   time.Time
	failStreak  int
}

// Pool round-robins across a fixed set of endpoints, skipping any
// currently cooling down from a recent failure. Safe for concurrent
// use.
type Pool struct {
	cooldown   time.Duration
	maxBackoff time.Duration

	mu    sync.Mutex
	eps   []*endpointState
	next  int
}

// New builds a Pool over addrs. cooldown is the base per-endpoint
// penalty after a failed call; it doubles per consecutive failure up
// to maxBackoff. Unlike pkg/scheduler/config.go's cooldownWithJitter,
// which waits a constant base plus random jitter, the pool adds no
// jitter — endpoint selection doesn't need to desynchronize across
// cluster members the way tick scheduling does.
func New(addrs []string, cooldown, maxBackoff time.Duration) *Pool {
	eps := make([]*endpointState, 0, len(addrs))
	for _, a := range addrs {
		eps = append(eps, &endpointState{addr: a})
	}
	return &Pool{cooldown: cooldown, maxBackoff: maxBackoff, eps: eps}
}

// Do picks the next non-cooling-down endpoint in rotation and invokes
// fn with it. On error, the endpoint is put into cooldown before the
// error is returned. Do does not retry internally; callers loop Do
// themselves (spec.md §2's retry budget is owned by the caller, same
// split as pkg/scheduler/job.go's runTick/attempt).
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context, endpoint string) error) error {
	ep, err := p.acquire()
	if err != nil {
		return err
	}

	if err := fn(ctx, ep.addr); err != nil {
		p.penalize(ep)
		return fmt.Errorf("endpoint %q: %w", ep.addr, err)
	}

	p.reset(ep)
	return nil
}

func (p *Pool) acquire() (*endpointState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.eps) == 0 {
		return nil, ErrNoEndpoints
	}

	now := time.Now()
	for i := 0; i < len(p.eps); i++ {
		idx := (p.next + i) % len(p.eps)
		ep := p.eps[idx]
		if now.After(ep.coolUntil) {
			p.next = idx + 1
			return ep, nil
		}
	}

	return nil, ErrAllEndpointsCoolingDown
}

func (p *Pool) penalize(ep *endpointState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ep.failStreak++
	delay := p.cooldown << uint(ep.failStreak-1) //nolint:gosec // failStreak is bounded by retry budget, never large enough to overflow
	if delay > p.maxBackoff || delay <= 0 {
		delay = p.maxBackoff
	}
	ep.coolUntil = time.Now().Add(delay)
}

func (p *Pool) reset(ep *endpointState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep.failStreak = 0
	ep.coolUntil = time.Time{}
}

// Len returns the number of endpoints configured.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.eps)
}
