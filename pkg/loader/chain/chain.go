// Package chain implements the evm_caller, svm_caller and sui_caller
// loader kinds (spec.md §4.3): one implementation parameterized by an
// Adapter, since all three only differ in how their RPC pool decodes
// a method call into a tuple — that's an external collaborator per
// spec.md §1, so this package ships the pool and a reference HTTP
// JSON-RPC adapter for tests, not a real chain SDK.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/loader"
	"github.com/chomp-dev/chomp/pkg/loader/retry"
)

// ErrInvalidTarget is returned when an ingester's target isn't
// "chainId:address".
var ErrInvalidTarget = errors.New("chain: target must be \"chainId:address\"")

// Adapter performs one method call against a single RPC endpoint and
// decodes the reply into a positional tuple. Implementations wrap a
// real chain SDK; Acquire never sees the wire format.
type Adapter interface {
	Call(ctx context.Context, endpoint, chainID, address, method string) ([]interface{}, error)
}

// Loader is the shared evm_caller/svm_caller/sui_caller implementation.
// Kind-specific behavior is entirely in which Adapter is wired in by
// the caller.
type Loader struct {
	log     logrus.FieldLogger
	adapter Adapter
	pool    *retry.Pool
}

// New builds a chain Loader. endpoints is this chain's RPC pool;
// cooldown/maxBackoff tune how quickly a failing endpoint is retried
// (spec.md §2: "retries against a different endpoint up to the
// per-ingester retry budget" — the budget itself lives in
// pkg/scheduler, this pool only picks which endpoint gets the next
// attempt).
func New(log logrus.FieldLogger, adapter Adapter, endpoints []string, cooldown, maxBackoff time.Duration) *Loader {
	return &Loader{
		log:     log.WithField("component", "loader_chain"),
		adapter: adapter,
		pool:    retry.New(endpoints, cooldown, maxBackoff),
	}
}

var _ loader.Loader = (*Loader)(nil)

// Acquire calls ing.Selector (the method signature) against
// ing.Target's chainId:address, against the next non-cooling-down
// endpoint in the pool. The decoded tuple is returned as raw; field
// selectors of the form "{self}[i]" (spec.md §4.3) pick positional
// elements from it in Phase 2, same as any other transformer
// expression.
func (l *Loader) Acquire(ctx context.Context, ing *ingester.Ingester) (interface{}, *loader.Vitals, error) {
	chainID, address, err := splitTarget(ing.Target)
	if err != nil {
		return nil, nil, fmt.Errorf("ingester %q: %w", ing.Name, err)
	}

	started := time.Now()
	var tuple []interface{}

	err = l.pool.Do(ctx, func(ctx context.Context, endpoint string) error {
		t, err := l.adapter.Call(ctx, endpoint, chainID, address, ing.Selector)
		if err != nil {
			return err
		}
		tuple = t
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("chain call %q: %w", ing.Selector, err)
	}

	vitals := &loader.Vitals{
		Latency:    time.Since(started),
		Status:     "ok",
		FieldCount: len(ing.Fields),
	}
	return tuple, vitals, nil
}

// Close is a no-op; the retry.Pool holds no connections of its own.
func (l *Loader) Close() error { return nil }

func splitTarget(target string) (chainID, address string, err error) {
	idx := strings.IndexByte(target, ':')
	if idx < 0 || idx == 0 || idx == len(target)-1 {
		return "", "", fmt.Errorf("%w: got %q", ErrInvalidTarget, target)
	}
	return target[:idx], target[idx+1:], nil
}
