// Package evmlogger implements the evm_logger loader kind (spec.md
// §4.3): polled log-range fetches by default, or a perpetual
// background subscription when the process is started with
// perpetual indexing enabled (spec.md §4.2, §6 CLI flag).
package evmlogger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/sha3"

	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/loader"
)

// ErrInvalidTarget is returned when an ingester's target isn't
// "chainId:address".
var ErrInvalidTarget = errors.New("evmlogger: target must be \"chainId:address\"")

const logsList = "logs"

// Log is one raw event log as returned by a LogAdapter, before
// positional decoding.
type Log struct {
	Topics []string
	Data   []byte
}

// LogAdapter is the external collaborator fetching/streaming logs
// from a chain node (spec.md §1); a real deployment wires in a chain
// SDK's client here.
type LogAdapter interface {
	HeadBlock(ctx context.Context, chainID string) (uint64, error)
	FetchLogs(ctx context.Context, chainID, address, topic string, fromBlock, toBlock uint64) ([]Log, error)
	Subscribe(ctx context.Context, chainID, address, topic string, push func(Log)) (unsubscribe func(), err error)
}

// Loader is the evm_logger implementation of loader.Loader. In polled
// mode each Acquire call fetches the next block range itself; in
// perpetual mode a background subscription feeds a per-ingester
// two-slot buffer (pkg/ingester/epoch.go) that Acquire only flips —
// the same split ws_api uses between its read loop and its Acquire.
//
// Acquire returns the list of decoded tuples observed this tick as a
// single raw payload, rather than one row per log: the rest of the
// pipeline (pkg/scheduler/job.go, pkg/store) is built around one row
// per tick per ingester, and every column is a scalar FieldType, so a
// tick with several matching logs never becomes several rows or a
// list-valued column. A field selector addressing a fixed index
// (".0", "[0]") only ever sees one log's tuple; a series-typed
// ingester whose fields should reflect every log this tick instead
// uses a wildcard selector step ("[*][0]") to project a position
// across every log into a list, reduced back to one scalar by an
// aggregation builtin (count/first/last/sum/mean/median) before Phase
// 3 coercion — the same list-then-reduce shape ws_api's reducer
// applies to its epoch buffer.
type Loader struct {
	log       logrus.FieldLogger
	adapter   LogAdapter
	chunkSize uint64
	perpetual bool

	mu         sync.Mutex
	lastBlock  map[string]uint64
	buffers    map[string]*ingester.EpochBuffer
	subscribed map[string]func()
}

// New builds an evm_logger Loader. chunkSize bounds the block range
// fetched per tick in polled mode; perpetual switches every ingester
// of this kind to the background-subscription mode.
func New(log logrus.FieldLogger, adapter LogAdapter, chunkSize uint64, perpetual bool) *Loader {
	return &Loader{
		log:        log.WithField("component", "loader_evmlogger"),
		adapter:    adapter,
		chunkSize:  chunkSize,
		perpetual:  perpetual,
		lastBlock:  make(map[string]uint64),
		buffers:    make(map[string]*ingester.EpochBuffer),
		subscribed: make(map[string]func()),
	}
}

var _ loader.Loader = (*Loader)(nil)

// Acquire returns the decoded tuples this ingester observed in the
// current tick window.
func (l *Loader) Acquire(ctx context.Context, ing *ingester.Ingester) (interface{}, *loader.Vitals, error) {
	chainID, address, err := splitTarget(ing.Target)
	if err != nil {
		return nil, nil, fmt.Errorf("ingester %q: %w", ing.Name, err)
	}
	topic := eventTopic(ing.Selector)

	var tuples []interface{}
	if l.perpetual {
		tuples, err = l.acquirePerpetual(ctx, ing, chainID, address, topic)
	} else {
		tuples, err = l.acquirePolled(ctx, ing, chainID, address, topic)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("evm_logger %q: %w", ing.Name, err)
	}

	vitals := &loader.Vitals{Status: "ok", FieldCount: len(ing.Fields)}
	return tuples, vitals, nil
}

func (l *Loader) acquirePolled(ctx context.Context, ing *ingester.Ingester, chainID, address, topic string) ([]interface{}, error) {
	from := l.nextFromBlock(ing.Name)

	head, err := l.adapter.HeadBlock(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("head block: %w", err)
	}
	if head < from {
		return nil, nil
	}

	to := head
	if to-from+1 > l.chunkSize {
		to = from + l.chunkSize - 1
	}

	logs, err := l.adapter.FetchLogs(ctx, chainID, address, topic, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch logs [%d,%d]: %w", from, to, err)
	}

	l.setLastBlock(ing.Name, to)

	tuples := make([]interface{}, 0, len(logs))
	for _, lg := range logs {
		tuples = append(tuples, decodeLog(lg))
	}
	return tuples, nil
}

func (l *Loader) acquirePerpetual(ctx context.Context, ing *ingester.Ingester, chainID, address, topic string) ([]interface{}, error) {
	buf := l.bufferFor(ing.Name)
	l.ensureSubscription(ctx, ing.Name, chainID, address, topic, buf)

	frozen := buf.Flip()
	return frozen[logsList], nil
}

func (l *Loader) nextFromBlock(name string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastBlock[name] + 1
}

func (l *Loader) setLastBlock(name string, block uint64) {
	l.mu.Lock()
	l.lastBlock[name] = block
	l.mu.Unlock()
}

func (l *Loader) bufferFor(name string) *ingester.EpochBuffer {
	l.mu.Lock()
	defer l.mu.Unlock()
	buf, ok := l.buffers[name]
	if !ok {
		buf = ingester.NewEpochBuffer()
		l.buffers[name] = buf
	}
	return buf
}

func (l *Loader) ensureSubscription(ctx context.Context, name, chainID, address, topic string, buf *ingester.EpochBuffer) {
	l.mu.Lock()
	_, ok := l.subscribed[name]
	l.mu.Unlock()
	if ok {
		return
	}

	unsubscribe, err := l.adapter.Subscribe(ctx, chainID, address, topic, func(lg Log) {
		buf.Append(logsList, decodeLog(lg))
	})
	if err != nil {
		l.log.WithError(err).WithField("ingester", name).Error("Perpetual subscription failed")
		return
	}

	l.mu.Lock()
	l.subscribed[name] = unsubscribe
	l.mu.Unlock()
}

// Close tears down every perpetual subscription this loader started.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, unsubscribe := range l.subscribed {
		unsubscribe()
	}
	l.subscribed = make(map[string]func())
	return nil
}

// decodeLog turns a raw log's topics (minus topic0, the event
// signature) and 32-byte-word data into a flat positional tuple —
// indexed parameters first, then each data word, as hex strings; a
// real deployment would decode each word per the event's ABI type.
func decodeLog(lg Log) []interface{} {
	tuple := make([]interface{}, 0, len(lg.Topics)+len(lg.Data)/32)
	for _, t := range lg.Topics[min(1, len(lg.Topics)):] {
		tuple = append(tuple, t)
	}
	for i := 0; i+32 <= len(lg.Data); i += 32 {
		tuple = append(tuple, fmt.Sprintf("%x", lg.Data[i:i+32]))
	}
	return tuple
}

// eventTopic computes topic0 for signature: the full 32-byte Keccak256
// digest of its canonical form, hex-encoded. Unlike a 4-byte function
// selector, an event topic is not truncated under the ABI spec.
func eventTopic(signature string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(strings.TrimSpace(signature)))
	return fmt.Sprintf("0x%x", h.Sum(nil))
}

func splitTarget(target string) (chainID, address string, err error) {
	idx := strings.IndexByte(target, ':')
	if idx < 0 || idx == 0 || idx == len(target)-1 {
		return "", "", fmt.Errorf("%w: got %q", ErrInvalidTarget, target)
	}
	return target[:idx], target[idx+1:], nil
}
