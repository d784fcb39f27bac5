// Package wsapi implements the ws_api loader kind (spec.md §4.3): a
// persistent WebSocket connection accumulating messages into an
// ingester's epoch buffer between ticks, reduced (or passed through
// raw) on Acquire.
package wsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/interval"
	"github.com/chomp-dev/chomp/pkg/loader"
	"github.com/chomp-dev/chomp/pkg/observability"
	"github.com/chomp-dev/chomp/pkg/selector"
	"github.com/chomp-dev/chomp/pkg/transformer"
)

const (
	initialBackoff = 500 * time.Millisecond
	backoffMult    = 2.0
)

// subscriber is one ingester field fed by a connection's message
// stream.
type subscriber struct {
	ing   *ingester.Ingester
	field *ingester.ResourceField
}

// conn owns one WebSocket connection to a distinct target, shared by
// every subscriber whose field (or ingester) targets it.
type conn struct {
	target  string
	headers map[string]string
	params  *ingester.ParamsValue
	maxWait time.Duration

	mu          sync.Mutex
	subscribers []subscriber

	cancel context.CancelFunc
}

// Loader is the ws_api implementation of loader.Loader. Connections
// are established lazily on first Acquire for a target and then run
// for the lifetime of the process, reconnecting with exponential
// backoff on drop (grounded on C360Studio-semstreams's
// websocket_input.go client-mode reconnect loop).
type Loader struct {
	log    logrus.FieldLogger
	engine *transformer.Engine
	dialer *websocket.Dialer

	mu    sync.Mutex
	conns map[string]*conn
}

// New builds a ws_api Loader. engine runs each field's handler/reducer
// expressions (spec.md §3).
func New(log logrus.FieldLogger, engine *transformer.Engine) *Loader {
	return &Loader{
		log:    log.WithField("component", "loader_wsapi"),
		engine: engine,
		dialer: &websocket.Dialer{HandshakeTimeout: 45 * time.Second},
		conns:  make(map[string]*conn),
	}
}

var _ loader.Loader = (*Loader)(nil)

// Acquire ensures every target this ingester's fields reference has a
// live (or reconnecting) connection, flips the epoch buffer, and
// reduces each field's accumulated list through its reducer
// expression, or passes the raw list through for Phase 2 aggregation
// builtins (spec.md §3).
func (l *Loader) Acquire(ctx context.Context, ing *ingester.Ingester) (interface{}, *loader.Vitals, error) {
	if ing.Epoch == nil {
		return nil, nil, fmt.Errorf("ingester %q has no epoch buffer", ing.Name)
	}

	period, err := interval.Duration(ing.Interval)
	if err != nil {
		return nil, nil, fmt.Errorf("ingester %q: %w", ing.Name, err)
	}
	l.ensureSubscriptions(ing, period)

	epoch := ing.Epoch.Flip()

	raw := make(map[string]interface{}, len(ing.Fields))
	for _, field := range ing.Fields {
		list := epoch[field.Name]

		reducer := field.Reducer
		if reducer == "" {
			reducer = ing.Reducer
		}
		if reducer == "" {
			raw[field.Name] = list
			continue
		}

		reduced, err := l.engine.EvalExpr(ctx, reducer, list)
		if err != nil {
			return nil, nil, fmt.Errorf("reducer for %q.%q: %w", ing.Name, field.Name, err)
		}
		raw[field.Name] = reduced
	}

	vitals := &loader.Vitals{FieldCount: len(ing.Fields)}
	return raw, vitals, nil
}

// Close stops every connection this loader opened.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, c := range l.conns {
		c.cancel()
	}
	l.conns = make(map[string]*conn)
	return nil
}

// ensureSubscriptions registers ing's fields against the connection
// for their resolved target, starting that connection's read loop the
// first time it is referenced.
func (l *Loader) ensureSubscriptions(ing *ingester.Ingester, period time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, field := range ing.Fields {
		target := field.Target
		if target == "" {
			target = ing.Target
		}

		c, ok := l.conns[target]
		if !ok {
			params := field.Params
			if params == nil {
				params = ing.Params
			}
			c = &conn{target: target, headers: ing.Headers, params: params, maxWait: period}
			l.conns[target] = c

			ctx, cancel := context.WithCancel(context.Background())
			c.cancel = cancel
			go l.runConn(ctx, c)
		} else if period < c.maxWait {
			c.maxWait = period
		}

		c.addSubscriber(subscriber{ing: ing, field: field})
	}
}

func (c *conn) addSubscriber(s subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.subscribers {
		if existing.ing == s.ing && existing.field == s.field {
			return
		}
	}
	c.subscribers = append(c.subscribers, s)
}

func (c *conn) snapshotSubscribers() []subscriber {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]subscriber, len(c.subscribers))
	copy(out, c.subscribers)
	return out
}

// runConn dials c.target and reads messages until ctx is cancelled,
// reconnecting with exponential backoff capped at c.maxWait.
func (l *Loader) runConn(ctx context.Context, c *conn) {
	log := l.log.WithField("target", c.target)
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		ws, _, err := l.dialer.DialContext(ctx, c.target, headerToHTTPHeader(c.headers))
		if err != nil {
			log.WithError(err).Debug("Dial failed, backing off")
			observability.RecordLoaderError("ws_api", "dial")
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, c.maxWait)
			continue
		}

		backoff = initialBackoff

		if c.params != nil {
			payload, err := json.Marshal(c.params)
			if err != nil {
				log.WithError(err).Warn("Failed to marshal subscription params")
			} else if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.WithError(err).Warn("Failed to send subscription params")
			}
		}

		l.readLoop(ctx, ws, c)

		if err := ws.Close(); err != nil {
			log.WithError(err).Debug("Failed to close websocket connection")
		}

		if ctx.Err() != nil {
			return
		}
		if !sleepOrDone(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, c.maxWait)
	}
}

// readLoop drains messages from ws until it errs or ctx is done,
// dispatching each one to every subscriber.
func (l *Loader) readLoop(ctx context.Context, ws *websocket.Conn, c *conn) {
	for {
		if ctx.Err() != nil {
			return
		}

		_, data, err := ws.ReadMessage()
		if err != nil {
			l.log.WithError(err).WithField("target", c.target).Debug("Read failed, reconnecting")
			return
		}

		l.dispatch(ctx, data, c)
	}
}

func (l *Loader) dispatch(ctx context.Context, data []byte, c *conn) {
	var msg interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		msg = string(data)
	}

	for _, sub := range c.snapshotSubscribers() {
		handler := sub.field.Handler
		if handler == "" {
			handler = sub.ing.Handler
		}

		normalized := msg
		if handler != "" {
			v, err := l.engine.EvalExpr(ctx, handler, msg)
			if err != nil {
				observability.RecordFieldError(sub.ing.Name, sub.field.Name, "handler")
				continue
			}
			normalized = v
		}

		sel := sub.field.Selector
		if sel == "" {
			sel = sub.field.Name
		}

		v, err := selector.Select(sel, normalized)
		if err != nil {
			observability.RecordFieldError(sub.ing.Name, sub.field.Name, "select")
			continue
		}

		sub.ing.Epoch.Append(sub.field.Name, v)
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(cur, limit time.Duration) time.Duration {
	next := time.Duration(float64(cur) * backoffMult)
	if next > limit {
		return limit
	}
	return next
}

func headerToHTTPHeader(h map[string]string) map[string][]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string][]string, len(h))
	for k, v := range h {
		out[k] = []string{v}
	}
	return out
}
