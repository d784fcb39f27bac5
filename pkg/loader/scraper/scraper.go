// Package scraper implements the scraper loader kind (spec.md §4.3):
// a GET (or, when the ingester's params declare a dynamic strategy, a
// headless-Chrome render via go-rod). Acquire returns the raw HTML
// bytes unmodified; per-field CSS/XPath selection happens in Phase 1,
// the same shared step every kind goes through (pkg/transformer's
// Engine.Run calling pkg/selector.Select, which dispatches to its
// CSS/XPath subset whenever the raw payload is []byte).
//
// The dynamic-render path follows the usual Rod launch/navigate/
// outerHTML sequence for a headless-Chrome render.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"

	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/loader"
	"github.com/chomp-dev/chomp/pkg/observability"
)

const renderTimeout = 30 * time.Second

// Loader is the scraper implementation of loader.Loader. A headless
// Chrome instance is launched lazily on the first dynamic-strategy
// Acquire and kept alive across ticks; static-strategy ingesters never
// touch it.
type Loader struct {
	log    logrus.FieldLogger
	client *http.Client

	mu      sync.Mutex
	browser *rod.Browser
	launch  *launcher.Launcher
}

// New builds a scraper Loader. timeout bounds static GETs.
func New(log logrus.FieldLogger, timeout time.Duration) *Loader {
	return &Loader{
		log:    log.WithField("component", "loader_scraper"),
		client: &http.Client{Timeout: timeout},
	}
}

var _ loader.Loader = (*Loader)(nil)

// Acquire fetches ing.Target (statically or, if declared, via a
// rendered headless-Chrome page) and returns the raw HTML bytes.
func (l *Loader) Acquire(ctx context.Context, ing *ingester.Ingester) (interface{}, *loader.Vitals, error) {
	started := time.Now()

	var body []byte
	var err error
	if isDynamic(ing.Params) {
		body, err = l.renderDynamic(ctx, ing.Target)
	} else {
		body, err = l.fetchStatic(ctx, ing.Target, ing.Headers)
	}
	if err != nil {
		observability.RecordLoaderError("scraper", "fetch")
		return nil, nil, fmt.Errorf("scraper %q: %w", ing.Name, err)
	}

	vitals := &loader.Vitals{
		Latency:    time.Since(started),
		Bytes:      len(body),
		Status:     "ok",
		FieldCount: len(ing.Fields),
	}
	return body, vitals, nil
}

// Close shuts down the headless Chrome instance, if one was launched.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.browser != nil {
		if err := l.browser.Close(); err != nil {
			l.log.WithError(err).Warn("Failed to close headless browser")
		}
		l.browser = nil
	}
	if l.launch != nil {
		l.launch.Cleanup()
		l.launch = nil
	}
	return nil
}

func isDynamic(params *ingester.ParamsValue) bool {
	if params == nil || params.Map == nil {
		return false
	}
	return strings.EqualFold(params.Map["strategy"], "dynamic")
}

func (l *Loader) fetchStatic(ctx context.Context, target string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", target, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			l.log.WithError(cerr).Debug("Failed to close response body")
		}
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("get %s: status %s", target, resp.Status)
	}

	return io.ReadAll(resp.Body)
}

func (l *Loader) renderDynamic(ctx context.Context, target string) ([]byte, error) {
	b, err := l.ensureBrowser()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			l.log.WithError(cerr).Debug("Failed to close tab")
		}
	}()

	navCtx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(target); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", target, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		l.log.WithError(err).WithField("target", target).Warn("Wait-load timeout, reading DOM as-is")
	}

	res, err := page.Context(navCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("read dom: %w", err)
	}
	return []byte(res.Value.Str()), nil
}

func (l *Loader) ensureBrowser() (*rod.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.browser != nil {
		return l.browser, nil
	}

	lnch := launcher.New().Headless(true).Set("disable-blink-features", "AutomationControlled")
	u, err := lnch.Launch()
	if err != nil {
		return nil, err
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		lnch.Cleanup()
		return nil, err
	}

	l.launch = lnch
	l.browser = b
	return b, nil
}
