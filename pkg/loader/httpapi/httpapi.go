// Package httpapi implements the http_api loader kind (spec.md §4.3):
// one GET per distinct target, JSON/text content sniffing, and an
// optional pre_transformer pass before field selection.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/loader"
	"github.com/chomp-dev/chomp/pkg/transformer"
)

// Loader is the http_api implementation of loader.Loader, shared by
// every ingester of that kind; each Acquire call issues one request
// per distinct target among its own ingester's fields.
type Loader struct {
	log    logrus.FieldLogger
	client *http.Client
	engine *transformer.Engine
}

// New builds an http_api Loader. timeout bounds each GET; engine runs
// pre_transformer expressions (spec.md §3).
func New(log logrus.FieldLogger, timeout time.Duration, engine *transformer.Engine) *Loader {
	return &Loader{
		log:    log.WithField("component", "loader_httpapi"),
		client: &http.Client{Timeout: timeout},
		engine: engine,
	}
}

var _ loader.Loader = (*Loader)(nil)

// Acquire issues one GET per distinct target appearing in ing's
// fields (field-level target overrides deduplicate against the
// ingester's own target), decodes each body as JSON or text, and runs
// ing.PreTransformer against each. With a single target the decoded
// body is returned directly, same as before per-field targets
// existed; with more than one, the result is an ingester.RawByTarget
// map so pkg/transformer can route each field's selection to its own
// target's response.
func (l *Loader) Acquire(ctx context.Context, ing *ingester.Ingester) (interface{}, *loader.Vitals, error) {
	started := time.Now()
	targets := ingester.DistinctTargets(ing)

	vitals := &loader.Vitals{FieldCount: len(ing.Fields)}

	if len(targets) <= 1 {
		target := ing.Target
		if len(targets) == 1 {
			target = targets[0]
		}
		decoded, bytes, status, err := l.fetch(ctx, ing, target)
		vitals.Latency = time.Since(started)
		vitals.Bytes = bytes
		vitals.Status = status
		if err != nil {
			return nil, vitals, err
		}
		return decoded, vitals, nil
	}

	byTarget := make(ingester.RawByTarget, len(targets))
	for _, target := range targets {
		decoded, bytes, status, err := l.fetch(ctx, ing, target)
		vitals.Bytes += bytes
		vitals.Status = status
		if err != nil {
			vitals.Latency = time.Since(started)
			return nil, vitals, err
		}
		byTarget[target] = decoded
	}
	vitals.Latency = time.Since(started)

	return byTarget, vitals, nil
}

// fetch issues one GET against target, decodes the response, and runs
// ing.PreTransformer if set. bytes/status are returned alongside the
// decoded value so Acquire can fold them into the call's combined
// Vitals regardless of how many targets it fetched.
func (l *Loader) fetch(ctx context.Context, ing *ingester.Ingester, target string) (interface{}, int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, "", fmt.Errorf("build request for %q: %w", ing.Name, err)
	}
	for k, v := range ing.Headers {
		req.Header.Set(k, v)
	}
	applyParams(req, ing.Params)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, 0, "", fmt.Errorf("request %q: %w", target, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			l.log.WithError(cerr).Debug("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, "", fmt.Errorf("read response for %q: %w", ing.Name, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, len(body), resp.Status, fmt.Errorf("%s returned %s", target, resp.Status)
	}

	decoded, err := decodeBody(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return nil, len(body), resp.Status, fmt.Errorf("decode response for %q: %w", ing.Name, err)
	}

	if ing.PreTransformer != "" {
		decoded, err = l.engine.EvalExpr(ctx, ing.PreTransformer, decoded)
		if err != nil {
			return nil, len(body), resp.Status, fmt.Errorf("pre_transformer for %q: %w", ing.Name, err)
		}
	}

	return decoded, len(body), resp.Status, nil
}

// Close is a no-op; the underlying http.Client owns no long-lived
// connections beyond its idle pool.
func (l *Loader) Close() error { return nil }

// decodeBody sniffs JSON vs text per spec.md §4.3: JSON if the
// Content-Type says so, or if the first non-whitespace byte is `{` or
// `[`; otherwise UTF-8 text.
func decodeBody(contentType string, body []byte) (interface{}, error) {
	if looksLikeJSON(contentType, body) {
		var v interface{}
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("unmarshal json: %w", err)
		}
		return v, nil
	}
	return string(body), nil
}

func looksLikeJSON(contentType string, body []byte) bool {
	if bytes.Contains([]byte(contentType), []byte("json")) {
		return true
	}

	trimmed := bytes.TrimLeftFunc(body, unicode.IsSpace)
	if len(trimmed) == 0 {
		return false
	}
	return trimmed[0] == '{' || trimmed[0] == '['
}

// applyParams maps an ingester's polymorphic params (map, list, or
// scalar string, see pkg/ingester.ParamsValue) onto the request's
// query string. A list of "key=value" pairs covers the list form; the
// scalar form is appended verbatim as a raw query string.
func applyParams(req *http.Request, params *ingester.ParamsValue) {
	if params == nil {
		return
	}

	q := req.URL.Query()
	switch {
	case params.Map != nil:
		for k, v := range params.Map {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	case params.List != nil:
		for _, kv := range params.List {
			eq := bytes.IndexByte([]byte(kv), '=')
			if eq < 0 {
				continue
			}
			q.Set(kv[:eq], kv[eq+1:])
		}
		req.URL.RawQuery = q.Encode()
	case params.Scalar != "":
		if req.URL.RawQuery == "" {
			req.URL.RawQuery = params.Scalar
		} else {
			req.URL.RawQuery += "&" + params.Scalar
		}
	}
}
