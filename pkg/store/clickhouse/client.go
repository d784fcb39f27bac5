package clickhouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Define static errors.
var (
	ErrDestMustBePointerToSlice = errors.New("dest must be a pointer to a slice")
	ErrDataMustBeSlice          = errors.New("data must be a slice")
	ErrClickHouseResponse       = errors.New("clickhouse error")
)

// clickhouseResponse represents the JSON response from ClickHouse's
// HTTP interface.
type clickhouseResponse struct {
	Data []json.RawMessage `json:"data"`
	Meta []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"meta"`
	Rows     int `json:"rows"`
	RowsRead int `json:"rows_read"` //nolint:tagliatelle // ClickHouse API uses snake_case
}

// Client defines the methods Chomp's store component needs from a
// TSDB adapter. Any concrete database could implement this; it is the
// abstract boundary called out in spec.md §1 ("Concrete database
// drivers... modeled as abstract adapters").
type Client interface {
	QueryOne(ctx context.Context, query string, dest interface{}) error
	QueryMany(ctx context.Context, query string, dest interface{}) error
	Execute(ctx context.Context, query string) ([]byte, error)
	BulkInsert(ctx context.Context, table string, data interface{}) error
	Start() error
	Stop() error
}

type client struct {
	log           logrus.FieldLogger
	httpClient    *http.Client
	baseURL       string
	debug         bool
	queryTimeout  time.Duration
	insertTimeout time.Duration
}

// New creates a new HTTP-based ClickHouse client.
func New(logger logrus.FieldLogger, cfg *Config) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.SetDefaults()

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     cfg.KeepAlive,
		DisableKeepAlives:   false,
	}

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   0, // per-request timeouts are set explicitly
	}

	return &client{
		log:           logger.WithField("component", "clickhouse"),
		httpClient:    httpClient,
		baseURL:       strings.TrimRight(cfg.URL, "/"),
		debug:         cfg.Debug,
		queryTimeout:  cfg.QueryTimeout,
		insertTimeout: cfg.InsertTimeout,
	}, nil
}

func (c *client) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := c.Execute(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	c.log.Info("Connected to ClickHouse HTTP interface")
	return nil
}

func (c *client) Stop() error {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	c.log.Info("Closed ClickHouse HTTP client")
	return nil
}

func (c *client) QueryOne(ctx context.Context, query string, dest interface{}) error {
	resp, err := c.executeHTTPRequest(ctx, query+" FORMAT JSON", c.getTimeout(ctx, "query"))
	if err != nil {
		return fmt.Errorf("query execution failed: %w", err)
	}

	var result clickhouseResponse
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if len(result.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(result.Data[0], dest); err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return nil
}

func (c *client) QueryMany(ctx context.Context, query string, dest interface{}) error {
	destValue := reflect.ValueOf(dest)
	if destValue.Kind() != reflect.Ptr || destValue.Elem().Kind() != reflect.Slice {
		return ErrDestMustBePointerToSlice
	}

	resp, err := c.executeHTTPRequest(ctx, query+" FORMAT JSON", c.getTimeout(ctx, "query"))
	if err != nil {
		return fmt.Errorf("query execution failed: %w", err)
	}

	var result clickhouseResponse
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	sliceType := destValue.Elem().Type()
	elemType := sliceType.Elem()
	newSlice := reflect.MakeSlice(sliceType, len(result.Data), len(result.Data))

	for i, data := range result.Data {
		elem := reflect.New(elemType)
		if err := json.Unmarshal(data, elem.Interface()); err != nil {
			return fmt.Errorf("failed to unmarshal row %d: %w", i, err)
		}
		newSlice.Index(i).Set(elem.Elem())
	}

	destValue.Elem().Set(newSlice)
	return nil
}

func (c *client) Execute(ctx context.Context, query string) ([]byte, error) {
	body, err := c.executeHTTPRequest(ctx, query, c.getTimeout(ctx, "query"))
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w", err)
	}
	return body, nil
}

// BulkInsert performs a single INSERT ... FORMAT JSONEachRow statement
// per call, matching spec.md §4.5's "row insertion is a single
// statement per tick per ingester".
func (c *client) BulkInsert(ctx context.Context, table string, data interface{}) error {
	dataValue := reflect.ValueOf(data)
	if dataValue.Kind() != reflect.Slice {
		return ErrDataMustBeSlice
	}
	if dataValue.Len() == 0 {
		return nil
	}

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("INSERT INTO %s FORMAT JSONEachRow\n", table))

	for i := 0; i < dataValue.Len(); i++ {
		item := dataValue.Index(i).Interface()

		jsonData, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal row %d: %w", i, err)
		}

		buf.Write(jsonData)
		buf.WriteByte('\n')
	}

	if _, err := c.executeHTTPRequest(ctx, buf.String(), c.getTimeout(ctx, "insert")); err != nil {
		return fmt.Errorf("bulk insert failed: %w", err)
	}

	return nil
}

func (c *client) executeHTTPRequest(ctx context.Context, query string, timeout time.Duration) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL, strings.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-ClickHouse-Format", "JSON")

	if c.debug {
		logQuery := query
		if len(query) > 1000 && strings.Contains(query, "INSERT") {
			logQuery = query[:1000] + "... (truncated)"
		}
		c.log.WithField("query", logQuery).Debug("Executing ClickHouse query")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.log.WithError(closeErr).Debug("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp struct {
			Exception string `json:"exception"`
		}
		if jsonErr := json.Unmarshal(body, &errorResp); jsonErr == nil && errorResp.Exception != "" {
			return nil, fmt.Errorf("%w (status %d): %s", ErrClickHouseResponse, resp.StatusCode, errorResp.Exception)
		}
		return nil, fmt.Errorf("%w (status %d): %s", ErrClickHouseResponse, resp.StatusCode, string(body))
	}

	if c.debug && len(body) < 1000 {
		c.log.WithField("response", string(body)).Debug("ClickHouse response")
	}

	return body, nil
}

func (c *client) getTimeout(ctx context.Context, operation string) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline)
	}

	switch operation {
	case "insert":
		return c.insertTimeout
	default:
		return c.queryTimeout
	}
}
