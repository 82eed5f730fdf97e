// Package aviationstack fetches live flights from the aviationstack flights
// endpoint and flattens them into a table with dotted-key columns.
package aviationstack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/aerodelay/flight-dashboard/internal/table"
	"github.com/aerodelay/flight-dashboard/pkg/logger"
)

const (
	DefaultBaseURL = "http://api.aviationstack.com/v1/flights"
	DefaultLimit   = 50
	DefaultTimeout = 15 * time.Second

	// ScheduledDepartureKey is parsed into a timestamp; every other field
	// keeps the JSON type it arrived with.
	ScheduledDepartureKey = "departure.scheduled"

	maxBodyBytes = 16 << 20
)

var (
	ErrMissingAccessKey  = errors.New("aviationstack access key not configured")
	ErrNetwork           = errors.New("aviationstack request failed")
	ErrTimeout           = errors.New("aviationstack request timed out")
	ErrMalformedResponse = errors.New("aviationstack response malformed")
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	AccessKey string
	Limit     int
	Timeout   time.Duration
}

// Client fetches the live flight table.
type Client struct {
	httpClient *http.Client
	opts       Options
	logger     *logger.Logger
}

// NewClient fills unset options with defaults. A nil log discards output.
func NewClient(opts Options, log *logger.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		opts:       opts,
		logger:     log.Named("aviationstack"),
	}
}

// FetchFlights performs one request and returns the flattened flights. An
// empty data array yields an empty table, not an error.
func (c *Client) FetchFlights(ctx context.Context) (*table.Table, error) {
	if c.opts.AccessKey == "" {
		return nil, ErrMissingAccessKey
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	endpoint, err := url.Parse(c.opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base url: %v", ErrNetwork, err)
	}
	q := endpoint.Query()
	q.Set("access_key", c.opts.AccessKey)
	q.Set("limit", strconv.Itoa(c.opts.Limit))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Fetching live flights",
		logger.String("endpoint", c.opts.BaseURL),
		logger.Int("limit", c.opts.Limit),
	)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, c.opts.Timeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, redact(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrNetwork, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, c.opts.Timeout)
		}
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	flights, err := Decode(body)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Fetched live flights",
		logger.Int("flights", flights.Len()),
		logger.Duration("elapsed", time.Since(start)),
	)
	return flights, nil
}

// Decode turns a flights response body into a table. Columns are the union of
// flattened keys in first-seen order.
func Decode(body []byte) (*table.Table, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not JSON", ErrMalformedResponse)
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: body is not an object", ErrMalformedResponse)
	}
	if apiErr := doc.Get("error"); apiErr.Exists() && apiErr.Type != gjson.Null {
		return nil, fmt.Errorf("%w: api error %s: %s", ErrMalformedResponse,
			apiErr.Get("code").String(), apiErr.Get("message").String())
	}
	data := doc.Get("data")
	if !data.Exists() {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedResponse)
	}
	if !data.IsArray() {
		return nil, fmt.Errorf("%w: data is not an array", ErrMalformedResponse)
	}

	var columns []string
	index := make(map[string]int)
	var records [][]Field
	for i, item := range data.Array() {
		if !item.IsObject() {
			return nil, fmt.Errorf("%w: data[%d] is not an object", ErrMalformedResponse, i)
		}
		fields := Flatten(item)
		for _, f := range fields {
			if _, ok := index[f.Key]; !ok {
				index[f.Key] = len(columns)
				columns = append(columns, f.Key)
			}
		}
		records = append(records, fields)
	}

	rows := make([]table.Row, len(records))
	for i, fields := range records {
		row := make(table.Row, len(columns))
		for _, f := range fields {
			row[index[f.Key]] = f.Value
		}
		if j, ok := index[ScheduledDepartureKey]; ok {
			row[j] = parseTimestamp(row[j])
		}
		rows[i] = row
	}

	t, err := table.New(columns, rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return t, nil
}

// parseTimestamp coerces an ISO-8601 string to time.Time; anything else
// becomes null.
func parseTimestamp(v any) any {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// redact strips the request URL, which carries the access key, from transport errors.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
