package socketrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/errwatch/internal/aggregate"
	"github.com/tinytelemetry/errwatch/internal/dashboard"
	"github.com/tinytelemetry/errwatch/internal/explain"
	"github.com/tinytelemetry/errwatch/internal/model"
)

const (
	defaultCallTimeout    = 30 * time.Second
	defaultExplainTimeout = 90 * time.Second
)

// Client implements dashboard.Dashboard over a Unix domain socket using JSON-RPC 2.0.
type Client struct {
	conn    net.Conn
	mu      sync.Mutex
	nextID  int
	scanner *bufio.Scanner
	encoder *json.Encoder
	loc     *time.Location
}

// Dial connects to the socket RPC server at the given path.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("socketrpc: dial: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	return &Client{
		conn:    conn,
		scanner: scanner,
		encoder: json.NewEncoder(conn),
		loc:     model.DefaultCivilZone,
	}, nil
}

// SetLocation sets the civil zone record timestamps are converted to.
func (c *Client) SetLocation(loc *time.Location) {
	if loc != nil {
		c.loc = loc
	}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call performs a JSON-RPC call and unmarshals the result into dest.
func (c *Client) call(timeout time.Duration, method string, params interface{}, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID

	paramsData, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("socketrpc: marshal params: %w", err)
	}

	req := Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  paramsData,
	}

	c.conn.SetDeadline(time.Now().Add(timeout))
	defer c.conn.SetDeadline(time.Time{})

	if err := c.encoder.Encode(req); err != nil {
		return fmt.Errorf("socketrpc: send: %w", err)
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return fmt.Errorf("socketrpc: read: %w", err)
		}
		return fmt.Errorf("socketrpc: connection closed")
	}

	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("socketrpc: unmarshal response: %w", err)
	}
	if resp.ID != id {
		return fmt.Errorf("socketrpc: response id %d does not match request id %d", resp.ID, id)
	}

	if resp.Error != nil {
		switch resp.Error.Code {
		case codeNotFound:
			return fmt.Errorf("%w (%s)", explain.ErrRecordNotFound, resp.Error.Message)
		case codeNotConfigured:
			return fmt.Errorf("%w (%s)", explain.ErrNotConfigured, resp.Error.Message)
		}
		return resp.Error
	}

	if dest != nil {
		if err := json.Unmarshal(resp.Result, dest); err != nil {
			return fmt.Errorf("socketrpc: unmarshal result: %w", err)
		}
	}
	return nil
}

// localize re-applies the civil zone lost in JSON transit.
func localize(recs []model.ErrorRecord, loc *time.Location) {
	for i := range recs {
		recs[i].Timestamp = recs[i].Timestamp.In(loc)
		recs[i].CreatedAt = recs[i].CreatedAt.In(loc)
	}
}

func (c *Client) Recent(n int) ([]model.ErrorRecord, error) {
	var result []model.ErrorRecord
	err := c.call(defaultCallTimeout, "Recent", map[string]interface{}{"N": n}, &result)
	localize(result, c.loc)
	return result, err
}

func (c *Client) Search(q dashboard.SearchQuery) ([]model.ErrorRecord, error) {
	var result []model.ErrorRecord
	err := c.call(defaultCallTimeout, "Search", q, &result)
	localize(result, c.loc)
	return result, err
}

func (c *Client) GetByID(id int64) (model.ErrorRecord, bool, error) {
	var result getByIDResult
	if err := c.call(defaultCallTimeout, "GetByID", map[string]interface{}{"ID": id}, &result); err != nil {
		return model.ErrorRecord{}, false, err
	}
	if !result.Found {
		return model.ErrorRecord{}, false, nil
	}
	var rec model.ErrorRecord
	if err := json.Unmarshal(result.Record, &rec); err != nil {
		return model.ErrorRecord{}, false, fmt.Errorf("socketrpc: unmarshal record: %w", err)
	}
	recs := []model.ErrorRecord{rec}
	localize(recs, c.loc)
	return recs[0], true, nil
}

func (c *Client) Buckets(window, bucket time.Duration) ([]model.Bucket, error) {
	var result []model.Bucket
	err := c.call(defaultCallTimeout, "Buckets", map[string]interface{}{"Window": window, "Bucket": bucket}, &result)
	return result, err
}

func (c *Client) Delta(lookback time.Duration) (aggregate.Delta, error) {
	var result aggregate.Delta
	err := c.call(defaultCallTimeout, "Delta", map[string]interface{}{"Lookback": lookback}, &result)
	return result, err
}

// Explain asks the server to explain a record. ctx bounds the wait on the
// client side only; its deadline replaces the default explain timeout.
func (c *Client) Explain(ctx context.Context, id int64) (explain.Result, error) {
	timeout := defaultExplainTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := ctx.Err(); err != nil {
		return explain.Result{}, err
	}
	var result explain.Result
	err := c.call(timeout, "Explain", map[string]interface{}{"ID": id}, &result)
	result.Record.Timestamp = result.Record.Timestamp.In(c.loc)
	result.Record.CreatedAt = result.Record.CreatedAt.In(c.loc)
	if err != nil && !errors.Is(err, explain.ErrRecordNotFound) && !errors.Is(err, explain.ErrNotConfigured) {
		return result, fmt.Errorf("socketrpc: explain %d: %w", id, err)
	}
	return result, err
}

var _ dashboard.Dashboard = (*Client)(nil)
