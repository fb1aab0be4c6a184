// Package rest is the client for the JSON-over-HTTP persistence API that
// owns revenue records and cash entries.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"caisse/internal/core"
	"caisse/internal/log"
	"caisse/internal/reconcile"
	"caisse/internal/sources"
)

const (
	defaultRevenuePath     = "/api/chiffre-affaire"
	defaultCashEntriesPath = "/api/compta"
	maxErrorBody           = 4 << 10
)

// Config configures the client.
type Config struct {
	BaseURL         string
	Token           string
	RevenuePath     string
	CashEntriesPath string
	Timeout         time.Duration
}

// Client talks to the persistence API. It implements sources.Backend.
type Client struct {
	baseURL         string
	token           string
	revenuePath     string
	cashEntriesPath string
	httpClient      *http.Client
	logger          *log.Logger
}

// envelope is the response shape of every write endpoint.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// NewClient creates a new persistence API client.
func NewClient(cfg Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Discard()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		token:           cfg.Token,
		revenuePath:     cfg.RevenuePath,
		cashEntriesPath: cfg.CashEntriesPath,
		httpClient:      &http.Client{Timeout: timeout},
		logger:          logger.WithComponent(log.ComponentPersistAPI),
	}
	if c.revenuePath == "" {
		c.revenuePath = defaultRevenuePath
	}
	if c.cashEntriesPath == "" {
		c.cashEntriesPath = defaultCashEntriesPath
	}
	return c
}

// ListRevenue fetches the turnover records of a period. Records the server
// returns outside the period are dropped.
func (c *Client) ListRevenue(ctx context.Context, p reconcile.Period) ([]core.RevenueRecord, error) {
	q := url.Values{}
	q.Set("from", p.From.ISO())
	q.Set("to", p.To.ISO())

	var records []core.RevenueRecord
	if err := c.getList(ctx, sources.OpListRevenue, c.revenuePath, q, &records); err != nil {
		return nil, err
	}
	return reconcile.FilterRevenue(records, p), nil
}

// ListCashEntries fetches every cash entry.
func (c *Client) ListCashEntries(ctx context.Context) ([]core.CashEntry, error) {
	var entries []core.CashEntry
	if err := c.getList(ctx, sources.OpList, c.cashEntriesPath, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// CreateCashEntry posts a new entry. The date is sent as YYYY-MM-DD.
func (c *Client) CreateCashEntry(ctx context.Context, e core.CashEntry) (core.CashEntry, error) {
	e.ID = ""
	body, err := writeBody(e)
	if err != nil {
		return core.CashEntry{}, fmt.Errorf("encode cash entry: %w", err)
	}
	return c.write(ctx, sources.OpCreate, http.MethodPost, c.endpoint(c.cashEntriesPath, nil), body, e)
}

// UpdateCashEntry puts an existing entry; the body carries its id.
func (c *Client) UpdateCashEntry(ctx context.Context, e core.CashEntry) (core.CashEntry, error) {
	if !e.HasID() {
		return core.CashEntry{}, core.ErrMissingIdentifier
	}
	body, err := writeBody(e)
	if err != nil {
		return core.CashEntry{}, fmt.Errorf("encode cash entry: %w", err)
	}
	return c.write(ctx, sources.OpUpdate, http.MethodPut, c.endpoint(c.cashEntriesPath, nil), body, e)
}

// DeleteCashEntry deletes an entry by id, passed as a query parameter.
func (c *Client) DeleteCashEntry(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return core.ErrMissingIdentifier
	}
	q := url.Values{}
	q.Set("id", id)

	resp, err := c.do(ctx, sources.OpDelete, http.MethodDelete, c.endpoint(c.cashEntriesPath, q), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &sources.PersistenceError{Op: sources.OpDelete, StatusCode: resp.StatusCode, Err: err}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &sources.PersistenceError{Op: sources.OpDelete, StatusCode: resp.StatusCode, Message: "malformed JSON response", Err: err}
	}
	if env.Success != nil && !*env.Success {
		return &sources.PersistenceError{Op: sources.OpDelete, StatusCode: resp.StatusCode, Message: failureMessage(env)}
	}
	return nil
}

// writeBody encodes the create/update payload: the entry with an "id" field
// instead of "_id" and the date normalized to YYYY-MM-DD.
func writeBody(e core.CashEntry) ([]byte, error) {
	id := e.ID
	e.ID = ""
	if iso := core.ISODate(e.Date); iso != "" {
		e.Date = iso
	}
	raw, err := json.Marshal(e)
	if err != nil || id == "" {
		return raw, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["id"], _ = json.Marshal(id)
	return json.Marshal(fields)
}

func (c *Client) write(ctx context.Context, op, method, endpoint string, body []byte, sent core.CashEntry) (core.CashEntry, error) {
	resp, err := c.do(ctx, op, method, endpoint, body)
	if err != nil {
		return core.CashEntry{}, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return core.CashEntry{}, &sources.PersistenceError{Op: op, StatusCode: resp.StatusCode, Message: "malformed JSON response", Err: err}
	}
	if env.Success == nil || !*env.Success {
		return core.CashEntry{}, &sources.PersistenceError{Op: op, StatusCode: resp.StatusCode, Message: failureMessage(env)}
	}

	stored := sent
	if len(env.Data) > 0 && !bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		if err := json.Unmarshal(env.Data, &stored); err != nil {
			return core.CashEntry{}, &sources.PersistenceError{Op: op, StatusCode: resp.StatusCode, Message: "malformed JSON response", Err: err}
		}
		if !stored.HasID() {
			stored.ID = sent.ID
		}
	}

	c.logger.InfoContext(ctx, "Cash entry written",
		log.NewFields().WithOperation(op).WithCashEntry(stored.ID, stored.Date).ToSlice()...)
	return stored, nil
}

// getList decodes a JSON array, also accepting it wrapped in an envelope.
func (c *Client) getList(ctx context.Context, op, path string, q url.Values, dst any) error {
	resp, err := c.do(ctx, op, http.MethodGet, c.endpoint(path, q), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &sources.PersistenceError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return &sources.PersistenceError{Op: op, StatusCode: resp.StatusCode, Message: "malformed JSON response", Err: err}
		}
		if env.Success != nil && !*env.Success {
			return &sources.PersistenceError{Op: op, StatusCode: resp.StatusCode, Message: failureMessage(env)}
		}
		raw = env.Data
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &sources.PersistenceError{Op: op, StatusCode: resp.StatusCode, Message: "malformed JSON response", Err: err}
	}
	return nil
}

// do sends the request. Transport failures wrap sources.ErrNetwork and
// non-2xx answers become a PersistenceError; on success the caller owns
// the response body.
func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "Persistence API unreachable",
			log.NewFields().WithOperation(op).WithError(err).WithErrorType(log.ErrorTypeNetwork).ToSlice()...)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %s: %w", sources.ErrNetwork, op, ctxErr)
		}
		return nil, fmt.Errorf("%w: %s: %v", sources.ErrNetwork, op, err)
	}

	c.logger.DebugContext(ctx, "Persistence API call",
		log.FieldOperation, op,
		log.FieldStatusCode, resp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(raw))
		var env envelope
		if json.Unmarshal(raw, &env) == nil && env.Error != "" {
			msg = env.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &sources.PersistenceError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}
	return resp, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func failureMessage(env envelope) string {
	if env.Error != "" {
		return env.Error
	}
	return "request was not successful"
}
