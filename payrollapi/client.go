/*
Package payrollapi talks to the external payroll system.

PURPOSE:
  Read-only catalog snapshots (earnings rates, leave types, employees with
  pay templates, payroll calendars) and the two writes the sync makes
  (timesheets, leave applications). Memory is an in-process stand-in with
  the same behaviour for tests and local runs.

TRANSPORT:
  - Bearer credential via golang.org/x/oauth2 (static token; refresh is the
    caller's concern)
  - Tenant header on every call
  - Bounded per-client timeout; no automatic retries
  - Idempotency-Key header on writes; a 409 answer carrying
    Idempotent-Replayed: true maps to generic.ErrDuplicateIdempotencyKey.
    Any other 409 (overlapping or conflicting record) is a failed write

ERRORS:
  Every failure is a *generic.ExternalError whose Kind is ErrFetchFailed,
  ErrWriteFailed or ErrDuplicateIdempotencyKey.
*/
package payrollapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
)

const (
	TenantHeader      = "X-Tenant-ID"
	IdempotencyHeader = "Idempotency-Key"
	ReplayHeader      = "Idempotent-Replayed"
	DefaultTimeout    = 15 * time.Second
)

// Config is what the client needs from the session store.
type Config struct {
	BaseURL     string
	AccessToken string
	TenantID    string
	Timeout     time.Duration
	// HTTPClient is the base transport (http.DefaultClient when nil).
	HTTPClient *http.Client
}

// Client is an authenticated payroll API client.
type Client struct {
	baseURL    string
	tenantID   string
	httpClient *http.Client
}

// NewClient builds a client. An empty AccessToken sends no Authorization header.
func NewClient(ctx context.Context, cfg Config) *Client {
	base := cfg.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	hc := base
	if cfg.AccessToken != "" {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.AccessToken,
			TokenType:   "Bearer",
		}))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	withTimeout := *hc
	withTimeout.Timeout = timeout

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		tenantID:   cfg.TenantID,
		httpClient: &withTimeout,
	}
}

// =============================================================================
// CATALOG
// =============================================================================

// EarningsRates lists earnings rates.
func (c *Client) EarningsRates(ctx context.Context) ([]payroll.RateCatalogEntry, error) {
	var resp payItemsResponse
	if err := c.get(ctx, "list earnings rates", "/PayItems", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]payroll.RateCatalogEntry, 0, len(resp.PayItems.EarningsRates))
	for _, w := range resp.PayItems.EarningsRates {
		out = append(out, w.entry())
	}
	return out, nil
}

// LeaveTypes lists leave types.
func (c *Client) LeaveTypes(ctx context.Context) ([]payroll.RateCatalogEntry, error) {
	var resp payItemsResponse
	if err := c.get(ctx, "list leave types", "/PayItems", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]payroll.RateCatalogEntry, 0, len(resp.PayItems.LeaveTypes))
	for _, w := range resp.PayItems.LeaveTypes {
		out = append(out, w.entry())
	}
	return out, nil
}

// Employees lists employees with their pay templates.
func (c *Client) Employees(ctx context.Context) ([]payroll.Employee, error) {
	var resp employeesResponse
	if err := c.get(ctx, "list employees", "/Employees", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]payroll.Employee, 0, len(resp.Employees))
	for _, w := range resp.Employees {
		out = append(out, w.employee())
	}
	return out, nil
}

// Calendars lists payroll calendars. Calendars with unparseable start dates are skipped.
func (c *Client) Calendars(ctx context.Context) ([]generic.Calendar, error) {
	var resp calendarsResponse
	if err := c.get(ctx, "list payroll calendars", "/PayrollCalendars", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]generic.Calendar, 0, len(resp.PayrollCalendars))
	for _, w := range resp.PayrollCalendars {
		if cal, err := w.calendar(); err == nil {
			out = append(out, cal)
		}
	}
	return out, nil
}

// =============================================================================
// WRITER
// =============================================================================

// ListTimesheets returns the employee's existing timesheets.
func (c *Client) ListTimesheets(ctx context.Context, employeeID string) ([]payroll.DesiredAggregate, error) {
	var resp timesheetsResponse
	q := url.Values{"employeeId": {employeeID}}
	if err := c.get(ctx, "list timesheets", "/Timesheets", q, &resp); err != nil {
		return nil, err
	}
	out := make([]payroll.DesiredAggregate, 0, len(resp.Timesheets))
	for _, w := range resp.Timesheets {
		a, err := w.aggregate()
		if err != nil {
			return nil, &generic.ExternalError{Op: "list timesheets", Kind: generic.ErrFetchFailed, Cause: err}
		}
		out = append(out, a)
	}
	return out, nil
}

// CreateTimesheet posts one timesheet.
func (c *Client) CreateTimesheet(ctx context.Context, t payroll.DesiredAggregate, idempotencyKey string) error {
	return c.post(ctx, "create timesheet", "/Timesheets", []timesheetWire{toTimesheetWire(t)}, idempotencyKey)
}

// CreateLeaveApplication posts one leave application.
func (c *Client) CreateLeaveApplication(ctx context.Context, d payroll.LeaveDraft, idempotencyKey string) error {
	return c.post(ctx, "create leave application", "/LeaveApplications", []leaveApplicationWire{toLeaveWire(d)}, idempotencyKey)
}

// =============================================================================
// HTTP
// =============================================================================

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.tenantID != "" {
		req.Header.Set(TenantHeader, c.tenantID)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (int, http.Header, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, resp.Header, nil, fmt.Errorf("reading response body: %w", err)
	}
	return resp.StatusCode, resp.Header, body, nil
}

func (c *Client) get(ctx context.Context, op, path string, q url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return &generic.ExternalError{Op: op, Kind: generic.ErrFetchFailed, Cause: err}
	}
	status, _, body, err := c.do(req)
	if err != nil {
		return &generic.ExternalError{Op: op, Status: status, Kind: generic.ErrFetchFailed, Cause: err}
	}
	if status != http.StatusOK {
		return &generic.ExternalError{Op: op, Status: status, Body: truncate(body), Kind: generic.ErrFetchFailed}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &generic.ExternalError{Op: op, Status: status, Kind: generic.ErrFetchFailed, Cause: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

func (c *Client) post(ctx context.Context, op, path string, payload any, idempotencyKey string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return &generic.ExternalError{Op: op, Kind: generic.ErrWriteFailed, Cause: err}
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, bytes.NewReader(data))
	if err != nil {
		return &generic.ExternalError{Op: op, Kind: generic.ErrWriteFailed, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set(IdempotencyHeader, idempotencyKey)
	}

	status, header, body, err := c.do(req)
	switch {
	case err != nil:
		return &generic.ExternalError{Op: op, Status: status, Kind: generic.ErrWriteFailed, Cause: err}
	case status == http.StatusConflict && isReplay(header):
		return &generic.ExternalError{Op: op, Status: status, Body: truncate(body), Kind: generic.ErrDuplicateIdempotencyKey}
	case status < 200 || status > 299:
		return &generic.ExternalError{Op: op, Status: status, Body: truncate(body), Kind: generic.ErrWriteFailed}
	}
	return nil
}

// isReplay reports whether a 409 says the key was already accepted.
func isReplay(h http.Header) bool {
	return strings.EqualFold(h.Get(ReplayHeader), "true")
}

const maxErrorBody = 512

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
