package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/EthanVT97/rangoon-middleware/internal/models"
)

// DefaultEndpoints is the built-in catalogue of batch endpoints. A stored
// connection may override or extend it.
var DefaultEndpoints = models.EndpointMap{
	"customers": "/api/v1/customers/batch",
	"products":  "/api/v1/products/batch",
	"sales":     "/api/v1/sales/invoices",
	"inventory": "/api/v1/inventory/updates",
}

// ErrNoConnection is returned when no active ERP connection exists and no
// fallback is configured.
var ErrNoConnection = errors.New("no active ERP connection configured")

// Record is one validated row ready for dispatch. RowIndex refers to the
// row's position in the uploaded file so rejections can be attributed.
type Record struct {
	RowIndex int
	Fields   map[string]interface{}
}

// RowResult is the ERP's per-row verdict inside a batch acknowledgement.
type RowResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// BatchResponse is the parsed ERP reply to one batch POST.
type BatchResponse struct {
	StatusCode int
	Body       map[string]interface{}
	Results    []RowResult
}

// BatchSender posts one batch of records to a named ERP endpoint. A non-nil
// error means the request never produced an HTTP response (network fault);
// HTTP-level failures come back in the response status code.
type BatchSender interface {
	SendBatch(ctx context.Context, endpoint string, records []Record) (*BatchResponse, error)
}

// ConnectionSource resolves the ERP connection to use for outbound calls.
type ConnectionSource interface {
	Active() (*models.ERPConnection, error)
}

// StaticConnection is a ConnectionSource pinned to one connection, used for
// the env-var fallback and in tests.
type StaticConnection struct {
	Conn models.ERPConnection
}

func (s StaticConnection) Active() (*models.ERPConnection, error) {
	if s.Conn.BaseURL == "" {
		return nil, ErrNoConnection
	}
	return &s.Conn, nil
}

// DBConnectionSource resolves the active connection from the database,
// falling back to a static connection (built from env config) when no row is
// active.
type DBConnectionSource struct {
	DB       *gorm.DB
	Fallback models.ERPConnection
}

func (s *DBConnectionSource) Active() (*models.ERPConnection, error) {
	var conn models.ERPConnection
	err := s.DB.Where("is_active = ?", true).Order("updated_at desc").First(&conn).Error
	if err == nil {
		return &conn, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load active ERP connection: %w", err)
	}
	if s.Fallback.BaseURL != "" {
		return &s.Fallback, nil
	}
	return nil, ErrNoConnection
}

// Client posts record batches to the ERP over HTTP with bearer-token auth.
type Client struct {
	source     ConnectionSource
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient builds an HTTP client for the ERP. The 30s timeout bounds a
// single batch POST; retries are the dispatcher's job.
func NewClient(source ConnectionSource, log zerolog.Logger) *Client {
	return &Client{
		source:     source,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.With().Str("component", "erp_client").Logger(),
	}
}

// Endpoints returns the sorted endpoint names the current connection can
// dispatch to, merging the connection's catalogue over the defaults.
func (c *Client) Endpoints() []string {
	names := make(map[string]bool, len(DefaultEndpoints))
	for name := range DefaultEndpoints {
		names[name] = true
	}
	if conn, err := c.source.Active(); err == nil {
		for name := range conn.Endpoints {
			names[name] = true
		}
	}
	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *Client) resolvePath(conn *models.ERPConnection, endpoint string) (string, error) {
	if path, ok := conn.Endpoints[endpoint]; ok && path != "" {
		return path, nil
	}
	if path, ok := DefaultEndpoints[endpoint]; ok {
		return path, nil
	}
	return "", fmt.Errorf("unknown ERP endpoint %q", endpoint)
}

// SendBatch posts the records as a JSON array to the endpoint's path on the
// active connection.
func (c *Client) SendBatch(ctx context.Context, endpoint string, records []Record) (*BatchResponse, error) {
	conn, err := c.source.Active()
	if err != nil {
		return nil, err
	}
	path, err := c.resolvePath(conn, endpoint)
	if err != nil {
		return nil, err
	}

	payload := make([]map[string]interface{}, len(records))
	for i, r := range records {
		payload[i] = r.Fields
	}
	body, err := json.Marshal(map[string]interface{}{"records": payload})
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch payload: %w", err)
	}

	url := strings.TrimRight(conn.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build ERP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+conn.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ERP request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read ERP response: %w", err)
	}

	out := &BatchResponse{StatusCode: resp.StatusCode}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out.Body); err != nil {
			// Non-JSON bodies (proxies, HTML error pages) are kept verbatim.
			out.Body = map[string]interface{}{"raw": string(raw)}
		}
	}
	out.Results = parseRowResults(out.Body)

	c.log.Debug().
		Str("endpoint", endpoint).
		Int("records", len(records)).
		Int("status", resp.StatusCode).
		Msg("batch posted to ERP")
	return out, nil
}

// TestConnection probes the ERP's health endpoint with the connection's
// credential and returns the HTTP status.
func (c *Client) TestConnection(ctx context.Context) (int, error) {
	conn, err := c.source.Active()
	if err != nil {
		return 0, err
	}
	url := strings.TrimRight(conn.BaseURL, "/") + "/api/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build health probe: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+conn.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("ERP health probe failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}

// parseRowResults pulls the per-row verdict list out of an acknowledgement
// body, if the ERP sent one.
func parseRowResults(body map[string]interface{}) []RowResult {
	rawList, ok := body["results"].([]interface{})
	if !ok {
		return nil
	}
	results := make([]RowResult, 0, len(rawList))
	for _, item := range rawList {
		entry, ok := item.(map[string]interface{})
		if !ok {
			return nil
		}
		r := RowResult{}
		if accepted, ok := entry["accepted"].(bool); ok {
			r.Accepted = accepted
		}
		if reason, ok := entry["reason"].(string); ok {
			r.Reason = reason
		}
		results = append(results, r)
	}
	return results
}
