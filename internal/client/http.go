package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nextmonth/smartsite/internal/model"
)

// HTTPClient implements AdminClient using the SmartSite REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ AdminClient = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty it is sent as a
// bearer token, which the server maps to its service identity.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Tenants ---

func (c *HTTPClient) ListTenants(ctx context.Context) ([]*model.Tenant, error) {
	var tenants []*model.Tenant
	if err := c.doJSON(ctx, http.MethodGet, "/api/tenants", nil, &tenants); err != nil {
		return nil, err
	}
	return tenants, nil
}

func (c *HTTPClient) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	var t model.Tenant
	if err := c.doJSON(ctx, http.MethodGet, "/api/tenants/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *HTTPClient) CreateTenant(ctx context.Context, req *CreateTenantRequest) (*model.Tenant, error) {
	var t model.Tenant
	if err := c.doJSON(ctx, http.MethodPost, "/api/tenants", req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *HTTPClient) UpdateTenantStatus(ctx context.Context, id string, status model.TenantStatus) (*model.Tenant, error) {
	body := map[string]model.TenantStatus{"status": status}
	var t model.Tenant
	if err := c.doJSON(ctx, http.MethodPatch, "/api/tenants/"+url.PathEscape(id), body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// --- SOT sync ---

func (c *HTTPClient) SyncStatus(ctx context.Context) (*SyncStatus, error) {
	var st SyncStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/sot/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// RunSync triggers a manual sync. A failed run is reported by the server
// as a 500 carrying a SyncResult; it is returned as an APIError.
func (c *HTTPClient) RunSync(ctx context.Context) (*SyncResult, error) {
	var res SyncResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/sot/sync", struct{}{}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) SetSchedule(ctx context.Context, schedule string) (*SyncStatus, error) {
	body := map[string]string{"schedule": schedule}
	var st SyncStatus
	if err := c.doJSON(ctx, http.MethodPut, "/api/sot/schedule", body, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *HTTPClient) SyncLogs(ctx context.Context, limit int) ([]*model.SOTSyncLog, error) {
	var logs []*model.SOTSyncLog
	if err := c.doJSON(ctx, http.MethodGet, "/api/sot/logs"+limitQuery(limit), nil, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// --- Health ---

// SystemStatus returns the dependency report. It needs no credentials.
func (c *HTTPClient) SystemStatus(ctx context.Context) (*SystemStatus, error) {
	var st SystemStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/health/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *HTTPClient) ListIncidents(ctx context.Context, limit int) ([]*model.HealthIncident, error) {
	var incidents []*model.HealthIncident
	if err := c.doJSON(ctx, http.MethodGet, "/api/health/incidents"+limitQuery(limit), nil, &incidents); err != nil {
		return nil, err
	}
	return incidents, nil
}

func (c *HTTPClient) ResolveIncident(ctx context.Context, id int64) (*model.HealthIncident, error) {
	return c.incidentAction(ctx, id, "resolve")
}

func (c *HTTPClient) AcknowledgeIncident(ctx context.Context, id int64) (*model.HealthIncident, error) {
	return c.incidentAction(ctx, id, "acknowledge")
}

func (c *HTTPClient) incidentAction(ctx context.Context, id int64, action string) (*model.HealthIncident, error) {
	path := "/api/health/incidents/" + strconv.FormatInt(id, 10) + "/" + action
	var inc model.HealthIncident
	if err := c.doJSON(ctx, http.MethodPost, path, struct{}{}, &inc); err != nil {
		return nil, err
	}
	return &inc, nil
}

// --- Blueprints ---

func (c *HTTPClient) ListTemplates(ctx context.Context) ([]*model.BlueprintTemplate, error) {
	var templates []*model.BlueprintTemplate
	if err := c.doJSON(ctx, http.MethodGet, "/api/blueprint/templates", nil, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

func (c *HTTPClient) Clone(ctx context.Context, req *CloneRequest) (*CloneResult, error) {
	var res CloneResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/blueprint/clone", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) CloneStatus(ctx context.Context, requestID string) (*model.CloneOperation, error) {
	var op model.CloneOperation
	if err := c.doJSON(ctx, http.MethodGet, "/api/blueprint/clone-status/"+url.PathEscape(requestID), nil, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// --- internal helpers ---

func limitQuery(limit int) string {
	if limit <= 0 {
		return ""
	}
	return "?limit=" + strconv.Itoa(limit)
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded (for DELETE/204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
