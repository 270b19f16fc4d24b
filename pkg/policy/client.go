package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scmguard/scmguard/pkg/authz"
)

const defaultTimeout = 10 * time.Second

// Client fetches policy rows and account records from the remote policy
// service over HTTP. It implements authz.Source. No retries happen here;
// the engine's contract is that fetch failures propagate unchanged.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a policy service client
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rowsQuery is the wire request for the policy row lookup
type rowsQuery struct {
	Plan      authz.PlanCode   `json:"plan"`
	Roles     []authz.Role     `json:"roles"`
	Resources []authz.Resource `json:"resources"`
	Action    authz.Action     `json:"action"`
}

// rowsResponse is the wire response for the policy row lookup
type rowsResponse struct {
	Rows []authz.PolicyRow `json:"rows"`
}

// FetchRows queries the policy table for the given plan, role candidates,
// resources, and action. No matching rows is a valid empty result, not an
// error.
func (c *Client) FetchRows(ctx context.Context, plan authz.PlanCode, roles []authz.Role, resources []authz.Resource, action authz.Action) ([]authz.PolicyRow, error) {
	body, err := json.Marshal(rowsQuery{
		Plan:      plan,
		Roles:     roles,
		Resources: resources,
		Action:    action,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal policy query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/policies/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build policy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("policy service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return []authz.PolicyRow{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("policy service returned HTTP %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var out rowsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode policy rows: %w", err)
	}
	if out.Rows == nil {
		out.Rows = []authz.PolicyRow{}
	}
	return out.Rows, nil
}

// FetchAccount looks up an account by id. Unknown accounts return nil
// without error so plan resolution can fail closed instead of erroring.
func (c *Client) FetchAccount(ctx context.Context, id int64) (*authz.Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1/accounts/%d", c.baseURL, id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build account request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("account lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("policy service returned HTTP %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var account authz.Account
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, fmt.Errorf("failed to decode account: %w", err)
	}
	return &account, nil
}

// Ping reports whether the policy service is reachable. Used by the
// readiness probe: without the policy service every check fails closed,
// so the instance should stop taking traffic.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("policy service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("policy service unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}

// readErrorBody returns a short excerpt of an error response body
func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(data) == 0 {
		return "no response body"
	}
	return string(data)
}
