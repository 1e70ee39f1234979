package splitwise

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultAPIURL is the Splitwise API v3.0 base URL.
const DefaultAPIURL = "https://secure.splitwise.com/api/v3.0"

// ClientConfig represents the configuration for the Splitwise API client.
type ClientConfig struct {
	APIURL string
	// HTTPClient must attach credentials to outgoing requests; the session
	// providers build it from an oauth2 token source.
	HTTPClient *http.Client
	Timeout    time.Duration // Default: 30 seconds
}

// Client is a Splitwise API client. It implements Session.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// APIError is returned when Splitwise answers with a non-200 status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("splitwise API error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("splitwise API error (status %d): %s", e.StatusCode, e.Message)
}

// NewClient creates a new Splitwise API client.
func NewClient(config ClientConfig) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if httpClient.Timeout == 0 {
		clone := *httpClient
		clone.Timeout = timeout
		httpClient = &clone
	}

	baseURL := config.APIURL
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// CurrentUser returns the authenticated user.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var resp currentUserResponse
	if err := c.get(ctx, "get_current_user", nil, &resp); err != nil {
		return nil, err
	}

	user := parseUser(resp.User)
	return &user, nil
}

// GetExpenses fetches a single page of expenses.
func (c *Client) GetExpenses(ctx context.Context, query ExpensesQuery) ([]Expense, error) {
	params := url.Values{}
	params.Set("offset", strconv.Itoa(query.Offset))
	params.Set("limit", strconv.Itoa(query.Limit))
	if query.GroupID > 0 {
		params.Set("group_id", strconv.FormatInt(query.GroupID, 10))
	}
	if query.DatedAfter != "" {
		params.Set("dated_after", query.DatedAfter)
	}
	if query.DatedBefore != "" {
		params.Set("dated_before", query.DatedBefore)
	}

	var resp expensesResponse
	if err := c.get(ctx, "get_expenses", params, &resp); err != nil {
		return nil, err
	}

	expenses := make([]Expense, 0, len(resp.Expenses))
	for _, raw := range resp.Expenses {
		exp, err := parseExpense(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse expense: %w", err)
		}
		expenses = append(expenses, exp)
	}

	return expenses, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	reqURL := fmt.Sprintf("%s/%s", c.baseURL, endpoint)
	if len(params) > 0 {
		reqURL = fmt.Sprintf("%s?%s", reqURL, params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// parseError parses an error response from the Splitwise API.
func parseError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return apiErr
	}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}

	switch {
	case errResp.Error != "":
		apiErr.Message = errResp.Error
	case len(errResp.Errors.Base) > 0:
		apiErr.Message = strings.Join(errResp.Errors.Base, "; ")
	}

	return apiErr
}
