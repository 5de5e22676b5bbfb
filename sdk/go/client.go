package inboxsdk

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
)

// Client is a minimal work inbox HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "v0",
		Timeout:  10 * time.Second,
	}
}

// Action is a recommended response to a work item.
type Action struct {
	Kind           string `json:"kind"`
	Label          string `json:"label"`
	RequiresReason bool   `json:"requires_reason"`
}

// Link points at a related record.
type Link struct {
	Label     string `json:"label"`
	Reference string `json:"reference"`
}

// Breakdown is the per-component score, present when explain is requested.
type Breakdown struct {
	Category float64 `json:"category"`
	Risk     float64 `json:"risk"`
	Monetary float64 `json:"monetary"`
	Urgency  float64 `json:"urgency"`
	Evidence float64 `json:"evidence"`
}

// WorkItem represents the API work item model.
type WorkItem struct {
	UniqueKey          string     `json:"unique_key"`
	SourceID           string     `json:"source_id"`
	Category           string     `json:"category"`
	Title              string     `json:"title"`
	ProjectRef         string     `json:"project_ref,omitempty"`
	PartnerRef         string     `json:"partner_ref,omitempty"`
	OwnerOrg           string     `json:"owner_org,omitempty"`
	MonetaryImpact     float64    `json:"monetary_impact"`
	DaysToDue          *int       `json:"days_to_due,omitempty"`
	RiskLevel          string     `json:"risk_level"`
	Evidence           []string   `json:"evidence"`
	RecommendedActions []Action   `json:"recommended_actions"`
	RelatedLinks       []Link     `json:"related_links"`
	CreatedAt          time.Time  `json:"created_at"`
	PriorityScore      float64    `json:"priority_score"`
	Breakdown          *Breakdown `json:"breakdown,omitempty"`
}

// Diagnostic reports an adapter that failed server side.
type Diagnostic struct {
	Adapter string `json:"adapter"`
	Message string `json:"message"`
}

type Stats struct {
	Produced   map[string]int `json:"produced"`
	Duplicates int            `json:"duplicates"`
	Total      int            `json:"total"`
	Returned   int            `json:"returned"`
}

// Inbox is one aggregated queue.
type Inbox struct {
	Items       []WorkItem   `json:"items"`
	Diagnostics []Diagnostic `json:"diagnostics"`
	Stats       Stats        `json:"stats"`
}

// InboxQuery narrows the returned queue. Zero values keep everything.
type InboxQuery struct {
	Categories []string
	MinRisk    string
	Limit      int
	Explain    bool
}

func (q InboxQuery) values() url.Values {
	v := url.Values{}
	if len(q.Categories) > 0 {
		v.Set("category", strings.Join(q.Categories, ","))
	}
	if q.MinRisk != "" {
		v.Set("min_risk", q.MinRisk)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Explain {
		v.Set("explain", "true")
	}
	return v
}

// Bundle is a raw snapshot sent for aggregation. Nil collections are
// omitted and their adapters skipped.
type Bundle struct {
	PurchaseOrders []map[string]any `json:"purchase_orders,omitempty"`
	Invoices       []map[string]any `json:"invoices,omitempty"`
	Amendments     []map[string]any `json:"amendments,omitempty"`
	Contracts      []map[string]any `json:"contracts,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Health reports whether the server answers.
func (c *Client) Health(ctx context.Context) error {
	var resp map[string]string
	return c.do(ctx, http.MethodGet, "health", nil, nil, &resp)
}

// Inbox fetches the server's current queue.
func (c *Client) Inbox(ctx context.Context, q InboxQuery) (Inbox, error) {
	var resp Inbox
	err := c.do(ctx, http.MethodGet, "inbox", q.values(), nil, &resp)
	return resp, err
}

// Aggregate ranks the supplied snapshot server side.
func (c *Client) Aggregate(ctx context.Context, b Bundle, q InboxQuery) (Inbox, error) {
	var resp Inbox
	err := c.do(ctx, http.MethodPost, "inbox/aggregate", q.values(), b, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + c.path(endpoint)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) path(p string) string {
	base := strings.Trim(c.BasePath, "/")
	p = strings.TrimLeft(p, "/")
	if base == "" {
		return p
	}
	return base + "/" + p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
