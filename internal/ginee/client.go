// Package ginee is a client for the Ginee OpenAPI order endpoints.
package ginee

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/config"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/domain"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/logger"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/projection"
)

const (
	listOrderPath = "/openapi/order/v2/list-order"
	batchGetPath  = "/openapi/order/v1/batch-get"

	codeSuccess = "SUCCESS"

	// MaxBatchGet is the upstream limit of order ids per batch-get call.
	MaxBatchGet = 100

	maxPages = 10000
)

// ErrMissingCredentials is returned by NewClient without an access or
// secret key.
var ErrMissingCredentials = errors.New("ginee access key and secret key are required")

// APIError is a non-success answer from the Ginee API.
type APIError struct {
	Path       string
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ginee %s: status %d", e.Path, e.StatusCode)
	if e.Code != "" {
		fmt.Fprintf(&b, " code %s", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, " (request %s)", e.RequestID)
	}
	return b.String()
}

// Kind classifies the error in stored error payloads.
func (e *APIError) Kind() string {
	return "UpstreamError"
}

// Client calls the Ginee OpenAPI. It is safe for concurrent use.
type Client struct {
	http      *resty.Client
	accessKey string
	secretKey string
	pageSize  int
	loc       *time.Location
}

// NewClient creates a Client from configuration. loc is the timezone whose
// calendar days FetchByDate covers.
func NewClient(cfg *config.GineeConfig, loc *time.Location) (*Client, error) {
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, ErrMissingCredentials)
	}
	if loc == nil {
		loc = time.UTC
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.SetHeader("Content-Type", "application/json")
	if cfg.Country != "" {
		client.SetHeader("X-Advai-Country", cfg.Country)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	return &Client{
		http:      client,
		accessKey: cfg.AccessKey,
		secretKey: cfg.SecretKey,
		pageSize:  pageSize,
		loc:       loc,
	}, nil
}

// sign computes the Authorization header for method and path.
func (c *Client) sign(method, path string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(method + "$" + path + "$"))
	return c.accessKey + ":" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type envelope struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"requestId"`
	Data      json.RawMessage `json:"data"`
}

type listRequest struct {
	Size            int     `json:"size"`
	NextCursor      *string `json:"nextCursor,omitempty"`
	CreateSince     string  `json:"createSince,omitempty"`
	CreateTo        string  `json:"createTo,omitempty"`
	LastUpdateSince string  `json:"lastUpdateSince,omitempty"`
	LastUpdateTo    string  `json:"lastUpdateTo,omitempty"`
}

type listPage struct {
	Content    json.RawMessage `json:"content"`
	NextCursor *string         `json:"nextCursor"`
}

type batchGetRequest struct {
	OrderIDs []string `json:"orderIds"`
}

// post sends a signed POST and returns the data field of a SUCCESS envelope.
func (c *Client) post(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	var env envelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", c.sign(http.MethodPost, path)).
		SetBody(body).
		SetResult(&env).
		SetError(&env).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("failed to call ginee %s: %w", path, err)
	}

	if resp.IsError() || env.Code != codeSuccess {
		return nil, &APIError{
			Path:       path,
			StatusCode: resp.StatusCode(),
			Code:       env.Code,
			Message:    env.Message,
			RequestID:  env.RequestID,
		}
	}
	return env.Data, nil
}

// list pages through list-order until the cursor runs out.
func (c *Client) list(ctx context.Context, req listRequest) (projection.RecordSet, error) {
	req.Size = c.pageSize
	out := projection.RecordSet{}
	seen := map[string]struct{}{}

	for page := 0; page < maxPages; page++ {
		data, err := c.post(ctx, listOrderPath, req)
		if err != nil {
			return nil, err
		}

		var p listPage
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: list-order data: %v", projection.ErrShape, err)
		}
		records, err := projection.ParseRecordSet(p.Content)
		if err != nil {
			return nil, fmt.Errorf("list-order content: %w", err)
		}
		out = append(out, records...)

		if p.NextCursor == nil || *p.NextCursor == "" || len(records) == 0 {
			return out, nil
		}
		if _, dup := seen[*p.NextCursor]; dup {
			return nil, fmt.Errorf("ginee list-order repeated cursor %q", *p.NextCursor)
		}
		seen[*p.NextCursor] = struct{}{}
		req.NextCursor = p.NextCursor
	}
	return nil, fmt.Errorf("ginee list-order exceeded %d pages", maxPages)
}

// FetchByDate lists every order created on the calendar day of day in the
// client's timezone.
func (c *Client) FetchByDate(ctx context.Context, day time.Time) (projection.RecordSet, error) {
	params := domain.DayParameters(day, c.loc)
	logger.CtxDebug(ctx, "Fetching orders created %s..%s", params.CreateSince, params.CreateTo)
	return c.list(ctx, listRequest{
		CreateSince: params.CreateSince,
		CreateTo:    params.CreateTo,
	})
}

// FetchByWindow lists every order last updated within [since, to].
func (c *Client) FetchByWindow(ctx context.Context, since, to time.Time) (projection.RecordSet, error) {
	return c.list(ctx, listRequest{
		LastUpdateSince: since.UTC().Format(domain.WindowLayout),
		LastUpdateTo:    to.UTC().Format(domain.WindowLayout),
	})
}

// FetchDetails returns full order documents, including items, for the given
// ids. Requests are split into chunks of MaxBatchGet.
func (c *Client) FetchDetails(ctx context.Context, orderIDs []string) (projection.RecordSet, error) {
	out := projection.RecordSet{}
	for start := 0; start < len(orderIDs); start += MaxBatchGet {
		end := min(start+MaxBatchGet, len(orderIDs))
		data, err := c.post(ctx, batchGetPath, batchGetRequest{OrderIDs: orderIDs[start:end]})
		if err != nil {
			return nil, err
		}
		records, err := projection.ParseRecordSet(data)
		if err != nil {
			return nil, fmt.Errorf("batch-get data: %w", err)
		}
		out = append(out, records...)
	}
	return out, nil
}
