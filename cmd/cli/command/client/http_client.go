package client

// http_client.go = talks to the portal's notification API.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"uniportal/internal/admintable"
	"uniportal/internal/microservices/http-api/service"
)

var (
	ErrUnauthorized = errors.New("not authenticated")
	ErrRateLimited  = errors.New("rate limited")
)

// HTTPClient is also an admintable.Backend, so the admin commands drive the
// same controller the portal uses.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

var _ admintable.Backend = (*HTTPClient)(nil)

// constructor for HTTP client
func NewHTTPClient(apiURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// set token for HTTP client
func (c *HTTPClient) SetToken(token string) {
	c.token = token
}

func (c *HTTPClient) List(ctx context.Context, q admintable.Query) (*service.Page, error) {
	params := url.Values{}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.Filters.Kind != nil {
		params.Set("kind", q.Filters.Kind.String())
	}
	if q.Filters.IsRead != nil {
		params.Set("is_read", strconv.FormatBool(*q.Filters.IsRead))
	}
	if q.Filters.OwnerUserID != "" {
		params.Set("owner_id", q.Filters.OwnerUserID)
	}

	path := "/api/notifications"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var page service.Page
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *HTTPClient) MarkRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/api/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

func (c *HTTPClient) MarkUnread(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/api/notifications/"+url.PathEscape(id)+"/unread", nil, nil)
}

func (c *HTTPClient) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/notifications/"+url.PathEscape(id), nil, nil)
}

func (c *HTTPClient) BulkMarkRead(ctx context.Context, ids []string) (service.BulkMarkResult, error) {
	var res service.BulkMarkResult
	err := c.do(ctx, http.MethodPost, "/api/notifications/bulk/read", bulkBody{IDs: ids}, &res)
	return res, err
}

func (c *HTTPClient) BulkMarkUnread(ctx context.Context, ids []string) (service.BulkMarkResult, error) {
	var res service.BulkMarkResult
	err := c.do(ctx, http.MethodPost, "/api/notifications/bulk/unread", bulkBody{IDs: ids}, &res)
	return res, err
}

func (c *HTTPClient) BulkDelete(ctx context.Context, ids []string) (service.BulkDeleteResult, error) {
	var res service.BulkDeleteResult
	err := c.do(ctx, http.MethodPost, "/api/notifications/bulk/delete", bulkBody{IDs: ids}, &res)
	return res, err
}

type bulkBody struct {
	IDs []string `json:"ids"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer response.Body.Close() // Ensure the response body is closed

	if response.StatusCode >= http.StatusBadRequest {
		return statusError(response)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// statusError maps API statuses back onto the service sentinels.
func statusError(response *http.Response) error {
	var body errorBody
	_ = json.NewDecoder(io.LimitReader(response.Body, 64<<10)).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = response.Status
	}

	switch response.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", service.ErrValidation, msg)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", service.ErrForbidden, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", service.ErrNotFound, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, msg)
	default:
		return fmt.Errorf("request failed with status %d: %s", response.StatusCode, msg)
	}
}
