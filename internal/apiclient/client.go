// Package apiclient is the HTTP client for the device command backend.
package apiclient

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

	"aquadeck/internal/model"
)

const defaultUnaryTimeout = 10 * time.Second

type Client struct {
	baseURL      string
	client       *http.Client
	unaryTimeout time.Duration
}

func New(baseURL string) *Client {
	return NewWithClient(baseURL, nil)
}

func NewWithClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       client,
		unaryTimeout: defaultUnaryTimeout,
	}
}

func (c *Client) WithUnaryTimeout(timeout time.Duration) *Client {
	if c == nil {
		return nil
	}
	clone := *c
	clone.unaryTimeout = timeout
	return &clone
}

// RequestError is a non-2xx response. Detail carries the backend's JSON
// "detail" message when the body had one.
type RequestError struct {
	StatusCode int
	Detail     string
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	detail := strings.TrimSpace(e.Detail)
	if detail != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, detail)
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

func (e *RequestError) Retryable() bool {
	if e == nil {
		return false
	}
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout {
		return true
	}
	return e.StatusCode >= 500
}

// Status fetches the full device map.
func (c *Client) Status(ctx context.Context) (map[string]model.DeviceStatus, error) {
	body, err := c.request(ctx, http.MethodGet, "/api/status", nil, nil, false)
	if err != nil {
		return nil, err
	}
	var statuses map[string]model.DeviceStatus
	if err := json.Unmarshal(body, &statuses); err != nil {
		return nil, fmt.Errorf("decode status map: %w", err)
	}
	return statuses, nil
}

// Scan discovers nearby devices. The timeout rides in the query and bounds
// the scan on the backend, so the request is exempt from the unary timeout.
func (c *Client) Scan(ctx context.Context, timeout time.Duration) ([]model.DeviceStatus, error) {
	query := url.Values{}
	if timeout > 0 {
		query.Set("timeout", strconv.Itoa(int(timeout.Seconds())))
	}
	body, err := c.request(ctx, http.MethodGet, "/api/scan", query, nil, true)
	if err != nil {
		return nil, err
	}
	var devices []model.DeviceStatus
	if err := json.Unmarshal(body, &devices); err != nil {
		return nil, fmt.Errorf("decode scan results: %w", err)
	}
	return devices, nil
}

// Connect asks the backend to establish a connection to the device and
// returns its refreshed status.
func (c *Client) Connect(ctx context.Context, address string) (*model.DeviceStatus, error) {
	body, err := c.request(ctx, http.MethodPost, devicePath(address, "connect"), nil, nil, false)
	if err != nil {
		return nil, err
	}
	var status model.DeviceStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("decode device status: %w", err)
	}
	return &status, nil
}

func (c *Client) Disconnect(ctx context.Context, address string) error {
	_, err := c.request(ctx, http.MethodPost, devicePath(address, "disconnect"), nil, nil, false)
	return err
}

// RequestStatus asks the backend to re-read the device's live status.
func (c *Client) RequestStatus(ctx context.Context, address string) error {
	_, err := c.request(ctx, http.MethodPost, devicePath(address, "status"), nil, nil, false)
	return err
}

// ExecuteCommand dispatches one command and returns the server's record of
// it, normally already in a terminal status.
func (c *Client) ExecuteCommand(ctx context.Context, address string, req model.CommandRequest) (*model.CommandRecord, error) {
	body, err := c.request(ctx, http.MethodPost, devicePath(address, "commands"), nil, req, false)
	if err != nil {
		return nil, err
	}
	var rec model.CommandRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decode command record: %w", err)
	}
	return &rec, nil
}

// ListCommands returns the device's recent command records, newest first.
func (c *Client) ListCommands(ctx context.Context, address string, limit int) ([]model.CommandRecord, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.request(ctx, http.MethodGet, devicePath(address, "commands"), query, nil, false)
	if err != nil {
		return nil, err
	}
	var recs []model.CommandRecord
	if err := json.Unmarshal(body, &recs); err != nil {
		return nil, fmt.Errorf("decode command records: %w", err)
	}
	return recs, nil
}

func (c *Client) Configurations(ctx context.Context, address string) (*model.DeviceConfiguration, error) {
	body, err := c.request(ctx, http.MethodGet, devicePath(address, "configurations"), nil, nil, false)
	if err != nil {
		return nil, err
	}
	var conf model.DeviceConfiguration
	if err := json.Unmarshal(body, &conf); err != nil {
		return nil, fmt.Errorf("decode device configuration: %w", err)
	}
	return &conf, nil
}

func (c *Client) PutConfigurations(ctx context.Context, address string, conf *model.DeviceConfiguration) error {
	_, err := c.request(ctx, http.MethodPut, devicePath(address, "configurations"), nil, conf, false)
	return err
}

func (c *Client) PatchNaming(ctx context.Context, address string, upd model.NamingUpdate) error {
	_, err := c.request(ctx, http.MethodPatch, devicePath(address, "configurations")+"/naming", nil, upd, false)
	return err
}

func (c *Client) PatchSettings(ctx context.Context, address string, upd model.SettingsUpdate) error {
	_, err := c.request(ctx, http.MethodPatch, devicePath(address, "configurations")+"/settings", nil, upd, false)
	return err
}

func devicePath(address, suffix string) string {
	return "/api/devices/" + url.PathEscape(address) + "/" + suffix
}

func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any, longLived bool) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	reqCtx := ctx
	if !longLived && c.unaryTimeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > c.unaryTimeout {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.unaryTimeout)
			defer cancel()
		}
	}
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = buf
	}
	req, err := http.NewRequestWithContext(reqCtx, method, u, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &RequestError{
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(payload),
		}
	}
	return payload, nil
}

// errorDetail extracts the "detail" field from an error body. Validation
// failures can carry structured detail, which is passed through as text.
func errorDetail(payload []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || len(envelope.Detail) == 0 {
		return strings.TrimSpace(string(payload))
	}
	var detail string
	if err := json.Unmarshal(envelope.Detail, &detail); err == nil {
		return detail
	}
	return strings.TrimSpace(string(envelope.Detail))
}
