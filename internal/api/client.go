package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"github.com/meong5670/InfinitarLockin/internal/metrics"
)

const (
	defaultTimeout   = 20 * time.Second
	defaultRetryWait = 2 * time.Second
	maxRetries       = 3
	defaultHistory   = 30
)

// Client calls the attendance backend. All methods retry only on HTTP 503
// (up to 3 retries with a fixed wait — a 503 means the request was not
// processed, so the replay is safe); every other failure is surfaced
// immediately as an *Error.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	// RetryWait is the pause between 503 attempts. Tests shorten it.
	RetryWait time.Duration
}

// New creates a client with the fixed 20s connect/read bound.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:   baseURL,
		HTTP:      &http.Client{Timeout: defaultTimeout},
		RetryWait: defaultRetryWait,
	}
}

// Register enrolls this device under the given employee name.
func (c *Client) Register(ctx context.Context, name, deviceID string) (*RegisterResponse, error) {
	var out RegisterResponse
	err := c.do(ctx, "register", func() (*http.Request, error) {
		return c.jsonRequest(ctx, http.MethodPost, "/api/employees/register", registerRequest{Name: name, DeviceID: deviceID})
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckIdentity resolves the registration state for a device id.
func (c *Client) CheckIdentity(ctx context.Context, deviceID string) (*CheckResponse, error) {
	var out CheckResponse
	err := c.do(ctx, "check_identity", func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/employees/check/"+url.PathEscape(deviceID), nil)
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify forwards raw co-presence evidence for the backend to judge.
func (c *Client) Verify(ctx context.Context, ev Evidence) (*VerifyResponse, error) {
	var out VerifyResponse
	err := c.do(ctx, "verify", func() (*http.Request, error) {
		return c.jsonRequest(ctx, http.MethodPost, "/api/attendance/verify", ev)
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitClockIn uploads the clock-in as a multipart form: employeeId,
// deviceId and the JPEG photo part.
func (c *Client) SubmitClockIn(ctx context.Context, employeeID int, deviceID, photoName string, photo []byte) (*SubmitResponse, error) {
	var out SubmitResponse
	err := c.do(ctx, "submit_clock_in", func() (*http.Request, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		_ = w.WriteField("employeeId", strconv.Itoa(employeeID))
		_ = w.WriteField("deviceId", deviceID)

		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename=%q`, photoName))
		hdr.Set("Content-Type", "image/jpeg")
		part, err := w.CreatePart(hdr)
		if err != nil {
			return nil, fmt.Errorf("create photo part: %w", err)
		}
		if _, err := io.Copy(part, bytes.NewReader(photo)); err != nil {
			return nil, fmt.Errorf("write photo part: %w", err)
		}
		w.Close()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/attendance/submit", bytes.NewReader(buf.Bytes()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitClockOut closes today's open attendance row.
func (c *Client) SubmitClockOut(ctx context.Context, employeeID int, deviceID string) (*SubmitResponse, error) {
	var out SubmitResponse
	err := c.do(ctx, "submit_clock_out", func() (*http.Request, error) {
		return c.jsonRequest(ctx, http.MethodPost, "/api/attendance/clock-out", clockOutRequest{EmployeeID: employeeID, DeviceID: deviceID})
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchHistory returns the most recent attendance rows, newest first.
func (c *Client) FetchHistory(ctx context.Context, employeeID, limit int) (*HistoryResponse, error) {
	if limit <= 0 {
		limit = defaultHistory
	}
	var out HistoryResponse
	err := c.do(ctx, "fetch_history", func() (*http.Request, error) {
		u := fmt.Sprintf("%s/api/attendance/history/%d?limit=%d", c.BaseURL, employeeID, limit)
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// do runs one logical call. build is invoked per attempt so body readers are
// fresh on every 503 replay.
func (c *Client) do(ctx context.Context, op string, build func() (*http.Request, error), out any) error {
	var resp *http.Response
	for attempt := 0; ; attempt++ {
		req, err := build()
		if err != nil {
			metrics.BackendRequests.WithLabelValues(op, "network_error").Inc()
			return networkErr(err)
		}

		resp, err = c.HTTP.Do(req)
		if err != nil {
			metrics.BackendRequests.WithLabelValues(op, "network_error").Inc()
			return networkErr(err)
		}

		if resp.StatusCode != http.StatusServiceUnavailable || attempt >= maxRetries {
			break
		}

		resp.Body.Close()
		metrics.BackendRetries.WithLabelValues(op).Inc()
		select {
		case <-time.After(c.RetryWait):
		case <-ctx.Done():
			metrics.BackendRequests.WithLabelValues(op, "network_error").Inc()
			return networkErr(ctx.Err())
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		var envelope struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == "" {
			if err != nil {
				metrics.BackendRequests.WithLabelValues(op, "parse_error").Inc()
				return parseErr(resp.StatusCode)
			}
			metrics.BackendRequests.WithLabelValues(op, "server_error").Inc()
			return serverErr(resp.StatusCode, "")
		}
		metrics.BackendRequests.WithLabelValues(op, "server_error").Inc()
		return serverErr(resp.StatusCode, envelope.Error)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.BackendRequests.WithLabelValues(op, "parse_error").Inc()
		return parseErr(resp.StatusCode)
	}
	metrics.BackendRequests.WithLabelValues(op, "ok").Inc()
	return nil
}
