package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

// Zone is a zone as the provider reports it.
type Zone struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Record is a record as the provider reports it.
type Record struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	TTL      int    `json:"ttl"`
	Disabled bool   `json:"disabled"`
}

// RecordSpec is the shape the provider expects for record creation.
type RecordSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	TTL      int    `json:"ttl"`
	Disabled bool   `json:"disabled"`
}

// Config carries the per-client settings. APIKey is the combined
// bulk-identifier-dot-secret the provider expects in X-API-Key.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// Client is a resilient wrapper over the provider's REST API. It
// retries transport-level failures with exponential backoff; any HTTP
// response, success or failure, is final for that attempt and never
// retried at this level (writes are not deduplicated provider-side).
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retries    int
	retryDelay time.Duration
	log        logr.Logger
}

func New(log logr.Logger, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retries:    cfg.Retries,
		retryDelay: cfg.RetryDelay,
		log:        log,
	}
}

// do executes one request with retry on transport errors only. The
// last attempt's failure is surfaced, never swallowed.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("provider: marshal request body: %w", err)
		}
		payload = data
	}

	url := c.baseURL + "/" + strings.TrimLeft(path, "/")

	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("provider: build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-API-Key", c.apiKey)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err == nil {
			c.log.V(1).Info("provider request", "method", method, "path", path, "status", resp.StatusCode)
			return resp, nil
		}

		lastErr = err
		c.log.V(1).Info("provider request failed", "method", method, "path", path,
			"attempt", attempt+1, "retries", c.retries, "error", err.Error())

		if attempt < c.retries-1 {
			if err := sleepCtx(ctx, c.retryDelay<<attempt); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("provider: %s %s failed after %d attempts: %w", method, path, c.retries, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func readBody(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return strings.TrimSpace(string(data))
}

// Zones fetches all zones visible to the credential.
func (c *Client) Zones(ctx context.Context) ([]Zone, error) {
	resp, err := c.do(ctx, http.MethodGet, "/zones", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Method: http.MethodGet, Path: "/zones", Status: resp.StatusCode, Body: readBody(resp)}
	}

	var zones []Zone
	if err := json.NewDecoder(resp.Body).Decode(&zones); err != nil {
		return nil, fmt.Errorf("provider: decode zones response: %w", err)
	}
	return zones, nil
}

// ZoneRecords fetches a zone's records. A 404 here is the zone
// itself, surfaced as ErrZoneNotFound.
func (c *Client) ZoneRecords(ctx context.Context, zoneID string) ([]Record, error) {
	path := "/zones/" + zoneID
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("zone %s: %w", zoneID, ErrZoneNotFound)
	default:
		return nil, &StatusError{Method: http.MethodGet, Path: path, Status: resp.StatusCode, Body: readBody(resp)}
	}

	var detail struct {
		Records []Record `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return nil, fmt.Errorf("provider: decode zone response: %w", err)
	}
	return detail.Records, nil
}

// UpdateRecord rewrites a record's content and TTL. A single 401 is
// retried once because the provider's auth is transiently flaky; a
// second 401 is fatal for the call. 429 is surfaced immediately. A
// 404 carrying the provider's record-not-found code becomes
// ErrRecordNotFound so the caller can run orphan recovery; any other
// 404 stays a plain status error.
func (c *Client) UpdateRecord(ctx context.Context, zoneID, recordID, content string, ttl int) error {
	path := "/zones/" + zoneID + "/records/" + recordID
	body := map[string]any{
		"content":  content,
		"ttl":      ttl,
		"disabled": false,
	}

	const authAttempts = 2
	for attempt := 0; attempt < authAttempts; attempt++ {
		resp, err := c.do(ctx, http.MethodPut, path, body)
		if err != nil {
			return err
		}

		switch resp.StatusCode {
		case http.StatusOK:
			resp.Body.Close()
			return nil

		case http.StatusUnauthorized:
			resp.Body.Close()
			if attempt < authAttempts-1 {
				c.log.Info("authentication failed, retrying once", "record_id", recordID)
				if err := sleepCtx(ctx, c.retryDelay); err != nil {
					return err
				}
				continue
			}
			return &StatusError{Method: http.MethodPut, Path: path, Status: resp.StatusCode, Body: "authentication failed"}

		case http.StatusTooManyRequests:
			resp.Body.Close()
			return fmt.Errorf("record %s: %w", recordID, ErrRateLimited)

		case http.StatusNotFound:
			var errBody struct {
				Code string `json:"code"`
			}
			raw := readBody(resp)
			resp.Body.Close()
			_ = json.Unmarshal([]byte(raw), &errBody)
			if errBody.Code == "RECORD_NOT_FOUND" {
				return fmt.Errorf("record %s: %w", recordID, ErrRecordNotFound)
			}
			return &StatusError{Method: http.MethodPut, Path: path, Status: resp.StatusCode, Body: raw}

		default:
			se := &StatusError{Method: http.MethodPut, Path: path, Status: resp.StatusCode, Body: readBody(resp)}
			resp.Body.Close()
			return se
		}
	}
	return nil
}

// CreateRecords submits a batch of record specs.
func (c *Client) CreateRecords(ctx context.Context, zoneID string, specs []RecordSpec) error {
	path := "/zones/" + zoneID + "/records"
	resp, err := c.do(ctx, http.MethodPost, path, specs)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return &StatusError{Method: http.MethodPost, Path: path, Status: resp.StatusCode, Body: readBody(resp)}
	}
	return nil
}

// DeleteRecord removes a record at the provider. A confirmed-absent
// 404 maps to ErrRecordNotFound; deleting an already-gone record is
// usually fine for the caller.
func (c *Client) DeleteRecord(ctx context.Context, zoneID, recordID string) error {
	path := "/zones/" + zoneID + "/records/" + recordID
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		var errBody struct {
			Code string `json:"code"`
		}
		raw := readBody(resp)
		_ = json.Unmarshal([]byte(raw), &errBody)
		if errBody.Code == "RECORD_NOT_FOUND" {
			return fmt.Errorf("record %s: %w", recordID, ErrRecordNotFound)
		}
		return &StatusError{Method: http.MethodDelete, Path: path, Status: resp.StatusCode, Body: raw}
	default:
		return &StatusError{Method: http.MethodDelete, Path: path, Status: resp.StatusCode, Body: readBody(resp)}
	}
}
