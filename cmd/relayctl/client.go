package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/af-corp/relay/internal/auth"
	"github.com/af-corp/relay/internal/httputil"
)

const defaultTimeout = 2 * time.Minute

type clientOptions struct {
	baseURL string
	secret  string
	userID  string
	teamID  string
	timeout time.Duration
}

// client issues signed requests against the /v1 API.
type client struct {
	opts *clientOptions
	http *http.Client
}

func newClient(opts *clientOptions) *client {
	return &client{opts: opts, http: &http.Client{Timeout: opts.timeout}}
}

func (c *client) get(ctx context.Context, path string, dest any) error {
	return c.do(ctx, http.MethodGet, path, nil, dest)
}

func (c *client) post(ctx context.Context, path string, body, dest any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, data, dest)
}

func (c *client) do(ctx context.Context, method, path string, body []byte, dest any) error {
	url := strings.TrimRight(c.opts.baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.opts.secret != "" {
		ts := time.Now().Unix()
		req.Header.Set(auth.HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(auth.HeaderSignature, auth.Sign(c.opts.secret, ts, body))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr httputil.APIError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%s (%s, HTTP %d)", apiErr.Error.Message, apiErr.Error.Code, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
