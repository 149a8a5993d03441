package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jzx17/goretry/pkg/types"
)

// maxBodySize caps how much of a response body Fetch reads
const maxBodySize = 1 << 10

// Client calls the unstable endpoint
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a client for the endpoint at baseURL
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// BaseURL returns the endpoint root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Fetch requests /unstableApi/{status} and returns the integer echoed by the endpoint.
//
// Transport failures and non-2xx responses are returned as *types.RemoteAccessError.
// A 2xx response whose body is not an integer is a *types.TerminalError.
func (c *Client) Fetch(ctx context.Context, status int) (int, error) {
	url := fmt.Sprintf("%s%s/%d", c.baseURL, UnstablePath, status)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, types.NewTerminalError(fmt.Errorf("build request: %w", err))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Info("try get unstable api failed", zap.String("url", url), zap.Error(err))
		return 0, types.NewRemoteAccessError(0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, types.NewRemoteAccessError(resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Info("try get unstable api failed",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode))
		return 0, types.NewRemoteAccessError(resp.StatusCode,
			fmt.Errorf("unexpected status %s", resp.Status))
	}

	value, err := strconv.Atoi(strings.TrimSpace(string(body)))
	if err != nil {
		return 0, types.NewTerminalError(fmt.Errorf("parse body %q: %w", body, err))
	}
	return value, nil
}
