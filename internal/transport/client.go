package transport

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Guizzs26/msupply-sync/internal/models"
	"github.com/Guizzs26/msupply-sync/pkg/encoding"
	"github.com/Guizzs26/msupply-sync/pkg/metrics"
)

const (
	apiPrefix      = "/sync/v3"
	siteUUIDHeader = "msupply-site-uuid"
)

// ErrUnauthorized is returned when the server rejects the site credentials
var ErrUnauthorized = errors.New("sync server rejected site credentials")

// ServerError is any other non-2xx answer
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("sync server error %d: %s", e.Status, e.Body)
}

type Options struct {
	BaseURL      string
	SiteName     string
	SitePassword string
	SiteID       string
	ServerID     string
	SiteUUID     string
	Timeout      time.Duration
	RateLimit    float64 // requests per second, 0 disables pacing
}

// Client talks to the legacy central server over its queued-records API
type Client struct {
	baseURL      string
	siteName     string
	passwordHash string
	siteID       string
	serverID     string
	siteUUID     string
	http         *http.Client
	limiter      *rate.Limiter
	logger       *slog.Logger
}

func NewClient(opts Options, logger *slog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	sum := sha256.Sum256([]byte(opts.SitePassword))
	return &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		siteName:     opts.SiteName,
		passwordHash: hex.EncodeToString(sum[:]),
		siteID:       opts.SiteID,
		serverID:     opts.ServerID,
		siteUUID:     opts.SiteUUID,
		http:         &http.Client{Timeout: timeout},
		limiter:      limiter,
		logger:       logger.With("component", "transport", "server", opts.BaseURL),
	}
}

type countResponse struct {
	NumRecords int `json:"NumRecords"`
}

type acknowledgeRequest struct {
	SyncIDs []string `json:"SyncIDs"`
}

func (c *Client) Authenticate(ctx context.Context) error {
	err := c.do(ctx, http.MethodGet, "/site", nil, nil, nil)
	c.observe(err)
	return err
}

func (c *Client) RequestInitialDump(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/initial_dump", nil, nil, nil)
}

func (c *Client) PendingCount(ctx context.Context) (int, error) {
	var resp countResponse
	if err := c.do(ctx, http.MethodGet, "/queued_records/count", nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.NumRecords, nil
}

func (c *Client) Pull(ctx context.Context, limit int) ([]models.SyncRecord, error) {
	params := url.Values{"limit": {strconv.Itoa(limit)}}
	var records []models.SyncRecord
	if err := c.do(ctx, http.MethodGet, "/queued_records", params, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) Acknowledge(ctx context.Context, syncIDs []string) error {
	if len(syncIDs) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/acknowledged_records", nil, acknowledgeRequest{SyncIDs: syncIDs}, nil)
}

func (c *Client) Push(ctx context.Context, records []models.SyncRecord) error {
	if len(records) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/queued_records", nil, records, nil)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("from_site", c.siteID)
	params.Set("to_site", c.serverID)
	endpoint := c.baseURL + apiPrefix + path + "?" + params.Encode()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.siteName, c.passwordHash)
	req.Header.Set(siteUUIDHeader, c.siteUUID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: failed to read response: %w", method, path, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &ServerError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}

	decoded, err := encoding.BodyToUTF8(raw, resp.Header.Get("Content-Type"))
	if err != nil {
		return fmt.Errorf("%s %s: failed to decode charset: %w", method, path, err)
	}
	if err := json.Unmarshal(decoded, out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}

func (c *Client) observe(err error) {
	if err != nil {
		metrics.HealthStatus.Set(0)
		c.logger.Warn("Sync server unreachable or rejected credentials", "error", err)
		return
	}
	metrics.HealthStatus.Set(1)
}
