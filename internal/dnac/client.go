package dnac

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"dnac-sync/internal/metrics"
)

// API paths used by the sync
const (
	authTokenPath     = "/dna/system/api/v1/auth/token"
	networkDevicePath = "/dna/intent/api/v1/network-device"
	sitePath          = "/dna/intent/api/v1/site"
	siteCountPath     = "/dna/intent/api/v1/site/count"
	membershipPath    = "/dna/intent/api/v1/membership/"
)

// ErrUnauthorized is returned when the controller rejects the credentials or token
var ErrUnauthorized = errors.New("dnac: unauthorized")

// APIError is returned for any HTTP response with status >= 400
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("dnac %s: HTTP %d: %s", e.Endpoint, e.StatusCode, body)
}

// Unwrap lets errors.Is(err, ErrUnauthorized) match 401 responses
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Credentials identify one controller and the account used against it
type Credentials struct {
	Hostname string
	Username string
	Password string
	Verify   bool
}

// Options tune the HTTP transport of a client
type Options struct {
	Timeout time.Duration
	Logger  logrus.FieldLogger
	// Transport replaces the default transport, mostly for tests
	Transport http.RoundTripper
}

// Client is an authenticated session against one DNA Center controller
type Client struct {
	httpClient *http.Client
	baseURL    string
	hostname   string
	token      string
	logger     logrus.FieldLogger
}

// Login authenticates against the controller and returns a session
func Login(ctx context.Context, creds Credentials, opts Options) (*Client, error) {
	if creds.Hostname == "" {
		return nil, fmt.Errorf("hostname is required")
	}

	baseURL, err := BaseURL(creds.Hostname)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig:       &tls.Config{InsecureSkipVerify: !creds.Verify},
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			ExpectContinueTimeout: 1 * time.Second,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		}
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		baseURL:    baseURL,
		hostname:   creds.Hostname,
		logger:     logger,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+authTokenPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth request: %w", err)
	}
	req.SetBasicAuth(creds.Username, creds.Password)
	req.Header.Set("Content-Type", "application/json")

	body, err := c.send(req, "auth-token")
	if err != nil {
		return nil, err
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to decode auth response: %w", err)
	}
	if token.Token == "" {
		return nil, fmt.Errorf("dnac auth-token: empty token in response")
	}
	c.token = token.Token

	return c, nil
}

// BaseURL derives the controller URL from a configured hostname. A bare
// hostname gets the https scheme.
func BaseURL(hostname string) (string, error) {
	raw := strings.TrimSuffix(strings.TrimSpace(hostname), "/")
	if !strings.HasPrefix(raw, "https://") && !strings.HasPrefix(raw, "http://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid controller hostname %q", hostname)
	}

	return raw, nil
}

// Hostname returns the configured hostname of the controller
func (c *Client) Hostname() string {
	return c.hostname
}

// DeviceList returns one page of the network-device list
func (c *Client) DeviceList(ctx context.Context, offset, limit int) ([]Device, error) {
	var env envelope[[]Device]
	if err := c.get(ctx, "network-device", networkDevicePath, pageQuery(offset, limit), &env); err != nil {
		return nil, err
	}
	return env.Response, nil
}

// Sites returns one page of the site list
func (c *Client) Sites(ctx context.Context, offset, limit int) ([]Site, error) {
	var env envelope[[]Site]
	if err := c.get(ctx, "site", sitePath, pageQuery(offset, limit), &env); err != nil {
		return nil, err
	}
	return env.Response, nil
}

// SiteCount returns the number of sites known to the controller
func (c *Client) SiteCount(ctx context.Context) (int, error) {
	var env envelope[int]
	if err := c.get(ctx, "site-count", siteCountPath, nil, &env); err != nil {
		return 0, err
	}
	return env.Response, nil
}

// Membership returns the devices assigned to a site
func (c *Client) Membership(ctx context.Context, siteID string) (*Membership, error) {
	if siteID == "" {
		return nil, fmt.Errorf("site id is required")
	}

	var membership Membership
	if err := c.get(ctx, "membership", membershipPath+url.PathEscape(siteID), nil, &membership); err != nil {
		return nil, err
	}
	return &membership, nil
}

// Close releases idle connections
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, dest interface{}) error {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Auth-Token", c.token)
	req.Header.Set("Accept", "application/json")

	body, err := c.send(req, endpoint)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}

	return nil
}

// send executes a single request. There is no retry.
func (c *Client) send(req *http.Request, endpoint string) ([]byte, error) {
	start := time.Now()

	c.logger.WithFields(logrus.Fields{
		"method":   req.Method,
		"endpoint": endpoint,
		"url":      req.URL.Redacted(),
	}).Debug("Making DNAC request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordDNACRequest(endpoint, 0, time.Since(start))
		return nil, fmt.Errorf("dnac %s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.RecordDNACRequest(endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response body: %w", endpoint, err)
	}

	c.logger.WithFields(logrus.Fields{
		"endpoint":    endpoint,
		"status_code": resp.StatusCode,
		"body_length": len(body),
	}).Debug("DNAC response received")

	if resp.StatusCode >= 400 {
		return nil, &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

func pageQuery(offset, limit int) url.Values {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	return q
}
