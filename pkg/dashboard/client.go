// Package dashboard is the authenticated client for the Amazon Parent
// Dashboard's private AJAX API. It carries the harvested cookie bundle
// in a cookie jar and the CSRF token in a request header, and reports
// 401/403 responses as SessionExpiredError so the refresh coordinator
// can run its one-shot recovery protocol.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/parentsync/parentsync/pkg/credentials"
	"github.com/parentsync/parentsync/pkg/credentials/resolver"
	"github.com/parentsync/parentsync/pkg/logging"
)

// DefaultBaseURL is the dashboard's AJAX API root.
const DefaultBaseURL = "https://www.amazon.com/parentdashboard/ajax"

const (
	endpointHousehold  = "/get-household"
	endpointDevices    = "/get-child-devices"
	endpointTimeLimits = "/get-adjusted-time-limits"
	endpointOffscreen  = "/set-offscreen-time"

	csrfHeader = "x-amzn-csrf"
	refererURL = "https://www.amazon.com/parentdashboard/"
	originURL  = "https://www.amazon.com"
	userAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	requestTimeout = 30 * time.Second
)

// CredentialSource re-resolves credentials on demand. Satisfied by
// resolver.Resolver.
type CredentialSource interface {
	Resolve(ctx context.Context) (resolver.Source, credentials.Bundle, error)
}

// Client issues authenticated requests against the dashboard API.
type Client struct {
	baseURL    string
	source     CredentialSource
	csrfCookie string
	log        *logging.Logger

	mu         sync.Mutex
	httpClient *http.Client
	csrfToken  string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the dashboard API root (tests point it at a
// local server).
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithCSRFCookie overrides the cookie the CSRF token is derived from.
func WithCSRFCookie(name string) Option {
	return func(c *Client) { c.csrfCookie = name }
}

// NewClient creates a client that pulls its credentials from source.
// No network activity happens until the first request.
func NewClient(source CredentialSource, log *logging.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		source:     source,
		csrfCookie: credentials.DefaultCSRFCookieName,
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RefreshSession discards any cached connection state, re-resolves
// credentials from the source, and rebuilds the cookie jar. Returns an
// AuthenticationError when no source yields a non-empty bundle.
func (c *Client) RefreshSession(ctx context.Context) error {
	source, bundle, err := c.source.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	if source == resolver.SourceNone || bundle.Empty() {
		return &AuthenticationError{Reason: "no credentials available from any source"}
	}

	token, hasCSRF := bundle.CSRFToken(c.csrfCookie)
	if !hasCSRF {
		c.log.Warnf("credential bundle lacks CSRF cookie %q", c.csrfCookie)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("refresh session: parse base URL: %w", err)
	}

	// All API calls target the base host, so cookies are stored
	// host-only against it; the bundle's domain attributes were already
	// applied when filtering at harvest time.
	httpCookies := make([]*http.Cookie, 0, bundle.Len())
	for _, ck := range bundle.Cookies {
		cookie := &http.Cookie{
			Name:   ck.Name,
			Value:  ck.Value,
			Path:   ck.Path,
			Secure: ck.Secure,
		}
		if ck.Expires > 0 {
			cookie.Expires = time.Unix(int64(ck.Expires), 0)
		}
		httpCookies = append(httpCookies, cookie)
	}
	jar.SetCookies(base, httpCookies)

	c.mu.Lock()
	c.httpClient = &http.Client{Jar: jar, Timeout: requestTimeout}
	c.csrfToken = token
	c.mu.Unlock()

	c.log.Infof("dashboard session refreshed from %s source (%d cookies)", source, bundle.Len())
	return nil
}

// session returns the current HTTP client and CSRF token, establishing
// the session on first use.
func (c *Client) session(ctx context.Context) (*http.Client, string, error) {
	c.mu.Lock()
	client, token := c.httpClient, c.csrfToken
	c.mu.Unlock()
	if client != nil {
		return client, token, nil
	}
	if err := c.RefreshSession(ctx); err != nil {
		return nil, "", err
	}
	c.mu.Lock()
	client, token = c.httpClient, c.csrfToken
	c.mu.Unlock()
	return client, token, nil
}

func (c *Client) headers(token string, forPost bool) http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Referer", refererURL)
	h.Set(csrfHeader, token)
	if forPost {
		h.Set("Content-Type", "application/json;charset=UTF-8")
		h.Set("Origin", originURL)
	}
	return h
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	client, token, err := c.session(ctx)
	if err != nil {
		return err
	}

	target := c.baseURL + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &NetworkError{Endpoint: endpoint, Err: err}
	}
	req.Header = c.headers(token, false)

	return c.do(client, req, endpoint, out)
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) error {
	client, token, err := c.session(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &NetworkError{Endpoint: endpoint, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return &NetworkError{Endpoint: endpoint, Err: err}
	}
	req.Header = c.headers(token, true)

	return c.do(client, req, endpoint, nil)
}

func (c *Client) do(client *http.Client, req *http.Request, endpoint string, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return &NetworkError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &SessionExpiredError{StatusCode: resp.StatusCode, Endpoint: endpoint}
	case resp.StatusCode != http.StatusOK:
		return &NetworkError{StatusCode: resp.StatusCode, Endpoint: endpoint}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &NetworkError{Endpoint: endpoint, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// GetHousehold fetches the household members.
func (c *Client) GetHousehold(ctx context.Context) ([]HouseholdMember, error) {
	var payload struct {
		Members []HouseholdMember `json:"members"`
	}
	if err := c.get(ctx, endpointHousehold, nil, &payload); err != nil {
		return nil, err
	}
	c.log.Debugf("retrieved %d household members", len(payload.Members))
	return payload.Members, nil
}

// GetDevices fetches all child devices.
func (c *Client) GetDevices(ctx context.Context) ([]Device, error) {
	var payload struct {
		Devices []struct {
			DeviceID       string `json:"deviceId"`
			DeviceTypeID   string `json:"deviceTypeId"`
			DeviceName     string `json:"deviceName"`
			MultiModal     bool   `json:"multiModal"`
			DeviceSettings struct {
				ChildDirectedID string `json:"childDirectedId"`
			} `json:"deviceSettings"`
		} `json:"devices"`
	}
	if err := c.get(ctx, endpointDevices, nil, &payload); err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(payload.Devices))
	for _, d := range payload.Devices {
		devices = append(devices, Device{
			DeviceID:        d.DeviceID,
			DeviceTypeID:    d.DeviceTypeID,
			DeviceName:      d.DeviceName,
			ChildDirectedID: d.DeviceSettings.ChildDirectedID,
			MultiModal:      d.MultiModal,
		})
	}
	c.log.Debugf("retrieved %d devices", len(devices))
	return devices, nil
}

// GetTimeLimits fetches a child's weekly schedule.
func (c *Client) GetTimeLimits(ctx context.Context, childDirectedID string) (ChildSchedule, error) {
	params := url.Values{"childDirectedId": {childDirectedID}}
	var payload struct {
		PeriodConfigurations []DaySchedule `json:"periodConfigurations"`
	}
	if err := c.get(ctx, endpointTimeLimits, params, &payload); err != nil {
		return ChildSchedule{}, err
	}
	return ChildSchedule{
		ChildDirectedID:      childDirectedID,
		PeriodConfigurations: payload.PeriodConfigurations,
	}, nil
}

// PauseLimits suspends time limits for the given children for the
// given duration.
func (c *Client) PauseLimits(ctx context.Context, directedIDs []string, duration time.Duration) error {
	payload := struct {
		DirectedIDs             []string `json:"directedIds"`
		ExpirationTimeInSeconds int64    `json:"expirationTimeInSeconds"`
	}{
		DirectedIDs:             directedIDs,
		ExpirationTimeInSeconds: int64(duration.Seconds()),
	}
	if err := c.post(ctx, endpointOffscreen, payload); err != nil {
		return err
	}
	c.log.Debugf("paused limits for %d children (%s)", len(directedIDs), duration)
	return nil
}

// ResumeLimits reinstates time limits for the given children.
func (c *Client) ResumeLimits(ctx context.Context, directedIDs []string) error {
	return c.PauseLimits(ctx, directedIDs, 0)
}

// Close releases idle connections. The client can be used again
// afterwards; the next request re-establishes the session.
func (c *Client) Close() {
	c.mu.Lock()
	client := c.httpClient
	c.httpClient = nil
	c.csrfToken = ""
	c.mu.Unlock()

	if client != nil {
		client.CloseIdleConnections()
	}
}
