package auth

import (
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/parentsync/parentsync/pkg/credentials"
)

// Status is the lifecycle state of an authentication session. The
// three terminal states are completed, timeout, and error; a session
// never leaves a terminal state.
type Status string

const (
	// StatusAuthenticating means the browser is open and the user has
	// not finished logging in yet.
	StatusAuthenticating Status = "authenticating"

	// StatusCompleted means credentials were harvested and persisted.
	StatusCompleted Status = "completed"

	// StatusTimeout means the login was not completed within the
	// configured budget.
	StatusTimeout Status = "timeout"

	// StatusError means the monitor hit an unexpected failure.
	StatusError Status = "error"

	// StatusNotFound is reported for unknown session identifiers.
	StatusNotFound Status = "not_found"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusTimeout || s == StatusError
}

// StatusRecord is the queryable snapshot of a session. It remains
// available after the session's browser resources are released.
type StatusRecord struct {
	Status      Status `json:"status"`
	Error       string `json:"error,omitempty"`
	CookieCount int    `json:"cookie_count"`
	HasCSRF     bool   `json:"has_csrf_token"`
}

// CredentialSink receives the harvested bundle. Satisfied by
// store.Store.
type CredentialSink interface {
	Save(credentials.Bundle) error
}

// Config tunes the login flow. The URL predicates and the CSRF cookie
// name encode observed site behavior rather than any stable contract,
// so all of them are swappable here.
type Config struct {
	// EntryURL is the dashboard address the browser is pointed at and
	// re-navigated to for the confirmation reload.
	EntryURL string

	// CookieDomain filters harvested cookies to the target site.
	CookieDomain string

	// CSRFCookie is the distinguished cookie carrying the CSRF token.
	CSRFCookie string

	// Headless runs the browser without a window. Login needs a human,
	// so this is only useful in tests and CI smoke checks.
	Headless bool

	AuthTimeout    time.Duration // total budget for the user to finish logging in
	PollInterval   time.Duration // URL check cadence
	InitialGrace   time.Duration // settle time before the first URL check
	NavTimeout     time.Duration // initial navigation budget
	ConfirmTimeout time.Duration // confirmation reload budget
	ConfirmSettle  time.Duration // wait after the reload for the CSRF cookie to land

	// OnLoginPath reports whether the URL is still inside the login or
	// second-factor flow.
	OnLoginPath func(url string) bool

	// OnDashboard reports whether the URL is inside the dashboard
	// proper. Authentication is detected when OnDashboard holds and
	// OnLoginPath does not; there is no explicit success event from
	// the site.
	OnDashboard func(url string) bool
}

// DefaultConfig returns the configuration tuned against the Amazon
// Parent Dashboard.
func DefaultConfig() Config {
	return Config{
		EntryURL:       "https://www.amazon.com/parentdashboard",
		CookieDomain:   "amazon.com",
		CSRFCookie:     credentials.DefaultCSRFCookieName,
		AuthTimeout:    5 * time.Minute,
		PollInterval:   2 * time.Second,
		InitialGrace:   5 * time.Second,
		NavTimeout:     30 * time.Second,
		ConfirmTimeout: 15 * time.Second,
		ConfirmSettle:  3 * time.Second,
		OnLoginPath:    OnLoginPath,
		OnDashboard:    OnDashboard,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.EntryURL == "" {
		c.EntryURL = def.EntryURL
	}
	if c.CookieDomain == "" {
		c.CookieDomain = def.CookieDomain
	}
	if c.CSRFCookie == "" {
		c.CSRFCookie = def.CSRFCookie
	}
	if c.AuthTimeout == 0 {
		c.AuthTimeout = def.AuthTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = def.PollInterval
	}
	if c.NavTimeout == 0 {
		c.NavTimeout = def.NavTimeout
	}
	if c.ConfirmTimeout == 0 {
		c.ConfirmTimeout = def.ConfirmTimeout
	}
	if c.OnLoginPath == nil {
		c.OnLoginPath = def.OnLoginPath
	}
	if c.OnDashboard == nil {
		c.OnDashboard = def.OnDashboard
	}
	return c
}

// Narrow views of the Playwright handles a session owns. The monitor
// only needs these slices, which keeps it testable without a browser.

type monitoredPage interface {
	URL() string
	Goto(url string, options ...playwright.PageGotoOptions) (playwright.Response, error)
	Close(options ...playwright.PageCloseOptions) error
}

type browsingContext interface {
	Cookies(urls ...string) ([]playwright.Cookie, error)
	Close(options ...playwright.BrowserContextCloseOptions) error
}

type browserHandle interface {
	Close(options ...playwright.BrowserCloseOptions) error
}
