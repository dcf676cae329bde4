// Package auth drives a headful browser through the Amazon login flow
// and harvests the resulting session cookies. There is no programmatic
// login protocol for the target site (second-factor challenges need a
// human), so the manager opens a real browser, watches the URL until it
// settles inside the dashboard, and persists whatever cookies the
// browsing context holds at that point.
package auth

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/parentsync/parentsync/pkg/credentials"
	"github.com/parentsync/parentsync/pkg/logging"
)

// Claiming to be an ordinary desktop browser keeps the site from
// special-casing automation.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var launchArgs = []string{
	"--no-sandbox",
	"--disable-dev-shm-usage",
	"--disable-blink-features=AutomationControlled",
	"--disable-features=IsolateOrigins,site-per-process",
}

// Manager owns the Playwright engine and all active authentication
// sessions. Sessions are independent: each gets its own browser and
// its own monitor goroutine, and they never share state.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	pw          *playwright.Playwright
	cfg         Config
	sink        CredentialSink
	log         *logging.Logger
	initialized bool
}

// NewManager creates a manager that persists harvested bundles to sink.
func NewManager(cfg Config, sink CredentialSink, log *logging.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg.withDefaults(),
		sink:     sink,
		log:      log,
	}
}

// Initialize installs and starts the Playwright driver. Must be called
// before StartSession.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	// Discard driver output so it does not interleave with our logs
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	m.pw = pw
	m.initialized = true
	return nil
}

// StartSession launches a browser pointed at the dashboard entry URL,
// registers the session as authenticating, and hands monitoring off to
// a goroutine. It returns as soon as the initial navigation completes.
func (m *Manager) StartSession() (string, error) {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return "", fmt.Errorf("auth manager not initialized")
	}
	pw := m.pw
	m.mu.Unlock()

	sessionID := uuid.New().String()
	m.log.Infof("starting authentication session %s", sessionID)

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.cfg.Headless),
		Args:     launchArgs,
	})
	if err != nil {
		return "", fmt.Errorf("failed to launch browser: %w", err)
	}

	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:  playwright.String(userAgent),
		Viewport:   &playwright.Size{Width: 1280, Height: 800},
		Locale:     playwright.String("en-US"),
		TimezoneId: playwright.String("America/New_York"),
	})
	if err != nil {
		browser.Close()
		return "", fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		browser.Close()
		return "", fmt.Errorf("failed to create page: %w", err)
	}

	session := &Session{
		ID:      sessionID,
		browser: browser,
		context: context,
		page:    page,
		status:  StatusAuthenticating,
	}

	// Federated login may open a popup tab; keep monitoring whatever
	// page the user is actually interacting with.
	context.OnPage(func(newPage playwright.Page) {
		m.log.Infof("session %s: new tab detected, re-targeting monitor", sessionID)
		session.setPage(newPage)
	})

	waitUntil := playwright.WaitUntilStateNetworkidle
	if _, err := page.Goto(m.cfg.EntryURL, playwright.PageGotoOptions{
		WaitUntil: waitUntil,
		Timeout:   playwright.Float(float64(m.cfg.NavTimeout.Milliseconds())),
	}); err != nil {
		page.Close()
		context.Close()
		browser.Close()
		return "", fmt.Errorf("failed to open dashboard entry page: %w", err)
	}

	m.mu.Lock()
	m.sessions[sessionID] = session
	m.mu.Unlock()

	go m.monitor(session)

	return sessionID, nil
}

// SessionStatus returns the queryable state of a session. Unknown
// identifiers report StatusNotFound rather than an error.
func (m *Manager) SessionStatus(sessionID string) StatusRecord {
	m.mu.RLock()
	session, ok := m.sessions[sessionID]
	m.mu.RUnlock()

	if !ok {
		return StatusRecord{Status: StatusNotFound}
	}
	return session.snapshot()
}

// monitor polls the session's current page URL until the login
// completes or the budget runs out, then harvests and persists the
// cookies. Runs once per session; every exit path releases the
// session's browser resources.
func (m *Manager) monitor(s *Session) {
	defer m.cleanupSession(s)

	// Let the initial page settle before the first check
	time.Sleep(m.cfg.InitialGrace)

	deadline := time.Now().Add(m.cfg.AuthTimeout)
	authenticated := false

	for time.Now().Before(deadline) {
		page := s.currentPage()
		if page == nil {
			// Resources already released (process shutdown)
			s.finish(StatusError, "session resources were released before login completed")
			return
		}

		currentURL := page.URL()
		m.log.Debugf("session %s: current URL %s", s.ID, currentURL)

		if !m.cfg.OnLoginPath(currentURL) && m.cfg.OnDashboard(currentURL) {
			m.log.Infof("session %s: authentication detected at %s", s.ID, currentURL)

			// The CSRF cookie is only set once the dashboard shell
			// itself loads, not on the post-login redirect, so reload
			// the canonical entry URL and give it a moment.
			waitUntil := playwright.WaitUntilStateNetworkidle
			if _, err := page.Goto(m.cfg.EntryURL, playwright.PageGotoOptions{
				WaitUntil: waitUntil,
				Timeout:   playwright.Float(float64(m.cfg.ConfirmTimeout.Milliseconds())),
			}); err != nil {
				m.log.Warnf("session %s: confirmation reload failed: %v", s.ID, err)
			}
			time.Sleep(m.cfg.ConfirmSettle)

			authenticated = true
			break
		}

		time.Sleep(m.cfg.PollInterval)
	}

	if !authenticated {
		m.log.Errorf("session %s: authentication timeout", s.ID)
		s.finish(StatusTimeout, "authentication timed out before the login was completed")
		return
	}

	if err := m.harvest(s); err != nil {
		m.log.Errorf("session %s: %v", s.ID, err)
		s.finish(StatusError, err.Error())
		return
	}

	m.log.Infof("session %s: authentication completed", s.ID)
}

// harvest reads the browsing context's cookies, filters them to the
// target site, persists the bundle, and records the result.
func (m *Manager) harvest(s *Session) error {
	ctx := s.browsingContext()
	if ctx == nil {
		return fmt.Errorf("session resources were released before cookies could be read")
	}

	raw, err := ctx.Cookies()
	if err != nil {
		return fmt.Errorf("failed to read cookies: %w", err)
	}

	cookies := make([]credentials.Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, credentials.Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Domain:  c.Domain,
			Path:    c.Path,
			Expires: c.Expires,
			Secure:  c.Secure,
		})
	}

	bundle := credentials.Bundle{Cookies: cookies}.FilterDomain(m.cfg.CookieDomain)
	if bundle.Empty() {
		return fmt.Errorf("no %s cookies found after login", m.cfg.CookieDomain)
	}

	_, hasCSRF := bundle.CSRFToken(m.cfg.CSRFCookie)
	if !hasCSRF {
		// Some accounts work without it; saved anyway, flagged in status
		m.log.Warnf("session %s: CSRF cookie %q not found, dashboard requests may fail", s.ID, m.cfg.CSRFCookie)
	}

	if err := m.sink.Save(bundle); err != nil {
		return fmt.Errorf("failed to persist credentials: %w", err)
	}

	m.log.Infof("session %s: saved %d cookies (csrf=%t)", s.ID, bundle.Len(), hasCSRF)
	s.complete(bundle.Len(), hasCSRF)
	return nil
}

// cleanupSession releases the session's browser resources in
// page, context, browser order. Close failures are logged, never
// propagated, and the handles are cleared so a second invocation is a
// no-op.
func (m *Manager) cleanupSession(s *Session) {
	page, ctx, browser := s.takeResources()

	if page != nil {
		if err := page.Close(); err != nil {
			m.log.Warnf("session %s: page close failed: %v", s.ID, err)
		}
	}
	if ctx != nil {
		if err := ctx.Close(); err != nil {
			m.log.Warnf("session %s: context close failed: %v", s.ID, err)
		}
	}
	if browser != nil {
		if err := browser.Close(); err != nil {
			m.log.Warnf("session %s: browser close failed: %v", s.ID, err)
		}
	}
}

// Shutdown releases every session's resources and stops the Playwright
// engine. Safe to call more than once.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	pw := m.pw
	m.pw = nil
	m.initialized = false
	m.mu.Unlock()

	for _, s := range sessions {
		m.cleanupSession(s)
	}

	if pw != nil {
		if err := pw.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
	}
	return nil
}
