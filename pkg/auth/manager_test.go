package auth

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parentsync/parentsync/pkg/credentials"
	"github.com/parentsync/parentsync/pkg/credentials/store"
	"github.com/parentsync/parentsync/pkg/logging"
)

type fakePage struct {
	mu        sync.Mutex
	urls      []string // consumed one per URL() call; last repeats
	idx       int
	gotoCalls []string
	gotoErr   error
	closed    int
}

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idx < len(p.urls)-1 {
		u := p.urls[p.idx]
		p.idx++
		return u
	}
	return p.urls[len(p.urls)-1]
}

func (p *fakePage) Goto(url string, _ ...playwright.PageGotoOptions) (playwright.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gotoCalls = append(p.gotoCalls, url)
	return nil, p.gotoErr
}

func (p *fakePage) Close(_ ...playwright.PageCloseOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

type fakeContext struct {
	cookies    []playwright.Cookie
	cookiesErr error
	closed     int
}

func (c *fakeContext) Cookies(_ ...string) ([]playwright.Cookie, error) {
	return c.cookies, c.cookiesErr
}

func (c *fakeContext) Close(_ ...playwright.BrowserContextCloseOptions) error {
	c.closed++
	return nil
}

type fakeBrowser struct{ closed int }

func (b *fakeBrowser) Close(_ ...playwright.BrowserCloseOptions) error {
	b.closed++
	return nil
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.AuthTimeout = 100 * time.Millisecond
	cfg.PollInterval = 5 * time.Millisecond
	cfg.InitialGrace = time.Millisecond
	cfg.ConfirmSettle = 0
	return cfg
}

func memStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(afero.NewMemMapFs(), "/share/parentsync")
	require.NoError(t, err)
	return s
}

// newTestSession wires a session with fake browser resources into a
// manager without touching Playwright.
func newTestSession(m *Manager, page *fakePage, ctx *fakeContext) *Session {
	s := &Session{
		ID:      "test-session",
		browser: &fakeBrowser{},
		context: ctx,
		page:    page,
		status:  StatusAuthenticating,
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

func amazonCookies(withCSRF bool) []playwright.Cookie {
	cookies := []playwright.Cookie{
		{Name: "session-id", Value: "abc", Domain: ".amazon.com", Path: "/"},
		{Name: "at-main", Value: "token", Domain: ".amazon.com", Secure: true},
		{Name: "tracker", Value: "x", Domain: ".doubleclick.net"},
	}
	if withCSRF {
		cookies = append(cookies, playwright.Cookie{
			Name: credentials.DefaultCSRFCookieName, Value: "csrf", Domain: "www.amazon.com",
		})
	}
	return cookies
}

func TestMonitorTimeout(t *testing.T) {
	m := NewManager(fastConfig(), memStore(t), logging.Discard())

	page := &fakePage{urls: []string{"https://www.amazon.com/ap/signin?foo=bar"}}
	ctx := &fakeContext{}
	s := newTestSession(m, page, ctx)

	m.monitor(s)

	record := m.SessionStatus(s.ID)
	assert.Equal(t, StatusTimeout, record.Status)
	assert.NotEmpty(t, record.Error)

	// Resources released in page, context, browser order
	assert.Equal(t, 1, page.closed)
	assert.Equal(t, 1, ctx.closed)

	// A second shutdown after everything is torn down must not fail
	require.NoError(t, m.Shutdown())
	require.NoError(t, m.Shutdown())
}

func TestMonitorCompletesAndPersists(t *testing.T) {
	sink := memStore(t)
	m := NewManager(fastConfig(), sink, logging.Discard())

	page := &fakePage{urls: []string{
		"https://www.amazon.com/ap/signin",
		"https://www.amazon.com/ap/mfa?claim=phone",
		"https://www.amazon.com/parentdashboard/home",
	}}
	ctx := &fakeContext{cookies: amazonCookies(true)}
	s := newTestSession(m, page, ctx)

	m.monitor(s)

	record := m.SessionStatus(s.ID)
	require.Equal(t, StatusCompleted, record.Status)
	assert.True(t, record.HasCSRF)
	assert.Equal(t, 3, record.CookieCount) // doubleclick cookie filtered out
	assert.Empty(t, record.Error)

	// Confirmation reload targeted the canonical entry URL
	require.NotEmpty(t, page.gotoCalls)
	assert.Equal(t, m.cfg.EntryURL, page.gotoCalls[0])

	// The bundle landed in the store
	saved, err := sink.Load()
	require.NoError(t, err)
	assert.True(t, saved.Usable(credentials.DefaultCSRFCookieName))
	assert.Equal(t, 3, saved.Len())

	assert.Equal(t, 1, page.closed)
	assert.Equal(t, 1, ctx.closed)
}

func TestMonitorMissingCSRFIsWarningNotFailure(t *testing.T) {
	sink := memStore(t)
	m := NewManager(fastConfig(), sink, logging.Discard())

	page := &fakePage{urls: []string{"https://www.amazon.com/parentdashboard"}}
	ctx := &fakeContext{cookies: amazonCookies(false)}
	s := newTestSession(m, page, ctx)

	m.monitor(s)

	record := m.SessionStatus(s.ID)
	assert.Equal(t, StatusCompleted, record.Status)
	assert.False(t, record.HasCSRF)

	// Saved anyway; some accounts work without the CSRF cookie
	saved, err := sink.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Len())
}

func TestMonitorRetargetsOnPopup(t *testing.T) {
	m := NewManager(fastConfig(), memStore(t), logging.Discard())

	original := &fakePage{urls: []string{"https://www.amazon.com/ap/signin"}}
	popup := &fakePage{urls: []string{"https://www.amazon.com/parentdashboard"}}
	ctx := &fakeContext{cookies: amazonCookies(true)}
	s := newTestSession(m, original, ctx)

	// Simulate the federated-login popup appearing mid-flow
	go func() {
		time.Sleep(20 * time.Millisecond)
		s.setPage(popup)
	}()

	m.monitor(s)

	record := m.SessionStatus(s.ID)
	assert.Equal(t, StatusCompleted, record.Status)
	// The monitor polled the popup, not the original page
	assert.NotEmpty(t, popup.gotoCalls)
}

func TestMonitorCookieReadFailure(t *testing.T) {
	m := NewManager(fastConfig(), memStore(t), logging.Discard())

	page := &fakePage{urls: []string{"https://www.amazon.com/parentdashboard"}}
	ctx := &fakeContext{cookiesErr: errors.New("browser crashed")}
	s := newTestSession(m, page, ctx)

	m.monitor(s)

	record := m.SessionStatus(s.ID)
	assert.Equal(t, StatusError, record.Status)
	assert.Contains(t, record.Error, "browser crashed")
	assert.Equal(t, 1, page.closed)
}

func TestMonitorNoMatchingCookies(t *testing.T) {
	m := NewManager(fastConfig(), memStore(t), logging.Discard())

	page := &fakePage{urls: []string{"https://www.amazon.com/parentdashboard"}}
	ctx := &fakeContext{cookies: []playwright.Cookie{
		{Name: "tracker", Value: "x", Domain: ".doubleclick.net"},
	}}
	s := newTestSession(m, page, ctx)

	m.monitor(s)

	record := m.SessionStatus(s.ID)
	assert.Equal(t, StatusError, record.Status)
	assert.Contains(t, record.Error, "no amazon.com cookies")
}

func TestSessionStatusUnknownID(t *testing.T) {
	m := NewManager(fastConfig(), memStore(t), logging.Discard())
	record := m.SessionStatus("nope")
	assert.Equal(t, StatusNotFound, record.Status)
}

func TestStatusRecordSurvivesCleanup(t *testing.T) {
	m := NewManager(fastConfig(), memStore(t), logging.Discard())

	page := &fakePage{urls: []string{"https://www.amazon.com/parentdashboard"}}
	ctx := &fakeContext{cookies: amazonCookies(true)}
	s := newTestSession(m, page, ctx)

	m.monitor(s)
	require.NoError(t, m.Shutdown())

	// Browser handles are gone but the record is still queryable
	record := m.SessionStatus(s.ID)
	assert.Equal(t, StatusCompleted, record.Status)
	assert.True(t, record.HasCSRF)
}

func TestCleanupIdempotent(t *testing.T) {
	m := NewManager(fastConfig(), memStore(t), logging.Discard())

	page := &fakePage{urls: []string{"https://www.amazon.com/ap/signin"}}
	ctx := &fakeContext{}
	s := newTestSession(m, page, ctx)

	m.cleanupSession(s)
	m.cleanupSession(s)

	assert.Equal(t, 1, page.closed)
	assert.Equal(t, 1, ctx.closed)
}

func TestStartSessionRequiresInitialize(t *testing.T) {
	m := NewManager(fastConfig(), memStore(t), logging.Discard())
	_, err := m.StartSession()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
}

func TestPredicates(t *testing.T) {
	assert.True(t, OnLoginPath("https://www.amazon.com/ap/signin?x=1"))
	assert.True(t, OnLoginPath("https://www.amazon.com/ap/mfa"))
	assert.False(t, OnLoginPath("https://www.amazon.com/parentdashboard"))

	assert.True(t, OnDashboard("https://www.amazon.com/parentdashboard/home"))
	assert.False(t, OnDashboard("https://www.amazon.com/gp/css/homepage.html"))
}

func TestTerminalStatusIsSticky(t *testing.T) {
	s := &Session{status: StatusAuthenticating}
	s.finish(StatusTimeout, "too slow")
	s.finish(StatusError, "later failure")
	s.complete(5, true)

	assert.Equal(t, StatusTimeout, s.snapshot().Status)
	assert.Equal(t, "too slow", s.snapshot().Error)
}
