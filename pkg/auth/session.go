package auth

import "sync"

// Session is one browser authentication attempt. Its live resources
// are owned by the manager's monitor goroutine and released when the
// session reaches a terminal status; the status record remains
// queryable afterwards.
type Session struct {
	ID string

	mu      sync.Mutex
	browser browserHandle
	context browsingContext
	page    monitoredPage

	status      Status
	err         string
	cookieCount int
	hasCSRF     bool
}

// currentPage returns the page the user is interacting with right now.
// The popup callback may swap it mid-flow, so the monitor dereferences
// it fresh on every poll instead of holding a stale handle.
func (s *Session) currentPage() monitoredPage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// setPage re-targets the session at a newly created page (federated
// login popups open a second tab the user continues in).
func (s *Session) setPage(p monitoredPage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page != nil {
		s.page = p
	}
}

func (s *Session) browsingContext() browsingContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context
}

// finish moves the session to a terminal status. Transitions out of a
// terminal status are ignored.
func (s *Session) finish(status Status, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.status = status
	s.err = errMsg
}

// complete records a successful harvest and moves to completed.
func (s *Session) complete(cookieCount int, hasCSRF bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.status = StatusCompleted
	s.cookieCount = cookieCount
	s.hasCSRF = hasCSRF
}

// snapshot returns the session's queryable state.
func (s *Session) snapshot() StatusRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatusRecord{
		Status:      s.status,
		Error:       s.err,
		CookieCount: s.cookieCount,
		HasCSRF:     s.hasCSRF,
	}
}

// takeResources clears and returns the session's live handles. Called
// exactly-once semantics are not required; a second call returns nils,
// which makes cleanup safe to invoke again at process shutdown.
func (s *Session) takeResources() (monitoredPage, browsingContext, browserHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ctx, browser := s.page, s.context, s.browser
	s.page, s.context, s.browser = nil, nil, nil
	return page, ctx, browser
}
