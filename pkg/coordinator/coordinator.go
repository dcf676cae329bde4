// Package coordinator periodically pulls dashboard data through the
// authenticated client and recovers from session expiry with a bounded
// protocol: refresh credentials once, retry once, then fail loudly. If
// expiry persists after a fresh credential read the credentials
// themselves are invalid and only a human re-authentication helps, so
// the coordinator never retries past that point on its own.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/parentsync/parentsync/pkg/dashboard"
	"github.com/parentsync/parentsync/pkg/logging"
)

// DefaultInterval is the scheduled refresh cadence.
const DefaultInterval = 60 * time.Second

// reauthNotificationID deduplicates the re-authentication alert at the
// notification sink.
const reauthNotificationID = "parentsync_auth_expired"

// ErrUpdateFailed wraps every terminal refresh-cycle failure.
var ErrUpdateFailed = errors.New("coordinator: update failed")

// Client is the slice of the dashboard client the coordinator drives.
type Client interface {
	GetHousehold(ctx context.Context) ([]dashboard.HouseholdMember, error)
	GetDevices(ctx context.Context) ([]dashboard.Device, error)
	GetTimeLimits(ctx context.Context, childDirectedID string) (dashboard.ChildSchedule, error)
	PauseLimits(ctx context.Context, directedIDs []string, duration time.Duration) error
	ResumeLimits(ctx context.Context, directedIDs []string) error
	RefreshSession(ctx context.Context) error
}

// Notifier delivers user-facing alerts. Implementations are expected
// to be idempotent per dedupID; the coordinator deduplicates with its
// own flag as well.
type Notifier interface {
	Notify(title, message, dedupID string) error
}

// Snapshot is the last successfully fetched dashboard state.
type Snapshot struct {
	Members    []dashboard.HouseholdMember
	Devices    []dashboard.Device
	Schedules  map[string]dashboard.ChildSchedule
	LastUpdate time.Time
}

// retryState tracks the expiry-recovery protocol. Owned by the single
// refresh worker; every exit path of a cycle returns it to idle.
type retryState int

const (
	retryIdle retryState = iota
	retryInFlight
)

// Coordinator owns the periodic refresh loop.
type Coordinator struct {
	client   Client
	notifier Notifier
	log      *logging.Logger
	interval time.Duration

	// Touched only by the refresh worker
	state            retryState
	notificationSent bool

	mu       sync.RWMutex
	snapshot Snapshot

	trigger chan struct{}
}

// New creates a coordinator. An interval of zero selects
// DefaultInterval.
func New(client Client, notifier Notifier, log *logging.Logger, interval time.Duration) *Coordinator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Coordinator{
		client:   client,
		notifier: notifier,
		log:      log,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
}

// Run executes refresh cycles until ctx is cancelled: one immediately,
// then on every tick and on every RequestRefresh. Cycle failures are
// logged and the loop continues; the next cycle is a fresh external
// trigger per the retry policy.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.Refresh(ctx); err != nil {
		c.log.Errorf("initial refresh failed: %v", err)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-c.trigger:
		}
		if err := c.Refresh(ctx); err != nil {
			c.log.Errorf("refresh failed: %v", err)
		}
	}
}

// RequestRefresh schedules an immediate refresh cycle. Non-blocking;
// coalesces with an already pending request.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Refresh runs one full fetch cycle with the bounded expiry-recovery
// protocol. Only called from the single refresh worker (or directly in
// tests); it is not safe for concurrent use.
func (c *Coordinator) Refresh(ctx context.Context) error {
	snap, err := c.fetch(ctx)
	if err == nil {
		c.commit(snap)
		return nil
	}

	var expired *dashboard.SessionExpiredError
	if !errors.As(err, &expired) {
		// Only session expiry earns the refresh-and-retry path
		return fmt.Errorf("%w: %v", ErrUpdateFailed, err)
	}

	if c.state != retryIdle {
		// Single-worker design makes this unreachable; kept so a
		// future concurrent trigger cannot loop the retry
		c.notifyReauth()
		return fmt.Errorf("%w: session expired while a retry was already in flight", ErrUpdateFailed)
	}

	c.log.Warnf("session expired, refreshing credentials and retrying once")
	c.state = retryInFlight
	defer func() { c.state = retryIdle }()

	if err := c.client.RefreshSession(ctx); err != nil {
		return fmt.Errorf("%w: credential refresh: %v", ErrUpdateFailed, err)
	}

	snap, err = c.fetch(ctx)
	if err == nil {
		c.commit(snap)
		return nil
	}
	if errors.As(err, &expired) {
		c.log.Errorf("session still expired after credential refresh, re-authentication required")
		c.notifyReauth()
		return fmt.Errorf("%w: session expired after credential refresh", ErrUpdateFailed)
	}
	return fmt.Errorf("%w: retry after credential refresh: %v", ErrUpdateFailed, err)
}

// fetch pulls household, devices, and per-child schedules. A schedule
// failure for one child is logged and skipped unless it is session
// expiry, which aborts the whole fetch so the recovery protocol can
// run.
func (c *Coordinator) fetch(ctx context.Context) (Snapshot, error) {
	members, err := c.client.GetHousehold(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	devices, err := c.client.GetDevices(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	schedules := make(map[string]dashboard.ChildSchedule)
	for _, m := range members {
		if !m.IsChild() {
			continue
		}
		schedule, err := c.client.GetTimeLimits(ctx, m.DirectedID)
		if err != nil {
			var expired *dashboard.SessionExpiredError
			if errors.As(err, &expired) {
				return Snapshot{}, err
			}
			c.log.Warnf("failed to fetch schedule for %s: %v", m.DisplayName(), err)
			continue
		}
		schedules[m.DirectedID] = schedule
	}

	c.log.Debugf("fetched %d members, %d devices, %d schedules", len(members), len(devices), len(schedules))
	return Snapshot{
		Members:    members,
		Devices:    devices,
		Schedules:  schedules,
		LastUpdate: time.Now(),
	}, nil
}

func (c *Coordinator) commit(snap Snapshot) {
	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()
	// A successful fetch re-arms the user alert
	c.notificationSent = false
}

func (c *Coordinator) notifyReauth() {
	if c.notificationSent {
		return
	}
	err := c.notifier.Notify(
		"Parent Dashboard - Authentication Required",
		"Your Amazon session has expired. Open the parentsync auth page and log in again; polling resumes automatically once new credentials are saved.",
		reauthNotificationID,
	)
	if err != nil {
		c.log.Errorf("failed to deliver re-authentication notification: %v", err)
		return
	}
	c.notificationSent = true
}

// Data returns the last successful snapshot. Safe for concurrent use.
func (c *Coordinator) Data() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// ChildByID returns the child member with the given directed ID.
func (c *Coordinator) ChildByID(directedID string) (dashboard.HouseholdMember, bool) {
	for _, m := range c.Data().Members {
		if m.DirectedID == directedID && m.IsChild() {
			return m, true
		}
	}
	return dashboard.HouseholdMember{}, false
}

// DevicesForChild returns all devices assigned to the given child.
func (c *Coordinator) DevicesForChild(directedID string) []dashboard.Device {
	var out []dashboard.Device
	for _, d := range c.Data().Devices {
		if d.ChildDirectedID == directedID {
			out = append(out, d)
		}
	}
	return out
}

// ScheduleForChild returns the last fetched schedule for the child.
func (c *Coordinator) ScheduleForChild(directedID string) (dashboard.ChildSchedule, bool) {
	schedule, ok := c.Data().Schedules[directedID]
	return schedule, ok
}

// PauseLimits suspends a child's time limits and schedules an
// immediate data refresh.
func (c *Coordinator) PauseLimits(ctx context.Context, directedID string, duration time.Duration) error {
	if err := c.client.PauseLimits(ctx, []string{directedID}, duration); err != nil {
		return err
	}
	c.RequestRefresh()
	return nil
}

// ResumeLimits reinstates a child's time limits and schedules an
// immediate data refresh.
func (c *Coordinator) ResumeLimits(ctx context.Context, directedID string) error {
	if err := c.client.ResumeLimits(ctx, []string{directedID}); err != nil {
		return err
	}
	c.RequestRefresh()
	return nil
}
