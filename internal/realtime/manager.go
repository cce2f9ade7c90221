// Package realtime keeps one push connection to the uptime service alive
// and subscribed, and tells the active view when to refresh.
//
// The protocol is deliberately small: the client sends one subscribe frame
// "<resource>@<clientKey>" and periodic "." keepalives; the server sends
// "refresh" when the watched resource changes and anything else as a
// keepalive acknowledgment. Liveness is judged by absolute timestamps so
// long machine suspensions are handled correctly, and an independent
// fallback timer bounds staleness even when push delivery fails without a
// detectable transport error.
package realtime

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	keepaliveFrame = "."
	refreshFrame   = "refresh"

	clientKeyLength  = 20
	clientKeyCharset = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Manager owns one logical push connection, one active subscription and
// the keepalive, liveness and fallback timers.
type Manager struct {
	url  string
	dial Dialer
	log  *zap.Logger
	now  func() time.Time

	keepaliveEvery  time.Duration
	livenessTimeout time.Duration
	refreshEvery    time.Duration
	reconnectDelay  time.Duration

	// limiter paces dial attempts at the fixed reconnect interval so a
	// close storm cannot spin the dialer. Bounded simple retry is
	// intentional: reconnects are cheap and infrequent.
	limiter *rate.Limiter

	// clientKey identifies this process to the server, which allows only
	// one socket per key. Stable for the lifetime of the Manager.
	clientKey string

	mu          sync.Mutex
	conn        Conn
	gen         int
	connecting  bool
	closed      bool
	resource    string
	sub         *Subscription
	lastMessage time.Time
	alive       bool
	nextRefresh time.Time
}

// Subscription is the handle returned by Subscribe. Closing it stops
// callback delivery; the connection itself stays up for the next
// subscriber.
type Subscription struct {
	m        *Manager
	resource string
	refresh  func()
}

// Close detaches the subscription's callback. Safe to call more than once.
func (s *Subscription) Close() {
	s.m.mu.Lock()
	if s.m.sub == s {
		s.m.sub = nil
	}
	s.m.mu.Unlock()
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer substitutes the connection dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dial = d }
}

// WithClock substitutes the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTimings overrides the protocol timers.
func WithTimings(keepalive, livenessTimeout, fallbackRefresh, reconnectDelay time.Duration) Option {
	return func(m *Manager) {
		m.keepaliveEvery = keepalive
		m.livenessTimeout = livenessTimeout
		m.refreshEvery = fallbackRefresh
		m.reconnectDelay = reconnectDelay
	}
}

// NewManager creates a Manager for the given push URL. It does not
// connect; the first Subscribe or Run does.
func NewManager(url string, log *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		url:             url,
		dial:            Dial,
		log:             log,
		now:             time.Now,
		keepaliveEvery:  25 * time.Second,
		livenessTimeout: 35 * time.Second,
		refreshEvery:    55 * time.Second,
		reconnectDelay:  2 * time.Second,
		clientKey:       newClientKey(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.limiter = rate.NewLimiter(rate.Every(m.reconnectDelay), 1)
	m.nextRefresh = m.now().Add(m.refreshEvery)
	return m
}

// ClientKey returns the session key used in subscribe frames.
func (m *Manager) ClientKey() string { return m.clientKey }

// Alive reports whether a message has been received recently enough for
// the connection to be considered healthy.
func (m *Manager) Alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive
}

// LastMessageAt returns when the last frame arrived; zero after a close.
func (m *Manager) LastMessageAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastMessage
}

// Resource returns the currently subscribed resource.
func (m *Manager) Resource() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resource
}

// Subscribe updates the active subscription resource and callback, then
// ensures a live, subscribed connection. A healthy existing connection is
// reused by sending a new subscribe frame; subscribing to a new resource
// does not unsubscribe server-side — the server keys delivery by
// (resource, client key) and the previous callback is simply superseded.
func (m *Manager) Subscribe(ctx context.Context, resource string, refresh func()) *Subscription {
	sub := &Subscription{m: m, resource: resource, refresh: refresh}

	m.mu.Lock()
	if resource != "" {
		m.resource = resource
	}
	m.sub = sub
	m.mu.Unlock()

	m.ensure(ctx)
	return sub
}

// ForceReconnect tears down the current connection, ignoring close
// errors, and opens a new one with the current subscription.
func (m *Manager) ForceReconnect(ctx context.Context) {
	m.mu.Lock()
	m.reconnectLocked(ctx)
	m.mu.Unlock()
}

// Run drives the background timers until ctx is cancelled: keepalives and
// liveness checks on one cadence, the unconditional fallback refresh on a
// one-second sweep comparing absolute timestamps (correct across machine
// sleep, unlike elapsed-timer arithmetic).
func (m *Manager) Run(ctx context.Context) {
	keepalive := time.NewTicker(m.keepaliveEvery)
	defer keepalive.Stop()
	fallback := time.NewTicker(time.Second)
	defer fallback.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case <-keepalive.C:
			m.keepaliveTick(ctx)
		case <-fallback.C:
			m.fallbackTick()
		}
	}
}

// keepaliveTick sends the keepalive frame and reconnects when no message
// has arrived within the liveness window. A failed send counts as
// immediate liveness loss.
func (m *Manager) keepaliveTick(ctx context.Context) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn != nil {
		if err := conn.WriteMessage(ctx, keepaliveFrame); err != nil {
			m.log.Warn("keepalive send failed", zap.Error(err))
			m.mu.Lock()
			m.lastMessage = time.Time{}
			m.mu.Unlock()
		}
	}

	m.mu.Lock()
	stale := m.lastMessage.Add(m.livenessTimeout).Before(m.now())
	connecting := m.connecting
	m.mu.Unlock()

	if stale && !connecting {
		m.log.Info("liveness timeout, reconnecting")
		m.ensure(ctx)
	}
}

// fallbackTick invokes the refresh callback whenever the fallback deadline
// has passed, regardless of socket health.
func (m *Manager) fallbackTick() {
	m.mu.Lock()
	var sub *Subscription
	if m.now().After(m.nextRefresh) {
		m.nextRefresh = m.now().Add(m.refreshEvery)
		sub = m.sub
	}
	m.mu.Unlock()

	if sub != nil && sub.refresh != nil {
		m.log.Debug("refresh by timer")
		sub.refresh()
	}
}

// ensure reuses a healthy connection by resubscribing over it, or
// reconnects.
func (m *Manager) ensure(ctx context.Context) {
	m.mu.Lock()
	cmd := m.subscribeFrameLocked()
	conn := m.conn
	healthy := conn != nil && !m.lastMessage.Add(m.livenessTimeout).Before(m.now())
	m.mu.Unlock()

	if healthy {
		if err := conn.WriteMessage(ctx, cmd); err == nil {
			m.log.Debug("subscribed", zap.String("frame", cmd))
			return
		}
		m.log.Warn("subscribe over existing connection failed, reconnecting")
	}

	m.mu.Lock()
	m.reconnectLocked(ctx)
	m.mu.Unlock()
}

func (m *Manager) subscribeFrameLocked() string {
	return m.resource + "@" + m.clientKey
}

// reconnectLocked closes any current connection and starts a single dial.
// Reconnection attempts are serialized: a new connection is not opened
// until the previous one is explicitly closed, and concurrent triggers
// collapse into one attempt.
func (m *Manager) reconnectLocked(ctx context.Context) {
	if m.connecting || m.closed {
		return
	}
	m.connecting = true
	m.alive = false
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.gen++
	go m.connect(ctx, m.gen)
}

func (m *Manager) connect(ctx context.Context, gen int) {
	if err := m.limiter.Wait(ctx); err != nil {
		m.mu.Lock()
		m.connecting = false
		m.mu.Unlock()
		return
	}

	conn, err := m.dial(ctx, m.url)

	m.mu.Lock()
	m.connecting = false
	if err != nil {
		m.mu.Unlock()
		m.log.Warn("dial failed", zap.String("url", m.url), zap.Error(err))
		m.scheduleReconnect(ctx)
		return
	}
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	cmd := m.subscribeFrameLocked()
	m.mu.Unlock()

	m.log.Info("connected", zap.String("url", m.url))
	if err := conn.WriteMessage(ctx, cmd); err != nil {
		m.log.Warn("subscribe failed", zap.Error(err))
		m.handleClose(ctx, gen)
		return
	}
	m.log.Debug("subscribed", zap.String("frame", cmd))

	go m.readLoop(ctx, conn, gen)
}

func (m *Manager) readLoop(ctx context.Context, conn Conn, gen int) {
	for {
		msg, err := conn.ReadMessage(ctx)
		if err != nil {
			m.handleClose(ctx, gen)
			return
		}
		m.handleMessage(msg)
	}
}

// handleMessage processes one inbound frame. "refresh" triggers the
// callback; every frame refreshes liveness bookkeeping.
func (m *Manager) handleMessage(msg string) {
	m.mu.Lock()
	m.lastMessage = m.now()
	m.alive = true
	sub := m.sub
	m.mu.Unlock()

	if msg == refreshFrame {
		m.log.Debug("refresh by push")
		if sub != nil && sub.refresh != nil {
			sub.refresh()
		}
	}
}

// handleClose marks the connection dead and schedules a reconnect after
// the fixed delay. Stale generations (already superseded by a newer
// connection) are ignored.
func (m *Manager) handleClose(ctx context.Context, gen int) {
	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		return
	}
	m.alive = false
	m.lastMessage = time.Time{}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.mu.Unlock()

	m.log.Info("connection closed, reconnecting", zap.Duration("delay", m.reconnectDelay))
	m.scheduleReconnect(ctx)
}

func (m *Manager) scheduleReconnect(ctx context.Context) {
	time.AfterFunc(m.reconnectDelay, func() {
		m.mu.Lock()
		closed := m.closed
		m.mu.Unlock()
		if closed || ctx.Err() != nil {
			return
		}
		m.ensure(ctx)
	})
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	m.closed = true
	m.alive = false
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.mu.Unlock()
}

// newClientKey generates the random session key: 20 characters of
// [a-z0-9], matching what the server expects in subscribe frames.
func newClientKey() string {
	buf := make([]byte, clientKeyLength)
	if _, err := rand.Read(buf); err != nil {
		panic("realtime: reading random bytes: " + err.Error())
	}
	for i, b := range buf {
		buf[i] = clientKeyCharset[int(b)%len(clientKeyCharset)]
	}
	return string(buf)
}
