// Package beacon is the device side of the protocol: it reports "alive"
// to the service by hitting the update endpoint on a schedule, optionally
// gated by an ICMP probe so a host with no connectivity does not claim to
// be up through a cached or proxied route.
//
// The endpoint answers with plain text (the seconds since the previous
// check-in, or a diagnostic like "bad token" / "too often") and a Refresh
// header carrying the interval the server wants the device to use next.
package beacon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-ping/ping"
	"go.uber.org/zap"
)

// Probe checks local connectivity before a check-in.
type Probe func(ctx context.Context) error

// Beacon periodically checks in with the service.
type Beacon struct {
	url      string
	interval time.Duration
	http     *http.Client
	probe    Probe
	log      *zap.Logger
}

// Option configures a Beacon.
type Option func(*Beacon)

// WithProbe gates every check-in on a connectivity probe; a failed probe
// skips the check-in, letting the server record the outage.
func WithProbe(p Probe) Option {
	return func(b *Beacon) { b.probe = p }
}

// WithHTTPClient substitutes the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Beacon) { b.http = c }
}

// New creates a Beacon for the update URL, starting at the given interval.
// The server may adjust the interval via the Refresh response header.
func New(url string, interval time.Duration, log *zap.Logger, opts ...Option) *Beacon {
	b := &Beacon{
		url:      url,
		interval: interval,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run checks in repeatedly until ctx is cancelled. Check-in failures are
// logged and retried on the next tick; from the server's point of view a
// missed check-in is exactly what an outage looks like.
func (b *Beacon) Run(ctx context.Context) error {
	for {
		b.tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.interval):
		}
	}
}

func (b *Beacon) tick(ctx context.Context) {
	if b.probe != nil {
		if err := b.probe(ctx); err != nil {
			b.log.Warn("connectivity probe failed, skipping check-in", zap.Error(err))
			return
		}
	}
	if err := b.CheckIn(ctx); err != nil {
		b.log.Warn("check-in failed", zap.Error(err))
	}
}

// CheckIn performs one check-in and applies the server's interval hint.
func (b *Beacon) CheckIn(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url, nil)
	if err != nil {
		return err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return err
	}
	text := strings.TrimSpace(string(body))

	switch text {
	case "bad token":
		return fmt.Errorf("check-in rejected: bad token")
	case "too often":
		b.log.Debug("check-in throttled")
	default:
		if text != "" {
			b.log.Debug("checked in", zap.String("downtime_recorded", text))
		}
	}

	if hint := resp.Header.Get("Refresh"); hint != "" {
		if secs, err := strconv.Atoi(hint); err == nil && secs > 0 {
			next := time.Duration(secs) * time.Second
			if next != b.interval {
				b.log.Info("interval adjusted by server",
					zap.Duration("from", b.interval), zap.Duration("to", next))
				b.interval = next
			}
		}
	}
	return nil
}

// Interval returns the current check-in interval, after any server hints.
func (b *Beacon) Interval() time.Duration { return b.interval }

// ICMPProbe returns a Probe that pings target and fails when every packet
// is lost.
func ICMPProbe(target string, timeout time.Duration) Probe {
	return func(ctx context.Context) error {
		pinger, err := ping.NewPinger(target)
		if err != nil {
			return err
		}
		pinger.Count = 3
		pinger.Timeout = timeout
		pinger.SetPrivileged(false)

		done := make(chan error, 1)
		go func() {
			done <- pinger.Run()
		}()

		select {
		case <-ctx.Done():
			pinger.Stop()
			return ctx.Err()
		case err := <-done:
			if err != nil {
				return err
			}
		}

		if pinger.Statistics().PacketsRecv == 0 {
			return fmt.Errorf("probe %s: no packets received", target)
		}
		return nil
	}
}
