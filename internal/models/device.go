package models

import (
	"fmt"
	"time"
)

// Envelope carries the response status fields the service attaches to
// every JSON reply. Success is signaled by OK (writes) or simply by the
// absence of Error (reads). Alert, when present, is meant for the user.
type Envelope struct {
	OK      bool   `json:"ok,omitempty"`
	Error   string `json:"error,omitempty"`
	Alert   string `json:"alert,omitempty"`
	Blocked bool   `json:"blocked,omitempty"`
}

// Err converts a service-level error field into a Go error.
func (e Envelope) Err() error {
	if e.Error != "" {
		return fmt.Errorf("service error: %s", e.Error)
	}
	if e.Blocked {
		return fmt.Errorf("service error: request blocked")
	}
	return nil
}

// Device is the server-sourced record for one monitored device.
// Timestamps are UTC; a zero Updated means the device has never checked in.
type Device struct {
	Envelope

	ID       int    `json:"id"`
	Title    string `json:"title"`
	Notes    string `json:"notes,omitempty"`
	Country  string `json:"country,omitempty"`
	Location string `json:"location"`
	ISP      string `json:"isp"`
	IP       string `json:"ip,omitempty"`

	Battery        bool   `json:"battery,omitempty"`
	Reserve        bool   `json:"reserve,omitempty"`
	BatteryComment string `json:"battery_comment,omitempty"`
	ReserveComment string `json:"reserve_comment,omitempty"`

	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`

	// Interval is the expected check-in period in seconds.
	Interval int `json:"interval"`

	// DowntimeRaw is the cumulative outage seconds including crossed
	// intervals; DowntimeCorrected excludes them.
	DowntimeRaw       int64 `json:"downtime"`
	DowntimeCorrected int64 `json:"downtime_uncrossed"`

	// Version is an opaque change counter, bumped by the server on any
	// event mutation that does not change the downtime totals.
	Version int `json:"version"`

	Events []Event `json:"events,omitempty"`
}

// Listing is the public device index.
type Listing struct {
	Envelope

	Devices []Device `json:"devices"`
	Total   int      `json:"total"`
}
