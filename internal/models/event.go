package models

import (
	"sort"
	"time"
)

// Event is one historical interval relevant to a device: an outage, an
// address change, or the registration marker. The first event of a device
// has no Started and no OldIP. Address-change events carry no Downtime.
type Event struct {
	// ID is zero for the synthetic "still down" event, which only ever
	// exists in a render snapshot and is never reported by the server.
	ID      int       `json:"id,omitempty"`
	Started time.Time `json:"started"`
	Ended   time.Time `json:"ended"`

	// Downtime is the seconds the device was unreachable during this
	// interval. Nil for metadata-only events.
	Downtime *int64 `json:"downtime"`

	OldIP   string `json:"old_ip,omitempty"`
	NewIP   string `json:"new_ip,omitempty"`
	Comment string `json:"comment,omitempty"`

	// Crossed marks the interval as administratively excluded from the
	// corrected uptime figure. It stays in history and on the chart.
	Crossed bool `json:"crossed,omitempty"`
}

// HasDowntime reports whether the event records an actual outage.
func (e Event) HasDowntime() bool {
	return e.Downtime != nil
}

// Synthetic reports whether the event is the client-side placeholder for
// an outage that is still in progress.
func (e Event) Synthetic() bool {
	return e.ID == 0 && !e.Ended.IsZero()
}

// SortEventsByID orders events ascending by id, in place. For real events
// id order is monotonic with time.
func SortEventsByID(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].ID < events[j].ID
	})
}
