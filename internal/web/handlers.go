package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/upvigil/upvigil/internal/api"
	"github.com/upvigil/upvigil/internal/timeutil"
	"github.com/upvigil/upvigil/internal/tracker"
)

// HandleHealthz reports process health.
func HandleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// HandleStatus returns the condensed tracker status.
func HandleStatus(tr *tracker.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tr.Status())
	}
}

// deviceResponse is the reconciled device view plus display strings the
// dashboard shows directly.
type deviceResponse struct {
	Device          any    `json:"device"`
	Events          any    `json:"events"`
	LastOutageEnd   string `json:"last_outage_end,omitempty"`
	Alive           bool   `json:"alive"`
	InBlackout      bool   `json:"in_blackout"`
	RealUptime      int    `json:"real_uptime"`
	CorrectedUptime int    `json:"corrected_uptime"`
	TotalDowntime   string `json:"total_downtime"`
}

// HandleDevice returns the latest reconciled device snapshot.
func HandleDevice(tr *tracker.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := tr.Snapshot()
		if !ok {
			http.Error(w, "no device data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(deviceResponse{
			Device:          snap.Device,
			Events:          snap.Events,
			LastOutageEnd:   timeutil.LocalDateTime(snap.LastOutageEnd),
			Alive:           snap.Alive,
			InBlackout:      snap.InBlackout,
			RealUptime:      snap.Uptime.Real,
			CorrectedUptime: snap.Uptime.Corrected,
			TotalDowntime:   timeutil.FormatSeconds(float64(snap.Device.DowntimeRaw)),
		})
	}
}

// HandleTimeline returns the day-bucketed downtime aggregation.
func HandleTimeline(tr *tracker.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tr.Timeline())
	}
}

// HandleListing returns the public device index when the tracker follows
// the wildcard.
func HandleListing(tr *tracker.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listing := tr.Listing()
		if listing == nil {
			http.Error(w, "no listing data", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(listing)
	}
}

// HandleRefresh forces an immediate re-fetch and reconciliation.
func HandleRefresh(tr *tracker.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := tr.Refresh(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tr.Status())
	}
}

// HandleToggleEvent flips an event's crossed flag upstream, then refreshes.
func HandleToggleEvent(svc *api.Client, tr *tracker.Tracker, editToken string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid event id", http.StatusBadRequest)
			return
		}
		if err := svc.ToggleEvent(r.Context(), editToken, id); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		if err := tr.Refresh(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	}
}

// HandleAddComment attaches a comment to an event upstream, then refreshes.
func HandleAddComment(svc *api.Client, tr *tracker.Tracker, editToken string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid event id", http.StatusBadRequest)
			return
		}
		var body struct {
			Comment string `json:"comment"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := svc.AddComment(r.Context(), editToken, id, body.Comment); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		if err := tr.Refresh(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	}
}
