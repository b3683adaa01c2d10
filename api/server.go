// Package api serves the device status endpoints: current presence state,
// recent transitions from the event log, and a manual capture trigger.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/smooth-dev-team/raspberry-pi-camera/internal/eventlog"
	"github.com/smooth-dev-team/raspberry-pi-camera/internal/httputil"
	"github.com/smooth-dev-team/raspberry-pi-camera/internal/units"
)

// DeviceStatus is the JSON shape of /status.
type DeviceStatus struct {
	StationID    string     `json:"station_id"`
	SpotNumber   int        `json:"spot_number"`
	State        string     `json:"state"`
	ActivePolicy string     `json:"active_policy,omitempty"`
	LastEvent    *LastEvent `json:"last_event,omitempty"`
	QueueDepth   int        `json:"queue_depth"`
	Counters     Counters   `json:"counters"`
	Version      string     `json:"version"`
}

// LastEvent describes the most recent presence transition.
type LastEvent struct {
	Kind       string    `json:"kind"`
	Time       time.Time `json:"time"`
	DistanceMM float64   `json:"distance_mm"`
}

// Counters is a snapshot of the monitoring counters.
type Counters struct {
	InvalidSamples  int64 `json:"samples_invalid"`
	PresenceEvents  int64 `json:"presence_events"`
	Captures        int64 `json:"captures"`
	CaptureErrors   int64 `json:"capture_errors"`
	FramesDelivered int64 `json:"frames_delivered"`
	FramesDropped   int64 `json:"frames_dropped"`
	FramesEvicted   int64 `json:"frames_evicted"`
	SendRetries     int64 `json:"send_retries"`
}

// Device is what the running pipeline exposes to the API.
type Device interface {
	// Status returns a snapshot of the device state.
	Status() DeviceStatus
	// RequestCapture schedules one manual capture. It returns an error if a
	// manual capture is already pending.
	RequestCapture() error
}

// Server holds the handler dependencies.
type Server struct {
	device Device
	db     *eventlog.DB
}

// NewServer creates an API server over the device and its event log.
func NewServer(device Device, db *eventlog.DB) *Server {
	return &Server{device: device, db: db}
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/events", s.listEvents)
	mux.HandleFunc("/capture", s.captureHandler)
	return mux
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.device.Status())
}

type eventResponse struct {
	Kind      string    `json:"kind"`
	Distance  float64   `json:"distance"`
	Units     string    `json:"units"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.WriteJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	unit := r.URL.Query().Get("units")
	if unit == "" {
		unit = units.MM
	}
	if !units.IsValid(unit) {
		httputil.WriteJSONError(w, http.StatusBadRequest, "invalid units, expected one of: "+units.GetValidUnitsString())
		return
	}

	events, err := s.db.RecentEvents(limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "failed to retrieve events: "+err.Error())
		return
	}

	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			Kind:      e.Kind,
			Distance:  units.ConvertDistance(e.DistanceMM, unit),
			Units:     unit,
			Timestamp: e.Timestamp,
		})
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) captureHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.device.RequestCapture(); err != nil {
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "capture requested"})
}
