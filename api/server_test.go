package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/smooth-dev-team/raspberry-pi-camera/internal/eventlog"
	"github.com/smooth-dev-team/raspberry-pi-camera/internal/testutil"
)

type stubDevice struct {
	status     DeviceStatus
	captureErr error
	captures   int
}

func (d *stubDevice) Status() DeviceStatus { return d.status }

func (d *stubDevice) RequestCapture() error {
	if d.captureErr != nil {
		return d.captureErr
	}
	d.captures++
	return nil
}

func newTestServer(t *testing.T) (*Server, *stubDevice, *eventlog.DB) {
	t.Helper()
	db, err := eventlog.NewDB(filepath.Join(t.TempDir(), "events.db"))
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { db.Close() })

	dev := &stubDevice{status: DeviceStatus{
		StationID:  "station-001",
		SpotNumber: 3,
		State:      "present",
		QueueDepth: 2,
	}}
	return NewServer(dev, db), dev, db
}

func TestStatusHandler(t *testing.T) {
	srv, _, _ := newTestServer(t)
	mux := srv.ServeMux()

	w := testutil.NewTestRecorder()
	mux.ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, "/status"))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var got DeviceStatus
	testutil.AssertNoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	if got.StationID != "station-001" || got.State != "present" || got.QueueDepth != 2 {
		t.Errorf("status = %+v", got)
	}
}

func TestStatusRejectsPost(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := testutil.NewTestRecorder()
	srv.ServeMux().ServeHTTP(w, testutil.NewTestRequest(http.MethodPost, "/status"))
	testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
}

func TestListEvents(t *testing.T) {
	srv, _, db := newTestServer(t)
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	testutil.AssertNoError(t, db.RecordPresenceEvent("enter", 950, base))
	testutil.AssertNoError(t, db.RecordPresenceEvent("exit", 2200, base.Add(time.Minute)))

	w := testutil.NewTestRecorder()
	srv.ServeMux().ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, "/events"))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var got []eventResponse
	testutil.AssertNoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Kind != "exit" || got[0].Distance != 2200 || got[0].Units != "mm" {
		t.Errorf("first event = %+v", got[0])
	}
}

func TestListEventsUnitConversion(t *testing.T) {
	srv, _, db := newTestServer(t)
	testutil.AssertNoError(t, db.RecordPresenceEvent("enter", 1500, time.Now().UTC()))

	w := testutil.NewTestRecorder()
	srv.ServeMux().ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, "/events?units=m"))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var got []eventResponse
	testutil.AssertNoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	if len(got) != 1 || got[0].Distance != 1.5 || got[0].Units != "m" {
		t.Errorf("events = %+v, want single event at 1.5m", got)
	}
}

func TestListEventsBadParams(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := testutil.NewTestRecorder()
	srv.ServeMux().ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, "/events?limit=zero"))
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)

	w = testutil.NewTestRecorder()
	srv.ServeMux().ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, "/events?units=feet"))
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
}

func TestCaptureHandler(t *testing.T) {
	srv, dev, _ := newTestServer(t)

	w := testutil.NewTestRecorder()
	srv.ServeMux().ServeHTTP(w, testutil.NewTestRequest(http.MethodPost, "/capture"))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	if dev.captures != 1 {
		t.Errorf("captures = %d, want 1", dev.captures)
	}

	w = testutil.NewTestRecorder()
	srv.ServeMux().ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, "/capture"))
	testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
}

func TestCaptureHandlerConflict(t *testing.T) {
	srv, dev, _ := newTestServer(t)
	dev.captureErr = errors.New("capture already pending")

	w := testutil.NewTestRecorder()
	srv.ServeMux().ServeHTTP(w, testutil.NewTestRequest(http.MethodPost, "/capture"))
	testutil.AssertStatusCode(t, w.Code, http.StatusConflict)
}
