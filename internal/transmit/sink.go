package transmit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/smooth-dev-team/raspberry-pi-camera/internal/httputil"
)

// Sink delivers one frame. A nil error means the sink has accepted the
// frame; any error triggers the queue's retry policy.
type Sink interface {
	Send(ctx context.Context, f Frame) error
}

// HTTPSink posts frames to the vision node as multipart/form-data:
// image bytes plus station_id, spot_number and an RFC 3339 timestamp.
// A 2xx response is success; anything else is an error.
type HTTPSink struct {
	url     string
	timeout time.Duration
	client  httputil.HTTPClient
}

// NewHTTPSink builds a sink for the given endpoint URL. client may be nil,
// in which case a plain http.Client is used.
func NewHTTPSink(url string, timeout time.Duration, client httputil.HTTPClient) *HTTPSink {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSink{url: url, timeout: timeout, client: client}
}

// Send uploads one frame. The context bounds the whole attempt together
// with the configured per-attempt timeout.
func (s *HTTPSink) Send(ctx context.Context, f Frame) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("image", "capture.jpg")
	if err != nil {
		return fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := part.Write(f.Image); err != nil {
		return fmt.Errorf("failed to write image part: %w", err)
	}
	for field, value := range map[string]string{
		"station_id":  f.StationID,
		"spot_number": strconv.Itoa(f.SpotNumber),
		"timestamp":   f.Time.Format(time.RFC3339),
	} {
		if err := mw.WriteField(field, value); err != nil {
			return fmt.Errorf("failed to write %s field: %w", field, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, &body)
	if err != nil {
		return fmt.Errorf("failed to build sink request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sink request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sink rejected frame: HTTP %d", resp.StatusCode)
	}
	return nil
}
