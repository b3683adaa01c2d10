// Command raspberry-pi-camera monitors one parking spot with a ToF distance
// sensor and a camera, and ships captured frames to the vision-processing
// node. The sensor stream drives presence classification and capture
// scheduling synchronously; transmission runs on its own goroutine so
// network stalls never delay classification.
package main

import (
	"context"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/smooth-dev-team/raspberry-pi-camera/api"
	"github.com/smooth-dev-team/raspberry-pi-camera/internal/camera"
	"github.com/smooth-dev-team/raspberry-pi-camera/internal/config"
	"github.com/smooth-dev-team/raspberry-pi-camera/internal/eventlog"
	"github.com/smooth-dev-team/raspberry-pi-camera/internal/monitoring"
	"github.com/smooth-dev-team/raspberry-pi-camera/internal/presence"
	"github.com/smooth-dev-team/raspberry-pi-camera/internal/schedule"
	"github.com/smooth-dev-team/raspberry-pi-camera/internal/timeutil"
	"github.com/smooth-dev-team/raspberry-pi-camera/internal/tofmux"
	"github.com/smooth-dev-team/raspberry-pi-camera/internal/transmit"
	"github.com/smooth-dev-team/raspberry-pi-camera/internal/version"
)

var (
	configPath = flag.String("config", config.DefaultConfigPath, "Path to configuration file")
	devMode    = flag.Bool("dev", false, "Run in dev mode (mock sensor from fixtures.txt, synthetic camera)")
	listen     = flag.String("listen", ":8080", "Status server listen address")
)

// tickInterval is how often the scheduler is advanced between samples. It
// only bounds instruction latency; all policy timing uses absolute
// deadlines, so the value is not timing-critical.
const tickInterval = 100 * time.Millisecond

// device is the per-spot pipeline: sample -> filter -> state machine ->
// scheduler -> camera -> queue. It implements api.Device.
type device struct {
	cfg      *config.Config
	clock    timeutil.Clock
	detector *presence.Detector
	sched    *schedule.Scheduler
	cam      camera.Camera
	queue    *transmit.Queue
	db       *eventlog.DB

	manual chan struct{}

	mu sync.Mutex // guards detector and sched against Status() reads
}

func newDevice(cfg *config.Config, cam camera.Camera, queue *transmit.Queue, db *eventlog.DB) *device {
	t := cfg.Sensor.Thresholds
	return &device{
		cfg:      cfg,
		clock:    timeutil.RealClock{},
		detector: presence.NewDetector(cfg.Sensor.SmoothingWindow, t.VehiclePresentMM, t.VehicleAbsentMM),
		sched: schedule.New(schedule.Config{
			StationID:      cfg.Device.StationID,
			SpotNumber:     cfg.Device.SpotNumber,
			EntryEnabled:   cfg.Triggers.Entry.Enabled,
			EntryDuration:  cfg.Triggers.Entry.SendDuration(),
			EntryInterval:  cfg.Triggers.Entry.SendInterval(),
			ExitEnabled:    cfg.Triggers.Exit.Enabled,
			VerifyEnabled:  cfg.Triggers.Periodic.Enabled,
			VerifyPeriod:   cfg.Triggers.Periodic.Interval(),
			VerifyDuration: cfg.Triggers.Periodic.SendDuration(),
			VerifyInterval: cfg.Triggers.Periodic.SendInterval(),
		}),
		cam:    cam,
		queue:  queue,
		db:     db,
		manual: make(chan struct{}, 1),
	}
}

// run consumes samples and clock ticks until the context is cancelled.
// samples may be nil (sensor disabled), in which case only the fallback
// ticker and manual captures produce instructions.
func (d *device) run(ctx context.Context, samples <-chan presence.Sample) {
	ticker := d.clock.NewTicker(tickInterval)
	defer ticker.Stop()

	var fallbackC <-chan time.Time
	if samples == nil && d.cfg.Fallback.Enabled {
		log.Printf("sensor disabled; fallback capture every %v", d.cfg.Fallback.Interval())
		fb := d.clock.NewTicker(d.cfg.Fallback.Interval())
		defer fb.Stop()
		fallbackC = fb.C()
	}

	for {
		select {
		case <-ctx.Done():
			return

		case s, ok := <-samples:
			if !ok {
				samples = nil
				continue
			}
			d.handleSample(ctx, s)

		case now := <-ticker.C():
			d.mu.Lock()
			ins := d.sched.Tick(now)
			d.mu.Unlock()
			d.execute(ctx, ins)

		case now := <-fallbackC:
			d.execute(ctx, []schedule.Instruction{{
				Reason:     schedule.ReasonFallback,
				StationID:  d.cfg.Device.StationID,
				SpotNumber: d.cfg.Device.SpotNumber,
				Time:       now,
			}})

		case <-d.manual:
			d.execute(ctx, []schedule.Instruction{{
				Reason:     schedule.ReasonManual,
				StationID:  d.cfg.Device.StationID,
				SpotNumber: d.cfg.Device.SpotNumber,
				Time:       d.clock.Now(),
			}})
		}
	}
}

func (d *device) handleSample(ctx context.Context, s presence.Sample) {
	d.mu.Lock()
	ev := d.detector.Update(s)
	var ins []schedule.Instruction
	if ev != nil {
		ins = d.sched.HandleEvent(*ev)
	}
	d.mu.Unlock()

	if ev == nil {
		return
	}

	monitoring.PresenceEvents.Add(1)
	log.Printf("vehicle %s detected (distance: %.0fmm)", ev.Kind, ev.DistanceMM)
	if err := d.db.RecordPresenceEvent(string(ev.Kind), ev.DistanceMM, ev.Time); err != nil {
		log.Printf("failed to record presence event: %v", err)
	}

	d.execute(ctx, ins)
}

// execute captures one frame per instruction and hands it to the queue. A
// camera failure is reported and skipped; the next instruction still fires
// on schedule.
func (d *device) execute(ctx context.Context, ins []schedule.Instruction) {
	for _, in := range ins {
		img, capturedAt, err := d.cam.Capture(ctx)
		if err != nil {
			monitoring.CaptureErrors.Add(1)
			log.Printf("capture failed (%s): %v", in.Reason, err)
			if dbErr := d.db.RecordCapture(string(in.Reason), false, d.clock.Now()); dbErr != nil {
				log.Printf("failed to record capture: %v", dbErr)
			}
			continue
		}
		monitoring.Captures.Add(1)
		if err := d.db.RecordCapture(string(in.Reason), true, capturedAt); err != nil {
			log.Printf("failed to record capture: %v", err)
		}
		d.queue.Enqueue(transmit.NewFrame(img, in.StationID, in.SpotNumber, string(in.Reason), capturedAt))
	}
}

// Status implements api.Device.
func (d *device) Status() api.DeviceStatus {
	d.mu.Lock()
	state := d.detector.State()
	last := d.detector.LastEvent()
	active := d.sched.ActiveReason()
	d.mu.Unlock()

	st := api.DeviceStatus{
		StationID:    d.cfg.Device.StationID,
		SpotNumber:   d.cfg.Device.SpotNumber,
		State:        string(state),
		ActivePolicy: string(active),
		QueueDepth:   d.queue.Depth(),
		Counters: api.Counters{
			InvalidSamples:  monitoring.InvalidSamples.Value(),
			PresenceEvents:  monitoring.PresenceEvents.Value(),
			Captures:        monitoring.Captures.Value(),
			CaptureErrors:   monitoring.CaptureErrors.Value(),
			FramesDelivered: monitoring.FramesDelivered.Value(),
			FramesDropped:   monitoring.FramesDropped.Value(),
			FramesEvicted:   monitoring.FramesEvicted.Value(),
			SendRetries:     monitoring.SendRetries.Value(),
		},
		Version: version.Version,
	}
	if last != nil {
		st.LastEvent = &api.LastEvent{
			Kind:       string(last.Kind),
			Time:       last.Time,
			DistanceMM: last.DistanceMM,
		}
	}
	return st
}

// RequestCapture implements api.Device.
func (d *device) RequestCapture() error {
	select {
	case d.manual <- struct{}{}:
		return nil
	default:
		return fmt.Errorf("manual capture already pending")
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Only a missing default config falls back to built-in defaults; an
		// explicit -config that fails to load, or an invalid file anywhere,
		// refuses to start.
		if *configPath == config.DefaultConfigPath && errors.Is(err, os.ErrNotExist) {
			log.Printf("no config file at %s, using defaults", config.DefaultConfigPath)
			return config.Default()
		}
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := loadConfig()
	log.Printf("station %s spot %d -> sink %s (version %s)",
		cfg.Device.StationID, cfg.Device.SpotNumber, cfg.Sink.URL(), version.Version)

	var mux tofmux.Muxer
	if *devMode {
		data, err := os.ReadFile("fixtures.txt")
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
		mux = tofmux.NewMockMux(data, cfg.Sensor.SampleInterval())
	} else if cfg.Sensor.Enabled {
		var err error
		mux, err = tofmux.OpenSerial(cfg.Sensor.Port, cfg.Sensor.BaudRate)
		if err != nil {
			log.Fatalf("failed to open sensor port: %v", err)
		}
	}
	if mux != nil {
		defer mux.Close()
	}

	var cam camera.Camera
	if *devMode || len(cfg.Camera.Command) == 0 {
		cam = camera.NewSyntheticCamera(cfg.Camera.Width, cfg.Camera.Height, nil)
	} else {
		var err error
		cam, err = camera.NewCommandCamera(cfg.Camera.Command, cfg.Camera.Timeout(), nil)
		if err != nil {
			log.Fatalf("failed to configure camera: %v", err)
		}
	}

	db, err := eventlog.NewDB(cfg.Log.Database)
	if err != nil {
		log.Fatalf("failed to open event log: %v", err)
	}
	defer db.Close()

	sink := transmit.NewHTTPSink(cfg.Sink.URL(), cfg.Sink.Timeout(), nil)
	queue := transmit.NewQueue(sink, transmit.QueueOptions{
		Capacity:    cfg.Queue.Capacity,
		MaxAttempts: cfg.Sink.MaxAttempts,
		BaseBackoff: cfg.Sink.Backoff(),
		MaxBackoff:  cfg.Sink.MaxBackoff(),
		Recorder:    db,
	})

	dev := newDevice(cfg, cam, queue, db)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the sensor port
	var samples <-chan presence.Sample
	if mux != nil {
		id, c := mux.Subscribe()
		samples = c
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer mux.Unsubscribe(id)
			if err := mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("sensor monitor failed: %v", err)
			}
			log.Print("sensor monitor routine terminated")
		}()
	}

	// presence classification and capture scheduling
	wg.Add(1)
	go func() {
		defer wg.Done()
		dev.run(ctx, samples)
		log.Print("pipeline routine terminated")
	}()

	// frame dispatch to the sink
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := queue.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("transmit routine failed: %v", err)
		}
		log.Print("transmit routine terminated")
	}()

	// HTTP status server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		root := http.NewServeMux()
		apiMux := api.NewServer(dev, db).ServeMux()
		root.Handle("/api/", http.StripPrefix("/api", apiMux))
		root.Handle("/debug/vars", expvar.Handler())

		server := &http.Server{
			Addr:    *listen,
			Handler: root,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start status server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down status server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("status server shutdown error: %v", err)
		}
		log.Print("status server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
