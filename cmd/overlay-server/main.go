package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/JensRahnfeld/streamlit-overlay/internal/colormap"
	"github.com/JensRahnfeld/streamlit-overlay/internal/config"
	"github.com/JensRahnfeld/streamlit-overlay/internal/framepack"
	"github.com/JensRahnfeld/streamlit-overlay/internal/frontend"
	"github.com/JensRahnfeld/streamlit-overlay/internal/ingest"
	"github.com/JensRahnfeld/streamlit-overlay/internal/output"
	"github.com/JensRahnfeld/streamlit-overlay/internal/processing"
	"github.com/JensRahnfeld/streamlit-overlay/internal/server"
	"github.com/JensRahnfeld/streamlit-overlay/internal/simulator"
	"github.com/JensRahnfeld/streamlit-overlay/internal/types"
	"github.com/JensRahnfeld/streamlit-overlay/internal/visualizer"
)

const componentName = "streamlit_overlay"

type metrics struct {
	rawMessages     atomic.Uint64
	frameMessages   atomic.Uint64
	configMessages  atomic.Uint64
	framesProcessed atomic.Uint64
	processErrors   atomic.Uint64
	batchesRendered atomic.Uint64
	renderErrors    atomic.Uint64
	renderNanos     atomic.Uint64
	rawLogErrors    atomic.Uint64
}

func (m *metrics) snapshot() map[string]any {
	return map[string]any{
		"raw_messages_total":     m.rawMessages.Load(),
		"frame_messages_total":   m.frameMessages.Load(),
		"config_messages_total":  m.configMessages.Load(),
		"frames_processed_total": m.framesProcessed.Load(),
		"process_errors_total":   m.processErrors.Load(),
		"batches_rendered_total": m.batchesRendered.Load(),
		"render_errors_total":    m.renderErrors.Load(),
		"render_nanos_total":     m.renderNanos.Load(),
		"raw_log_errors_total":   m.rawLogErrors.Load(),
	}
}

// recordingBridge writes the packed image and mask blobs of every render to
// a raw log before handing the arguments on.
type recordingBridge struct {
	next    visualizer.Bridge
	rawLog  *output.RawLogWriter
	metrics *metrics
}

func (b recordingBridge) Render(ctx context.Context, args types.ComponentArgs) (int, error) {
	for _, blob := range [][]byte{args.Images, args.Masks} {
		if err := b.rawLog.Record(blob); err != nil {
			b.metrics.rawLogErrors.Add(1)
			log.Printf("render log write failed: %v", err)
		}
	}
	return b.next.Render(ctx, args)
}

// liveOptions holds the render options that config messages may change
// while the server runs.
type liveOptions struct {
	mu   sync.RWMutex
	cfg  config.AppConfig
	opts visualizer.HeatmapOptions
}

func newLiveOptions(cfg config.AppConfig) (*liveOptions, error) {
	opts, err := heatmapOptions(cfg)
	if err != nil {
		return nil, err
	}
	return &liveOptions{cfg: cfg, opts: opts}, nil
}

func (l *liveOptions) get() visualizer.HeatmapOptions {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.opts
}

func (l *liveOptions) apply(values map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.cfg
	if err := next.ApplyUpdate(values); err != nil {
		return err
	}
	opts, err := heatmapOptions(next)
	if err != nil {
		return err
	}
	l.cfg = next
	l.opts = opts
	return nil
}

func heatmapOptions(cfg config.AppConfig) (visualizer.HeatmapOptions, error) {
	opts := visualizer.DefaultHeatmapOptions()
	id, err := colormap.Parse(cfg.Colormap)
	if err != nil {
		return opts, err
	}
	format, err := framepack.ParseFormat(cfg.Format)
	if err != nil {
		return opts, err
	}
	opts.Alpha = cfg.Alpha
	opts.FPS = cfg.FPS
	opts.Autoplay = cfg.Autoplay
	opts.ToggleLabel = cfg.ToggleLabel
	opts.Format = format
	opts.Colormap = id
	if opts.Alpha < 0 || opts.Alpha > 1 || opts.FPS < 1 {
		return opts, fmt.Errorf("%w: alpha %v fps %d", visualizer.ErrInvalidOption, opts.Alpha, opts.FPS)
	}
	return opts, nil
}

func main() {
	defaults := config.Default()
	var (
		configPath       = flag.String("config", "", "Optional JSON config file, applied before flags")
		port             = flag.Int("port", defaults.Port, "HTTP port for the component server")
		endpoint         = flag.String("endpoint", defaults.Endpoint, "ZMQ endpoint to pull frames from")
		workers          = flag.Int("workers", defaults.Workers, "Number of image decode workers")
		debug            = flag.Bool("debug", false, "Run with simulated frames")
		debugRate        = flag.Float64("debug-rate", defaults.DebugRate, "Simulated frame rate (frames/sec)")
		debugWidth       = flag.Int("debug-width", defaults.DebugWidth, "Simulated frame width")
		debugHeight      = flag.Int("debug-height", defaults.DebugHeight, "Simulated frame height")
		batch            = flag.Int("batch", defaults.Batch, "Frames per rendered sequence")
		alpha            = flag.Float64("alpha", defaults.Alpha, "Overlay opacity in [0,1]")
		fps              = flag.Int("fps", defaults.FPS, "Playback frames per second")
		autoplay         = flag.Bool("autoplay", defaults.Autoplay, "Start playback on load")
		toggleLabel      = flag.String("toggle-label", defaults.ToggleLabel, "Label of the overlay toggle")
		colormapName     = flag.String("colormap", defaults.Colormap, "Heatmap colormap")
		format           = flag.String("format", defaults.Format, "Frame encoding (jpeg or png)")
		rawLogEnabled    = flag.Bool("raw-log", false, "Write ingest messages and rendered blobs to disk")
		rawLogDir        = flag.String("raw-log-dir", defaults.RawLogDir, "Directory for raw logs")
		ingestLogEvery   = flag.Int("ingest-log-every", defaults.IngestLogEvery, "Log every Nth ingest error")
		ingestFallback   = flag.Bool("ingest-fallback", defaults.IngestFallback, "Fall back to simulator when ingest fails")
		release          = flag.Bool("release", defaults.Release, "Serve a built frontend instead of the dev server")
		frontendURL      = flag.String("frontend-url", defaults.FrontendURL, "Frontend dev server URL")
		frontendBuildDir = flag.String("frontend-build-dir", "", "Built frontend directory (embedded viewer when empty)")
		frontendPoll     = flag.Duration("frontend-poll", defaults.FrontendPoll, "Frontend dev server poll interval")
	)
	flag.Parse()

	cfg := defaults
	if *configPath != "" {
		fc, err := config.LoadFile(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		if err := fc.Apply(&cfg); err != nil {
			log.Fatalf("apply config: %v", err)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "endpoint":
			cfg.Endpoint = *endpoint
		case "workers":
			cfg.Workers = *workers
		case "debug-rate":
			cfg.DebugRate = *debugRate
		case "debug-width":
			cfg.DebugWidth = *debugWidth
		case "debug-height":
			cfg.DebugHeight = *debugHeight
		case "batch":
			cfg.Batch = *batch
		case "alpha":
			cfg.Alpha = *alpha
		case "fps":
			cfg.FPS = *fps
		case "autoplay":
			cfg.Autoplay = *autoplay
		case "toggle-label":
			cfg.ToggleLabel = *toggleLabel
		case "colormap":
			cfg.Colormap = *colormapName
		case "format":
			cfg.Format = *format
		case "raw-log-dir":
			cfg.RawLogDir = *rawLogDir
		case "ingest-log-every":
			cfg.IngestLogEvery = *ingestLogEvery
		case "ingest-fallback":
			cfg.IngestFallback = *ingestFallback
		case "release":
			cfg.Release = *release
		case "frontend-url":
			cfg.FrontendURL = *frontendURL
		case "frontend-build-dir":
			cfg.FrontendBuildDir = *frontendBuildDir
		case "frontend-poll":
			cfg.FrontendPoll = *frontendPoll
		}
	})
	cfg.Debug = *debug
	cfg.RawLogEnabled = *rawLogEnabled
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	live, err := newLiveOptions(cfg)
	if err != nil {
		log.Fatalf("invalid render options: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := frontend.Declare(componentName, cfg.Release, cfg.FrontendURL, cfg.FrontendBuildDir)
	if err != nil {
		log.Fatalf("declare frontend: %v", err)
	}
	handler, err := source.Handler()
	if err != nil {
		log.Fatalf("frontend handler: %v", err)
	}
	log.Printf("frontend: %s", source)

	var statusMu sync.Mutex
	var metrics metrics
	status := map[string]any{
		"source":      "unknown",
		"frontend":    source.Mode.String(),
		"last_ingest": "",
		"last_render": "",
	}
	setStatus := func(key string, value any) {
		statusMu.Lock()
		status[key] = value
		statusMu.Unlock()
	}

	if source.Mode == frontend.Dev {
		go frontend.Poll(ctx, cfg.FrontendURL, cfg.FrontendPoll, func(update frontend.Status) {
			setStatus("frontend_dev", update.State)
		})
	}

	statusFn := func() map[string]any {
		statusMu.Lock()
		defer statusMu.Unlock()
		out := make(map[string]any, len(status)+1)
		for k, v := range status {
			out[k] = v
		}
		metricsPayload := metrics.snapshot()
		metricsPayload["ingest_decode_failures_total"] = ingest.DecodeFailures()
		decodeCount, decodeNanos := ingest.DecodeTiming()
		metricsPayload["ingest_decode_total"] = decodeCount
		metricsPayload["ingest_decode_nanos_total"] = decodeNanos
		out["metrics"] = metricsPayload
		return out
	}

	srv := server.New(cfg, handler, statusFn)
	var bridge visualizer.Bridge = srv

	var recorder ingest.Recorder
	if cfg.RawLogEnabled {
		renders, err := output.NewRawLogWriter(cfg.RawLogDir, "renders")
		if err != nil {
			log.Fatalf("failed to start render log: %v", err)
		}
		ingestLog, err := output.NewRawLogWriter(cfg.RawLogDir, "ingest_cbor")
		if err != nil {
			log.Fatalf("failed to start ingest log: %v", err)
		}
		bridge = recordingBridge{next: srv, rawLog: renders, metrics: &metrics}
		recorder = ingestLog
		log.Printf("raw logs: %s, %s", renders.Path(), ingestLog.Path())
		go func() {
			<-ctx.Done()
			for _, w := range []*output.RawLogWriter{renders, ingestLog} {
				if err := w.Close(); err != nil {
					log.Printf("raw log close failed: %v", err)
				}
			}
		}()
	}

	var rawMessages <-chan types.RawMessage
	if cfg.Debug {
		setStatus("source", "simulator")
		rawMessages = simulator.Stream(ctx, "simulator", cfg.DebugWidth, cfg.DebugHeight, cfg.DebugRate)
	} else {
		setStatus("source", "stream")
		frames, err := ingest.Stream(ctx, cfg.Endpoint, cfg.IngestLogEvery, recorder)
		switch {
		case err == nil:
			rawMessages = frames
		case cfg.IngestFallback:
			log.Printf("failed to start ingest: %v; falling back to simulator", err)
			setStatus("source", "simulator")
			rawMessages = simulator.Stream(ctx, "simulator", cfg.DebugWidth, cfg.DebugHeight, cfg.DebugRate)
		default:
			log.Fatalf("failed to start ingest: %v", err)
		}
	}

	incoming := make(chan types.RawFrame, 128)
	processed := make(chan types.Frame, 128)

	go func() {
		defer close(incoming)
		for msg := range rawMessages {
			metrics.rawMessages.Add(1)
			setStatus("last_ingest", time.Now().Format(time.RFC3339))
			if msg.Type == "config" {
				metrics.configMessages.Add(1)
				if err := live.apply(msg.Config); err != nil {
					log.Printf("config message rejected: %v", err)
				} else {
					log.Printf("render options updated: %v", msg.Config)
				}
				continue
			}
			metrics.frameMessages.Add(1)
			select {
			case <-ctx.Done():
				return
			case incoming <- msg.Frame:
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go func() {
			defer wg.Done()
			for raw := range incoming {
				frame, err := processing.ProcessRawFrame(raw)
				if err != nil {
					metrics.processErrors.Add(1)
					log.Printf("frame %s/%d dropped: %v", raw.Key, raw.ImageID, err)
					continue
				}
				metrics.framesProcessed.Add(1)
				select {
				case <-ctx.Done():
					return
				case processed <- frame:
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(processed)
	}()

	render := func(b processing.Batch) {
		opts := live.get()
		opts.Key = b.Key
		start := time.Now()
		value, err := visualizer.Heatmap(ctx, bridge, b.Images, b.MaskSequence(), opts)
		metrics.renderNanos.Add(uint64(time.Since(start).Nanoseconds()))
		if err != nil {
			metrics.renderErrors.Add(1)
			log.Printf("render %q failed: %v", b.Key, err)
			return
		}
		metrics.batchesRendered.Add(1)
		setStatus("last_render", time.Now().Format(time.RFC3339))
		log.Printf("rendered %d frames for %q, current frame %d", len(b.Images), b.Key, value)
	}

	go func() {
		agg := processing.NewAggregator(cfg.Batch)
		for frame := range processed {
			for _, b := range agg.AddFrame(frame) {
				render(b)
			}
		}
		for _, b := range agg.Flush() {
			render(b)
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snapshot := metrics.snapshot()
				log.Printf("ingest stats: raw=%v frames=%v config=%v rendered=%v decode_failures=%v",
					snapshot["raw_messages_total"],
					snapshot["frame_messages_total"],
					snapshot["config_messages_total"],
					snapshot["batches_rendered_total"],
					ingest.DecodeFailures(),
				)
			}
		}
	}()

	log.Printf("Starting component server at http://localhost:%d\n", cfg.Port)
	if err := srv.Run(ctx); err != nil {
		log.Printf("server stopped: %v", err)
	}
}
