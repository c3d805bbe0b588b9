// Command wellflow wires the batch and stream orchestrators to a
// newline-delimited JSON record source, adapted from the teacher's root
// main.go (flag parsing, context-cancel-on-signal shutdown, JSON-lines
// stdout).
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/99souls/wellflow/internal/analysis"
	"github.com/99souls/wellflow/internal/batch"
	"github.com/99souls/wellflow/internal/detect"
	"github.com/99souls/wellflow/internal/safetylimits"
	"github.com/99souls/wellflow/internal/stream"
	"github.com/99souls/wellflow/internal/telemetry/health"
	"github.com/99souls/wellflow/internal/telemetry/metrics"
	"github.com/99souls/wellflow/internal/telemetry/tracing"
)

// ammadChannelSoftLimit and faultRecencyWindow bound the two domain health
// probes registered on /healthz (see wireHealth).
const (
	ammadChannelSoftLimit = 10_000
	faultRecencyWindow    = 30 * time.Second
	configStalenessMaxAge = 5 * time.Minute
	healthEvaluatorTTL    = 2 * time.Second
)

func main() {
	var (
		mode           string
		inputPath      string
		safetyLimits   string
		metricsBackend string
		metricsAddr    string
		healthAddr     string
		method         string
		windowSize     int
		threshold      float64
		enableTracing  bool
	)

	flag.StringVar(&mode, "mode", "batch", "Run mode: batch or stream")
	flag.StringVar(&inputPath, "input", "-", "Path to a newline-delimited JSON record file, or - for stdin")
	flag.StringVar(&safetyLimits, "safety-limits", "", "Path to the safety-limit / AMMAD config YAML file (hot-reloaded)")
	flag.StringVar(&metricsBackend, "metrics-backend", "", "Metrics backend: noop, prometheus, or otel (default: prometheus if -metrics-addr is set, else noop)")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "Address to serve the Prometheus /metrics endpoint on, e.g. :9090 (prometheus backend only, disabled if empty)")
	flag.StringVar(&healthAddr, "health-addr", "", "Address to serve the /healthz readiness endpoint on, e.g. :9091 (disabled if empty)")
	flag.StringVar(&method, "method", "", "Override the default detection method (fft, z_score, lof, ammad)")
	flag.IntVar(&windowSize, "window", 0, "Override the default window size (0 = use config default)")
	flag.Float64Var(&threshold, "threshold", 0, "Override the default score threshold (0 = use config default)")
	flag.BoolVar(&enableTracing, "tracing", false, "Enable the in-process span tracer")
	flag.Parse()

	rawRecords, err := readRecords(inputPath)
	if err != nil {
		log.Fatalf("read records: %v", err)
	}
	if len(rawRecords) == 0 {
		fmt.Fprintln(os.Stderr, "no records read; nothing to do")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("signal received; initiating graceful shutdown...")
		cancel()
		<-sigCh
		log.Println("second signal received; forcing exit")
		os.Exit(1)
	}()

	provider, loader, metricsProvider, err := wireConfig(ctx, safetyLimits, metricsBackend, metricsAddr)
	if err != nil {
		log.Fatalf("configure: %v", err)
	}

	state := analysis.New(provider)
	state.WithMetrics(metricsProvider)
	applyOverrides(state, method, windowSize, threshold)

	wireHealth(ctx, healthAddr, state, loader)

	tracer := tracing.NewTracer(enableTracing)

	switch mode {
	case "batch":
		runBatch(ctx, tracer, state, toBatchRecords(rawRecords))
	case "stream":
		runStream(ctx, tracer, state, metricsProvider, toStreamRecords(rawRecords))
	default:
		log.Fatalf("unknown -mode %q (want batch or stream)", mode)
	}
}

func applyOverrides(state *analysis.State, method string, windowSize int, threshold float64) {
	if method != "" {
		if err := state.SetMethod(method); err != nil {
			log.Fatalf("-method: %v", err)
		}
	}
	if windowSize > 0 {
		if err := state.SetWindowSize(windowSize); err != nil {
			log.Fatalf("-window: %v", err)
		}
	}
	if threshold > 0 {
		if err := state.SetScoreThreshold(threshold); err != nil {
			log.Fatalf("-threshold: %v", err)
		}
	}
}

// wireConfig sets up the safety-limit loader (if requested) and the
// metrics provider/HTTP endpoint (if requested). The returned loader is
// nil when -safety-limits is unset; wireHealth treats that as "no config
// staleness probe to register".
func wireConfig(ctx context.Context, safetyLimitsPath, metricsBackend, metricsAddr string) (detect.ChannelConfigProvider, *safetylimits.Loader, metrics.Provider, error) {
	var provider detect.ChannelConfigProvider
	var loader *safetylimits.Loader
	if safetyLimitsPath != "" {
		l, err := safetylimits.NewLoader(safetyLimitsPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load safety limits: %w", err)
		}
		if err := l.Watch(ctx); err != nil {
			log.Printf("safety-limits hot-reload disabled: %v", err)
		}
		provider, loader = l, l
	}

	backend := metricsBackend
	if backend == "" {
		if metricsAddr != "" {
			backend = "prometheus"
		} else {
			backend = "noop"
		}
	}

	var metricsProvider metrics.Provider
	switch backend {
	case "prometheus":
		promProvider := metrics.NewPrometheusProvider(metrics.PrometheusProviderOptions{})
		metricsProvider = promProvider
		if metricsAddr != "" {
			serveBackground(ctx, metricsAddr, "metrics", func(mux *http.ServeMux) {
				mux.Handle("/metrics", promProvider.MetricsHandler())
			})
		}
	case "otel":
		metricsProvider = metrics.NewOTelProvider(metrics.OTelProviderOptions{ServiceName: "wellflow"})
		if metricsAddr != "" {
			log.Printf("-metrics-addr is ignored for the otel backend; configure an OTEL collector/exporter out of process instead")
		}
	case "noop":
		metricsProvider = metrics.NewNoopProvider()
	default:
		return nil, nil, nil, fmt.Errorf("unknown -metrics-backend %q (want noop, prometheus, or otel)", backend)
	}

	return provider, loader, metricsProvider, nil
}

// wireHealth constructs an Evaluator registering the AMMAD channel-state,
// detector-fault-recency, and (when a safety-limit loader is active)
// config-staleness probes, and serves it at /healthz when addr is set
// (spec.md §6.7's readiness endpoint).
func wireHealth(ctx context.Context, addr string, state *analysis.State, loader *safetylimits.Loader) *health.Evaluator {
	eval := health.NewEvaluator(healthEvaluatorTTL,
		health.AMMADChannelCountProbe("ammad_channel_state", state.AMMADChannelCount, ammadChannelSoftLimit),
		health.DetectorFaultRecencyProbe("detector_faults", state.LastFaultAt, faultRecencyWindow),
	)
	if loader != nil {
		eval.Register(health.ConfigStalenessProbe("safety_limits_config", loader.LastLoaded, configStalenessMaxAge))
	}

	if addr != "" {
		serveBackground(ctx, addr, "health", func(mux *http.ServeMux) {
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				snap := eval.Evaluate(r.Context())
				w.Header().Set("Content-Type", "application/json")
				if snap.Overall == health.StatusUnhealthy {
					w.WriteHeader(http.StatusServiceUnavailable)
				}
				_ = json.NewEncoder(w).Encode(snap)
			})
		})
	}
	return eval
}

// serveBackground starts an HTTP server on addr with routes registered by
// register, shutting it down when ctx is cancelled. label identifies the
// server in log output.
func serveBackground(ctx context.Context, addr, label string, register func(*http.ServeMux)) {
	mux := http.NewServeMux()
	register(mux)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("%s server: %v", label, err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func runBatch(ctx context.Context, tracer tracing.Tracer, state *analysis.State, records []batch.Record) {
	var resp batch.Response
	err := tracing.WrapBatchRun(ctx, tracer, len(records), func(ctx context.Context) error {
		var runErr error
		resp, runErr = batch.Run(ctx, state, records)
		return runErr
	})
	if err != nil {
		log.Fatalf("batch run: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(resp); err != nil {
		log.Fatalf("encode batch response: %v", err)
	}
}

func runStream(ctx context.Context, tracer tracing.Tracer, state *analysis.State, metricsProvider metrics.Provider, records []stream.Record) {
	sink := stream.ErrorSinkFunc(func(err error) {
		fmt.Fprintf(os.Stderr, "stream error: %v\n", err)
	})
	sender := &stdoutSender{enc: json.NewEncoder(os.Stdout), tracer: tracer}

	session := stream.NewSession(records, sender, nil, sink)
	session.State = state
	session.Metrics = metricsProvider
	if err := session.Run(ctx); err != nil {
		log.Fatalf("stream run: %v", err)
	}
}

// stdoutSender writes each emitted Frame as one JSON line, wrapping the
// write in its own span so per-emission tracing is visible even though
// nothing consumes the span yet beyond its own End() bookkeeping.
type stdoutSender struct {
	enc    *json.Encoder
	tracer tracing.Tracer
}

func (s *stdoutSender) Send(frame stream.Frame) error {
	_, span := s.tracer.StartSpan(context.Background(), "stream.send")
	defer span.End()
	return s.enc.Encode(frame)
}

// readRecords parses newline-delimited JSON objects (channel -> value)
// from path, or stdin when path is "-".
func readRecords(path string) ([]map[string]float64, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var records []map[string]float64
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec map[string]float64
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("parse record: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// toBatchRecords and toStreamRecords adapt the plain record maps read from
// input to the orchestrators' own named Record types (batch.Record and
// stream.Record share an underlying type but are distinct types, so the
// conversion is elementwise rather than a slice cast).
func toBatchRecords(in []map[string]float64) []batch.Record {
	out := make([]batch.Record, len(in))
	for i, rec := range in {
		out[i] = batch.Record(rec)
	}
	return out
}

func toStreamRecords(in []map[string]float64) []stream.Record {
	out := make([]stream.Record, len(in))
	for i, rec := range in {
		out[i] = stream.Record(rec)
	}
	return out
}
