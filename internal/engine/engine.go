// Package engine orchestrates a measurement run: directory discovery,
// latency-based server selection, and deadline-bound concurrent transfer
// phases.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VividCortex/ewma"

	"netgauge/internal/registry"
	"netgauge/internal/transport"
	"netgauge/pkg/logx"
)

// Transport is the set of network primitives the engine drives. All methods
// absorb errors into their return values; see internal/transport for the
// production implementation.
type Transport interface {
	Fetch(url string) ([]byte, bool)
	MeasureLatency(serverURL string, attempts int) (float64, bool)
	DownloadFile(url string) int64
	UploadData(url string, payload []byte) (int64, bool)
}

// uploadAlphabet fills upload payloads after the content1= prefix. The
// filler is deterministic so payloads can be built once and reused.
const uploadAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Engine runs one measurement pipeline. Each run owns a fresh Engine; no
// state is shared across runs.
type Engine struct {
	cfg Config
	tr  Transport
	log logx.Logger
	obs Observer

	// cancelled is checked by every worker before it starts a unit of work.
	// In-flight transfers are never interrupted.
	cancelled atomic.Bool
}

// New constructs an engine. obs may be nil; log may be the zero logger.
func New(cfg Config, tr Transport, log logx.Logger, obs Observer) *Engine {
	return &Engine{cfg: cfg.withDefaults(), tr: tr, log: log, obs: obs}
}

// Stop requests cancellation. Workers finish their current transfer and no
// new work starts. Safe to call from any goroutine, at any time.
func (e *Engine) Stop() { e.cancelled.Store(true) }

func (e *Engine) emit(ev Event) {
	if e.obs != nil {
		e.obs(ev)
	}
}

func (e *Engine) transition(p Phase) {
	e.log.Debug("phase transition", logx.String("phase", p.String()))
	e.emit(Event{Kind: EventTransition, Phase: p})
}

func (e *Engine) fail(result *Result, reason string) *Result {
	e.log.Warn("run failed", logx.String("reason", reason))
	e.emit(Event{Kind: EventTransition, Phase: PhaseFailed, Reason: reason})
	return result
}

// Run executes the full pipeline and always returns a result: populated
// fields indicate how far the run progressed. Expected network conditions
// never surface as errors. ctx cancellation maps onto the engine's
// cancellation flag.
func (e *Engine) Run(ctx context.Context) *Result {
	if ctx == nil {
		ctx = context.Background()
	}
	result := &Result{Timestamp: time.Now()}

	stopWatch := context.AfterFunc(ctx, func() { e.cancelled.Store(true) })
	defer stopWatch()

	// Configuration.
	e.transition(PhaseConfiguringClient)
	client, ok := e.fetchClientInfo()
	if !ok {
		return e.fail(result, "configuration unavailable")
	}
	result.Client = client
	e.log.Info("client configured",
		logx.String("ip", client.IP),
		logx.String("isp", client.ISP),
		logx.String("country", client.Country))

	// Server discovery.
	e.transition(PhaseDiscoveringServers)
	reg, ok := e.fetchServers(client)
	if !ok {
		return e.fail(result, "no usable server")
	}
	e.log.Info("servers discovered", logx.Int("count", reg.Len()))

	// Latency probing.
	e.transition(PhaseProbingLatency)
	best, ok := e.probeLatencies(reg)
	if !ok {
		return e.fail(result, "no latency measured")
	}
	result.Server = best
	result.PingMs = best.Latency
	e.log.Info("best server selected",
		logx.Int("id", best.ID),
		logx.String("sponsor", best.Sponsor),
		logx.Float64("latency_ms", best.Latency),
		logx.Float64("distance_km", best.Distance))

	// Download.
	e.transition(PhaseMeasuringDownload)
	bytesRead, elapsed := e.runPool(ctx, PhaseMeasuringDownload, e.downloadJobs(best),
		e.cfg.DownloadWorkers, e.cfg.DownloadDeadline)
	result.BytesReceived = bytesRead
	result.DownloadBps = throughputBps(bytesRead, elapsed)
	e.log.Info("download measured",
		logx.Float64("mbps", result.DownloadMbps()),
		logx.Int64("bytes", bytesRead),
		logx.Duration("elapsed", elapsed))

	// Upload.
	e.transition(PhaseMeasuringUpload)
	bytesSent, elapsed := e.runPool(ctx, PhaseMeasuringUpload, e.uploadJobs(best),
		e.cfg.UploadWorkers, e.cfg.UploadDeadline)
	result.BytesSent = bytesSent
	result.UploadBps = throughputBps(bytesSent, elapsed)
	e.log.Info("upload measured",
		logx.Float64("mbps", result.UploadMbps()),
		logx.Int64("bytes", bytesSent),
		logx.Duration("elapsed", elapsed))

	e.transition(PhaseDone)
	return result
}

func (e *Engine) fetchClientInfo() (*ClientInfo, bool) {
	data, ok := e.tr.Fetch(e.cfg.ConfigURL)
	if !ok {
		return nil, false
	}
	return parseClientInfo(data)
}

// fetchServers pulls the directory (primary, then fallback), parses it with
// per-record skipping, and keeps the ServerLimit closest candidates when the
// client location is known. Distances are recorded on the retained copies
// only, relative to this run's client location.
func (e *Engine) fetchServers(client *ClientInfo) (*registry.Registry, bool) {
	var data []byte
	var ok bool
	for _, u := range []string{e.cfg.ServerListURL, e.cfg.ServerListFallbackURL} {
		if u == "" {
			continue
		}
		if data, ok = e.tr.Fetch(u); ok {
			break
		}
		e.log.Warn("server directory fetch failed", logx.String("url", u))
	}
	if !ok {
		return nil, false
	}

	reg := registry.New()
	for _, s := range parseServers(data) {
		reg.Add(s)
	}
	if reg.Len() == 0 {
		return nil, false
	}

	if client != nil {
		ranked := reg.Closest(client.Location, e.cfg.ServerLimit)
		closest := registry.New()
		for _, r := range ranked {
			r.Server.Distance = r.Km
			closest.Add(r.Server)
		}
		reg = closest
	}
	return reg, reg.Len() > 0
}

// probeLatencies measures every candidate over a bounded pool and waits for
// all probes to settle regardless of individual outcome.
func (e *Engine) probeLatencies(reg *registry.Registry) (*registry.Server, bool) {
	sem := make(chan struct{}, e.cfg.LatencyWorkers)
	var wg sync.WaitGroup
	for _, s := range reg.Servers() {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if e.cancelled.Load() {
				return
			}
			ms, ok := e.tr.MeasureLatency(s.URL, e.cfg.LatencyAttempts)
			if !ok {
				e.log.Debug("latency probe failed", logx.Int("id", s.ID), logx.String("url", s.URL))
				return
			}
			s.Latency = ms
		}()
	}
	wg.Wait()
	return reg.Best()
}

type job func() int64

func (e *Engine) downloadJobs(best *registry.Server) []job {
	base := transport.BaseURL(best.URL)
	jobs := make([]job, 0, len(e.cfg.DownloadSizes)*e.cfg.DownloadRepeats)
	for _, size := range e.cfg.DownloadSizes {
		url := fmt.Sprintf("%s/random%dx%d.jpg", base, size, size)
		for i := 0; i < e.cfg.DownloadRepeats; i++ {
			jobs = append(jobs, func() int64 { return e.tr.DownloadFile(url) })
		}
	}
	return jobs
}

func (e *Engine) uploadJobs(best *registry.Server) []job {
	sizes := e.cfg.UploadSizes
	if n := e.cfg.UploadSizeRatio - 1; n > 0 && n < len(sizes) {
		sizes = sizes[n:]
	}
	// One payload per distinct size, built once and shared across jobs.
	payloads := make([][]byte, 0, len(sizes))
	for _, size := range sizes {
		payloads = append(payloads, uploadPayload(size))
	}

	url := best.URL
	var jobs []job
	for len(jobs) < e.cfg.UploadJobCap {
		for _, p := range payloads {
			p := p
			jobs = append(jobs, func() int64 {
				sent, _ := e.tr.UploadData(url, p)
				return sent
			})
		}
	}
	return jobs
}

// uploadPayload builds content1=<filler> padded to exactly size bytes.
func uploadPayload(size int) []byte {
	const prefix = "content1="
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for len(buf) < size {
		n := size - len(buf)
		if n > len(uploadAlphabet) {
			n = len(uploadAlphabet)
		}
		buf = append(buf, uploadAlphabet[:n]...)
	}
	return buf
}

// runPool submits the fixed job list to a bounded pool and drains completions
// against a hard wall-clock deadline. Completions observed after the deadline
// case fires are not counted; this is the deliberate resolution of the
// deadline/in-flight race. Returns counted bytes and elapsed time.
func (e *Engine) runPool(ctx context.Context, phase Phase, jobs []job, workers int, deadline time.Duration) (int64, time.Duration) {
	if len(jobs) == 0 {
		return 0, 0
	}

	// phaseDone cancels not-yet-started jobs without touching the run-wide
	// cancellation flag: a download deadline must not kill the upload phase.
	phaseDone := make(chan struct{})
	defer close(phaseDone)

	// completions is buffered to len(jobs): workers never block on send, so
	// the pool always unwinds even after the drain loop stops reading.
	completions := make(chan int64, len(jobs))
	sem := make(chan struct{}, workers)
	start := time.Now()

	for _, j := range jobs {
		j := j
		go func() {
			sem <- struct{}{}
			defer func() { <-sem }()
			select {
			case <-phaseDone:
				return
			default:
			}
			if e.cancelled.Load() || ctx.Err() != nil {
				completions <- 0
				return
			}
			completions <- j()
		}()
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	avg := ewma.NewMovingAverage()
	var total int64
	received := 0

drain:
	for received < len(jobs) {
		select {
		case n := <-completions:
			received++
			if n > 0 {
				total += n
				if sec := time.Since(start).Seconds(); sec > 0 {
					avg.Add(float64(total) * 8 / sec)
				}
				e.emit(Event{Kind: EventProgress, Phase: phase, Bytes: n, RateBps: avg.Value()})
			}
		case <-timer.C:
			e.log.Debug("phase deadline reached", logx.String("phase", phase.String()))
			break drain
		case <-ctx.Done():
			break drain
		}
	}

	return total, time.Since(start)
}

// throughputBps converts a counted byte total and elapsed duration to
// bits per second. Order of completion does not matter: the total is a
// plain commutative sum.
func throughputBps(totalBytes int64, elapsed time.Duration) float64 {
	sec := elapsed.Seconds()
	if totalBytes <= 0 || sec <= 0 {
		return 0
	}
	return float64(totalBytes) * 8 / sec
}
