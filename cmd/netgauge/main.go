package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/robfig/cron/v3"

	"netgauge/internal/config"
	"netgauge/internal/engine"
	"netgauge/internal/history"
	"netgauge/internal/transport"
	"netgauge/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./netgauge.yaml", "path to config yaml/json")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Println("fatal:", err)
			os.Exit(1)
		}
		// No config file: stock settings.
		cfg = &config.Config{}
	}

	logSvc, log := logx.New(cfg.LogConfig())
	defer logSvc.Close()

	app := &app{
		log:  log,
		logs: logSvc,
		hist: history.New(cfg.History.Capacity),
	}
	app.setConfig(cfg)

	if cfg.Schedule.Cron == "" {
		res := app.runOnce(ctx)
		if res.Server == nil {
			os.Exit(1)
		}
		return
	}

	if err := app.runScheduled(ctx, cfgPath, cfg.Schedule.Cron); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

// app holds the pieces shared between scheduled runs. The active config is
// swapped atomically when the watcher sees a file change.
type app struct {
	log  logx.Logger
	logs *logx.Service
	hist *history.Buffer

	mu  sync.Mutex
	cfg *config.Config
}

func (a *app) setConfig(cfg *config.Config) {
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
}

func (a *app) config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// runOnce executes a single measurement with the currently active settings.
func (a *app) runOnce(ctx context.Context) *engine.Result {
	cfg := a.config()

	tr := transport.New(cfg.TransportOptions())
	obs := func(ev engine.Event) {
		if ev.Kind == engine.EventProgress {
			a.log.Trace("transfer progress",
				logx.String("phase", ev.Phase.String()),
				logx.Int64("bytes", ev.Bytes),
				logx.Float64("rate_bps", ev.RateBps))
		}
	}
	e := engine.New(cfg.EngineConfig(), tr, a.log, obs)

	res := e.Run(ctx)
	a.hist.Add(res)

	s := res.Summary()
	a.log.Info("measurement finished",
		logx.Float64("download_mbps", s.DownloadMbps),
		logx.Float64("upload_mbps", s.UploadMbps),
		logx.Float64("ping_ms", s.PingMs),
		logx.String("server", s.ServerSponsor),
		logx.Int64("bytes_received", s.BytesReceived),
		logx.Int64("bytes_sent", s.BytesSent))
	if a.hist.Len() > 1 {
		a.log.Info("rolling averages",
			logx.Int("runs", a.hist.Len()),
			logx.Float64("avg_download_mbps", a.hist.AverageDownloadMbps()),
			logx.Float64("avg_upload_mbps", a.hist.AverageUploadMbps()))
	}
	return res
}

// runScheduled runs the engine on a cron spec until the context ends,
// reloading config (logging + measurement settings) when the file changes.
func (a *app) runScheduled(ctx context.Context, cfgPath, spec string) error {
	watcher := config.NewWatcher(cfgPath, a.log, func(next *config.Config) {
		a.logs.Apply(next.LogConfig())
		a.setConfig(next)
	})
	watcher.Seed(a.config())
	go func() {
		if err := watcher.Watch(ctx); err != nil {
			a.log.Warn("config watch unavailable", logx.Err(err))
		}
	}()

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser))

	var running sync.Mutex
	_, err := c.AddFunc(spec, func() {
		// Skip a tick rather than stack runs when one overruns the interval.
		if !running.TryLock() {
			a.log.Warn("previous run still in progress; skipping tick")
			return
		}
		defer running.Unlock()
		a.runOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	a.log.Info("scheduled mode", logx.String("cron", spec))
	c.Start()
	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	return nil
}
