package engine

import "time"

// Endpoint defaults for the public directory service.
const (
	DefaultConfigURL          = "https://www.speedtest.net/speedtest-config.php"
	DefaultServerListURL      = "https://www.speedtest.net/speedtest-servers-static.php"
	DefaultServerListFallback = "https://www.speedtest.net/speedtest-servers.php"
)

// Config is the explicit per-run configuration. It is constructed once and
// passed into New; the engine holds no process-wide mutable settings.
type Config struct {
	ConfigURL             string
	ServerListURL         string
	ServerListFallbackURL string

	// ServerLimit caps how many of the closest servers are latency-probed.
	ServerLimit int
	// LatencyAttempts is the number of round trips per probe.
	LatencyAttempts int
	// LatencyWorkers bounds the latency probe pool.
	LatencyWorkers int

	// DownloadSizes lists the square test image sizes (random<S>x<S>.jpg).
	DownloadSizes []int
	// DownloadRepeats is how many times each size is fetched.
	DownloadRepeats int
	// DownloadWorkers bounds the download pool.
	DownloadWorkers int
	// DownloadDeadline is the hard wall-clock budget for the download phase.
	DownloadDeadline time.Duration

	// UploadSizes lists payload sizes in bytes. Only sizes from index
	// UploadSizeRatio-1 on are used, matching the external tool's ratio knob.
	UploadSizes     []int
	UploadSizeRatio int
	// UploadJobCap stops payload replication once the job list reaches it.
	UploadJobCap    int
	UploadWorkers   int
	UploadDeadline  time.Duration
}

// DefaultConfig returns the stock settings of the public speedtest directory.
func DefaultConfig() Config {
	return Config{
		ConfigURL:             DefaultConfigURL,
		ServerListURL:         DefaultServerListURL,
		ServerListFallbackURL: DefaultServerListFallback,
		ServerLimit:           5,
		LatencyAttempts:       3,
		LatencyWorkers:        5,
		DownloadSizes:         []int{350, 500, 750, 1000, 1500, 2000, 2500, 3000, 3500, 4000},
		DownloadRepeats:       4,
		DownloadWorkers:       2,
		DownloadDeadline:      10 * time.Second,
		UploadSizes:           []int{32768, 65536, 131072, 262144, 524288, 1048576, 7340032},
		UploadSizeRatio:       5,
		UploadJobCap:          50,
		UploadWorkers:         2,
		UploadDeadline:        10 * time.Second,
	}
}

// withDefaults fills zero fields so a partially specified config still runs.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ConfigURL == "" {
		c.ConfigURL = def.ConfigURL
	}
	if c.ServerListURL == "" {
		c.ServerListURL = def.ServerListURL
	}
	if c.ServerListFallbackURL == "" {
		c.ServerListFallbackURL = def.ServerListFallbackURL
	}
	if c.ServerLimit <= 0 {
		c.ServerLimit = def.ServerLimit
	}
	if c.LatencyAttempts <= 0 {
		c.LatencyAttempts = def.LatencyAttempts
	}
	if c.LatencyWorkers <= 0 {
		c.LatencyWorkers = def.LatencyWorkers
	}
	if len(c.DownloadSizes) == 0 {
		c.DownloadSizes = def.DownloadSizes
	}
	if c.DownloadRepeats <= 0 {
		c.DownloadRepeats = def.DownloadRepeats
	}
	if c.DownloadWorkers <= 0 {
		c.DownloadWorkers = def.DownloadWorkers
	}
	if c.DownloadDeadline <= 0 {
		c.DownloadDeadline = def.DownloadDeadline
	}
	if len(c.UploadSizes) == 0 {
		c.UploadSizes = def.UploadSizes
	}
	if c.UploadSizeRatio <= 0 {
		c.UploadSizeRatio = def.UploadSizeRatio
	}
	if c.UploadJobCap <= 0 {
		c.UploadJobCap = def.UploadJobCap
	}
	if c.UploadWorkers <= 0 {
		c.UploadWorkers = def.UploadWorkers
	}
	if c.UploadDeadline <= 0 {
		c.UploadDeadline = def.UploadDeadline
	}
	return c
}
