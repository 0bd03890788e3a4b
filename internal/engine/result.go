package engine

import (
	"math"
	"time"

	"netgauge/internal/registry"
	"netgauge/pkg/geo"
)

// ClientInfo describes the measuring client as reported by the configuration
// endpoint. Populated once per run.
type ClientInfo struct {
	IP       string
	ISP      string
	Location geo.Location
	Country  string
}

// Result aggregates one measurement run. Fields fill in as phases complete
// and are never rolled back: a run that fails after probing still carries its
// ping. An absent Server signals total failure to the caller.
type Result struct {
	DownloadBps   float64
	UploadBps     float64
	PingMs        float64
	Server        *registry.Server
	Client        *ClientInfo
	Timestamp     time.Time
	BytesSent     int64
	BytesReceived int64
}

// DownloadMbps returns the download speed in megabits per second.
func (r *Result) DownloadMbps() float64 { return r.DownloadBps / 1e6 }

// UploadMbps returns the upload speed in megabits per second.
func (r *Result) UploadMbps() float64 { return r.UploadBps / 1e6 }

// Summary is the exported view of a result.
//
// IMPORTANT: JSON tags are kept stable; downstream consumers persist and
// compare these records.
type Summary struct {
	DownloadMbps  float64   `json:"download_mbps"`
	UploadMbps    float64   `json:"upload_mbps"`
	PingMs        float64   `json:"ping_ms"`
	ServerName    string    `json:"server_name,omitempty"`
	ServerSponsor string    `json:"server_sponsor,omitempty"`
	ServerCountry string    `json:"server_country,omitempty"`
	ISP           string    `json:"isp,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	BytesSent     int64     `json:"bytes_sent"`
	BytesReceived int64     `json:"bytes_received"`
}

// Summary exports the result with speeds and ping rounded to 2 decimals.
func (r *Result) Summary() Summary {
	s := Summary{
		DownloadMbps:  round2(r.DownloadMbps()),
		UploadMbps:    round2(r.UploadMbps()),
		PingMs:        round2(r.PingMs),
		Timestamp:     r.Timestamp,
		BytesSent:     r.BytesSent,
		BytesReceived: r.BytesReceived,
	}
	if r.Server != nil {
		s.ServerName = r.Server.Name
		s.ServerSponsor = r.Server.Sponsor
		s.ServerCountry = r.Server.Country
	}
	if r.Client != nil {
		s.ISP = r.Client.ISP
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
