// Package transport performs the network primitives the measurement engine
// needs: fetch bytes, measure round-trip latency, stream a download, and
// upload a payload.
//
// Every method absorbs network, timeout, and status errors into its return
// values. Nothing here propagates a raw error to callers; the engine decides
// what a failure means for the pipeline.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	// downloadChunkSize is the fixed read size for download streaming.
	downloadChunkSize = 10240

	// latencyFailureMs is recorded for a failed latency attempt. Failed
	// attempts are not excluded from the average; this mirrors the scoring
	// convention of the external tool whose numbers we match.
	latencyFailureMs = 3600000.0

	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Options configures a Client.
type Options struct {
	// Timeout bounds every individual request, including latency attempts.
	Timeout time.Duration
	// UserAgent overrides the default browser-like agent string.
	UserAgent string
	// DownloadRateMBps caps download streaming with a token bucket when > 0.
	DownloadRateMBps float64
}

// Client issues the measurement requests.
type Client struct {
	timeout   time.Duration
	userAgent string
	httpc     *http.Client
	limiter   *rate.Limiter

	seq atomic.Uint64
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	var limiter *rate.Limiter
	if opts.DownloadRateMBps > 0 {
		bps := opts.DownloadRateMBps * 1024 * 1024
		limiter = rate.NewLimiter(rate.Limit(bps), int(bps))
	}

	return &Client{
		timeout:   timeout,
		userAgent: ua,
		httpc: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         (&net.Dialer{Timeout: timeout}).DialContext,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     10 * time.Second,
			},
		},
		limiter: limiter,
	}
}

// cacheBust appends an x=<unix-ms>.<seq> query parameter so intermediate
// caches never serve a stale measurement body.
func (c *Client) cacheBust(rawURL string) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sx=%d.%d", rawURL, sep, time.Now().UnixMilli(), c.seq.Add(1))
}

func (c *Client) newRequest(method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, c.cacheBust(rawURL), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Cache-Control", "no-cache")
	return req, nil
}

// Fetch performs a GET and returns the full body. ok is false on any network,
// timeout, or non-2xx condition.
func (c *Client) Fetch(rawURL string) ([]byte, bool) {
	req, err := c.newRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, false
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false
	}
	return data, true
}

// BaseURL extracts the directory URL from a server upload URL, keeping any
// explicit port. "http://host:8080/speedtest/upload.php" becomes
// "http://host:8080/speedtest".
func BaseURL(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil {
		return serverURL
	}
	dir := u.Path
	if i := strings.LastIndex(dir, "/"); i >= 0 {
		dir = dir[:i]
	}
	base := u.Scheme + "://" + u.Host + dir
	return base
}

// MeasureLatency issues attempts sequential round trips against
// <upload-url-directory>/latency.txt over a raw connection, timing each from
// request write to response status line. A failed attempt records a large
// sentinel instead of being dropped. The result is
// sum(all timings) / (2 × attempts) in milliseconds, rounded to 3 decimals;
// ok is false only when every attempt failed.
func (c *Client) MeasureLatency(serverURL string, attempts int) (float64, bool) {
	if attempts <= 0 {
		attempts = 3
	}

	u, err := url.Parse(serverURL)
	if err != nil {
		return 0, false
	}
	dir := u.Path
	if i := strings.LastIndex(dir, "/"); i >= 0 {
		dir = dir[:i]
	}
	latencyPath := dir + "/latency.txt"
	stamp := time.Now().UnixMilli()

	timings := make([]float64, 0, attempts)
	for i := 0; i < attempts; i++ {
		pathQS := fmt.Sprintf("%s?x=%d.%d", latencyPath, stamp, i)
		ms, ok := c.latencyRoundTrip(u, pathQS)
		if !ok {
			ms = latencyFailureMs
		}
		timings = append(timings, ms)
	}
	return scoreLatency(timings)
}

// scoreLatency folds per-attempt timings (failures already replaced by the
// sentinel) into the final figure: sum / (2 × attempts), i.e. successful
// timings effectively weigh half. ok is false when every attempt carries the
// sentinel.
func scoreLatency(timingsMs []float64) (float64, bool) {
	if len(timingsMs) == 0 {
		return 0, false
	}
	anyOK := false
	var total float64
	for _, ms := range timingsMs {
		if ms < latencyFailureMs {
			anyOK = true
		}
		total += ms
	}
	if !anyOK {
		return 0, false
	}
	return math.Round(total/float64(2*len(timingsMs))*1000) / 1000, true
}

// latencyRoundTrip times one GET over a freshly dialed connection. Only the
// first few body bytes are read; the point is header arrival, not payload.
func (c *Client) latencyRoundTrip(u *url.URL, pathQS string) (float64, bool) {
	conn, err := c.dialProbe(u)
	if err != nil {
		return 0, false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	req := fmt.Sprintf("GET %s HTTP/1.1\r\nHost: %s\r\nUser-Agent: %s\r\nCache-Control: no-cache\r\nConnection: close\r\n\r\n",
		pathQS, u.Host, c.userAgent)

	start := time.Now()
	if _, err := io.WriteString(conn, req); err != nil {
		return 0, false
	}
	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	elapsed := time.Since(start)
	if err != nil || !strings.HasPrefix(status, "HTTP/") {
		return 0, false
	}

	// Drain the header block plus a few body bytes so the server sees a
	// completed exchange.
	var probe [9]byte
	io.ReadFull(br, probe[:])

	return float64(elapsed) / float64(time.Millisecond), true
}

func (c *Client) dialProbe(u *url.URL) (net.Conn, error) {
	host := u.Hostname()
	port := u.Port()
	d := &net.Dialer{Timeout: c.timeout}
	if u.Scheme == "https" {
		if port == "" {
			port = "443"
		}
		return tls.DialWithDialer(d, "tcp", net.JoinHostPort(host, port), nil)
	}
	if port == "" {
		port = "80"
	}
	return d.Dial("tcp", net.JoinHostPort(host, port))
}

// DownloadFile streams the resource in fixed 10 KiB chunks until EOF or error
// and returns the number of bytes read. Bytes read before an error still
// count.
func (c *Client) DownloadFile(rawURL string) int64 {
	req, err := c.newRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return 0
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var total int64
	buf := make([]byte, downloadChunkSize)
	for {
		if c.limiter != nil {
			if err := c.limiter.WaitN(ctx, len(buf)); err != nil {
				break
			}
		}
		n, err := resp.Body.Read(buf)
		total += int64(n)
		if err != nil {
			break
		}
	}
	return total
}

// UploadData POSTs the exact payload form-encoded. bytesSent equals
// len(payload) iff the request succeeded, else 0.
func (c *Client) UploadData(rawURL string, payload []byte) (int64, bool) {
	req, err := c.newRequest(http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return 0, false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.ContentLength = int64(len(payload))

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, false
	}
	return int64(len(payload)), true
}
