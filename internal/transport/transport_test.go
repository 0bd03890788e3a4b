package transport

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testClient() *Client {
	return New(Options{Timeout: 5 * time.Second})
}

func TestFetchAppendsCacheBust(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		io.WriteString(w, "payload")
	}))
	defer ts.Close()

	data, ok := testClient().Fetch(ts.URL + "/config")
	if !ok {
		t.Fatalf("expected fetch to succeed")
	}
	if string(data) != "payload" {
		t.Fatalf("unexpected body %q", data)
	}
	if !strings.HasPrefix(gotQuery, "x=") {
		t.Fatalf("missing cache-bust parameter, query was %q", gotQuery)
	}
}

func TestFetchCollapsesFailures(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer ts.Close()

	if _, ok := testClient().Fetch(ts.URL); ok {
		t.Fatalf("expected failure on 500")
	}
	if _, ok := testClient().Fetch("http://127.0.0.1:1/unreachable"); ok {
		t.Fatalf("expected failure on refused connection")
	}
}

func TestBaseURLKeepsPort(t *testing.T) {
	got := BaseURL("http://host.example:8080/speedtest/upload.php")
	if got != "http://host.example:8080/speedtest" {
		t.Fatalf("unexpected base url %q", got)
	}
}

func TestScoreLatency(t *testing.T) {
	// Three successful attempts: sum / 6.
	got, ok := scoreLatency([]float64{20, 10, 30})
	if !ok {
		t.Fatalf("expected a latency value")
	}
	if got != 10 {
		t.Fatalf("expected (20+10+30)/6 = 10, got %f", got)
	}

	// One failure keeps its sentinel weight.
	got, ok = scoreLatency([]float64{30, latencyFailureMs, 30})
	if !ok {
		t.Fatalf("expected a latency value with partial failures")
	}
	want := (30 + latencyFailureMs + 30) / 6
	if got != want {
		t.Fatalf("expected %f, got %f", want, got)
	}

	// All failed: absent.
	if _, ok := scoreLatency([]float64{latencyFailureMs, latencyFailureMs, latencyFailureMs}); ok {
		t.Fatalf("expected absent result when every attempt failed")
	}
}

func TestMeasureLatencyAgainstProbeFile(t *testing.T) {
	var paths []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		io.WriteString(w, "test=test\n")
	}))
	defer ts.Close()

	ms, ok := testClient().MeasureLatency(ts.URL+"/speedtest/upload.php", 3)
	if !ok {
		t.Fatalf("expected latency measurement to succeed")
	}
	if ms <= 0 {
		t.Fatalf("expected positive latency, got %f", ms)
	}
	if len(paths) != 3 {
		t.Fatalf("expected 3 probe requests, got %d", len(paths))
	}
	for _, p := range paths {
		if p != "/speedtest/latency.txt" {
			t.Fatalf("probe hit %q, want /speedtest/latency.txt", p)
		}
	}
}

func TestMeasureLatencyAllAttemptsFail(t *testing.T) {
	c := New(Options{Timeout: 200 * time.Millisecond})
	if _, ok := c.MeasureLatency("http://127.0.0.1:1/speedtest/upload.php", 2); ok {
		t.Fatalf("expected absent latency when the server is unreachable")
	}
}

func TestDownloadFileCountsAllBytes(t *testing.T) {
	body := strings.Repeat("x", 3*downloadChunkSize+17)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, body)
	}))
	defer ts.Close()

	n := testClient().DownloadFile(ts.URL + "/random350x350.jpg")
	if n != int64(len(body)) {
		t.Fatalf("expected %d bytes, got %d", len(body), n)
	}
}

func TestDownloadFileFailure(t *testing.T) {
	if n := testClient().DownloadFile("http://127.0.0.1:1/random350x350.jpg"); n != 0 {
		t.Fatalf("expected 0 bytes on refused connection, got %d", n)
	}
}

func TestUploadData(t *testing.T) {
	var gotLen int64
	var gotType string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotLen = int64(len(b))
		gotType = r.Header.Get("Content-Type")
		io.WriteString(w, "size=OK")
	}))
	defer ts.Close()

	payload := []byte("content1=AAAABBBB")
	n, ok := testClient().UploadData(ts.URL+"/speedtest/upload.php", payload)
	if !ok {
		t.Fatalf("expected upload to succeed")
	}
	if n != int64(len(payload)) || gotLen != int64(len(payload)) {
		t.Fatalf("byte accounting mismatch: reported %d, server saw %d, want %d", n, gotLen, len(payload))
	}
	if gotType != "application/x-www-form-urlencoded" {
		t.Fatalf("unexpected content type %q", gotType)
	}
}

func TestUploadDataFailureReportsZero(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer ts.Close()

	n, ok := testClient().UploadData(ts.URL, []byte("content1=AAAA"))
	if ok || n != 0 {
		t.Fatalf("expected (0, false), got (%d, %v)", n, ok)
	}
}
