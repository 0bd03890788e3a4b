package engine

import "testing"

func TestParseClientInfo(t *testing.T) {
	data := []byte(`<settings><client ip="203.0.113.7" isp="Example ISP" lat="10.5" lon="-3.25" country="NL"/></settings>`)
	c, ok := parseClientInfo(data)
	if !ok {
		t.Fatalf("expected parse to succeed")
	}
	if c.IP != "203.0.113.7" || c.ISP != "Example ISP" || c.Country != "NL" {
		t.Fatalf("unexpected client info: %+v", c)
	}
	if c.Location.Latitude != 10.5 || c.Location.Longitude != -3.25 {
		t.Fatalf("unexpected location: %+v", c.Location)
	}
}

func TestParseClientInfoMissingClient(t *testing.T) {
	if _, ok := parseClientInfo([]byte(`<settings></settings>`)); ok {
		t.Fatalf("expected failure without a client element")
	}
	if _, ok := parseClientInfo([]byte(`not xml at all`)); ok {
		t.Fatalf("expected failure on junk input")
	}
}

func TestParseServersSkipsMalformedRecords(t *testing.T) {
	data := []byte(`<settings><servers>
		<server id="1" sponsor="A" name="One" lat="1" lon="2" country="DE" url="http://a.example/speedtest/upload.php"/>
		<server id="bogus" sponsor="B" name="Two" lat="1" lon="2" country="DE" url="http://b.example/speedtest/upload.php"/>
		<server id="3" sponsor="C" name="Three" lat="not-a-number" lon="2" country="DE" url="http://c.example/speedtest/upload.php"/>
		<server id="4" sponsor="D" name="Four" lat="1" lon="2" country="DE"/>
		<server id="5" sponsor="E" name="Five" lat="5" lon="6" country="DE" url="http://e.example/speedtest/upload.php"/>
	</servers></settings>`)

	servers := parseServers(data)
	if len(servers) != 2 {
		t.Fatalf("expected 2 usable servers, got %d", len(servers))
	}
	if servers[0].ID != 1 || servers[1].ID != 5 {
		t.Fatalf("unexpected server ids: %d, %d", servers[0].ID, servers[1].ID)
	}
}

func TestParseServersEmptyDocument(t *testing.T) {
	if got := parseServers([]byte(`<settings><servers></servers></settings>`)); len(got) != 0 {
		t.Fatalf("expected no servers, got %d", len(got))
	}
}
