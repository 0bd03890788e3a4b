package engine

import (
	"encoding/xml"
	"strconv"
	"strings"

	"netgauge/internal/registry"
	"netgauge/pkg/geo"
)

// The directory service speaks plain XML with everything in attributes:
//
//	<settings><client ip="..." isp="..." lat="..." lon="..." country="..."/></settings>
//	<settings><servers><server id="..." sponsor="..." .../></servers></settings>

type clientXML struct {
	IP      string `xml:"ip,attr"`
	ISP     string `xml:"isp,attr"`
	Lat     string `xml:"lat,attr"`
	Lon     string `xml:"lon,attr"`
	Country string `xml:"country,attr"`
}

type configXML struct {
	Client *clientXML `xml:"client"`
}

// parseClientInfo extracts the client element from the configuration
// response. ok is false when the document is unparsable or the client
// element is missing; absent coordinates default to zero like the upstream
// tool treats them.
func parseClientInfo(data []byte) (*ClientInfo, bool) {
	var doc configXML
	if err := xml.Unmarshal(data, &doc); err != nil || doc.Client == nil {
		return nil, false
	}
	c := doc.Client
	lat, _ := strconv.ParseFloat(strings.TrimSpace(c.Lat), 64)
	lon, _ := strconv.ParseFloat(strings.TrimSpace(c.Lon), 64)
	return &ClientInfo{
		IP:       c.IP,
		ISP:      c.ISP,
		Location: geo.Location{Latitude: lat, Longitude: lon},
		Country:  c.Country,
	}, true
}

// parseServers walks the server-directory document token by token so one
// malformed record never aborts the whole parse. Records missing a usable id,
// coordinate pair, or URL are skipped individually.
func parseServers(data []byte) []*registry.Server {
	dec := xml.NewDecoder(strings.NewReader(string(data)))
	var servers []*registry.Server
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "server" {
			continue
		}
		if s, ok := serverFromAttrs(start.Attr); ok {
			servers = append(servers, s)
		}
	}
	return servers
}

func serverFromAttrs(attrs []xml.Attr) (*registry.Server, bool) {
	s := &registry.Server{}
	var haveID, haveLat, haveLon bool
	for _, a := range attrs {
		v := strings.TrimSpace(a.Value)
		switch a.Name.Local {
		case "id":
			id, err := strconv.Atoi(v)
			if err != nil {
				return nil, false
			}
			s.ID = id
			haveID = true
		case "sponsor":
			s.Sponsor = v
		case "name":
			s.Name = v
		case "lat":
			lat, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, false
			}
			s.Location.Latitude = lat
			haveLat = true
		case "lon":
			lon, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, false
			}
			s.Location.Longitude = lon
			haveLon = true
		case "country":
			s.Country = v
		case "url":
			s.URL = v
		}
	}
	if !haveID || !haveLat || !haveLon || s.URL == "" {
		return nil, false
	}
	return s, true
}
