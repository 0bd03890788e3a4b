// Package registry holds candidate probe servers and selects among them by
// distance and measured latency.
package registry

import (
	"sort"

	"netgauge/pkg/geo"
)

// Server is one probe server advertised by the directory service.
//
// Latency (milliseconds) and Distance (kilometers) start at zero and are only
// meaningful once populated: Latency after a probe, Distance relative to the
// client location the engine computed it against.
type Server struct {
	ID       int
	Sponsor  string
	Name     string
	Location geo.Location
	Country  string
	URL      string
	Latency  float64
	Distance float64
}

// Ranked pairs a server with its distance from a given origin without
// touching the server record itself.
type Ranked struct {
	Server *Server
	Km     float64
}

// Registry is an ordered collection of servers with an id-keyed index.
// It is not safe for concurrent mutation; the engine owns one per run.
type Registry struct {
	servers []*Server
	byID    map[int]*Server
}

func New() *Registry {
	return &Registry{byID: make(map[int]*Server)}
}

// Add inserts a server. A duplicate id replaces the previous entry in place,
// keeping its position in the iteration order.
func (r *Registry) Add(s *Server) {
	if s == nil {
		return
	}
	if _, ok := r.byID[s.ID]; ok {
		for i, held := range r.servers {
			if held.ID == s.ID {
				r.servers[i] = s
				break
			}
		}
		r.byID[s.ID] = s
		return
	}
	r.servers = append(r.servers, s)
	r.byID[s.ID] = s
}

// ByID returns the server with the given id.
func (r *Registry) ByID(id int) (*Server, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// Len returns the number of held servers.
func (r *Registry) Len() int { return len(r.servers) }

// Servers returns the held servers in insertion order. The slice is shared;
// callers must not reorder it.
func (r *Registry) Servers() []*Server { return r.servers }

// Closest ranks the held servers by great-circle distance from origin and
// returns at most limit entries, ascending. The ranking is computed on the
// side: no Distance field is written, so repeated calls against different
// origins cannot corrupt each other.
func (r *Registry) Closest(origin geo.Location, limit int) []Ranked {
	ranked := make([]Ranked, 0, len(r.servers))
	for _, s := range r.servers {
		ranked = append(ranked, Ranked{Server: s, Km: geo.Distance(origin, s.Location)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Km < ranked[j].Km })
	if limit >= 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// Best returns the server with the strictly smallest measured latency.
// Servers that were never probed (Latency == 0) are skipped; ties keep the
// first-encountered server. ok is false when nothing was measured.
func (r *Registry) Best() (*Server, bool) {
	var best *Server
	for _, s := range r.servers {
		if s.Latency <= 0 {
			continue
		}
		if best == nil || s.Latency < best.Latency {
			best = s
		}
	}
	return best, best != nil
}
