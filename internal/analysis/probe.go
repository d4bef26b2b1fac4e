package analysis

import (
	"sort"

	"github.com/wifientist/pawketeer/internal/dot11"
)

// A station probing for this many distinct networks exposes enough of
// its preferred network list to be trackable.
const largePNLThreshold = 5

// ProbePrivacy reconstructs per-station preferred network lists from
// directed probe requests. Stations that broadcast large lists leak
// their movement history.
type ProbePrivacy struct {
	probes   map[string]map[string]int // station -> ssid -> count
	wildcard map[string]int            // station -> broadcast probe count
}

func NewProbePrivacy() *ProbePrivacy {
	return &ProbePrivacy{
		probes:   map[string]map[string]int{},
		wildcard: map[string]int{},
	}
}

func (a *ProbePrivacy) Name() string { return NameProbePrivacy }

func (a *ProbePrivacy) Process(f *dot11.Frame) {
	if f.Category != dot11.CatProbeReq || f.Addr2 == "" {
		return
	}
	if f.SSID == "" || f.SSID == "<hidden>" {
		a.wildcard[f.Addr2]++
		return
	}
	byStation, ok := a.probes[f.Addr2]
	if !ok {
		byStation = map[string]int{}
		a.probes[f.Addr2] = byStation
	}
	byStation[f.SSID]++
}

func (a *ProbePrivacy) Result() map[string]any {
	type station struct {
		MAC      string   `json:"mac"`
		SSIDs    []string `json:"ssids"`
		PNLSize  int      `json:"pnl_size"`
		Wildcard int      `json:"wildcard_probes"`
	}

	stations := make([]station, 0, len(a.probes))
	var exposed []station
	for _, mac := range sortedKeys(a.probes) {
		byStation := a.probes[mac]
		s := station{
			MAC:      mac,
			SSIDs:    sortedKeys(byStation),
			PNLSize:  len(byStation),
			Wildcard: a.wildcard[mac],
		}
		stations = append(stations, s)
		if s.PNLSize >= largePNLThreshold {
			exposed = append(exposed, s)
		}
	}
	sort.SliceStable(stations, func(i, j int) bool { return stations[i].PNLSize > stations[j].PNLSize })

	wildcardOnly := 0
	for mac := range a.wildcard {
		if _, ok := a.probes[mac]; !ok {
			wildcardOnly++
		}
	}

	return map[string]any{
		"probing_stations":       len(a.probes) + wildcardOnly,
		"directed_stations":      len(a.probes),
		"wildcard_only_stations": wildcardOnly,
		"stations":               stations,
		"exposed_stations":       exposed,
		"exposed_count":          len(exposed),
	}
}
