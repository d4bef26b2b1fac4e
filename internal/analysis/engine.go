package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/wifientist/pawketeer/internal/dot11"
)

const broadcastMAC = "ff:ff:ff:ff:ff:ff"

// Report is the full output of one analysis run.
type Report struct {
	TotalPackets int64            `json:"total_packets"`
	FrameMix     map[string]int64 `json:"frame_mix"`

	UniqueDevices int `json:"unique_devices"`
	UniqueAPs     int `json:"unique_aps"`
	UniqueClients int `json:"unique_clients"`
	SSIDCount     int `json:"ssid_count"`

	Profile      *TrafficProfile           `json:"traffic_profile"`
	Selection    SelectionReasoning        `json:"analyzer_selection"`
	RanAnalyzers []string                  `json:"ran_analyzers"`
	Analyzers    map[string]map[string]any `json:"analyzers"`
	Association  map[string]any            `json:"association"`
	AccessPoints map[string]any            `json:"access_points"`
	Insights     []string                  `json:"insights"`
	Statistics   map[string]any            `json:"statistics"`
}

// Engine runs the staged analysis pipeline: profile the frame mix
// first, then run only the analyzers that mix suggests, plus the
// always-on station and AP profiling.
type Engine struct {
	// MaxPackets caps how many packets are decoded. Zero means all.
	MaxPackets int
	// AllAnalyzers bypasses the profiler's selection and runs the
	// whole roster.
	AllAnalyzers bool
	Log          *log.Logger
}

func NewEngine(maxPackets int, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{MaxPackets: maxPackets, Log: logger}
}

// FrameSource yields decoded frames until io.EOF.
type FrameSource func() (*dot11.Frame, error)

// Run executes the pipeline over the source. Malformed packets have
// already been folded into their own frame categories by the decoder,
// so the only errors left are source-level ones.
func (e *Engine) Run(ctx context.Context, src FrameSource) (*Report, error) {
	rep := &Report{
		FrameMix:  map[string]int64{},
		Analyzers: map[string]map[string]any{},
	}

	// First pass: classify everything and collect the device universe.
	var frames []*dot11.Frame
	devices := map[string]bool{}
	aps := map[string]bool{}
	clients := map[string]bool{}
	ssids := map[string]bool{}

	var firstTS, lastTS time.Time
	var signalSum int64
	var signalCount int64
	signalMin, signalMax := int8(127), int8(-128)

	for {
		if rep.TotalPackets%4096 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f, err := src()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read frame %d: %w", rep.TotalPackets+1, err)
		}
		rep.TotalPackets++
		rep.FrameMix[f.Category]++
		frames = append(frames, f)

		if !f.Timestamp.IsZero() {
			if firstTS.IsZero() || f.Timestamp.Before(firstTS) {
				firstTS = f.Timestamp
			}
			if f.Timestamp.After(lastTS) {
				lastTS = f.Timestamp
			}
		}
		if f.SignalDBM != 0 {
			signalSum += int64(f.SignalDBM)
			signalCount++
			if f.SignalDBM < signalMin {
				signalMin = f.SignalDBM
			}
			if f.SignalDBM > signalMax {
				signalMax = f.SignalDBM
			}
		}

		for _, addr := range []string{f.Addr1, f.Addr2, f.Addr3} {
			if addr != "" && addr != broadcastMAC {
				devices[addr] = true
			}
		}
		switch f.Category {
		case dot11.CatBeacon:
			if f.Addr2 != "" {
				aps[f.Addr2] = true
			}
			if f.SSID != "" {
				ssids[f.SSID] = true
			}
		case dot11.CatProbeResp:
			if f.Addr2 != "" {
				aps[f.Addr2] = true
			}
			if f.SSID != "" {
				ssids[f.SSID] = true
			}
		case dot11.CatProbeReq, dot11.CatAssocReq, dot11.CatReassocReq:
			if f.Addr2 != "" {
				clients[f.Addr2] = true
			}
			if f.SSID != "" && f.SSID != "<hidden>" {
				ssids[f.SSID] = true
			}
		case dot11.CatAuth:
			if f.Addr1 != "" && f.Addr1 != broadcastMAC {
				aps[f.Addr1] = true
			}
			if f.Addr2 != "" {
				clients[f.Addr2] = true
			}
		}
		if e.MaxPackets > 0 && rep.TotalPackets >= int64(e.MaxPackets) {
			e.Log.Warn("packet cap reached, truncating analysis", "max_packets", e.MaxPackets)
			break
		}
	}

	rep.UniqueDevices = len(devices)
	rep.UniqueAPs = len(aps)
	rep.UniqueClients = len(clients)
	rep.SSIDCount = len(ssids)

	// Second stage: classify the traffic and pick analyzers.
	rep.Profile = Profile(rep.FrameMix, rep.TotalPackets)
	if e.AllAnalyzers {
		rep.RanAnalyzers, rep.Selection = ManualSelection()
	} else {
		rep.RanAnalyzers = rep.Profile.SelectAnalyzers()
		rep.Selection = rep.Profile.Reasoning(rep.RanAnalyzers)
	}
	e.Log.Debug("traffic profiled",
		"pattern", rep.Profile.Pattern,
		"analyzers", rep.RanAnalyzers,
		"packets", rep.TotalPackets)

	// Third stage: second pass with the selected analyzers plus the
	// always-on station and AP profiling.
	var analyzers []Analyzer
	for _, name := range rep.RanAnalyzers {
		if a := newAnalyzer(name); a != nil {
			analyzers = append(analyzers, a)
		}
	}
	assoc := NewAssociationAnalysis()
	apAnalysis := NewAPAnalysis()

	for i, f := range frames {
		if i%4096 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		for _, a := range analyzers {
			a.Process(f)
		}
		assoc.Process(f)
		apAnalysis.Process(f)
	}

	for _, a := range analyzers {
		rep.Analyzers[a.Name()] = a.Result()
	}
	rep.Association = assoc.Result()
	rep.AccessPoints = apAnalysis.Result()

	rep.Statistics = map[string]any{}
	if !firstTS.IsZero() && lastTS.After(firstTS) {
		rep.Statistics["capture_seconds"] = lastTS.Sub(firstTS).Seconds()
	}
	if signalCount > 0 {
		rep.Statistics["signal_min_dbm"] = int(signalMin)
		rep.Statistics["signal_max_dbm"] = int(signalMax)
		rep.Statistics["signal_avg_dbm"] = float64(signalSum) / float64(signalCount)
	}

	rep.Insights = buildInsights(rep)
	return rep, nil
}

// buildInsights turns the numeric results into the short human
// readable lines the UI shows at the top of a report.
func buildInsights(rep *Report) []string {
	var insights []string
	add := func(format string, args ...any) {
		insights = append(insights, fmt.Sprintf(format, args...))
	}

	switch rep.Profile.Pattern {
	case PatternDeauthAttack:
		add("traffic mix is consistent with a deauthentication attack")
	case PatternActiveScanning:
		add("capture is dominated by active scanning")
	case PatternPassiveMonitoring:
		add("capture looks like passive monitoring of %d access points", rep.UniqueAPs)
	case PatternClientActivity:
		add("capture shows mostly client-side activity")
	case PatternEmpty:
		add("capture contains no frames")
	}

	if r, ok := rep.Analyzers[NameDeauthDisassoc]; ok {
		if detected, _ := r["attack_detected"].(bool); detected {
			add("deauthentication bursts detected, see deauth_disassoc findings")
		}
	}
	if r, ok := rep.Analyzers[NameEvilTwin]; ok {
		if n, _ := r["suspect_count"].(int); n > 0 {
			add("%d SSID(s) show evil twin characteristics", n)
		}
	}
	if r, ok := rep.Analyzers[NameProbePrivacy]; ok {
		if n, _ := r["exposed_count"].(int); n > 0 {
			add("%d station(s) expose large preferred network lists", n)
		}
	}
	if r, ok := rep.Analyzers[NameWeakSecurity]; ok {
		if n, _ := r["weak_count"].(int); n > 0 {
			add("%d network(s) use weak or no encryption", n)
		}
	}
	if r, ok := rep.Analyzers[NameHandshakePMKID]; ok {
		if n, _ := r["pmkids_captured"].(int); n > 0 {
			add("%d PMKID(s) captured, offline cracking is possible", n)
		} else if n, _ := r["complete_handshakes"].(int); n > 0 {
			add("%d complete WPA handshake(s) captured", n)
		}
	}
	if n, _ := rep.AccessPoints["channel_hopping"].(int); n > 0 {
		add("%d BSSID(s) moved between channels during the capture", n)
	}
	return insights
}

// Summary flattens the report into the top-level counters stored on
// the analysis row.
func (r *Report) Summary() (frameMix map[string]any, details map[string]any) {
	frameMix = make(map[string]any, len(r.FrameMix))
	for cat, n := range r.FrameMix {
		frameMix[cat] = n
	}
	details = map[string]any{
		"traffic_profile":    r.Profile,
		"analyzer_selection": r.Selection,
		"ran_analyzers":      r.RanAnalyzers,
		"analyzers":          r.Analyzers,
		"association":        r.Association,
		"access_points":      r.AccessPoints,
		"insights":           r.Insights,
		"statistics":         r.Statistics,
	}
	return frameMix, details
}
