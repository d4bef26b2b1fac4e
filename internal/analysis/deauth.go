package analysis

import (
	"sort"
	"strconv"
	"time"

	"github.com/wifientist/pawketeer/internal/dot11"
)

// Deauth flood detection parameters. A burst is burstThreshold or more
// deauth/disassoc frames inside a sliding burstWindow.
const (
	burstWindow    = 10 * time.Second
	burstThreshold = 40
	topSources     = 5
)

// DeauthDisassoc flags deauthentication floods, the classic way to
// knock clients off a network. It tracks a sliding window of frame
// timestamps and attributes each burst to the busiest transmitter
// inside it.
type DeauthDisassoc struct {
	total      int
	byCategory map[string]int
	bySource   map[string]int
	byReason   map[uint16]int

	window []windowEntry
	bursts []burst
}

type windowEntry struct {
	ts  time.Time
	src string
}

type burst struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Frames int       `json:"frames"`
	Source string    `json:"source"`
}

func NewDeauthDisassoc() *DeauthDisassoc {
	return &DeauthDisassoc{
		byCategory: map[string]int{},
		bySource:   map[string]int{},
		byReason:   map[uint16]int{},
	}
}

func (a *DeauthDisassoc) Name() string { return NameDeauthDisassoc }

func (a *DeauthDisassoc) Process(f *dot11.Frame) {
	if f.Category != dot11.CatDeauth && f.Category != dot11.CatDisassoc {
		return
	}
	a.total++
	a.byCategory[f.Category]++
	if f.Addr2 != "" {
		a.bySource[f.Addr2]++
	}
	a.byReason[f.ReasonCode]++

	a.window = append(a.window, windowEntry{ts: f.Timestamp, src: f.Addr2})
	cutoff := f.Timestamp.Add(-burstWindow)
	start := 0
	for start < len(a.window) && a.window[start].ts.Before(cutoff) {
		start++
	}
	a.window = a.window[start:]

	if len(a.window) >= burstThreshold {
		a.recordBurst()
		a.window = a.window[:0]
	}
}

// recordBurst attributes the current window to its most frequent
// transmitter.
func (a *DeauthDisassoc) recordBurst() {
	counts := map[string]int{}
	for _, e := range a.window {
		counts[e.src]++
	}
	var topSrc string
	var topCount int
	for _, src := range sortedKeys(counts) {
		if counts[src] > topCount {
			topSrc, topCount = src, counts[src]
		}
	}
	a.bursts = append(a.bursts, burst{
		Start:  a.window[0].ts,
		End:    a.window[len(a.window)-1].ts,
		Frames: len(a.window),
		Source: topSrc,
	})
}

func (a *DeauthDisassoc) Result() map[string]any {
	type sourceCount struct {
		MAC    string `json:"mac"`
		Frames int    `json:"frames"`
	}
	var top []sourceCount
	for _, mac := range sortedKeys(a.bySource) {
		top = append(top, sourceCount{MAC: mac, Frames: a.bySource[mac]})
	}
	sort.SliceStable(top, func(i, j int) bool { return top[i].Frames > top[j].Frames })
	if len(top) > topSources {
		top = top[:topSources]
	}

	reasons := map[string]int{}
	for code, n := range a.byReason {
		reasons[reasonName(code)] = n
	}

	return map[string]any{
		"total_frames":    a.total,
		"deauth_frames":   a.byCategory[dot11.CatDeauth],
		"disassoc_frames": a.byCategory[dot11.CatDisassoc],
		"attack_detected": len(a.bursts) > 0,
		"bursts":          a.bursts,
		"top_sources":     top,
		"reason_codes":    reasons,
	}
}

var reasonNames = map[uint16]string{
	1: "unspecified",
	2: "previous_auth_invalid",
	3: "station_leaving",
	4: "inactivity",
	5: "ap_overloaded",
	6: "class2_from_nonauth",
	7: "class3_from_nonassoc",
	8: "station_left_bss",
}

func reasonName(code uint16) string {
	if name, ok := reasonNames[code]; ok {
		return name
	}
	return "reason_" + strconv.Itoa(int(code))
}
