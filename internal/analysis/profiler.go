package analysis

import (
	"fmt"

	"github.com/wifientist/pawketeer/internal/dot11"
)

// Traffic patterns a capture can be classified into.
const (
	PatternDeauthAttack      = "deauth_attack"
	PatternActiveScanning    = "active_scanning"
	PatternPassiveMonitoring = "passive_monitoring"
	PatternClientActivity    = "client_activity"
	PatternNormalMixed       = "normal_mixed"
	PatternEmpty             = "empty"
)

// Suggestion recommends an analyzer for the second pass.
type Suggestion struct {
	Analyzer string `json:"analyzer"`
	Reason   string `json:"reason"`
	Priority string `json:"priority"` // high, medium, low
}

// Indicator is a security signal visible from the frame mix alone.
type Indicator struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// TrafficProfile classifies a capture's frame mix and drives which
// analyzers the second pass runs.
type TrafficProfile struct {
	Pattern        string             `json:"pattern"`
	Percentages    map[string]float64 `json:"percentages"`
	Suggestions    []Suggestion       `json:"suggested_analyzers"`
	Indicators     []Indicator        `json:"security_indicators"`
	Interpretation string             `json:"interpretation,omitempty"`
}

// SelectionDetail records whether one suggested analyzer made the cut.
type SelectionDetail struct {
	Analyzer string `json:"analyzer"`
	Selected bool   `json:"selected"`
	Priority string `json:"priority"`
	Reason   string `json:"reason"`
}

// SelectionReasoning explains which analyzers ran and which were
// skipped, so a report is auditable after the fact.
type SelectionReasoning struct {
	Mode     string            `json:"mode"` // automatic or manual
	Profile  string            `json:"profile,omitempty"`
	Reason   string            `json:"reason,omitempty"`
	Selected []string          `json:"selected"`
	Skipped  []string          `json:"skipped"`
	Details  []SelectionDetail `json:"selection_details,omitempty"`
}

// allAnalyzerNames is the full roster, in the order manual mode runs them.
var allAnalyzerNames = []string{
	NameDeauthDisassoc,
	NameEvilTwin,
	NameProbePrivacy,
	NameWeakSecurity,
	NameHandshakePMKID,
}

// Profile classifies the frame mix. Thresholds are percentages of all
// classified frames, so a capture dominated by beacons reads as
// passive monitoring even if it also carries a handful of deauths.
func Profile(frameMix map[string]int64, total int64) *TrafficProfile {
	p := &TrafficProfile{Percentages: map[string]float64{}}
	if total == 0 {
		p.Pattern = PatternEmpty
		return p
	}

	pct := func(cat string) float64 {
		return float64(frameMix[cat]) / float64(total) * 100
	}
	for _, cat := range sortedKeys(frameMix) {
		p.Percentages[cat] = pct(cat)
	}

	deauth := pct(dot11.CatDeauth)
	disassoc := pct(dot11.CatDisassoc)
	probeReq := pct(dot11.CatProbeReq)
	beacon := pct(dot11.CatBeacon)

	switch {
	case deauth > 10 || disassoc > 5:
		p.Pattern = PatternDeauthAttack
	case probeReq > 30:
		p.Pattern = PatternActiveScanning
	case beacon > 60 && probeReq < 10:
		p.Pattern = PatternPassiveMonitoring
	case probeReq > 15 && beacon < 40:
		p.Pattern = PatternClientActivity
	default:
		p.Pattern = PatternNormalMixed
	}

	p.suggest()
	p.flagIndicators(deauth, probeReq)
	p.Interpretation = interpretations[p.Pattern]
	return p
}

// suggest maps each traffic pattern to the analyzers worth running on
// it, with a priority the selection step honors.
func (p *TrafficProfile) suggest() {
	add := func(analyzer, priority, reason string) {
		p.Suggestions = append(p.Suggestions, Suggestion{
			Analyzer: analyzer, Reason: reason, Priority: priority,
		})
	}

	switch p.Pattern {
	case PatternDeauthAttack:
		add(NameDeauthDisassoc, "high", "High deauth/disassoc activity detected")
		add(NameEvilTwin, "medium", "Potential evil twin attacks")
	case PatternActiveScanning:
		add(NameProbePrivacy, "high", "High probe request activity")
		add(NameEvilTwin, "medium", "Check for honeypot APs")
	case PatternPassiveMonitoring:
		add(NameWeakSecurity, "high", "Good beacon coverage for AP analysis")
		add(NameEvilTwin, "medium", "Compare AP configurations")
	case PatternClientActivity:
		add(NameProbePrivacy, "high", "Client behavior analysis")
		add(NameHandshakePMKID, "medium", "Potential authentication activity")
	case PatternNormalMixed:
		add(NameWeakSecurity, "medium", "General security assessment")
		add(NameProbePrivacy, "low", "Privacy analysis")
	}
}

func (p *TrafficProfile) flagIndicators(deauth, probeReq float64) {
	if deauth > 5 {
		p.Indicators = append(p.Indicators, Indicator{
			Type:     "deauth_flood",
			Severity: "high",
			Detail:   fmt.Sprintf("%.1f%% deauth frames - possible DoS attack", deauth),
		})
	}
	if probeReq > 40 {
		p.Indicators = append(p.Indicators, Indicator{
			Type:     "excessive_probing",
			Severity: "medium",
			Detail:   fmt.Sprintf("%.1f%% probe requests - intensive scanning", probeReq),
		})
	}
}

var interpretations = map[string]string{
	PatternDeauthAttack:      "This capture appears to contain deauthentication attack activity. High levels of deauth/disassoc frames suggest potential DoS or evil twin attacks.",
	PatternActiveScanning:    "This capture shows intensive WiFi scanning activity. High probe request rates indicate active network discovery.",
	PatternPassiveMonitoring: "This capture appears to be from passive WiFi monitoring. High beacon percentage suggests background AP discovery.",
	PatternClientActivity:    "This capture shows significant client-side activity with probe requests and potential authentication attempts.",
	PatternNormalMixed:       "This capture shows typical mixed WiFi traffic with balanced frame types.",
}

// SelectAnalyzers picks the second-pass analyzers: every high
// priority suggestion, then mediums until three analyzers are chosen.
// A capture with nothing notable still gets the weak security check.
func (p *TrafficProfile) SelectAnalyzers() []string {
	var selected []string
	seen := map[string]bool{}
	pick := func(s Suggestion) {
		if !seen[s.Analyzer] {
			seen[s.Analyzer] = true
			selected = append(selected, s.Analyzer)
		}
	}

	for _, s := range p.Suggestions {
		if s.Priority == "high" {
			pick(s)
		}
	}
	for _, s := range p.Suggestions {
		if len(selected) >= 3 {
			break
		}
		if s.Priority == "medium" {
			pick(s)
		}
	}
	if len(selected) == 0 {
		selected = append(selected, NameWeakSecurity)
	}
	return selected
}

// Reasoning reports why each analyzer was or was not selected for an
// automatic run.
func (p *TrafficProfile) Reasoning(selected []string) SelectionReasoning {
	chosen := map[string]bool{}
	for _, name := range selected {
		chosen[name] = true
	}
	var skipped []string
	for _, name := range allAnalyzerNames {
		if !chosen[name] {
			skipped = append(skipped, name)
		}
	}

	r := SelectionReasoning{
		Mode:     "automatic",
		Profile:  p.Pattern,
		Selected: selected,
		Skipped:  skipped,
	}
	for _, s := range p.Suggestions {
		r.Details = append(r.Details, SelectionDetail{
			Analyzer: s.Analyzer,
			Selected: chosen[s.Analyzer],
			Priority: s.Priority,
			Reason:   s.Reason,
		})
	}
	return r
}

// ManualSelection runs the entire roster, bypassing the profiler.
func ManualSelection() ([]string, SelectionReasoning) {
	selected := append([]string(nil), allAnalyzerNames...)
	return selected, SelectionReasoning{
		Mode:     "manual",
		Reason:   "All analyzers selected manually",
		Selected: selected,
		Skipped:  []string{},
	}
}
