package analysis

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/wifientist/pawketeer/internal/dot11"
)

// rsnPSK is an RSN element advertising CCMP with PSK authentication.
var rsnPSK = []byte{
	0x01, 0x00,
	0x00, 0x0f, 0xac, 0x04,
	0x01, 0x00,
	0x00, 0x0f, 0xac, 0x04,
	0x01, 0x00,
	0x00, 0x0f, 0xac, 0x02,
}

func beacon(bssid, ssid string, channel int, secure bool) *dot11.Frame {
	f := &dot11.Frame{
		Category: dot11.CatBeacon,
		Addr1:    "ff:ff:ff:ff:ff:ff",
		Addr2:    bssid,
		Addr3:    bssid,
		SSID:     ssid,
		Channel:  channel,
		Elements: []dot11.Element{},
	}
	if secure {
		f.Capability = 0x0011
		f.Elements = append(f.Elements, dot11.Element{ID: dot11.IDRSN, Data: rsnPSK})
	} else {
		f.Capability = 0x0001
	}
	return f
}

func probeReq(station, ssid string) *dot11.Frame {
	return &dot11.Frame{
		Category: dot11.CatProbeReq,
		Addr1:    "ff:ff:ff:ff:ff:ff",
		Addr2:    station,
		SSID:     ssid,
		Elements: []dot11.Element{},
	}
}

func deauth(src, dst string, ts time.Time) *dot11.Frame {
	return &dot11.Frame{
		Category:   dot11.CatDeauth,
		Addr1:      dst,
		Addr2:      src,
		ReasonCode: 7,
		Timestamp:  ts,
		Elements:   []dot11.Element{},
	}
}

func sourceOf(frames []*dot11.Frame) FrameSource {
	i := 0
	return func() (*dot11.Frame, error) {
		if i >= len(frames) {
			return nil, io.EOF
		}
		f := frames[i]
		i++
		return f, nil
	}
}

func TestProfilePatterns(t *testing.T) {
	cases := []struct {
		name string
		mix  map[string]int64
		want string
	}{
		{"deauth flood", map[string]int64{dot11.CatDeauth: 30, dot11.CatBeacon: 70}, PatternDeauthAttack},
		{"disassoc flood", map[string]int64{dot11.CatDisassoc: 10, dot11.CatQoSData: 90}, PatternDeauthAttack},
		{"active scanning", map[string]int64{dot11.CatProbeReq: 40, dot11.CatBeacon: 30, dot11.CatAck: 30}, PatternActiveScanning},
		{"passive monitoring", map[string]int64{dot11.CatBeacon: 80, dot11.CatProbeReq: 5, dot11.CatAck: 15}, PatternPassiveMonitoring},
		{"client activity", map[string]int64{dot11.CatProbeReq: 20, dot11.CatBeacon: 20, dot11.CatQoSData: 60}, PatternClientActivity},
		{"normal mixed", map[string]int64{dot11.CatBeacon: 50, dot11.CatQoSData: 45, dot11.CatProbeReq: 5}, PatternNormalMixed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var total int64
			for _, n := range tc.mix {
				total += n
			}
			p := Profile(tc.mix, total)
			if p.Pattern != tc.want {
				t.Errorf("pattern = %s, want %s", p.Pattern, tc.want)
			}
			if p.Interpretation == "" {
				t.Error("expected an interpretation for a classified capture")
			}
		})
	}
}

func TestProfileEmptyCapture(t *testing.T) {
	p := Profile(nil, 0)
	if p.Pattern != PatternEmpty {
		t.Errorf("pattern = %s, want empty", p.Pattern)
	}
	if p.Interpretation != "" {
		t.Errorf("interpretation = %q, want none", p.Interpretation)
	}
	if len(p.SelectAnalyzers()) == 0 {
		t.Error("even an empty capture should select a default analyzer")
	}
}

func TestProfileSecurityIndicators(t *testing.T) {
	p := Profile(map[string]int64{dot11.CatDeauth: 8, dot11.CatProbeReq: 50, dot11.CatBeacon: 42}, 100)
	byType := map[string]Indicator{}
	for _, ind := range p.Indicators {
		byType[ind.Type] = ind
	}
	flood, ok := byType["deauth_flood"]
	if !ok {
		t.Fatal("expected deauth_flood indicator above 5%")
	}
	if flood.Detail != "8.0% deauth frames - possible DoS attack" {
		t.Errorf("deauth_flood detail = %q", flood.Detail)
	}
	probing, ok := byType["excessive_probing"]
	if !ok {
		t.Fatal("expected excessive_probing indicator above 40%")
	}
	if probing.Detail != "50.0% probe requests - intensive scanning" {
		t.Errorf("excessive_probing detail = %q", probing.Detail)
	}
}

func TestSuggestionsPerPattern(t *testing.T) {
	cases := []struct {
		name string
		mix  map[string]int64
		want []string
	}{
		{"deauth attack", map[string]int64{dot11.CatDeauth: 20, dot11.CatBeacon: 80},
			[]string{NameDeauthDisassoc, NameEvilTwin}},
		{"active scanning", map[string]int64{dot11.CatProbeReq: 50, dot11.CatBeacon: 50},
			[]string{NameProbePrivacy, NameEvilTwin}},
		{"passive monitoring", map[string]int64{dot11.CatBeacon: 95, dot11.CatProbeReq: 5},
			[]string{NameWeakSecurity, NameEvilTwin}},
		{"client activity", map[string]int64{dot11.CatProbeReq: 20, dot11.CatQoSData: 80},
			[]string{NameProbePrivacy, NameHandshakePMKID}},
		{"normal mixed", map[string]int64{dot11.CatBeacon: 50, dot11.CatQoSData: 40, dot11.CatProbeReq: 10},
			[]string{NameWeakSecurity, NameProbePrivacy}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var total int64
			for _, n := range tc.mix {
				total += n
			}
			p := Profile(tc.mix, total)
			if len(p.Suggestions) != len(tc.want) {
				t.Fatalf("suggestions = %+v", p.Suggestions)
			}
			for i, s := range p.Suggestions {
				if s.Analyzer != tc.want[i] {
					t.Errorf("suggestion[%d] = %s, want %s", i, s.Analyzer, tc.want[i])
				}
			}
		})
	}
}

func TestSelectAnalyzersPriorityOrder(t *testing.T) {
	p := Profile(map[string]int64{dot11.CatDeauth: 20, dot11.CatProbeReq: 10, dot11.CatBeacon: 70}, 100)
	selected := p.SelectAnalyzers()

	if len(selected) != 2 {
		t.Fatalf("selected = %v", selected)
	}
	// Highs must come first.
	if selected[0] != NameDeauthDisassoc {
		t.Errorf("first = %s, want deauth_disassoc", selected[0])
	}
	if selected[1] != NameEvilTwin {
		t.Errorf("second = %s, want evil_twin", selected[1])
	}
}

func TestSelectionReasoningSkipsUnselected(t *testing.T) {
	p := Profile(map[string]int64{dot11.CatDeauth: 20, dot11.CatBeacon: 80}, 100)
	selected := p.SelectAnalyzers()
	r := p.Reasoning(selected)

	if r.Mode != "automatic" || r.Profile != PatternDeauthAttack {
		t.Fatalf("reasoning = %+v", r)
	}
	if len(r.Selected)+len(r.Skipped) != len(allAnalyzerNames) {
		t.Errorf("selected %v + skipped %v should cover the roster", r.Selected, r.Skipped)
	}
	for _, name := range r.Skipped {
		for _, sel := range r.Selected {
			if name == sel {
				t.Errorf("%s both selected and skipped", name)
			}
		}
	}
	if len(r.Details) != len(p.Suggestions) {
		t.Errorf("details = %+v", r.Details)
	}
}

func TestManualSelectionRunsEverything(t *testing.T) {
	selected, r := ManualSelection()
	if len(selected) != len(allAnalyzerNames) {
		t.Fatalf("selected = %v", selected)
	}
	if r.Mode != "manual" || len(r.Skipped) != 0 {
		t.Errorf("reasoning = %+v", r)
	}
}

func TestDeauthBurstDetection(t *testing.T) {
	a := NewDeauthDisassoc()
	start := time.Unix(1000, 0)
	for i := 0; i < 45; i++ {
		a.Process(deauth("aa:aa:aa:aa:aa:01", "bb:bb:bb:bb:bb:01", start.Add(time.Duration(i)*100*time.Millisecond)))
	}

	result := a.Result()
	if detected, _ := result["attack_detected"].(bool); !detected {
		t.Fatal("expected burst detection")
	}
	bursts := result["bursts"].([]burst)
	if len(bursts) != 1 {
		t.Fatalf("bursts = %d, want 1", len(bursts))
	}
	if bursts[0].Source != "aa:aa:aa:aa:aa:01" {
		t.Errorf("burst source = %s", bursts[0].Source)
	}
	if bursts[0].Frames < burstThreshold {
		t.Errorf("burst frames = %d", bursts[0].Frames)
	}
}

func TestDeauthSlowTrickleIsNotBurst(t *testing.T) {
	a := NewDeauthDisassoc()
	start := time.Unix(1000, 0)
	// 60 frames but spread one per second: never 40 inside 10s.
	for i := 0; i < 60; i++ {
		a.Process(deauth("aa:aa:aa:aa:aa:02", "bb:bb:bb:bb:bb:01", start.Add(time.Duration(i)*time.Second)))
	}
	if detected, _ := a.Result()["attack_detected"].(bool); detected {
		t.Fatal("trickle should not register as a burst")
	}
}

func TestEvilTwinDetectsOpenClone(t *testing.T) {
	a := NewEvilTwin()
	for i := 0; i < 5; i++ {
		a.Process(beacon("aa:bb:cc:00:00:01", "CoffeeShop", 6, true))
		a.Process(beacon("dd:ee:ff:00:00:99", "CoffeeShop", 11, false))
	}

	result := a.Result()
	if n, _ := result["suspect_count"].(int); n != 1 {
		t.Fatalf("suspect_count = %v", result["suspect_count"])
	}
}

func TestEvilTwinIgnoresConsistentRoaming(t *testing.T) {
	// Two BSSIDs, same SSID, same security, same channel: a normal
	// multi-AP deployment.
	a := NewEvilTwin()
	a.Process(beacon("aa:bb:cc:00:00:01", "Office", 6, true))
	a.Process(beacon("aa:bb:cc:00:00:02", "Office", 6, true))

	if n, _ := a.Result()["suspect_count"].(int); n != 0 {
		t.Fatalf("suspect_count = %d, want 0", n)
	}
}

func TestProbePrivacyExposedStation(t *testing.T) {
	a := NewProbePrivacy()
	ssids := []string{"Home", "Work", "Cafe", "Hotel", "Airport", "Gym"}
	for _, ssid := range ssids {
		a.Process(probeReq("02:00:00:00:00:01", ssid))
	}
	a.Process(probeReq("02:00:00:00:00:02", "<hidden>")) // wildcard only

	result := a.Result()
	if n, _ := result["exposed_count"].(int); n != 1 {
		t.Errorf("exposed_count = %v", result["exposed_count"])
	}
	if n, _ := result["probing_stations"].(int); n != 2 {
		t.Errorf("probing_stations = %v", result["probing_stations"])
	}
	if n, _ := result["wildcard_only_stations"].(int); n != 1 {
		t.Errorf("wildcard_only_stations = %v", result["wildcard_only_stations"])
	}
}

func TestWeakSecurityFlagsOpenNetworks(t *testing.T) {
	a := NewWeakSecurity()
	a.Process(beacon("aa:bb:cc:00:00:01", "Secure", 6, true))
	a.Process(beacon("aa:bb:cc:00:00:02", "FreeWifi", 1, false))

	result := a.Result()
	if n, _ := result["network_count"].(int); n != 2 {
		t.Errorf("network_count = %v", result["network_count"])
	}
	if n, _ := result["weak_count"].(int); n != 1 {
		t.Errorf("weak_count = %v", result["weak_count"])
	}
	bySec := result["by_security"].(map[string]int)
	if bySec["WPA2"] != 1 || bySec["Open"] != 1 {
		t.Errorf("by_security = %v", bySec)
	}
}

func TestHandshakeTracking(t *testing.T) {
	a := NewHandshakePMKID()
	ap, sta := "aa:bb:cc:00:00:01", "02:00:00:00:00:01"

	// M1 from AP (with PMKID), M2 from station, M3 from AP, M4.
	a.Process(&dot11.Frame{Category: dot11.CatData, Addr1: sta, Addr2: ap,
		EAPOL: &dot11.EAPOLKey{Message: 1, AckBit: true, PMKID: "00112233445566778899aabbccddeeff"}})
	a.Process(&dot11.Frame{Category: dot11.CatData, Addr1: ap, Addr2: sta,
		EAPOL: &dot11.EAPOLKey{Message: 2, HasMIC: true}})
	a.Process(&dot11.Frame{Category: dot11.CatData, Addr1: sta, Addr2: ap,
		EAPOL: &dot11.EAPOLKey{Message: 3, HasMIC: true, AckBit: true, Install: true}})
	a.Process(&dot11.Frame{Category: dot11.CatData, Addr1: ap, Addr2: sta,
		EAPOL: &dot11.EAPOLKey{Message: 4, HasMIC: true}})

	result := a.Result()
	if n, _ := result["pair_count"].(int); n != 1 {
		t.Fatalf("pair_count = %v", result["pair_count"])
	}
	if n, _ := result["complete_handshakes"].(int); n != 1 {
		t.Errorf("complete_handshakes = %v", result["complete_handshakes"])
	}
	if n, _ := result["pmkids_captured"].(int); n != 1 {
		t.Errorf("pmkids_captured = %v", result["pmkids_captured"])
	}
	if n, _ := result["crackable_pairs"].(int); n != 1 {
		t.Errorf("crackable_pairs = %v", result["crackable_pairs"])
	}
}

func TestEngineRunPassiveCapture(t *testing.T) {
	var frames []*dot11.Frame
	ts := time.Unix(2000, 0)
	for i := 0; i < 80; i++ {
		b := beacon("aa:bb:cc:00:00:01", "HomeNet", 6, true)
		b.Timestamp = ts.Add(time.Duration(i) * 100 * time.Millisecond)
		b.SignalDBM = -60
		frames = append(frames, b)
	}
	for i := 0; i < 5; i++ {
		frames = append(frames, probeReq("02:00:00:00:00:01", "HomeNet"))
	}

	rep, err := NewEngine(0, nil).Run(context.Background(), sourceOf(frames))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if rep.TotalPackets != 85 {
		t.Errorf("total = %d", rep.TotalPackets)
	}
	if rep.FrameMix[dot11.CatBeacon] != 80 {
		t.Errorf("beacons = %d", rep.FrameMix[dot11.CatBeacon])
	}
	if rep.Profile.Pattern != PatternPassiveMonitoring {
		t.Errorf("pattern = %s", rep.Profile.Pattern)
	}
	if rep.UniqueAPs != 1 || rep.UniqueClients != 1 || rep.SSIDCount != 1 {
		t.Errorf("aps=%d clients=%d ssids=%d", rep.UniqueAPs, rep.UniqueClients, rep.SSIDCount)
	}
	if rep.UniqueDevices != 2 {
		t.Errorf("devices = %d", rep.UniqueDevices)
	}
	if rep.Association == nil || rep.AccessPoints == nil {
		t.Error("station and AP profiling must always run")
	}
	if len(rep.Insights) == 0 {
		t.Error("expected insights")
	}
	if sec, ok := rep.Statistics["capture_seconds"].(float64); !ok || sec <= 0 {
		t.Errorf("capture_seconds = %v", rep.Statistics["capture_seconds"])
	}
}

func TestEngineRunDeauthAttack(t *testing.T) {
	var frames []*dot11.Frame
	ts := time.Unix(3000, 0)
	for i := 0; i < 50; i++ {
		frames = append(frames, deauth("aa:aa:aa:aa:aa:01", "02:00:00:00:00:01", ts.Add(time.Duration(i)*50*time.Millisecond)))
	}
	for i := 0; i < 50; i++ {
		frames = append(frames, beacon("aa:bb:cc:00:00:01", "HomeNet", 6, true))
	}

	rep, err := NewEngine(0, nil).Run(context.Background(), sourceOf(frames))
	if err != nil {
		t.Fatal(err)
	}
	if rep.Profile.Pattern != PatternDeauthAttack {
		t.Fatalf("pattern = %s", rep.Profile.Pattern)
	}
	result, ok := rep.Analyzers[NameDeauthDisassoc]
	if !ok {
		t.Fatalf("deauth analyzer not run: %v", rep.RanAnalyzers)
	}
	if detected, _ := result["attack_detected"].(bool); !detected {
		t.Error("expected attack detection in full pipeline")
	}
}

func TestEngineMaxPackets(t *testing.T) {
	var frames []*dot11.Frame
	for i := 0; i < 100; i++ {
		frames = append(frames, beacon("aa:bb:cc:00:00:01", "HomeNet", 6, true))
	}
	rep, err := NewEngine(10, nil).Run(context.Background(), sourceOf(frames))
	if err != nil {
		t.Fatal(err)
	}
	if rep.TotalPackets != 10 {
		t.Errorf("total = %d, want 10", rep.TotalPackets)
	}
}

func TestEngineAllAnalyzers(t *testing.T) {
	var frames []*dot11.Frame
	for i := 0; i < 80; i++ {
		frames = append(frames, beacon("aa:bb:cc:00:00:01", "HomeNet", 6, true))
	}
	e := NewEngine(0, nil)
	e.AllAnalyzers = true
	rep, err := e.Run(context.Background(), sourceOf(frames))
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.RanAnalyzers) != len(allAnalyzerNames) {
		t.Fatalf("ran = %v", rep.RanAnalyzers)
	}
	if rep.Selection.Mode != "manual" {
		t.Errorf("mode = %s, want manual", rep.Selection.Mode)
	}
	for _, name := range allAnalyzerNames {
		if _, ok := rep.Analyzers[name]; !ok {
			t.Errorf("missing %s result", name)
		}
	}
}

func TestEngineEmptySource(t *testing.T) {
	rep, err := NewEngine(0, nil).Run(context.Background(), sourceOf(nil))
	if err != nil {
		t.Fatal(err)
	}
	if rep.Profile.Pattern != PatternEmpty {
		t.Errorf("pattern = %s", rep.Profile.Pattern)
	}
	if rep.TotalPackets != 0 {
		t.Errorf("total = %d", rep.TotalPackets)
	}
}

func TestReportSummary(t *testing.T) {
	rep, err := NewEngine(0, nil).Run(context.Background(), sourceOf([]*dot11.Frame{
		beacon("aa:bb:cc:00:00:01", "HomeNet", 6, true),
	}))
	if err != nil {
		t.Fatal(err)
	}
	frameMix, details := rep.Summary()
	if frameMix[dot11.CatBeacon] != int64(1) {
		t.Errorf("frame mix = %v", frameMix)
	}
	for _, key := range []string{"traffic_profile", "analyzer_selection", "analyzers", "association", "access_points", "insights", "statistics"} {
		if _, ok := details[key]; !ok {
			t.Errorf("details missing %s", key)
		}
	}
}
