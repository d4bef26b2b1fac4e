package analysis

import (
	"fmt"
	"sort"

	"github.com/wifientist/pawketeer/internal/dot11"
)

// Capability field bits used for device classification.
const (
	capIBSS         = 0x0002
	capSpectrumMgmt = 0x0100
	capRadioMeasure = 0x1000
)

// Vendors whose OUIs in beacons usually mean a phone sharing its
// connection rather than fixed infrastructure.
var mobileHotspotVendors = []string{"Apple", "Samsung", "Google"}

// APProfile aggregates everything the beacons and probe responses of
// one BSSID reveal. Sets are tracked because a BSSID that changes its
// SSID, channel or security mid-capture is itself a finding.
type APProfile struct {
	BSSID         string   `json:"bssid"`
	SSIDs         []string `json:"ssids_seen"`
	Channels      []int    `json:"channels_seen"`
	SecurityModes []string `json:"security_evolution"`
	Country       string   `json:"country,omitempty"`
	PowerLimit    int      `json:"power_constraint_db,omitempty"`
	Vendors       []string `json:"vendor_fingerprints,omitempty"`
	Beacons       int      `json:"beacons"`

	HT  *dot11.HTInfo  `json:"ht,omitempty"`
	VHT *dot11.VHTInfo `json:"vht,omitempty"`
	HE  bool           `json:"he"`

	ChannelHopping  bool `json:"channel_hopping"`
	SSIDChanges     bool `json:"ssid_changes"`
	SecurityChanges bool `json:"security_changes"`

	DeviceClass       string   `json:"device_class"`
	SecurityScore     int      `json:"security_score"`
	SecurityIssues    []string `json:"security_issues,omitempty"`
	SecurityStrengths []string `json:"security_strengths,omitempty"`
	Recommendations   []string `json:"recommendations,omitempty"`

	ChannelWidthMHz int    `json:"channel_width_mhz"`
	SpeedEstimate   string `json:"speed_estimate"`

	ssids      map[string]bool
	channels   map[int]bool
	securities map[string]bool
	vendors    map[string]bool
	capability uint16
	powerSeen  bool
	enterprise bool
	tkip       bool
}

// APAnalysis builds per-BSSID profiles from management traffic.
type APAnalysis struct {
	aps map[string]*APProfile
}

func NewAPAnalysis() *APAnalysis {
	return &APAnalysis{aps: map[string]*APProfile{}}
}

func (a *APAnalysis) Process(f *dot11.Frame) {
	if f.Category != dot11.CatBeacon && f.Category != dot11.CatProbeResp {
		return
	}
	if f.Addr2 == "" {
		return
	}
	ap, ok := a.aps[f.Addr2]
	if !ok {
		ap = &APProfile{
			BSSID:      f.Addr2,
			ssids:      map[string]bool{},
			channels:   map[int]bool{},
			securities: map[string]bool{},
			vendors:    map[string]bool{},
		}
		a.aps[f.Addr2] = ap
	}
	ap.observe(f)
}

func (ap *APProfile) observe(f *dot11.Frame) {
	ap.Beacons++

	if f.SSID != "" {
		ap.ssids[f.SSID] = true
	}
	if f.Channel != 0 {
		ap.channels[f.Channel] = true
	}

	sec := f.Security()
	if !ap.securities[sec] {
		ap.securities[sec] = true
		ap.SecurityModes = append(ap.SecurityModes, sec)
	}
	if rsnData, ok := f.Element(dot11.IDRSN); ok {
		rsn := dot11.ParseRSN(rsnData)
		if rsn.HasAKM("802.1X") || rsn.HasAKM("FT-802.1X") || rsn.HasAKM("802.1X-SHA256") {
			ap.enterprise = true
		}
		for _, cipher := range rsn.PairwiseCiphers {
			if cipher == "TKIP" {
				ap.tkip = true
			}
		}
	}

	if data, ok := f.Element(dot11.IDCountry); ok && len(data) >= 2 {
		ap.Country = string(data[:2])
	}
	if data, ok := f.Element(dot11.IDPowerCons); ok && len(data) >= 1 {
		ap.PowerLimit = int(data[0])
		ap.powerSeen = true
	}
	ap.capability |= f.Capability

	if data, ok := f.Element(dot11.IDHTCap); ok {
		if ht, parsed := dot11.ParseHT(data); parsed {
			ap.HT = &ht
		}
	}
	if data, ok := f.Element(dot11.IDVHTCap); ok {
		if vht, parsed := dot11.ParseVHT(data); parsed {
			ap.VHT = &vht
		}
	}
	if f.HasHE() {
		ap.HE = true
	}

	for _, el := range f.VendorElements() {
		if name := dot11.VendorName(dot11.VendorOUI(el.Data)); name != "" {
			ap.vendors[name] = true
		}
	}
}

// finalize derives the summary fields once all frames are in.
func (ap *APProfile) finalize() {
	ap.SSIDs = sortedKeys(ap.ssids)
	for ch := range ap.channels {
		ap.Channels = append(ap.Channels, ch)
	}
	sort.Ints(ap.Channels)
	ap.Vendors = sortedKeys(ap.vendors)

	ap.ChannelHopping = len(ap.Channels) > 1
	ap.SSIDChanges = len(ap.SSIDs) > 1
	ap.SecurityChanges = len(ap.SecurityModes) > 1

	ap.DeviceClass = ap.estimateDeviceClass()
	ap.assessSecurity()
	ap.ChannelWidthMHz, ap.SpeedEstimate = ap.estimatePerformance()
}

func (ap *APProfile) estimateDeviceClass() string {
	if ap.capability&capIBSS != 0 {
		return "ad_hoc_device"
	}

	// Several weak signals together are a stronger enterprise tell
	// than any one of them alone.
	enterprise := 0
	if ap.enterprise {
		enterprise += 2
	}
	if ap.Country != "" {
		enterprise++
	}
	if ap.powerSeen {
		enterprise++
	}
	if ap.capability&capSpectrumMgmt != 0 {
		enterprise++
	}
	if ap.capability&capRadioMeasure != 0 {
		enterprise++
	}
	if enterprise >= 3 {
		return "enterprise_ap"
	}

	for _, vendor := range mobileHotspotVendors {
		if ap.vendors[vendor] {
			return "mobile_hotspot"
		}
	}

	highEnd := 0
	if ap.VHT != nil {
		highEnd++
	}
	if ap.HE {
		highEnd += 2
	}
	if ap.HT != nil && ap.HT.Supported40MHz {
		highEnd++
	}
	if highEnd >= 2 {
		return "high_end_consumer_ap"
	}
	if ap.HT != nil || ap.VHT != nil {
		return "consumer_ap"
	}
	return "unknown_ap"
}

func (ap *APProfile) bestSecurity() string {
	best := ""
	for mode := range ap.securities {
		if securityRank(mode) > securityRank(best) {
			best = mode
		}
	}
	return best
}

func (ap *APProfile) assessSecurity() {
	score := 0
	var issues, strengths, recs []string

	switch ap.bestSecurity() {
	case "WPA3":
		score = 100
		strengths = append(strengths, "WPA3 support (latest security)")
	case "WPA2-Enterprise":
		score = 90
		strengths = append(strengths, "WPA2 support", "Enterprise authentication (802.1X)")
	case "WPA2":
		score = 80
		strengths = append(strengths, "WPA2 support")
	case "WPA":
		score = 40
		issues = append(issues, "pre-RSN WPA only")
		recs = append(recs, "Upgrade to WPA2 or WPA3")
	case "WEP":
		score = 20
		issues = append(issues, "WEP encryption")
		recs = append(recs, "Immediately upgrade from WEP")
	default:
		score = 10
		issues = append(issues, "no encryption")
		recs = append(recs, "Enable encryption")
	}

	if ap.HE {
		strengths = append(strengths, "WiFi 6 support (recent firmware)")
	} else if ap.VHT != nil {
		strengths = append(strengths, "WiFi 5 support")
	}

	if ap.tkip {
		score -= 15
		issues = append(issues, "TKIP cipher enabled")
		recs = append(recs, "Disable TKIP cipher")
	}
	if ap.SecurityChanges {
		score -= 20
		issues = append(issues, "security mode changed during capture")
	}
	if score < 0 {
		score = 0
	}

	ap.SecurityScore = score
	ap.SecurityIssues = issues
	ap.SecurityStrengths = strengths
	ap.Recommendations = recs
}

func securityRank(mode string) int {
	switch mode {
	case "WPA3":
		return 5
	case "WPA2-Enterprise":
		return 4
	case "WPA2":
		return 3
	case "WPA":
		return 2
	case "WEP":
		return 1
	}
	return 0
}

func (ap *APProfile) estimatePerformance() (int, string) {
	switch {
	case ap.VHT != nil && ap.VHT.Supported160:
		return 160, "1 Gbps or more"
	case ap.VHT != nil:
		return 80, "400-900 Mbps"
	case ap.HT != nil && ap.HT.Supported40MHz:
		return 40, "150-300 Mbps"
	case ap.HT != nil:
		return 20, "up to 72 Mbps"
	default:
		return 20, "up to 54 Mbps"
	}
}

// Result finalizes every AP profile and rolls them up into
// network-wide statistics and insights.
func (a *APAnalysis) Result() map[string]any {
	var aps []APProfile
	hopping, ssidChanging, weak := 0, 0, 0

	channelUsage := map[int]int{}
	securityDist := map[string]int{"open": 0, "wep": 0, "wpa": 0, "wpa2": 0, "wpa3": 0, "enterprise": 0}
	standardsDist := map[string]int{"legacy": 0, "n": 0, "ac": 0, "ax": 0}
	vendorDist := map[string]int{}
	var suspicious []map[string]string

	for _, bssid := range sortedKeys(a.aps) {
		ap := a.aps[bssid]
		ap.finalize()
		aps = append(aps, *ap)

		for _, ch := range ap.Channels {
			channelUsage[ch]++
		}
		securityDist[securityBucket(ap.bestSecurity())]++
		standardsDist[ap.standard()]++
		for _, vendor := range ap.Vendors {
			vendorDist[vendor]++
		}

		if ap.ChannelHopping {
			hopping++
			suspicious = append(suspicious, map[string]string{
				"ap":       ap.BSSID,
				"behavior": "channel_hopping",
				"details":  fmt.Sprintf("seen on channels %v", ap.Channels),
			})
		}
		if ap.SSIDChanges {
			ssidChanging++
			suspicious = append(suspicious, map[string]string{
				"ap":       ap.BSSID,
				"behavior": "ssid_changes",
				"details":  fmt.Sprintf("broadcast %d different SSIDs", len(ap.SSIDs)),
			})
		}
		if ap.SecurityChanges {
			suspicious = append(suspicious, map[string]string{
				"ap":       ap.BSSID,
				"behavior": "security_changes",
				"details":  fmt.Sprintf("security modes %v", ap.SecurityModes),
			})
		}
		if ap.SecurityScore < 50 {
			weak++
		}
	}

	channels := make([]int, 0, len(channelUsage))
	for ch := range channelUsage {
		channels = append(channels, ch)
	}
	sort.Ints(channels)
	mostActive := 0
	for _, ch := range channels {
		if channelUsage[ch] > channelUsage[mostActive] {
			mostActive = ch
		}
	}

	return map[string]any{
		"access_points":     aps,
		"ap_count":          len(aps),
		"channel_hopping":   hopping,
		"ssid_changing":     ssidChanging,
		"weak_security_aps": weak,
		"statistics": map[string]any{
			"channel_usage":          channelUsage,
			"security_distribution":  securityDist,
			"standards_distribution": standardsDist,
			"vendor_distribution":    vendorDist,
		},
		"insights": map[string]any{
			"most_active_channel": mostActive,
			"security_issues": map[string]int{
				"open_networks":   securityDist["open"],
				"wep_networks":    securityDist["wep"],
				"legacy_security": securityDist["wep"] + securityDist["wpa"],
			},
			"modern_standards":     standardsDist["ac"] + standardsDist["ax"],
			"legacy_standards":     standardsDist["legacy"] + standardsDist["n"],
			"suspicious_behaviors": suspicious,
		},
	}
}

// securityBucket folds a security mode into the distribution keys.
func securityBucket(mode string) string {
	switch mode {
	case "WPA3":
		return "wpa3"
	case "WPA2-Enterprise":
		return "enterprise"
	case "WPA2":
		return "wpa2"
	case "WPA":
		return "wpa"
	case "WEP":
		return "wep"
	}
	return "open"
}

// standard reports the newest 802.11 generation the AP advertises.
func (ap *APProfile) standard() string {
	switch {
	case ap.HE:
		return "ax"
	case ap.VHT != nil:
		return "ac"
	case ap.HT != nil:
		return "n"
	default:
		return "legacy"
	}
}
