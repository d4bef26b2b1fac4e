package analysis

import (
	"fmt"
	"strings"

	"github.com/wifientist/pawketeer/internal/dot11"
)

// StationProfile is what an association request reveals about a client
// radio. The fingerprint condenses the capability set so identical
// hardware or driver stacks group together even across randomized MACs.
type StationProfile struct {
	MAC          string    `json:"mac"`
	TargetSSID   string    `json:"target_ssid,omitempty"`
	Capabilities []string  `json:"capabilities"`
	Rates        []float64 `json:"rates_mbps"`
	BasicRates   []float64 `json:"basic_rates_mbps"`
	HT           bool      `json:"ht"`
	VHT          bool      `json:"vht"`
	PowerMinDBM  int       `json:"power_min_dbm,omitempty"`
	PowerMaxDBM  int       `json:"power_max_dbm,omitempty"`
	Channels     []int     `json:"supported_channels,omitempty"`
	Vendors      []string  `json:"vendors,omitempty"`
	Fingerprint  string    `json:"fingerprint"`
	DeviceClass  string    `json:"device_class"`
	Requests     int       `json:"requests"`
}

// AssociationAnalysis profiles every station that tried to join a
// network during the capture.
type AssociationAnalysis struct {
	stations map[string]*StationProfile
}

func NewAssociationAnalysis() *AssociationAnalysis {
	return &AssociationAnalysis{stations: map[string]*StationProfile{}}
}

func (a *AssociationAnalysis) Process(f *dot11.Frame) {
	if f.Category != dot11.CatAssocReq && f.Category != dot11.CatReassocReq {
		return
	}
	if f.Addr2 == "" {
		return
	}
	st, ok := a.stations[f.Addr2]
	if !ok {
		st = buildStationProfile(f)
		a.stations[f.Addr2] = st
	}
	st.Requests++
	if st.TargetSSID == "" && f.SSID != "" && f.SSID != "<hidden>" {
		st.TargetSSID = f.SSID
	}
}

func buildStationProfile(f *dot11.Frame) *StationProfile {
	st := &StationProfile{
		MAC:          f.Addr2,
		Capabilities: dot11.CapabilityFlags(f.Capability),
	}

	for _, r := range f.SupportedRates() {
		st.Rates = append(st.Rates, r.Mbps)
		if r.Basic {
			st.BasicRates = append(st.BasicRates, r.Mbps)
		}
	}

	_, st.HT = f.Element(dot11.IDHTCap)
	_, st.VHT = f.Element(dot11.IDVHTCap)

	if data, ok := f.Element(dot11.IDPowerCap); ok && len(data) >= 2 {
		st.PowerMinDBM = int(int8(data[0]))
		st.PowerMaxDBM = int(int8(data[1]))
	}

	if data, ok := f.Element(dot11.IDSuppChans); ok {
		for i := 0; i+1 < len(data); i += 2 {
			first, count := int(data[i]), int(data[i+1])
			for ch := first; ch < first+count; ch++ {
				st.Channels = append(st.Channels, ch)
			}
		}
	}

	seen := map[string]bool{}
	for _, el := range f.VendorElements() {
		name := dot11.VendorName(dot11.VendorOUI(el.Data))
		if name != "" && !seen[name] {
			seen[name] = true
			st.Vendors = append(st.Vendors, name)
		}
	}

	st.Fingerprint = stationFingerprint(st)
	st.DeviceClass = stationDeviceClass(st)
	return st
}

// stationFingerprint renders the capability surface as a stable string.
func stationFingerprint(st *StationProfile) string {
	rates := make([]string, len(st.Rates))
	for i, r := range st.Rates {
		rates[i] = fmt.Sprintf("%.1f", r)
	}
	yesNo := func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	}
	return fmt.Sprintf("rates:%s|caps:%s|ht:%s|vht:%s",
		strings.Join(rates, ","),
		strings.Join(st.Capabilities, ","),
		yesNo(st.HT), yesNo(st.VHT))
}

func stationDeviceClass(st *StationProfile) string {
	switch {
	case st.VHT:
		return "modern (11ac or later)"
	case st.HT:
		return "11n era"
	default:
		return "legacy"
	}
}

// Result groups stations by fingerprint and device class.
func (a *AssociationAnalysis) Result() map[string]any {
	var stations []StationProfile
	byFingerprint := map[string][]string{}
	byClass := map[string][]string{}

	for _, mac := range sortedKeys(a.stations) {
		st := a.stations[mac]
		stations = append(stations, *st)
		byFingerprint[st.Fingerprint] = append(byFingerprint[st.Fingerprint], mac)
		byClass[st.DeviceClass] = append(byClass[st.DeviceClass], mac)
	}

	return map[string]any{
		"stations":        stations,
		"station_count":   len(stations),
		"by_fingerprint":  byFingerprint,
		"by_device_class": byClass,
	}
}
