package analysis

import (
	"github.com/wifientist/pawketeer/internal/dot11"
)

// WeakSecurity grades every advertised network and singles out the
// ones a client should not trust: open networks, WEP, and TKIP-only
// WPA deployments.
type WeakSecurity struct {
	networks map[string]*networkSecurity // bssid -> grading
}

type networkSecurity struct {
	BSSID    string `json:"bssid"`
	SSID     string `json:"ssid"`
	Security string `json:"security"`
	Cipher   string `json:"cipher,omitempty"`
	PMF      string `json:"pmf"`
	Beacons  int    `json:"beacons"`
}

func NewWeakSecurity() *WeakSecurity {
	return &WeakSecurity{networks: map[string]*networkSecurity{}}
}

func (a *WeakSecurity) Name() string { return NameWeakSecurity }

func (a *WeakSecurity) Process(f *dot11.Frame) {
	if f.Category != dot11.CatBeacon && f.Category != dot11.CatProbeResp {
		return
	}
	if f.Addr2 == "" {
		return
	}
	net, ok := a.networks[f.Addr2]
	if !ok {
		net = &networkSecurity{
			BSSID:    f.Addr2,
			SSID:     f.SSID,
			Security: f.Security(),
			PMF:      "unknown",
		}
		if rsnData, found := f.Element(dot11.IDRSN); found {
			rsn := dot11.ParseRSN(rsnData)
			if len(rsn.PairwiseCiphers) > 0 {
				net.Cipher = rsn.PairwiseCiphers[0]
			}
		}
		a.networks[f.Addr2] = net
	}
	net.Beacons++
	if net.SSID == "" {
		net.SSID = f.SSID
	}
}

func (n *networkSecurity) weak() (bool, string) {
	switch n.Security {
	case "Open":
		return true, "no encryption"
	case "WEP":
		return true, "WEP is trivially crackable"
	}
	if n.Cipher == "TKIP" {
		return true, "TKIP cipher is deprecated"
	}
	return false, ""
}

func (a *WeakSecurity) Result() map[string]any {
	type weakNetwork struct {
		networkSecurity
		Issue string `json:"issue"`
	}
	var all []networkSecurity
	var weak []weakNetwork
	bySecurity := map[string]int{}

	for _, bssid := range sortedKeys(a.networks) {
		net := a.networks[bssid]
		all = append(all, *net)
		bySecurity[net.Security]++
		if isWeak, issue := net.weak(); isWeak {
			weak = append(weak, weakNetwork{networkSecurity: *net, Issue: issue})
		}
	}

	return map[string]any{
		"networks":      all,
		"network_count": len(all),
		"by_security":   bySecurity,
		"weak_networks": weak,
		"weak_count":    len(weak),
	}
}
