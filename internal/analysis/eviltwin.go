package analysis

import (
	"github.com/wifientist/pawketeer/internal/dot11"
)

// EvilTwin looks for SSIDs advertised by more than one BSSID with
// mismatched security or channels. A rogue AP cloning a network will
// usually get one of those wrong.
type EvilTwin struct {
	// ssid -> bssid -> observed advertisement
	networks map[string]map[string]*advertisement
}

type advertisement struct {
	BSSID    string `json:"bssid"`
	Channel  int    `json:"channel"`
	Security string `json:"security"`
	Beacons  int    `json:"beacons"`
}

func NewEvilTwin() *EvilTwin {
	return &EvilTwin{networks: map[string]map[string]*advertisement{}}
}

func (a *EvilTwin) Name() string { return NameEvilTwin }

func (a *EvilTwin) Process(f *dot11.Frame) {
	if f.Category != dot11.CatBeacon && f.Category != dot11.CatProbeResp {
		return
	}
	if f.SSID == "" || f.SSID == "<hidden>" || f.Addr2 == "" {
		return
	}

	byBSSID, ok := a.networks[f.SSID]
	if !ok {
		byBSSID = map[string]*advertisement{}
		a.networks[f.SSID] = byBSSID
	}
	adv, ok := byBSSID[f.Addr2]
	if !ok {
		adv = &advertisement{
			BSSID:    f.Addr2,
			Channel:  f.Channel,
			Security: f.Security(),
		}
		byBSSID[f.Addr2] = adv
	}
	adv.Beacons++
	if adv.Channel == 0 {
		adv.Channel = f.Channel
	}
}

func (a *EvilTwin) Result() map[string]any {
	type suspect struct {
		SSID   string          `json:"ssid"`
		Reason string          `json:"reason"`
		BSSIDs []advertisement `json:"bssids"`
	}
	var suspects []suspect
	multiBSSID := 0

	for _, ssid := range sortedKeys(a.networks) {
		byBSSID := a.networks[ssid]
		if len(byBSSID) < 2 {
			continue
		}
		multiBSSID++

		var advs []advertisement
		securities := map[string]bool{}
		channels := map[int]bool{}
		for _, bssid := range sortedKeys(byBSSID) {
			adv := byBSSID[bssid]
			advs = append(advs, *adv)
			securities[adv.Security] = true
			if adv.Channel != 0 {
				channels[adv.Channel] = true
			}
		}

		switch {
		case securities["Open"] && len(securities) > 1:
			suspects = append(suspects, suspect{
				SSID:   ssid,
				Reason: "open BSSID shadows a secured network",
				BSSIDs: advs,
			})
		case len(securities) > 1:
			suspects = append(suspects, suspect{
				SSID:   ssid,
				Reason: "security mode differs between BSSIDs",
				BSSIDs: advs,
			})
		case len(channels) > 1:
			suspects = append(suspects, suspect{
				SSID:   ssid,
				Reason: "same network advertised on multiple channels",
				BSSIDs: advs,
			})
		}
	}

	return map[string]any{
		"ssids_observed":    len(a.networks),
		"multi_bssid_ssids": multiBSSID,
		"suspects":          suspects,
		"suspect_count":     len(suspects),
	}
}
