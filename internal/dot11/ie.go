package dot11

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Information element IDs we care about.
const (
	ieSSID      = 0
	ieRates     = 1
	ieDSParam   = 3
	ieCountry   = 7
	iePowerCons = 32
	iePowerCap  = 33
	ieSuppChans = 36
	ieHTCap     = 45
	ieRSN       = 48
	ieExtRates  = 50
	ieVHTCap    = 191
	ieVendor    = 221
	ieExtension = 255
	ieExtHECap  = 35 // extension ID inside element 255
)

// Exported aliases for callers that inspect elements directly.
const (
	IDSSID      = ieSSID
	IDRates     = ieRates
	IDDSParam   = ieDSParam
	IDCountry   = ieCountry
	IDPowerCons = iePowerCons
	IDPowerCap  = iePowerCap
	IDSuppChans = ieSuppChans
	IDHTCap     = ieHTCap
	IDRSN       = ieRSN
	IDExtRates  = ieExtRates
	IDVHTCap    = ieVHTCap
	IDVendor    = ieVendor
	IDExtension = ieExtension
)

// parseElements walks the tagged section. Truncated trailing elements
// are dropped rather than failing the frame.
func parseElements(data []byte) []Element {
	els := []Element{}
	for len(data) >= 2 {
		id, l := data[0], int(data[1])
		if len(data) < 2+l {
			break
		}
		els = append(els, Element{ID: id, Data: data[2 : 2+l]})
		data = data[2+l:]
	}
	return els
}

// DecodeSSID renders an SSID element for display. Empty SSIDs are the
// hidden-network convention, and byte sequences that are not valid
// UTF-8 fall back to a latin-1 reading so nothing is dropped.
func DecodeSSID(raw []byte) string {
	if len(raw) == 0 {
		return "<hidden>"
	}
	if utf8.Valid(raw) {
		return string(raw)
	}
	// Latin-1 reinterpretation, accepted only when fully printable.
	var b strings.Builder
	printable := true
	for _, c := range raw {
		r := rune(c)
		if !unicode.IsPrint(r) {
			printable = false
			break
		}
		b.WriteRune(r)
	}
	if printable {
		return b.String()
	}
	return "<hex:" + hex.EncodeToString(raw) + ">"
}

// capability bit names, LSB first.
var capabilityNames = []string{
	"ess", "ibss", "cf_pollable", "cf_poll_request",
	"privacy", "short_preamble", "pbcc", "channel_agility",
	"spectrum_mgmt", "qos", "short_slot_time", "apsd",
	"radio_measurement", "dsss_ofdm", "delayed_block_ack", "immediate_block_ack",
}

// CapabilityFlags names the set bits of a capability field.
func CapabilityFlags(cap uint16) []string {
	var flags []string
	for i, name := range capabilityNames {
		if cap&(1<<uint(i)) != 0 {
			flags = append(flags, name)
		}
	}
	return flags
}

// Rate is one entry from a supported rates element.
type Rate struct {
	Mbps  float64
	Basic bool
}

// ParseRates decodes a supported or extended rates element.
func ParseRates(data []byte) []Rate {
	rates := make([]Rate, 0, len(data))
	for _, b := range data {
		rates = append(rates, Rate{
			Mbps:  float64(b&0x7f) * 0.5,
			Basic: b&0x80 != 0,
		})
	}
	return rates
}

// SupportedRates collects rates from both the basic and extended
// rates elements of a management frame.
func (f *Frame) SupportedRates() []Rate {
	var rates []Rate
	if data, ok := f.Element(ieRates); ok {
		rates = append(rates, ParseRates(data)...)
	}
	if data, ok := f.Element(ieExtRates); ok {
		rates = append(rates, ParseRates(data)...)
	}
	return rates
}

// Vendor OUIs seen in vendor-specific elements.
var vendorOUINames = map[string]string{
	"00:50:f2": "Microsoft",
	"00:03:7f": "Atheros",
	"00:10:18": "Broadcom",
	"00:0f:ac": "Wi-Fi Alliance",
	"00:17:f2": "Apple",
	"00:1c:f0": "Intel",
	"00:40:f4": "Motorola",
	"00:1a:11": "Google",
}

// VendorOUI formats the OUI prefix of a vendor element.
func VendorOUI(data []byte) string {
	if len(data) < 3 {
		return ""
	}
	return fmt.Sprintf("%02x:%02x:%02x", data[0], data[1], data[2])
}

// VendorName maps an OUI string to a vendor, or returns the OUI itself.
func VendorName(oui string) string {
	if name, ok := vendorOUINames[oui]; ok {
		return name
	}
	return oui
}

// RSNInfo is the subset of an RSN element relevant to security grading.
type RSNInfo struct {
	Version         uint16
	GroupCipher     string
	PairwiseCiphers []string
	AKMs            []string
}

var rsnCipherNames = map[byte]string{
	0: "use-group", 1: "WEP-40", 2: "TKIP", 4: "CCMP", 5: "WEP-104",
	8: "GCMP", 9: "GCMP-256", 10: "CCMP-256",
}

var rsnAKMNames = map[byte]string{
	1: "802.1X", 2: "PSK", 3: "FT-802.1X", 4: "FT-PSK",
	5: "802.1X-SHA256", 6: "PSK-SHA256", 8: "SAE", 9: "FT-SAE",
	18: "OWE",
}

func rsnSuiteName(suite []byte, names map[byte]string) string {
	if len(suite) < 4 {
		return "invalid"
	}
	if suite[0] == 0x00 && suite[1] == 0x0f && suite[2] == 0xac {
		if name, ok := names[suite[3]]; ok {
			return name
		}
	}
	return hex.EncodeToString(suite)
}

// ParseRSN decodes an RSN element far enough to name the cipher and
// AKM suites. Truncated elements return what was readable.
func ParseRSN(data []byte) RSNInfo {
	info := RSNInfo{}
	if len(data) < 2 {
		return info
	}
	info.Version = binary.LittleEndian.Uint16(data[0:2])
	pos := 2

	if len(data) < pos+4 {
		return info
	}
	info.GroupCipher = rsnSuiteName(data[pos:pos+4], rsnCipherNames)
	pos += 4

	if len(data) < pos+2 {
		return info
	}
	n := int(binary.LittleEndian.Uint16(data[pos : pos+2]))
	pos += 2
	for i := 0; i < n && len(data) >= pos+4; i++ {
		info.PairwiseCiphers = append(info.PairwiseCiphers, rsnSuiteName(data[pos:pos+4], rsnCipherNames))
		pos += 4
	}

	if len(data) < pos+2 {
		return info
	}
	n = int(binary.LittleEndian.Uint16(data[pos : pos+2]))
	pos += 2
	for i := 0; i < n && len(data) >= pos+4; i++ {
		info.AKMs = append(info.AKMs, rsnSuiteName(data[pos:pos+4], rsnAKMNames))
		pos += 4
	}
	return info
}

// HasAKM reports whether any AKM suite matches the given name.
func (r RSNInfo) HasAKM(name string) bool {
	for _, akm := range r.AKMs {
		if akm == name {
			return true
		}
	}
	return false
}

// isWPAVendorElement recognizes the pre-RSN WPA element
// (Microsoft OUI, type 1).
func isWPAVendorElement(data []byte) bool {
	return len(data) >= 4 &&
		data[0] == 0x00 && data[1] == 0x50 && data[2] == 0xf2 && data[3] == 0x01
}

// Security grades a beacon or probe response into the network's
// advertised security mode.
func (f *Frame) Security() string {
	if rsnData, ok := f.Element(ieRSN); ok {
		rsn := ParseRSN(rsnData)
		switch {
		case rsn.HasAKM("SAE") || rsn.HasAKM("FT-SAE"):
			return "WPA3"
		case rsn.HasAKM("802.1X") || rsn.HasAKM("FT-802.1X") || rsn.HasAKM("802.1X-SHA256"):
			return "WPA2-Enterprise"
		default:
			return "WPA2"
		}
	}
	for _, el := range f.VendorElements() {
		if isWPAVendorElement(el.Data) {
			return "WPA"
		}
	}
	if f.Capability&0x0010 != 0 { // privacy bit
		return "WEP"
	}
	return "Open"
}

// HTInfo is the decoded HT capabilities element.
type HTInfo struct {
	Supported40MHz bool
	ShortGI20      bool
	ShortGI40      bool
	MaxAMSDU7935   bool
}

// ParseHT decodes the HT capability info field.
func ParseHT(data []byte) (HTInfo, bool) {
	if len(data) < 2 {
		return HTInfo{}, false
	}
	info := binary.LittleEndian.Uint16(data[0:2])
	return HTInfo{
		Supported40MHz: info&0x0002 != 0,
		ShortGI20:      info&0x0020 != 0,
		ShortGI40:      info&0x0040 != 0,
		MaxAMSDU7935:   info&0x0800 != 0,
	}, true
}

// VHTInfo is the decoded VHT capabilities element.
type VHTInfo struct {
	MaxMPDU      int
	Supported160 bool
	ShortGI80    bool
	SUBeamformer bool
	MUBeamformer bool
}

// ParseVHT decodes the VHT capability info field.
func ParseVHT(data []byte) (VHTInfo, bool) {
	if len(data) < 4 {
		return VHTInfo{}, false
	}
	info := binary.LittleEndian.Uint32(data[0:4])
	mpdu := 3895
	switch info & 0x3 {
	case 1:
		mpdu = 7991
	case 2:
		mpdu = 11454
	}
	return VHTInfo{
		MaxMPDU:      mpdu,
		Supported160: (info>>2)&0x3 != 0,
		ShortGI80:    info&0x20 != 0,
		SUBeamformer: info&0x800 != 0,
		MUBeamformer: info&0x80000 != 0,
	}, true
}

// HasHE reports whether the frame advertises 802.11ax via the HE
// capabilities extension element.
func (f *Frame) HasHE() bool {
	for _, el := range f.Elements {
		if el.ID == ieExtension && len(el.Data) >= 1 && el.Data[0] == ieExtHECap {
			return true
		}
	}
	return false
}
