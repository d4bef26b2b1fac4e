package dot11

import "time"

// Frame categories. Every decoded packet lands in exactly one of these,
// which keeps frame mix percentages additive.
const (
	CatAuth        = "auth"
	CatAssocReq    = "assoc_req"
	CatAssocResp   = "assoc_resp"
	CatReassocReq  = "reassoc_req"
	CatReassocResp = "reassoc_resp"
	CatBeacon      = "beacon"
	CatProbeReq    = "probe_req"
	CatProbeResp   = "probe_resp"
	CatDeauth      = "deauth"
	CatDisassoc    = "disassoc"
	CatATIM        = "atim"
	CatMgmtOther   = "mgmt_other"

	CatRTS          = "rts"
	CatCTS          = "cts"
	CatAck          = "ack"
	CatPSPoll       = "ps_poll"
	CatCFEnd        = "cf_end"
	CatCFEndAck     = "cf_end_ack"
	CatControlOther = "control_other"

	CatData          = "data"
	CatDataCFAck     = "data_cf_ack"
	CatDataCFPoll    = "data_cf_poll"
	CatDataCFAckPoll = "data_cf_ack_poll"
	CatNullData      = "null_data"
	CatCFAck         = "cf_ack"
	CatCFPoll        = "cf_poll"
	CatCFAckPoll     = "cf_ack_poll"
	CatQoSData       = "qos_data"
	CatDataOther     = "data_other"

	CatReserved        = "reserved"
	CatUnknown         = "unknown"
	CatNon80211        = "non_802_11"
	CatRadioTapNoDot11 = "radiotap_no_dot11"
)

// Element is one tagged information element from a management frame body.
type Element struct {
	ID   uint8
	Data []byte
}

// EAPOLKey summarizes an EAPOL-Key frame found inside a data frame,
// enough to track 4-way handshakes and spot PMKID leaks.
type EAPOLKey struct {
	Message int // 1-4, 0 if it could not be placed in the handshake
	HasMIC  bool
	Install bool
	AckBit  bool
	PMKID   string // hex, empty when no PMKID KDE present
}

// Frame is the decoded view of a single captured packet. Address fields
// are lower-case colon-separated MAC strings, empty when absent.
type Frame struct {
	Category  string
	Timestamp time.Time

	Addr1 string // receiver
	Addr2 string // transmitter
	Addr3 string // BSSID for most frames

	// Radiotap metadata, zero values when the capture has no radio header.
	SignalDBM int8
	Channel   int

	// Management frame body fields. Elements is nil for non-management
	// frames and for management subtypes without a tagged section.
	Capability uint16
	ReasonCode uint16
	SSID       string // "" when no SSID element, "<hidden>" when empty
	Elements   []Element

	// EAPOL is set when a data frame carries an EAPOL-Key payload.
	EAPOL *EAPOLKey
}

// IsMgmt reports whether the frame is a management frame that carries
// a tagged element section we parsed.
func (f *Frame) IsMgmt() bool {
	return f.Elements != nil
}

// Element returns the first information element with the given ID.
func (f *Frame) Element(id uint8) ([]byte, bool) {
	for _, el := range f.Elements {
		if el.ID == id {
			return el.Data, true
		}
	}
	return nil, false
}

// VendorElements returns all vendor-specific elements (ID 221).
func (f *Frame) VendorElements() []Element {
	var out []Element
	for _, el := range f.Elements {
		if el.ID == ieVendor {
			out = append(out, el)
		}
	}
	return out
}
