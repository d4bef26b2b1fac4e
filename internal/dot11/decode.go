package dot11

import (
	"encoding/binary"
	"encoding/hex"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Decoder turns raw capture records into Frames. It is keyed to the
// capture's link type so radiotap and bare 802.11 files both work.
type Decoder struct {
	first gopacket.LayerType
}

// NewDecoder picks the first layer from the pcap link type. Captures
// with radiotap headers decode the radio metadata too, anything else
// is attempted as a bare 802.11 frame.
func NewDecoder(linkType layers.LinkType) *Decoder {
	first := layers.LayerTypeDot11
	if linkType == layers.LinkTypeIEEE80211Radio {
		first = layers.LayerTypeRadioTap
	}
	return &Decoder{first: first}
}

// Decode never fails outright. A packet that cannot be parsed as 802.11
// still produces a Frame whose Category records what went wrong, so one
// mangled record never aborts a whole capture run.
func (d *Decoder) Decode(data []byte, ts time.Time) *Frame {
	f := &Frame{Category: CatUnknown, Timestamp: ts}

	pkt := gopacket.NewPacket(data, d.first, gopacket.Lazy)

	if d.first == layers.LayerTypeRadioTap {
		rt, ok := pkt.Layer(layers.LayerTypeRadioTap).(*layers.RadioTap)
		if !ok {
			f.Category = CatNon80211
			return f
		}
		if rt.Present.DBMAntennaSignal() {
			f.SignalDBM = rt.DBMAntennaSignal
		}
		if rt.Present.Channel() {
			f.Channel = channelFromFreq(int(rt.ChannelFrequency))
		}
		if pkt.Layer(layers.LayerTypeDot11) == nil {
			f.Category = CatRadioTapNoDot11
			return f
		}
	}

	d11, ok := pkt.Layer(layers.LayerTypeDot11).(*layers.Dot11)
	if !ok {
		f.Category = CatNon80211
		return f
	}

	f.Addr1 = macString(d11.Address1)
	f.Addr2 = macString(d11.Address2)
	f.Addr3 = macString(d11.Address3)
	f.Category = classify(d11.Type)

	switch d11.Type.MainType() {
	case layers.Dot11TypeMgmt:
		d.parseMgmtBody(f, d11.LayerPayload())
	case layers.Dot11TypeData:
		if key := parseEAPOLKey(pkt); key != nil {
			f.EAPOL = key
		}
	}
	return f
}

// classify maps a frame control type to exactly one category. Reserved
// combinations and QoS data variants collapse the way the frame mix
// counts them.
func classify(t layers.Dot11Type) string {
	switch t {
	case layers.Dot11TypeMgmtAssociationReq:
		return CatAssocReq
	case layers.Dot11TypeMgmtAssociationResp:
		return CatAssocResp
	case layers.Dot11TypeMgmtReassociationReq:
		return CatReassocReq
	case layers.Dot11TypeMgmtReassociationResp:
		return CatReassocResp
	case layers.Dot11TypeMgmtProbeReq:
		return CatProbeReq
	case layers.Dot11TypeMgmtProbeResp:
		return CatProbeResp
	case layers.Dot11TypeMgmtBeacon:
		return CatBeacon
	case layers.Dot11TypeMgmtATIM:
		return CatATIM
	case layers.Dot11TypeMgmtDisassociation:
		return CatDisassoc
	case layers.Dot11TypeMgmtAuthentication:
		return CatAuth
	case layers.Dot11TypeMgmtDeauthentication:
		return CatDeauth

	case layers.Dot11TypeCtrlRTS:
		return CatRTS
	case layers.Dot11TypeCtrlCTS:
		return CatCTS
	case layers.Dot11TypeCtrlAck:
		return CatAck
	case layers.Dot11TypeCtrlPowersavePoll:
		return CatPSPoll
	case layers.Dot11TypeCtrlCFEnd:
		return CatCFEnd
	case layers.Dot11TypeCtrlCFEndAck:
		return CatCFEndAck

	case layers.Dot11TypeData:
		return CatData
	case layers.Dot11TypeDataCFAck:
		return CatDataCFAck
	case layers.Dot11TypeDataCFPoll:
		return CatDataCFPoll
	case layers.Dot11TypeDataCFAckPoll:
		return CatDataCFAckPoll
	case layers.Dot11TypeDataNull:
		return CatNullData
	case layers.Dot11TypeDataCFAckNoData:
		return CatCFAck
	case layers.Dot11TypeDataCFPollNoData:
		return CatCFPoll
	case layers.Dot11TypeDataCFAckPollNoData:
		return CatCFAckPoll

	case layers.Dot11TypeDataQOSData,
		layers.Dot11TypeDataQOSDataCFAck,
		layers.Dot11TypeDataQOSDataCFPoll,
		layers.Dot11TypeDataQOSDataCFAckPoll,
		layers.Dot11TypeDataQOSNull,
		layers.Dot11TypeDataQOSCFPollNoData,
		layers.Dot11TypeDataQOSCFAckPollNoData:
		return CatQoSData
	}

	switch t.MainType() {
	case layers.Dot11TypeMgmt:
		return CatMgmtOther
	case layers.Dot11TypeCtrl:
		return CatControlOther
	case layers.Dot11TypeData:
		// Reserved data subtypes that carry no QoS control field.
		return CatDataOther
	}
	return CatReserved
}

// mgmtFixedLen is the size of the non-tagged fixed fields preceding the
// information elements for each management subtype.
func mgmtFixedLen(category string) (fixed int, capOffset int) {
	switch category {
	case CatBeacon, CatProbeResp:
		return 12, 10 // timestamp(8) + interval(2) + capability(2)
	case CatAssocReq:
		return 4, 0 // capability(2) + listen interval(2)
	case CatReassocReq:
		return 10, 0 // capability(2) + listen interval(2) + current AP(6)
	case CatAssocResp, CatReassocResp:
		return 6, 0 // capability(2) + status(2) + AID(2)
	case CatAuth:
		return 6, -1 // algorithm(2) + sequence(2) + status(2)
	case CatProbeReq:
		return 0, -1
	case CatDeauth, CatDisassoc:
		return 2, -1 // reason code(2)
	}
	return -1, -1
}

func (d *Decoder) parseMgmtBody(f *Frame, body []byte) {
	fixed, capOff := mgmtFixedLen(f.Category)
	if fixed < 0 || len(body) < fixed {
		return
	}
	if capOff >= 0 {
		f.Capability = binary.LittleEndian.Uint16(body[capOff : capOff+2])
	}
	if f.Category == CatDeauth || f.Category == CatDisassoc {
		f.ReasonCode = binary.LittleEndian.Uint16(body[0:2])
	}

	f.Elements = parseElements(body[fixed:])
	if ssid, ok := f.Element(ieSSID); ok {
		f.SSID = DecodeSSID(ssid)
	}
	if f.Channel == 0 {
		if ds, ok := f.Element(ieDSParam); ok && len(ds) >= 1 {
			f.Channel = int(ds[0])
		}
	}
}

// EAPOL-Key key info bits.
const (
	keyInfoPairwise = 0x0008
	keyInfoInstall  = 0x0040
	keyInfoACK      = 0x0080
	keyInfoMIC      = 0x0100
	keyInfoSecure   = 0x0200
)

// parseEAPOLKey extracts the handshake-relevant bits of an EAPOL-Key
// frame. The descriptor body is parsed by hand because only a handful
// of fields matter and truncated captures are common.
func parseEAPOLKey(pkt gopacket.Packet) *EAPOLKey {
	el, ok := pkt.Layer(layers.LayerTypeEAPOL).(*layers.EAPOL)
	if !ok || el.Type != layers.EAPOLTypeKey {
		return nil
	}
	body := el.LayerPayload()
	// descriptor(1) + info(2) + len(2) + replay(8) + nonce(32) +
	// iv(16) + rsc(8) + id(8) + mic(16) + data len(2)
	if len(body) < 95 {
		return nil
	}
	info := binary.BigEndian.Uint16(body[1:3])
	if info&keyInfoPairwise == 0 {
		return nil
	}

	key := &EAPOLKey{
		HasMIC:  info&keyInfoMIC != 0,
		Install: info&keyInfoInstall != 0,
		AckBit:  info&keyInfoACK != 0,
	}
	switch {
	case key.AckBit && !key.HasMIC:
		key.Message = 1
	case key.AckBit && key.HasMIC:
		key.Message = 3
	case key.HasMIC && info&keyInfoSecure != 0:
		key.Message = 4
	case key.HasMIC:
		key.Message = 2
	}

	dataLen := int(binary.BigEndian.Uint16(body[93:95]))
	keyData := body[95:]
	if dataLen < len(keyData) {
		keyData = keyData[:dataLen]
	}
	key.PMKID = findPMKID(keyData)
	return key
}

// findPMKID walks the key data KDEs for the RSN PMKID entry
// (OUI 00:0f:ac, type 4).
func findPMKID(data []byte) string {
	for len(data) >= 2 {
		id, l := data[0], int(data[1])
		if len(data) < 2+l {
			return ""
		}
		kde := data[2 : 2+l]
		if id == 0xdd && l >= 20 &&
			kde[0] == 0x00 && kde[1] == 0x0f && kde[2] == 0xac && kde[3] == 0x04 {
			return hex.EncodeToString(kde[4:20])
		}
		data = data[2+l:]
	}
	return ""
}

func macString(a net.HardwareAddr) string {
	if len(a) == 0 {
		return ""
	}
	return a.String()
}

func channelFromFreq(freq int) int {
	switch {
	case freq == 2484:
		return 14
	case freq >= 2412 && freq <= 2472:
		return (freq - 2407) / 5
	case freq >= 5160 && freq <= 5885:
		return (freq - 5000) / 5
	}
	return 0
}
