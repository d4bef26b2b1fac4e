package dot11

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
)

// mgmtFrame builds a management frame: 24 byte header, body, 4 byte FCS.
func mgmtFrame(subtype byte, addr1, addr2, addr3 string, body []byte) []byte {
	b := []byte{subtype << 4, 0x00, 0x00, 0x00}
	for _, a := range []string{addr1, addr2, addr3} {
		hw, err := net.ParseMAC(a)
		if err != nil {
			panic(err)
		}
		b = append(b, hw...)
	}
	b = append(b, 0x10, 0x00) // sequence control
	b = append(b, body...)
	return append(b, 0xde, 0xad, 0xbe, 0xef) // FCS
}

func element(id byte, data []byte) []byte {
	return append([]byte{id, byte(len(data))}, data...)
}

// beaconBody builds timestamp + interval + capability + elements.
func beaconBody(cap uint16, elements ...[]byte) []byte {
	body := make([]byte, 12)
	binary.LittleEndian.PutUint16(body[10:12], cap)
	for _, el := range elements {
		body = append(body, el...)
	}
	return body
}

func bareDecoder() *Decoder {
	return NewDecoder(layers.LinkTypeIEEE802_11)
}

func TestDecodeBeacon(t *testing.T) {
	body := beaconBody(0x0411,
		element(0, []byte("CoffeeShop")),
		element(3, []byte{6}),
	)
	raw := mgmtFrame(8, "ff:ff:ff:ff:ff:ff", "aa:bb:cc:00:00:01", "aa:bb:cc:00:00:01", body)

	f := bareDecoder().Decode(raw, time.Unix(100, 0))
	if f.Category != CatBeacon {
		t.Fatalf("category = %s, want beacon", f.Category)
	}
	if f.Addr2 != "aa:bb:cc:00:00:01" {
		t.Errorf("addr2 = %s", f.Addr2)
	}
	if f.SSID != "CoffeeShop" {
		t.Errorf("ssid = %q", f.SSID)
	}
	if f.Channel != 6 {
		t.Errorf("channel = %d, want 6", f.Channel)
	}
	if f.Capability != 0x0411 {
		t.Errorf("capability = %#04x", f.Capability)
	}
	if !f.IsMgmt() {
		t.Error("beacon should carry elements")
	}
}

func TestDecodeHiddenSSID(t *testing.T) {
	body := beaconBody(0x0001, element(0, nil))
	raw := mgmtFrame(8, "ff:ff:ff:ff:ff:ff", "aa:bb:cc:00:00:02", "aa:bb:cc:00:00:02", body)

	f := bareDecoder().Decode(raw, time.Time{})
	if f.SSID != "<hidden>" {
		t.Errorf("ssid = %q, want <hidden>", f.SSID)
	}
}

func TestDecodeDeauth(t *testing.T) {
	body := []byte{0x07, 0x00} // reason 7
	raw := mgmtFrame(12, "11:22:33:44:55:66", "aa:bb:cc:00:00:01", "aa:bb:cc:00:00:01", body)

	f := bareDecoder().Decode(raw, time.Time{})
	if f.Category != CatDeauth {
		t.Fatalf("category = %s, want deauth", f.Category)
	}
	if f.ReasonCode != 7 {
		t.Errorf("reason = %d, want 7", f.ReasonCode)
	}
}

func TestDecodeProbeRequest(t *testing.T) {
	body := element(0, []byte("HomeNet"))
	raw := mgmtFrame(4, "ff:ff:ff:ff:ff:ff", "02:00:00:00:00:09", "ff:ff:ff:ff:ff:ff", body)

	f := bareDecoder().Decode(raw, time.Time{})
	if f.Category != CatProbeReq {
		t.Fatalf("category = %s, want probe_req", f.Category)
	}
	if f.SSID != "HomeNet" {
		t.Errorf("ssid = %q", f.SSID)
	}
}

func TestDecodeControlAck(t *testing.T) {
	raw := []byte{0xd4, 0x00, 0x00, 0x00}
	hw, _ := net.ParseMAC("aa:bb:cc:00:00:01")
	raw = append(raw, hw...)
	raw = append(raw, 0, 0, 0, 0) // FCS

	f := bareDecoder().Decode(raw, time.Time{})
	if f.Category != CatAck {
		t.Fatalf("category = %s, want ack", f.Category)
	}
}

func TestDecodeGarbage(t *testing.T) {
	f := bareDecoder().Decode([]byte{0x01, 0x02}, time.Time{})
	if f.Category != CatNon80211 {
		t.Fatalf("category = %s, want non_802_11", f.Category)
	}
}

func TestDecodeRadioTapMetadata(t *testing.T) {
	body := beaconBody(0x0011, element(0, []byte("Radio")))
	d11 := mgmtFrame(8, "ff:ff:ff:ff:ff:ff", "aa:bb:cc:00:00:03", "aa:bb:cc:00:00:03", body)

	// radiotap: channel (bit 3) and dBm antenna signal (bit 5) present
	rt := []byte{
		0x00, 0x00, 0x0d, 0x00, // version, pad, length 13
		0x28, 0x00, 0x00, 0x00, // present: channel | dbm signal
		0x6c, 0x09, // frequency 2412
		0xa0, 0x00, // channel flags: 2 GHz, CCK
		0xb1, // -79 dBm
	}
	raw := append(rt, d11...)

	f := NewDecoder(layers.LinkTypeIEEE80211Radio).Decode(raw, time.Time{})
	if f.Category != CatBeacon {
		t.Fatalf("category = %s, want beacon", f.Category)
	}
	if f.SignalDBM != -79 {
		t.Errorf("signal = %d, want -79", f.SignalDBM)
	}
	if f.Channel != 1 {
		t.Errorf("channel = %d, want 1", f.Channel)
	}
}

func TestDecodeRadioTapWithoutDot11(t *testing.T) {
	rt := []byte{0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00}

	f := NewDecoder(layers.LinkTypeIEEE80211Radio).Decode(rt, time.Time{})
	if f.Category != CatRadioTapNoDot11 {
		t.Fatalf("category = %s, want radiotap_no_dot11", f.Category)
	}
}

func TestClassifyCoversQoSData(t *testing.T) {
	if got := classify(layers.Dot11TypeDataQOSData); got != CatQoSData {
		t.Errorf("qos data = %s", got)
	}
	if got := classify(layers.Dot11TypeDataQOSNull); got != CatQoSData {
		t.Errorf("qos null = %s", got)
	}
	if got := classify(layers.Dot11TypeMgmtAction); got != CatMgmtOther {
		t.Errorf("action = %s", got)
	}
	if got := classify(layers.Dot11TypeCtrlBlockAck); got != CatControlOther {
		t.Errorf("block ack = %s", got)
	}
	if got := classify(layers.Dot11TypeDataNull); got != CatNullData {
		t.Errorf("null = %s, want null_data", got)
	}
	// Data subtype 13 is reserved and has no QoS control field.
	if got := classify(layers.Dot11Type(0x36)); got != CatDataOther {
		t.Errorf("reserved data subtype = %s, want data_other", got)
	}
}

func TestDecodeEAPOLKeyMessage1WithPMKID(t *testing.T) {
	pmkid := []byte{
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10,
	}
	keyData := append([]byte{0xdd, 0x14, 0x00, 0x0f, 0xac, 0x04}, pmkid...)

	keyBody := make([]byte, 95)
	keyBody[0] = 0x02                                          // descriptor type
	binary.BigEndian.PutUint16(keyBody[1:3], 0x0088)           // pairwise | ack
	binary.BigEndian.PutUint16(keyBody[93:95], uint16(len(keyData)))
	keyBody = append(keyBody, keyData...)

	eapol := []byte{0x02, 0x03} // version 2, type key
	eapol = append(eapol, byte(len(keyBody)>>8), byte(len(keyBody)))
	eapol = append(eapol, keyBody...)

	llc := []byte{0xaa, 0xaa, 0x03, 0x00, 0x00, 0x00, 0x88, 0x8e}
	body := append(llc, eapol...)

	// data frame, FromDS
	raw := []byte{0x08, 0x02, 0x00, 0x00}
	for _, a := range []string{"02:00:00:00:00:09", "aa:bb:cc:00:00:01", "aa:bb:cc:00:00:01"} {
		hw, _ := net.ParseMAC(a)
		raw = append(raw, hw...)
	}
	raw = append(raw, 0x10, 0x00)
	raw = append(raw, body...)
	raw = append(raw, 0, 0, 0, 0) // FCS

	f := bareDecoder().Decode(raw, time.Time{})
	if f.Category != CatData {
		t.Fatalf("category = %s, want data", f.Category)
	}
	if f.EAPOL == nil {
		t.Fatal("expected EAPOL key")
	}
	if f.EAPOL.Message != 1 {
		t.Errorf("message = %d, want 1", f.EAPOL.Message)
	}
	if f.EAPOL.PMKID != "0102030405060708090a0b0c0d0e0f10" {
		t.Errorf("pmkid = %s", f.EAPOL.PMKID)
	}
}
