package pcap

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

func captureInfo(ts time.Time, n int) gopacket.CaptureInfo {
	return gopacket.CaptureInfo{Timestamp: ts, CaptureLength: n, Length: n}
}

func TestReadClassicPcap(t *testing.T) {
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	if err := w.WriteFileHeader(65536, layers.LinkTypeIEEE80211Radio); err != nil {
		t.Fatal(err)
	}
	ts := time.Unix(1700000000, 0)
	pkts := [][]byte{{0x01, 0x02, 0x03}, {0x04, 0x05}}
	for _, p := range pkts {
		if err := w.WritePacket(captureInfo(ts, len(p)), p); err != nil {
			t.Fatal(err)
		}
	}

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if r.Format() != "pcap" {
		t.Errorf("format = %s", r.Format())
	}
	if r.LinkType() != layers.LinkTypeIEEE80211Radio {
		t.Errorf("link type = %v", r.LinkType())
	}

	var count int
	for {
		data, _, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !bytes.Equal(data, pkts[count]) {
			t.Errorf("packet %d = %v, want %v", count, data, pkts[count])
		}
		count++
	}
	if count != len(pkts) {
		t.Errorf("read %d packets, want %d", count, len(pkts))
	}
}

func TestReadPcapNG(t *testing.T) {
	var buf bytes.Buffer
	w, err := pcapgo.NewNgWriter(&buf, layers.LinkTypeIEEE80211Radio)
	if err != nil {
		t.Fatal(err)
	}
	p := []byte{0xde, 0xad, 0xbe, 0xef}
	if err := w.WritePacket(captureInfo(time.Unix(1700000000, 0), len(p)), p); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if r.Format() != "pcapng" {
		t.Errorf("format = %s", r.Format())
	}

	data, _, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !bytes.Equal(data, p) {
		t.Errorf("packet = %v", data)
	}
}

func TestRejectUnknownMagic(t *testing.T) {
	if _, err := NewReader(bytes.NewReader([]byte{0x00, 0x01, 0x02, 0x03, 0x04})); err == nil {
		t.Fatal("expected error for unknown magic")
	}
}

func TestRejectShortFile(t *testing.T) {
	if _, err := NewReader(bytes.NewReader([]byte{0x0a})); err == nil {
		t.Fatal("expected error for short file")
	}
}
