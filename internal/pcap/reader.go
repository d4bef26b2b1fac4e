package pcap

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Magic numbers for the capture container formats.
const (
	magicPcapNG     = 0x0a0d0d0a
	magicPcapBE     = 0xa1b2c3d4
	magicPcapLE     = 0xd4c3b2a1
	magicPcapNanoBE = 0xa1b23c4d
	magicPcapNanoLE = 0x4d3cb2a1
)

type packetSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// Reader iterates packet records from a classic pcap or a pcapng
// stream, picked by magic number.
type Reader struct {
	src      packetSource
	linkType layers.LinkType
	format   string
}

// NewReader sniffs the container format from the first four bytes and
// wraps the matching pcapgo reader.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}

	switch binary.BigEndian.Uint32(head) {
	case magicPcapNG:
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("open pcapng: %w", err)
		}
		return &Reader{src: ng, linkType: ng.LinkType(), format: "pcapng"}, nil
	case magicPcapBE, magicPcapLE, magicPcapNanoBE, magicPcapNanoLE:
		pr, err := pcapgo.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open pcap: %w", err)
		}
		return &Reader{src: pr, linkType: pr.LinkType(), format: "pcap"}, nil
	}
	return nil, fmt.Errorf("not a pcap or pcapng file (magic %#08x)", binary.BigEndian.Uint32(head))
}

// LinkType reports the capture's link layer.
func (r *Reader) LinkType() layers.LinkType { return r.linkType }

// Format is "pcap" or "pcapng".
func (r *Reader) Format() string { return r.format }

// Next returns the next packet record. io.EOF signals a clean end.
func (r *Reader) Next() ([]byte, gopacket.CaptureInfo, error) {
	return r.src.ReadPacketData()
}

// File is a Reader over an opened capture file.
type File struct {
	*Reader
	f *os.File
}

// Open opens a capture file for reading.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{Reader: r, f: f}, nil
}

// Close closes the underlying file.
func (f *File) Close() error { return f.f.Close() }
