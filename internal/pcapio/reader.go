// Package pcapio decodes capture files into packet records for offline
// scoring. Both classic pcap and pcapng files are accepted.
package pcapio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/nshruti113/packet-analysis-service/internal/models"
)

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// Reader yields IP packets from a capture. Frames without an IPv4 or IPv6
// layer are skipped and counted.
type Reader struct {
	src     *gopacket.PacketSource
	seq     int
	skipped int
}

// NewReader detects the capture format from the first bytes of r.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}

	var src *gopacket.PacketSource
	if bytes.Equal(magic, pcapngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("open pcapng: %w", err)
		}
		src = gopacket.NewPacketSource(ng, ng.LinkType())
	} else {
		pr, err := pcapgo.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open pcap: %w", err)
		}
		src = gopacket.NewPacketSource(pr, pr.LinkType())
	}

	return &Reader{src: src}, nil
}

// Next returns the next IP packet, or io.EOF at the end of the capture.
func (r *Reader) Next() (models.Packet, error) {
	for {
		pkt, err := r.src.NextPacket()
		if err != nil {
			return models.Packet{}, err
		}
		r.seq++
		p, ok := Convert(pkt)
		if !ok {
			r.skipped++
			continue
		}
		p.ID = []byte(strconv.Itoa(r.seq))
		return p, nil
	}
}

// Skipped reports how many frames had no IP layer.
func (r *Reader) Skipped() int { return r.skipped }

// ReadAll drains r.
func ReadAll(r io.Reader) ([]models.Packet, error) {
	reader, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	var packets []models.Packet
	for {
		p, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return packets, nil
		}
		if err != nil {
			return packets, err
		}
		packets = append(packets, p)
	}
}

// Convert maps a decoded frame onto a packet record. The returned ID is
// empty; Reader numbers packets by their position in the capture.
func Convert(pkt gopacket.Packet) (models.Packet, bool) {
	var p models.Packet

	switch ip := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		p.SourceIP = ip.SrcIP.String()
		p.DestinationIP = ip.DstIP.String()
		p.Protocol = ip.Protocol.String()
	case *layers.IPv6:
		p.SourceIP = ip.SrcIP.String()
		p.DestinationIP = ip.DstIP.String()
		p.Protocol = ip.NextHeader.String()
	default:
		return models.Packet{}, false
	}

	switch l := pkt.TransportLayer().(type) {
	case *layers.TCP:
		p.Protocol = "TCP"
		p.SourcePort = int(l.SrcPort)
		p.DestinationPort = int(l.DstPort)
		p.TCPFlags = tcpFlags(l)
	case *layers.UDP:
		p.Protocol = "UDP"
		p.SourcePort = int(l.SrcPort)
		p.DestinationPort = int(l.DstPort)
	default:
		if pkt.Layer(layers.LayerTypeICMPv4) != nil || pkt.Layer(layers.LayerTypeICMPv6) != nil {
			p.Protocol = "ICMP"
		}
	}

	md := pkt.Metadata()
	p.Length = len(pkt.Data())
	if md != nil {
		if md.Length > 0 {
			p.Length = md.Length
		}
		if !md.Timestamp.IsZero() {
			p.Timestamp = md.Timestamp.UTC().Format(time.RFC3339Nano)
		}
	}
	return p, true
}

func tcpFlags(t *layers.TCP) string {
	flags := make([]string, 0, 6)
	for _, f := range []struct {
		set  bool
		name string
	}{
		{t.SYN, "SYN"},
		{t.ACK, "ACK"},
		{t.FIN, "FIN"},
		{t.RST, "RST"},
		{t.PSH, "PSH"},
		{t.URG, "URG"},
	} {
		if f.set {
			flags = append(flags, f.name)
		}
	}
	return strings.Join(flags, ",")
}
