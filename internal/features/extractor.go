// Package features turns raw packet records into the numeric vectors used by
// the detectors and into the named feature records returned to callers.
package features

import (
	"strings"
	"time"

	"github.com/nshruti113/packet-analysis-service/internal/models"
)

// SmallPacketLength is the exclusive upper bound for is_small_packet.
const SmallPacketLength = 100

var flagBits = []struct {
	token string
	bit   int
}{
	{"SYN", models.FlagSYN},
	{"ACK", models.FlagACK},
	{"FIN", models.FlagFIN},
	{"RST", models.FlagRST},
	{"PSH", models.FlagPSH},
	{"URG", models.FlagURG},
}

// Extractor has no state; the clock is only used to stamp records whose
// packet carried no timestamp.
type Extractor struct {
	now func() time.Time
}

func NewExtractor() *Extractor {
	return &Extractor{now: time.Now}
}

// ProtocolCode maps a protocol name to its numeric code, ignoring case.
func ProtocolCode(protocol string) int {
	switch strings.ToLower(protocol) {
	case "tcp":
		return models.ProtocolTCP
	case "udp":
		return models.ProtocolUDP
	case "icmp":
		return models.ProtocolICMP
	}
	return models.ProtocolUnknown
}

// FlagMask ORs together the bit of every flag token found in flags.
func FlagMask(flags string) int {
	mask := 0
	for _, f := range flagBits {
		if strings.Contains(flags, f.token) {
			mask |= f.bit
		}
	}
	return mask
}

// Vector encodes a single packet.
func (e *Extractor) Vector(p models.Packet) models.FeatureVector {
	return models.FeatureVector{
		float64(p.Length),
		float64(p.SourcePort),
		float64(p.DestinationPort),
		float64(ProtocolCode(p.Protocol)),
		float64(FlagMask(p.TCPFlags)),
	}
}

// Vectors encodes packets in order.
func (e *Extractor) Vectors(packets []models.Packet) []models.FeatureVector {
	vectors := make([]models.FeatureVector, len(packets))
	for i, p := range packets {
		vectors[i] = e.Vector(p)
	}
	return vectors
}

// Extended builds the named feature record for a packet.
func (e *Extractor) Extended(p models.Packet) models.ExtendedFeatureRecord {
	proto := ProtocolCode(p.Protocol)
	mask := FlagMask(p.TCPFlags)

	timestamp := p.Timestamp
	if timestamp == "" {
		timestamp = e.now().Format(time.RFC3339Nano)
	}

	return models.ExtendedFeatureRecord{
		PacketID:      p.ID,
		Length:        p.Length,
		IsSmallPacket: indicator(p.Length < SmallPacketLength),

		IsTCP:  indicator(proto == models.ProtocolTCP),
		IsUDP:  indicator(proto == models.ProtocolUDP),
		IsICMP: indicator(proto == models.ProtocolICMP),

		IsHTTPPort:  indicator(p.SourcePort == 80 || p.DestinationPort == 80),
		IsHTTPSPort: indicator(p.SourcePort == 443 || p.DestinationPort == 443),
		IsDNSPort:   indicator(p.SourcePort == 53 || p.DestinationPort == 53),
		IsHighPort:  indicator(p.SourcePort > 1024 || p.DestinationPort > 1024),

		HasSYN: indicator(mask&models.FlagSYN != 0),
		HasACK: indicator(mask&models.FlagACK != 0),
		HasFIN: indicator(mask&models.FlagFIN != 0),
		HasRST: indicator(mask&models.FlagRST != 0),
		HasPSH: indicator(mask&models.FlagPSH != 0),
		HasURG: indicator(mask&models.FlagURG != 0),
		SynAck: indicator(mask&(models.FlagSYN|models.FlagACK) == models.FlagSYN|models.FlagACK),

		SourceIP:        p.SourceIP,
		DestinationIP:   p.DestinationIP,
		SourcePort:      p.SourcePort,
		DestinationPort: p.DestinationPort,
		Protocol:        p.Protocol,
		Timestamp:       timestamp,
	}
}

// ExtendedRecords builds named feature records in order.
func (e *Extractor) ExtendedRecords(packets []models.Packet) []models.ExtendedFeatureRecord {
	records := make([]models.ExtendedFeatureRecord, len(packets))
	for i, p := range packets {
		records[i] = e.Extended(p)
	}
	return records
}

func indicator(b bool) int {
	if b {
		return 1
	}
	return 0
}
