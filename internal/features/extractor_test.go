package features

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nshruti113/packet-analysis-service/internal/models"
)

func TestProtocolCode(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"tcp", 1},
		{"TCP", 1},
		{"Tcp", 1},
		{"UDP", 2},
		{"udp", 2},
		{"ICMP", 3},
		{"icmp", 3},
		{"HTTP", 0},
		{"TCP_SYN", 0},
	}
	for _, tt := range tests {
		if got := ProtocolCode(tt.in); got != tt.want {
			t.Errorf("ProtocolCode(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFlagMask(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"SYN", 1},
		{"ACK", 2},
		{"SYN,ACK", 3},
		{"ACK SYN", 3},
		{"FIN", 4},
		{"RST", 8},
		{"PSH", 16},
		{"URG", 32},
		{"SYN,ACK,FIN,RST,PSH,URG", 63},
		{"syn", 0},
		{"PSH,ACK", 18},
	}
	for _, tt := range tests {
		if got := FlagMask(tt.in); got != tt.want {
			t.Errorf("FlagMask(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestExtractor_Vector(t *testing.T) {
	e := NewExtractor()
	v := e.Vector(models.Packet{
		Length: 64, SourcePort: 1234, DestinationPort: 80,
		Protocol: "TCP", TCPFlags: "SYN,ACK",
	})
	want := models.FeatureVector{64, 1234, 80, 1, 3}
	if v != want {
		t.Errorf("Vector = %v, want %v", v, want)
	}

	if zero := e.Vector(models.Packet{}); zero != (models.FeatureVector{}) {
		t.Errorf("Vector(empty) = %v, want all zeros", zero)
	}
}

func TestExtractor_Vectors_PreservesOrder(t *testing.T) {
	e := NewExtractor()
	packets := []models.Packet{
		{Length: 10}, {Length: 20}, {Length: 30}, {Length: 40},
	}
	vectors := e.Vectors(packets)
	if len(vectors) != len(packets) {
		t.Fatalf("len = %d, want %d", len(vectors), len(packets))
	}
	for i, v := range vectors {
		if int(v.Length()) != packets[i].Length {
			t.Errorf("vectors[%d].Length = %v, want %d", i, v.Length(), packets[i].Length)
		}
	}

	if got := e.Vectors(nil); len(got) != 0 {
		t.Errorf("Vectors(nil) len = %d", len(got))
	}
}

func TestExtractor_Extended(t *testing.T) {
	e := NewExtractor()
	rec := e.Extended(models.Packet{
		ID:     json.RawMessage(`1`),
		Length: 64, SourcePort: 1234, DestinationPort: 80,
		Protocol: "TCP", TCPFlags: "SYN,ACK",
		SourceIP: "192.168.1.1", DestinationIP: "10.0.0.1",
		Timestamp: "2024-01-01T00:00:00Z",
	})

	if string(rec.PacketID) != "1" {
		t.Errorf("PacketID = %s", rec.PacketID)
	}
	if rec.IsSmallPacket != 1 || rec.IsTCP != 1 || rec.IsUDP != 0 || rec.IsICMP != 0 {
		t.Errorf("protocol/size indicators wrong: %+v", rec)
	}
	if rec.IsHTTPPort != 1 || rec.IsHTTPSPort != 0 || rec.IsDNSPort != 0 || rec.IsHighPort != 1 {
		t.Errorf("port indicators wrong: %+v", rec)
	}
	if rec.HasSYN != 1 || rec.HasACK != 1 || rec.SynAck != 1 || rec.HasFIN != 0 {
		t.Errorf("flag indicators wrong: %+v", rec)
	}
	if rec.Timestamp != "2024-01-01T00:00:00Z" || rec.SourceIP != "192.168.1.1" || rec.Protocol != "TCP" {
		t.Errorf("raw fields not preserved: %+v", rec)
	}
}

func TestExtractor_Extended_Defaults(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e := &Extractor{now: func() time.Time { return fixed }}

	rec := e.Extended(models.Packet{})
	if rec.Timestamp != fixed.Format(time.RFC3339Nano) {
		t.Errorf("Timestamp = %q", rec.Timestamp)
	}
	if rec.PacketID != nil {
		t.Errorf("PacketID = %s, want nil", rec.PacketID)
	}
	if rec.IsSmallPacket != 1 {
		t.Error("zero-length packet should be small")
	}
	if rec.IsHighPort != 0 || rec.SynAck != 0 {
		t.Errorf("unexpected indicators on empty packet: %+v", rec)
	}

	body, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := decoded["packet_id"]; !ok || v != nil {
		t.Errorf("packet_id = %v, want null", v)
	}
}

func TestExtractor_ExtendedRecords_SameLength(t *testing.T) {
	e := NewExtractor()
	packets := []models.Packet{{Length: 1500, Protocol: "udp", DestinationPort: 53}, {Protocol: "icmp"}}
	recs := e.ExtendedRecords(packets)
	if len(recs) != 2 {
		t.Fatalf("len = %d", len(recs))
	}
	if recs[0].IsUDP != 1 || recs[0].IsDNSPort != 1 || recs[0].IsSmallPacket != 0 {
		t.Errorf("recs[0] = %+v", recs[0])
	}
	if recs[1].IsICMP != 1 {
		t.Errorf("recs[1] = %+v", recs[1])
	}
}
