package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"

	"github.com/nshruti113/packet-analysis-service/internal/analysis"
	"github.com/nshruti113/packet-analysis-service/internal/detection"
	"github.com/nshruti113/packet-analysis-service/internal/models"
)

func synCapture(t *testing.T, n int) *bytes.Buffer {
	t.Helper()
	var out bytes.Buffer
	w := pcapgo.NewWriter(&out)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatal(err)
	}
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
			DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: net.IP{203, 0, 113, 10}, DstIP: net.IP{10, 0, 0, 1}}
		tcp := &layers.TCP{SrcPort: layers.TCPPort(30000 + i), DstPort: 80, SYN: true, Window: 1024}
		tcp.SetNetworkLayerForChecksum(ip)

		buf := gopacket.NewSerializeBuffer()
		if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}, eth, ip, tcp); err != nil {
			t.Fatal(err)
		}
		ci := gopacket.CaptureInfo{Timestamp: start.Add(time.Duration(i) * time.Millisecond), CaptureLength: len(buf.Bytes()), Length: len(buf.Bytes())}
		if err := w.WritePacket(ci, buf.Bytes()); err != nil {
			t.Fatal(err)
		}
	}
	return &out
}

func newScorer(chunkSize int, alerts bool, dedup time.Duration, out io.Writer) *scorer {
	log := logrus.New()
	log.SetOutput(io.Discard)

	thresholds := detection.DefaultThresholds()
	thresholds.DedupWindow = dedup
	return &scorer{
		svc:       analysis.New(detection.NewAnomalyDetector(detection.DefaultIsolationForestConfig()), log),
		detector:  detection.NewDetector(thresholds),
		chunkSize: chunkSize,
		alerts:    alerts,
		out:       json.NewEncoder(out),
	}
}

func readLines(t *testing.T, out *bytes.Buffer) []chunkResult {
	t.Helper()
	var lines []chunkResult
	sc := bufio.NewScanner(out)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var line chunkResult
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatalf("decode %q: %v", sc.Text(), err)
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return lines
}

func attackSet(attacks []models.Attack) map[string]models.Attack {
	byType := make(map[string]models.Attack, len(attacks))
	for _, a := range attacks {
		byType[a.Type] = a
	}
	return byType
}

func TestScorer_Chunks(t *testing.T) {
	var out bytes.Buffer
	s := newScorer(3, false, time.Minute, &out)

	total, err := s.score(synCapture(t, 7))
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if total != 7 {
		t.Errorf("total = %d, want 7", total)
	}

	lines := readLines(t, &out)
	if len(lines) != 3 {
		t.Fatalf("got %d chunks, want 3", len(lines))
	}
	wantSizes := []int{3, 3, 1}
	for i, line := range lines {
		if line.Chunk != i || line.Packets != wantSizes[i] || line.Offset != i*3 {
			t.Errorf("chunk %d = %+v", i, line)
		}
		if len(line.Result.Classifications) != line.Packets || line.Result.Status != analysis.StatusSuccess {
			t.Errorf("chunk %d result = %+v", i, line.Result)
		}
		for _, l := range line.Result.Classifications {
			if l != "ddos" {
				t.Errorf("chunk %d label %q, want ddos", i, l)
			}
		}
	}
}

func TestScorer_AlertsEveryFloodingChunk(t *testing.T) {
	var out bytes.Buffer
	s := newScorer(150, true, 0, &out)

	if _, err := s.score(synCapture(t, 450)); err != nil {
		t.Fatalf("score: %v", err)
	}

	lines := readLines(t, &out)
	if len(lines) != 3 {
		t.Fatalf("got %d chunks, want 3", len(lines))
	}
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, line := range lines {
		byType := attackSet(line.Attacks)
		for _, typ := range []string{"SYN_FLOOD", "ML_DDOS", "RATE_ANOMALY"} {
			if _, ok := byType[typ]; !ok {
				t.Errorf("chunk %d missing %s, got %v", i, typ, byType)
			}
		}
		// 150 frames 1ms apart: the newest frame of chunk i is at (150i+149)ms.
		want := start.Add(time.Duration(150*i+149) * time.Millisecond)
		if syn, ok := byType["SYN_FLOOD"]; ok && !syn.StartTime.Equal(want) {
			t.Errorf("chunk %d SYN_FLOOD start = %v, want capture time %v", i, syn.StartTime, want)
		}
	}
}

func TestScorer_DedupOnCaptureTime(t *testing.T) {
	var out bytes.Buffer
	s := newScorer(150, true, 200*time.Millisecond, &out)

	if _, err := s.score(synCapture(t, 450)); err != nil {
		t.Fatalf("score: %v", err)
	}

	lines := readLines(t, &out)
	if len(lines) != 3 {
		t.Fatalf("got %d chunks, want 3", len(lines))
	}
	// Chunks end at 149ms, 299ms and 449ms of capture time.
	want := []bool{true, false, true}
	for i, line := range lines {
		if _, ok := attackSet(line.Attacks)["SYN_FLOOD"]; ok != want[i] {
			t.Errorf("chunk %d SYN_FLOOD raised = %v, want %v", i, ok, want[i])
		}
	}
}
