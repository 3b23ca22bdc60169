package detection

import (
	"encoding/json"
	"testing"

	"github.com/nshruti113/packet-analysis-service/internal/features"
	"github.com/nshruti113/packet-analysis-service/internal/models"
)

func TestAttackClassifier_Examples(t *testing.T) {
	ex := features.NewExtractor()
	c := NewAttackClassifier()

	tests := []struct {
		name   string
		packet models.Packet
		label  models.AttackLabel
		probs  models.Distribution
	}{
		{
			name:   "small syn is ddos",
			packet: models.Packet{Length: 40, Protocol: "TCP", TCPFlags: "SYN", DestinationPort: 80},
			label:  models.LabelDDoS,
			probs:  models.Distribution{0.1, 0.8, 0.05, 0.05},
		},
		{
			name:   "syn to high port is portscan",
			packet: models.Packet{Length: 200, Protocol: "TCP", TCPFlags: "SYN", DestinationPort: 8080},
			label:  models.LabelPortScan,
			probs:  models.Distribution{0.1, 0.05, 0.8, 0.05},
		},
		{
			name:   "ack is normal",
			packet: models.Packet{Length: 1500, Protocol: "TCP", TCPFlags: "ACK", DestinationPort: 443},
			label:  models.LabelNormal,
			probs:  models.Distribution{0.9, 0.03, 0.03, 0.04},
		},
		{
			name:   "ddos wins over portscan",
			packet: models.Packet{Length: 50, Protocol: "tcp", TCPFlags: "SYN", DestinationPort: 8080},
			label:  models.LabelDDoS,
			probs:  models.Distribution{0.1, 0.8, 0.05, 0.05},
		},
		{
			name:   "udp with syn text is normal",
			packet: models.Packet{Length: 40, Protocol: "UDP", TCPFlags: "SYN", DestinationPort: 9999},
			label:  models.LabelNormal,
			probs:  models.Distribution{0.9, 0.03, 0.03, 0.04},
		},
		{
			name:   "port 1024 is not high",
			packet: models.Packet{Length: 200, Protocol: "TCP", TCPFlags: "SYN", DestinationPort: 1024},
			label:  models.LabelNormal,
			probs:  models.Distribution{0.9, 0.03, 0.03, 0.04},
		},
		{
			name:   "length 100 is not small",
			packet: models.Packet{Length: 100, Protocol: "TCP", TCPFlags: "SYN,ACK", DestinationPort: 80},
			label:  models.LabelNormal,
			probs:  models.Distribution{0.9, 0.03, 0.03, 0.04},
		},
		{
			name:   "empty packet is normal",
			packet: models.Packet{},
			label:  models.LabelNormal,
			probs:  models.Distribution{0.9, 0.03, 0.03, 0.04},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Classify([]models.FeatureVector{ex.Vector(tt.packet)})
			if len(res.Classifications) != 1 || len(res.Probabilities) != 1 {
				t.Fatalf("result = %+v", res)
			}
			if res.Classifications[0] != tt.label {
				t.Errorf("label = %q, want %q", res.Classifications[0], tt.label)
			}
			if res.Probabilities[0] != tt.probs {
				t.Errorf("probabilities = %v, want %v", res.Probabilities[0], tt.probs)
			}
		})
	}
}

func TestAttackClassifier_Empty(t *testing.T) {
	res := NewAttackClassifier().Classify(nil)
	if res.Classifications == nil || res.Probabilities == nil {
		t.Error("empty result should use empty, non-nil slices")
	}
	if len(res.Classifications) != 0 || len(res.Probabilities) != 0 {
		t.Errorf("Classify(nil) = %+v", res)
	}
}

func TestAttackClassifier_Deterministic(t *testing.T) {
	c := NewAttackClassifier()
	v := models.FeatureVector{64, 1234, 8080, models.ProtocolTCP, models.FlagSYN}
	first := c.Label(v)
	for i := 0; i < 10; i++ {
		if got := c.Label(v); got != first {
			t.Fatalf("call %d: label %q, want %q", i, got, first)
		}
	}
}

func TestAttackClassifier_OtherUnreachable(t *testing.T) {
	c := NewAttackClassifier()
	for _, r := range c.Rules() {
		if r.Label == models.LabelOther {
			t.Errorf("rule %s yields %q", r.ID, models.LabelOther)
		}
	}
	for proto := 0; proto <= 3; proto++ {
		for flags := 0; flags < 64; flags++ {
			for _, length := range []float64{0, 99, 100, 1500} {
				for _, port := range []float64{0, 1024, 1025} {
					if c.Label(models.FeatureVector{length, 0, port, float64(proto), float64(flags)}) == models.LabelOther {
						t.Fatalf("vector produced %q", models.LabelOther)
					}
				}
			}
		}
	}
	if DistributionFor(models.LabelOther) != (models.Distribution{0.2, 0.2, 0.2, 0.4}) {
		t.Errorf("other distribution = %v", DistributionFor(models.LabelOther))
	}
}

func TestDistributionsSumToOne(t *testing.T) {
	for _, label := range models.Labels {
		var sum float64
		for _, p := range DistributionFor(label) {
			sum += p
		}
		if sum < 0.999999 || sum > 1.000001 {
			t.Errorf("%s sums to %v", label, sum)
		}
	}
}

func TestAttackClassifier_FractionalFieldsTruncate(t *testing.T) {
	var p models.Packet
	if err := json.Unmarshal([]byte(`{"length":200.7,"protocol":"TCP","tcpFlags":"SYN","destinationPort":1024.5}`), &p); err != nil {
		t.Fatal(err)
	}
	if p.DestinationPort != 1024 || p.Length != 200 {
		t.Fatalf("decoded port=%d length=%d, want 1024 and 200", p.DestinationPort, p.Length)
	}
	res := NewAttackClassifier().Classify([]models.FeatureVector{features.NewExtractor().Vector(p)})
	if res.Classifications[0] != models.LabelNormal {
		t.Errorf("label = %q, want %q for a port truncated to 1024", res.Classifications[0], models.LabelNormal)
	}
}
