package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nshruti113/packet-analysis-service/internal/models"
)

const targetIP = "192.168.1.100"

type Simulator struct {
	serverURL    string
	normalRate   int
	attackActive bool
	attackType   string

	rng    *rand.Rand
	client *http.Client
	log    *logrus.Logger
}

func NewSimulator(serverURL string, normalRate int, seed int64, log *logrus.Logger) *Simulator {
	return &Simulator{
		serverURL:  serverURL,
		normalRate: normalRate,
		rng:        rand.New(rand.NewSource(seed)),
		client:     &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

func (s *Simulator) packet(src string, srcPort, dstPort int, protocol, flags string, length int) models.Packet {
	id, _ := json.Marshal(uuid.New().String())
	return models.Packet{
		ID:              id,
		Timestamp:       time.Now().UTC().Format(time.RFC3339Nano),
		SourceIP:        src,
		DestinationIP:   targetIP,
		SourcePort:      srcPort,
		DestinationPort: dstPort,
		Protocol:        protocol,
		TCPFlags:        flags,
		Length:          length,
	}
}

func (s *Simulator) randomIP() string {
	return fmt.Sprintf("%d.%d.%d.%d", s.rng.Intn(256), s.rng.Intn(256), s.rng.Intn(256), s.rng.Intn(256))
}

// GenerateNormalTraffic creates established HTTPS and DNS traffic
func (s *Simulator) GenerateNormalTraffic() models.Packet {
	src := s.randomIP()
	srcPort := s.rng.Intn(65535-1024) + 1024
	if s.rng.Intn(5) == 0 {
		return s.packet(src, srcPort, 53, "UDP", "", s.rng.Intn(400)+60)
	}
	flags := []string{"ACK", "PSH,ACK", "FIN,ACK"}[s.rng.Intn(3)]
	return s.packet(src, srcPort, 443, "TCP", flags, s.rng.Intn(1300)+200)
}

// GenerateSYNFlood simulates small SYN packets from a few sources
func (s *Simulator) GenerateSYNFlood(count int) []models.Packet {
	attackIPs := []string{"203.0.113.10", "203.0.113.11", "203.0.113.12"}

	packets := make([]models.Packet, 0, count)
	for i := 0; i < count; i++ {
		packets = append(packets, s.packet(attackIPs[s.rng.Intn(len(attackIPs))], s.rng.Intn(65535), 80, "TCP", "SYN", 64))
	}
	return packets
}

// GeneratePortScan simulates one source probing sequential high ports
func (s *Simulator) GeneratePortScan(count int) []models.Packet {
	src := "198.51.100.20"
	start := 1025 + s.rng.Intn(20000)

	packets := make([]models.Packet, 0, count)
	for i := 0; i < count; i++ {
		packets = append(packets, s.packet(src, 40000+s.rng.Intn(1000), start+i, "TCP", "SYN", 120+s.rng.Intn(60)))
	}
	return packets
}

// GenerateUDPFlood simulates large UDP datagrams from a botnet
func (s *Simulator) GenerateUDPFlood(count int) []models.Packet {
	botnet := s.generateBotnet(30)

	packets := make([]models.Packet, 0, count)
	for i := 0; i < count; i++ {
		packets = append(packets, s.packet(botnet[s.rng.Intn(len(botnet))], s.rng.Intn(65535), s.rng.Intn(65535), "UDP", "", s.rng.Intn(1400)+100))
	}
	return packets
}

func (s *Simulator) generateBotnet(size int) []string {
	ips := make([]string, size)
	for i := range ips {
		ips[i] = s.randomIP()
	}
	return ips
}

// Tick produces one second of traffic.
func (s *Simulator) Tick() []models.Packet {
	packets := make([]models.Packet, 0, s.normalRate)
	for i := 0; i < s.normalRate; i++ {
		packets = append(packets, s.GenerateNormalTraffic())
	}
	if !s.attackActive {
		return packets
	}

	switch s.attackType {
	case "SYN_FLOOD":
		packets = append(packets, s.GenerateSYNFlood(s.rng.Intn(200)+100)...)
	case "PORT_SCAN":
		packets = append(packets, s.GeneratePortScan(s.rng.Intn(40)+30)...)
	case "UDP_FLOOD":
		packets = append(packets, s.GenerateUDPFlood(s.rng.Intn(300)+200)...)
	}
	s.rng.Shuffle(len(packets), func(i, j int) { packets[i], packets[j] = packets[j], packets[i] })
	return packets
}

func (s *Simulator) post(path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	resp, err := s.client.Post(s.serverURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %s", path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// SendTraffic ingests packets for the periodic engine and scores a sample of
// them directly.
func (s *Simulator) SendTraffic(packets []models.Packet) {
	if err := s.post("/api/traffic/ingest", models.PacketsRequest{Packets: packets}, nil); err != nil {
		s.log.WithError(err).Warn("Ingest failed")
	}

	sample := packets
	if len(sample) > 100 {
		sample = sample[:100]
	}
	var res models.BatchResponse
	if err := s.post("/api/predict/batch", models.PacketsRequest{Packets: sample}, &res); err != nil {
		s.log.WithError(err).Warn("Batch analysis failed")
		return
	}

	labels := make(map[models.AttackLabel]int)
	for _, l := range res.Classifications {
		labels[l]++
	}
	s.log.WithFields(logrus.Fields{
		"packets":   len(sample),
		"anomalies": len(res.Anomalies),
		"ddos":      labels[models.LabelDDoS],
		"portscan":  labels[models.LabelPortScan],
	}).Info("Batch scored")
}

// Run cycles through the attack types, switching every attackEvery
func (s *Simulator) Run(attackEvery time.Duration) {
	s.log.WithField("rate", s.normalRate).Info("Starting traffic simulator")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	attackTicker := time.NewTicker(attackEvery)
	defer attackTicker.Stop()

	attackSequence := []string{"SYN_FLOOD", "PORT_SCAN", "UDP_FLOOD"}
	currentAttackIndex := 0

	s.attackActive = true
	s.attackType = attackSequence[0]
	s.log.WithField("attack", s.attackType).Warn("Starting attack")

	for {
		select {
		case <-ticker.C:
			s.SendTraffic(s.Tick())

		case <-attackTicker.C:
			if s.attackActive {
				s.log.WithField("attack", s.attackType).Info("Attack stopped")
				s.attackActive = false
			} else {
				currentAttackIndex = (currentAttackIndex + 1) % len(attackSequence)
				s.attackActive = true
				s.attackType = attackSequence[currentAttackIndex]
				s.log.WithField("attack", s.attackType).Warn("Starting attack")
			}
		}
	}
}

func main() {
	var (
		serverURL   string
		rate        int
		seed        int64
		attackEvery time.Duration
	)

	rootCmd := &cobra.Command{
		Use:   "simulator",
		Short: "Generate normal and attack packet traffic against the analysis service",
		Run: func(cmd *cobra.Command, args []string) {
			log := logrus.New()
			log.SetFormatter(&logrus.JSONFormatter{})
			NewSimulator(serverURL, rate, seed, log).Run(attackEvery)
		},
	}
	rootCmd.Flags().StringVarP(&serverURL, "url", "u", "http://localhost:8888", "Analysis service base URL")
	rootCmd.Flags().IntVarP(&rate, "rate", "r", 100, "Normal packets per second")
	rootCmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "Random seed")
	rootCmd.Flags().DurationVar(&attackEvery, "attack-every", 10*time.Second, "Interval between attack phase changes")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
