package detection

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nshruti113/packet-analysis-service/internal/features"
	"github.com/nshruti113/packet-analysis-service/internal/models"
)

// Detector raises batch-level attacks from an analysed packet batch.
type Detector struct {
	thresholds Thresholds
	now        func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

type Thresholds struct {
	DDoSLabelCount     int
	PortScanLabelCount int
	DistinctPorts      int
	SYNFloodPackets    int
	PacketsPerSecond   float64
	DedupWindow        time.Duration
}

// DefaultThresholds returns the alerting thresholds used by the service.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DDoSLabelCount:     30,
		PortScanLabelCount: 20,
		DistinctPorts:      15,
		SYNFloodPackets:    100,
		PacketsPerSecond:   200,
		DedupWindow:        time.Minute,
	}
}

func NewDetector(thresholds Thresholds) *Detector {
	return &Detector{
		thresholds: thresholds,
		now:        time.Now,
		lastSeen:   make(map[string]time.Time),
	}
}

// AnalyzeTraffic runs every alert rule over packets and their verdict. Attacks
// of a type already raised within the dedup window are dropped.
func (d *Detector) AnalyzeTraffic(packets []models.Packet, verdict models.BatchResponse) []models.Attack {
	return d.AnalyzeTrafficAt(packets, verdict, d.now())
}

// AnalyzeTrafficAt is AnalyzeTraffic on an explicit clock. Offline scoring
// passes capture time so the dedup window is measured in capture time.
func (d *Detector) AnalyzeTrafficAt(packets []models.Packet, verdict models.BatchResponse, now time.Time) []models.Attack {
	if len(packets) == 0 {
		return nil
	}

	metrics := CalculateMetrics(packets)
	candidates := make([]*models.Attack, 0)

	candidates = append(candidates, d.detectMLAnomaly(packets, verdict))
	candidates = append(candidates, d.detectMLLabels(verdict, metrics)...)
	candidates = append(candidates, d.detectPortScan(packets, metrics))
	candidates = append(candidates, d.detectSYNFlood(packets, metrics))
	candidates = append(candidates, d.detectRateAnomaly(packets, metrics))

	d.mu.Lock()
	defer d.mu.Unlock()

	attacks := make([]models.Attack, 0)
	for _, attack := range candidates {
		if attack == nil {
			continue
		}
		if last, ok := d.lastSeen[attack.Type]; ok && now.Sub(last) < d.thresholds.DedupWindow {
			continue
		}
		d.lastSeen[attack.Type] = now
		attack.StartTime = now
		attacks = append(attacks, *attack)
	}
	return attacks
}

// CalculateMetrics computes summary statistics for a packet batch
func CalculateMetrics(packets []models.Packet) *models.Metrics {
	srcIPs := make(map[string]int)
	dstIPs := make(map[string]int)
	srcPorts := make(map[int]bool)
	dstPorts := make(map[int]bool)
	protocols := make(map[string]int)
	totalSize := 0
	synCount := 0

	var first, last time.Time
	for _, p := range packets {
		srcIPs[p.SourceIP]++
		dstIPs[p.DestinationIP]++
		srcPorts[p.SourcePort] = true
		dstPorts[p.DestinationPort] = true
		protocols[p.Protocol]++
		totalSize += p.Length

		if isSYN(p) {
			synCount++
		}

		ts, ok := parseTimestamp(p.Timestamp)
		if !ok {
			continue
		}
		if first.IsZero() || ts.Before(first) {
			first = ts
		}
		if last.IsZero() || ts.After(last) {
			last = ts
		}
	}

	metrics := &models.Metrics{
		Timestamp:         time.Now(),
		TotalPackets:      len(packets),
		UniqueSourceIPs:   len(srcIPs),
		UniqueDestIPs:     len(dstIPs),
		UniqueSourcePorts: len(srcPorts),
		UniqueDestPorts:   len(dstPorts),
		SYNPackets:        synCount,
		IPEntropy:         calculateEntropy(srcIPs),
		TopSourceIPs:      topCounts(srcIPs, 5, len(packets)),
		TopDestIPs:        topCounts(dstIPs, 5, len(packets)),
		ProtocolBreakdown: protocols,
	}
	if len(packets) > 0 {
		metrics.AverageSize = float64(totalSize) / float64(len(packets))
	}
	if !first.IsZero() {
		metrics.StartTime = &first
		metrics.EndTime = &last
		metrics.DurationSeconds = last.Sub(first).Seconds()
		if metrics.DurationSeconds > 0 {
			metrics.PacketsPerSec = float64(len(packets)) / metrics.DurationSeconds
		}
	}
	return metrics
}

// timestampLayouts accepts RFC 3339 and zone-less ISO-8601 timestamps.
var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999"}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func isSYN(p models.Packet) bool {
	return features.ProtocolCode(p.Protocol) == models.ProtocolTCP &&
		features.FlagMask(p.TCPFlags)&models.FlagSYN != 0
}

// detectMLAnomaly reports the highest-scoring outlier of the batch
func (d *Detector) detectMLAnomaly(packets []models.Packet, verdict models.BatchResponse) *models.Attack {
	if len(verdict.Anomalies) == 0 {
		return nil
	}

	worst := -1
	for _, idx := range verdict.Anomalies {
		if idx < 0 || idx >= len(packets) || idx >= len(verdict.Scores) {
			continue
		}
		if worst < 0 || verdict.Scores[idx] > verdict.Scores[worst] {
			worst = idx
		}
	}
	if worst < 0 {
		return nil
	}

	p := packets[worst]
	score := verdict.Scores[worst]
	confidence := math.Max(0, math.Min(0.5+score, 1.0))

	return &models.Attack{
		ID:          uuid.New().String(),
		Type:        "ML_ANOMALY",
		Severity:    getSeverity(confidence),
		Confidence:  confidence,
		SourceIPs:   nonEmpty(p.SourceIP),
		TargetIPs:   nonEmpty(p.DestinationIP),
		PacketID:    strings.Trim(string(p.ID), `"`),
		Score:       score,
		Description: fmt.Sprintf("Isolation forest flagged %d of %d packets, highest anomaly score %.2f", len(verdict.Anomalies), len(packets), score),
	}
}

// detectMLLabels raises an attack when many packets share an attack label
func (d *Detector) detectMLLabels(verdict models.BatchResponse, metrics *models.Metrics) []*models.Attack {
	counts := make(map[models.AttackLabel]int)
	for _, label := range verdict.Classifications {
		counts[label]++
	}

	var attacks []*models.Attack
	if n := counts[models.LabelDDoS]; n > d.thresholds.DDoSLabelCount {
		confidence := math.Min(float64(n)/float64(d.thresholds.DDoSLabelCount*2), 1.0)
		attacks = append(attacks, &models.Attack{
			ID:          uuid.New().String(),
			Type:        "ML_DDOS",
			Severity:    getSeverity(confidence),
			Confidence:  confidence,
			SourceIPs:   ipsOf(metrics.TopSourceIPs),
			Description: fmt.Sprintf("Possible DDoS: %d packets classified as ddos", n),
			Metrics:     metrics,
		})
	}
	if n := counts[models.LabelPortScan]; n > d.thresholds.PortScanLabelCount {
		confidence := math.Min(float64(n)/float64(d.thresholds.PortScanLabelCount*2), 1.0)
		attacks = append(attacks, &models.Attack{
			ID:          uuid.New().String(),
			Type:        "ML_PORTSCAN",
			Severity:    getSeverity(confidence),
			Confidence:  confidence,
			SourceIPs:   ipsOf(metrics.TopSourceIPs),
			Description: fmt.Sprintf("Possible port scan: %d packets classified as portscan", n),
			Metrics:     metrics,
		})
	}
	return attacks
}

// detectPortScan detects a source touching many distinct destination ports
func (d *Detector) detectPortScan(packets []models.Packet, metrics *models.Metrics) *models.Attack {
	portsByIP := make(map[string]map[int]bool)
	for _, p := range packets {
		if portsByIP[p.SourceIP] == nil {
			portsByIP[p.SourceIP] = make(map[int]bool)
		}
		portsByIP[p.SourceIP][p.DestinationPort] = true
	}

	scanners := make(map[string]int)
	widest := 0
	for ip, ports := range portsByIP {
		if len(ports) > d.thresholds.DistinctPorts {
			scanners[ip] = len(ports)
			widest = max(widest, len(ports))
		}
	}
	if len(scanners) == 0 {
		return nil
	}

	confidence := math.Min(float64(widest)/float64(d.thresholds.DistinctPorts*2), 1.0)
	return &models.Attack{
		ID:          uuid.New().String(),
		Type:        "PORT_SCAN",
		Severity:    getSeverity(confidence),
		Confidence:  confidence,
		SourceIPs:   getTopIPs(scanners, 20),
		Description: fmt.Sprintf("Port scan detected: %d source IPs contacted more than %d distinct ports (max %d)", len(scanners), d.thresholds.DistinctPorts, widest),
		Metrics:     metrics,
	}
}

// detectSYNFlood detects SYN flood attacks
func (d *Detector) detectSYNFlood(packets []models.Packet, metrics *models.Metrics) *models.Attack {
	if metrics.SYNPackets <= d.thresholds.SYNFloodPackets {
		return nil
	}

	synIPs := make(map[string]int)
	for _, p := range packets {
		if isSYN(p) {
			synIPs[p.SourceIP]++
		}
	}

	confidence := math.Min(float64(metrics.SYNPackets)/float64(d.thresholds.SYNFloodPackets*2), 1.0)
	return &models.Attack{
		ID:          uuid.New().String(),
		Type:        "SYN_FLOOD",
		Severity:    getSeverity(confidence),
		Confidence:  confidence,
		SourceIPs:   getTopIPs(synIPs, 20),
		Description: fmt.Sprintf("SYN flood detected: %d SYN packets from %d IPs", metrics.SYNPackets, len(synIPs)),
		Metrics:     metrics,
	}
}

// detectRateAnomaly detects a packet rate above the configured ceiling
func (d *Detector) detectRateAnomaly(packets []models.Packet, metrics *models.Metrics) *models.Attack {
	if metrics.PacketsPerSec <= d.thresholds.PacketsPerSecond {
		return nil
	}

	confidence := math.Min(metrics.PacketsPerSec/(d.thresholds.PacketsPerSecond*2), 1.0)
	return &models.Attack{
		ID:          uuid.New().String(),
		Type:        "RATE_ANOMALY",
		Severity:    getSeverity(confidence),
		Confidence:  confidence,
		SourceIPs:   ipsOf(metrics.TopSourceIPs),
		Description: fmt.Sprintf("Rate anomaly detected: %.0f packets/s over %.2fs, IP entropy %.2f", metrics.PacketsPerSec, metrics.DurationSeconds, metrics.IPEntropy),
		Metrics:     metrics,
	}
}

// calculateEntropy calculates Shannon entropy for a distribution
func calculateEntropy(counts map[string]int) float64 {
	total := 0
	for _, count := range counts {
		total += count
	}

	if total == 0 {
		return 0.0
	}

	entropy := 0.0
	for _, count := range counts {
		if count > 0 {
			p := float64(count) / float64(total)
			entropy -= p * math.Log2(p)
		}
	}

	return entropy
}

type ipCount struct {
	ip    string
	count int
}

func sortedCounts(counts map[string]int) []ipCount {
	ips := make([]ipCount, 0, len(counts))
	for ip, count := range counts {
		ips = append(ips, ipCount{ip, count})
	}
	sort.Slice(ips, func(i, j int) bool {
		if ips[i].count != ips[j].count {
			return ips[i].count > ips[j].count
		}
		return ips[i].ip < ips[j].ip
	})
	return ips
}

// getTopIPs returns the top N IPs by count
func getTopIPs(counts map[string]int, n int) []string {
	ips := sortedCounts(counts)
	result := make([]string, 0, n)
	for i := 0; i < len(ips) && i < n; i++ {
		result = append(result, ips[i].ip)
	}
	return result
}

func topCounts(counts map[string]int, n, total int) []models.IPCount {
	ips := sortedCounts(counts)
	result := make([]models.IPCount, 0, n)
	for i := 0; i < len(ips) && i < n; i++ {
		result = append(result, models.IPCount{
			IP:         ips[i].ip,
			Count:      ips[i].count,
			Percentage: float64(ips[i].count) / float64(total) * 100,
		})
	}
	return result
}

func ipsOf(counts []models.IPCount) []string {
	ips := make([]string, 0, len(counts))
	for _, c := range counts {
		if c.IP != "" {
			ips = append(ips, c.IP)
		}
	}
	return ips
}

func nonEmpty(ip string) []string {
	if ip == "" {
		return []string{}
	}
	return []string{ip}
}

// getSeverity determines attack severity based on confidence
func getSeverity(confidence float64) string {
	if confidence >= 0.9 {
		return "CRITICAL"
	} else if confidence >= 0.7 {
		return "HIGH"
	} else if confidence >= 0.5 {
		return "MEDIUM"
	}
	return "LOW"
}
