package models

import "time"

// Metrics represents aggregated statistics for one analysed packet batch
type Metrics struct {
	Timestamp         time.Time      `json:"timestamp"`
	TotalPackets      int            `json:"total_packets"`
	AverageSize       float64        `json:"average_size"`
	PacketsPerSec     float64        `json:"packets_per_sec"`
	UniqueSourceIPs   int            `json:"unique_source_ips"`
	UniqueDestIPs     int            `json:"unique_destination_ips"`
	UniqueSourcePorts int            `json:"unique_source_ports"`
	UniqueDestPorts   int            `json:"unique_destination_ports"`
	SYNPackets        int            `json:"syn_packets"`
	IPEntropy         float64        `json:"ip_entropy"`
	TopSourceIPs      []IPCount      `json:"top_source_ips"`
	TopDestIPs        []IPCount      `json:"top_destination_ips"`
	ProtocolBreakdown map[string]int `json:"protocol_breakdown"`
	StartTime         *time.Time     `json:"start_time,omitempty"`
	EndTime           *time.Time     `json:"end_time,omitempty"`
	DurationSeconds   float64        `json:"duration_seconds"`
}

type IPCount struct {
	IP         string  `json:"ip"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Attack represents a detected attack
type Attack struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`       // ML_ANOMALY, ML_DDOS, ML_PORTSCAN, PORT_SCAN, SYN_FLOOD
	Severity    string    `json:"severity"`   // LOW, MEDIUM, HIGH, CRITICAL
	Confidence  float64   `json:"confidence"` // 0.0 to 1.0
	StartTime   time.Time `json:"start_time"`
	SourceIPs   []string  `json:"source_ips"`
	TargetIPs   []string  `json:"target_ips"`
	PacketID    string    `json:"packet_id,omitempty"`
	Score       float64   `json:"score,omitempty"`
	Description string    `json:"description"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
	Mitigated   bool      `json:"mitigated"`
}

// Alert represents a security alert
type Alert struct {
	ID           string    `json:"id"`
	Level        string    `json:"level"` // INFO, WARNING, CRITICAL
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	AttackType   string    `json:"attack_type,omitempty"`
	SourceIP     string    `json:"source_ip,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
}
