package models

import "encoding/json"

// Positions inside a FeatureVector.
const (
	FeatureLength = iota
	FeatureSourcePort
	FeatureDestinationPort
	FeatureProtocol
	FeatureTCPFlags

	FeatureCount
)

// Protocol codes stored at FeatureProtocol.
const (
	ProtocolUnknown = 0
	ProtocolTCP     = 1
	ProtocolUDP     = 2
	ProtocolICMP    = 3
)

// TCP flag bits stored at FeatureTCPFlags.
const (
	FlagSYN = 1 << iota
	FlagACK
	FlagFIN
	FlagRST
	FlagPSH
	FlagURG
)

// FeatureVector is the numeric encoding of a packet consumed by the anomaly
// detector and the attack classifier:
// [length, sourcePort, destinationPort, protocolCode, tcpFlagsBitmask].
type FeatureVector [FeatureCount]float64

func (v FeatureVector) Length() float64          { return v[FeatureLength] }
func (v FeatureVector) DestinationPort() float64 { return v[FeatureDestinationPort] }
func (v FeatureVector) Protocol() int            { return int(v[FeatureProtocol]) }

// HasFlag reports whether bit is set in the flag bitmask.
func (v FeatureVector) HasFlag(bit int) bool {
	return int(v[FeatureTCPFlags])&bit != 0
}

// ExtendedFeatureRecord is the named-feature view of a packet returned by the
// extraction endpoint. Indicator fields are 0 or 1.
type ExtendedFeatureRecord struct {
	PacketID      json.RawMessage `json:"packet_id"`
	Length        int             `json:"length"`
	IsSmallPacket int             `json:"is_small_packet"`

	IsTCP  int `json:"is_tcp"`
	IsUDP  int `json:"is_udp"`
	IsICMP int `json:"is_icmp"`

	IsHTTPPort  int `json:"is_http_port"`
	IsHTTPSPort int `json:"is_https_port"`
	IsDNSPort   int `json:"is_dns_port"`
	IsHighPort  int `json:"is_high_port"`

	HasSYN int `json:"has_syn"`
	HasACK int `json:"has_ack"`
	HasFIN int `json:"has_fin"`
	HasRST int `json:"has_rst"`
	HasPSH int `json:"has_psh"`
	HasURG int `json:"has_urg"`
	SynAck int `json:"syn_ack"`

	SourceIP        string `json:"sourceIp"`
	DestinationIP   string `json:"destinationIp"`
	SourcePort      int    `json:"sourcePort"`
	DestinationPort int    `json:"destinationPort"`
	Protocol        string `json:"protocol"`
	Timestamp       string `json:"timestamp"`
}
