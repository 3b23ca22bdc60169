package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Packet is a single captured packet as submitted by a caller.
//
// Every field is optional. Decoding never fails on a bad field: a value of the
// wrong type is replaced with the field's zero value, so a missing or garbled
// length reads as 0 and a missing protocol reads as "".
type Packet struct {
	ID              json.RawMessage `json:"id,omitempty"`
	Timestamp       string          `json:"timestamp,omitempty"`
	SourceIP        string          `json:"sourceIp"`
	DestinationIP   string          `json:"destinationIp"`
	SourcePort      int             `json:"sourcePort"`
	DestinationPort int             `json:"destinationPort"`
	Protocol        string          `json:"protocol"`
	TCPFlags        string          `json:"tcpFlags"`
	Length          int             `json:"length"`
}

// maxExactInt bounds numeric fields to the range a float64 holds exactly.
const maxExactInt = 1 << 53

// UnmarshalJSON decodes a packet leniently. Anything that is not a JSON
// object decodes to the zero Packet.
func (p *Packet) UnmarshalJSON(data []byte) error {
	*p = Packet{}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	if id, ok := raw["id"]; ok && !isNull(id) {
		p.ID = append(json.RawMessage(nil), id...)
	}
	p.Timestamp = stringField(raw["timestamp"])
	p.SourceIP = stringField(raw["sourceIp"])
	p.DestinationIP = stringField(raw["destinationIp"])
	p.SourcePort = intField(raw["sourcePort"])
	p.DestinationPort = intField(raw["destinationPort"])
	p.Protocol = stringField(raw["protocol"])
	p.TCPFlags = flagsField(raw["tcpFlags"])
	p.Length = intField(raw["length"])

	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func stringField(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func intField(raw json.RawMessage) int {
	if isNull(raw) {
		return 0
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
	}

	if math.IsNaN(f) || math.Abs(f) > maxExactInt {
		return 0
	}
	// Lengths and ports are integers; a fractional value truncates toward zero.
	return int(f)
}

// flagsField accepts either "SYN,ACK" or ["SYN","ACK"].
func flagsField(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, ",")
	}
	return ""
}
