package resource

import (
	"fmt"
	"strings"
)

// Action is what a firewall rule does with matching traffic.
type Action int

const (
	ActionPass Action = iota
	ActionBlock
	ActionReject

	// ActionUnknown is a live value outside the wire vocabulary. It is
	// never a pass.
	ActionUnknown Action = -1
)

var actionWire = map[Action]string{
	ActionPass:   "pass",
	ActionBlock:  "block",
	ActionReject: "reject",
}

func (a Action) String() string { return wireString(actionWire, a) }

// MarshalText encodes the appliance's wire vocabulary.
func (a Action) MarshalText() ([]byte, error) {
	s, ok := actionWire[a]
	if !ok {
		return nil, fmt.Errorf("invalid action %d", int(a))
	}
	return []byte(s), nil
}

// ParseAction decodes a wire value.
func ParseAction(s string) (Action, error) {
	for k, v := range actionWire {
		if strings.EqualFold(v, s) {
			return k, nil
		}
	}
	return ActionUnknown, fmt.Errorf("unknown action %q", s)
}

// Direction is the traffic direction a rule applies to.
type Direction int

const (
	DirectionIn Direction = iota
	DirectionOut

	DirectionUnknown Direction = -1
)

var directionWire = map[Direction]string{
	DirectionIn:  "in",
	DirectionOut: "out",
}

func (d Direction) String() string { return wireString(directionWire, d) }

// MarshalText encodes the appliance's wire vocabulary.
func (d Direction) MarshalText() ([]byte, error) {
	s, ok := directionWire[d]
	if !ok {
		return nil, fmt.Errorf("invalid direction %d", int(d))
	}
	return []byte(s), nil
}

// ParseDirection decodes a wire value.
func ParseDirection(s string) (Direction, error) {
	for k, v := range directionWire {
		if strings.EqualFold(v, s) {
			return k, nil
		}
	}
	return DirectionUnknown, fmt.Errorf("unknown direction %q", s)
}

// IPProtocol selects the address family.
type IPProtocol int

const (
	IPv4 IPProtocol = iota
	IPv6
	IPv4v6

	IPProtocolUnknown IPProtocol = -1
)

var ipProtocolWire = map[IPProtocol]string{
	IPv4:   "inet",
	IPv6:   "inet6",
	IPv4v6: "inet46",
}

func (p IPProtocol) String() string { return wireString(ipProtocolWire, p) }

// MarshalText encodes the appliance's wire vocabulary.
func (p IPProtocol) MarshalText() ([]byte, error) {
	s, ok := ipProtocolWire[p]
	if !ok {
		return nil, fmt.Errorf("invalid ip protocol %d", int(p))
	}
	return []byte(s), nil
}

// ParseIPProtocol decodes a wire value.
func ParseIPProtocol(s string) (IPProtocol, error) {
	for k, v := range ipProtocolWire {
		if strings.EqualFold(v, s) {
			return k, nil
		}
	}
	return IPProtocolUnknown, fmt.Errorf("unknown ip protocol %q", s)
}

// Protocol is the transport protocol a rule matches.
type Protocol int

const (
	ProtocolAny Protocol = iota
	ProtocolTCP
	ProtocolUDP
	ProtocolTCPUDP
	ProtocolICMP

	ProtocolUnknown Protocol = -1
)

var protocolWire = map[Protocol]string{
	ProtocolAny:    "any",
	ProtocolTCP:    "TCP",
	ProtocolUDP:    "UDP",
	ProtocolTCPUDP: "TCP/UDP",
	ProtocolICMP:   "ICMP",
}

func (p Protocol) String() string { return wireString(protocolWire, p) }

// MarshalText encodes the appliance's wire vocabulary.
func (p Protocol) MarshalText() ([]byte, error) {
	s, ok := protocolWire[p]
	if !ok {
		return nil, fmt.Errorf("invalid protocol %d", int(p))
	}
	return []byte(s), nil
}

// ParseProtocol decodes a wire value.
func ParseProtocol(s string) (Protocol, error) {
	for k, v := range protocolWire {
		if strings.EqualFold(v, s) {
			return k, nil
		}
	}
	return ProtocolUnknown, fmt.Errorf("unknown protocol %q", s)
}

// wireString returns the wire value of v, or "unknown" outside the vocabulary.
func wireString[T comparable](vocab map[T]string, v T) string {
	if s, ok := vocab[v]; ok {
		return s
	}
	return "unknown"
}
