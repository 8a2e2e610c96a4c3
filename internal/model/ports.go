package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type PortKind uint8

const (
	PhysicalPort PortKind = iota
	ControllerPort
	OutToInPort
	// InPortPort is an output to whichever port the packet arrived on.
	InPortPort
)

const (
	controllerName = "controller"
	outToInName    = "out_to_in"
	inPortName     = "in_port"
)

// PortNumber identifies a port within a switch. Virtual ports are distinct
// kinds and never share the numeric space of physical ports.
type PortNumber struct {
	Kind  PortKind
	Value uint32
}

func PhysicalNumber(n uint32) PortNumber { return PortNumber{Kind: PhysicalPort, Value: n} }

func (n PortNumber) IsPhysical() bool { return n.Kind == PhysicalPort }

func (n PortNumber) String() string {
	switch n.Kind {
	case ControllerPort:
		return controllerName
	case OutToInPort:
		return outToInName
	case InPortPort:
		return inPortName
	default:
		return strconv.FormatUint(uint64(n.Value), 10)
	}
}

// ParsePortNumber accepts a decimal physical port number or one of the
// virtual port names "controller", "out_to_in" and "in_port".
func ParsePortNumber(s string) (PortNumber, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case controllerName, "ofpp_controller":
		return PortNumber{Kind: ControllerPort}, nil
	case outToInName, "out-to-in":
		return PortNumber{Kind: OutToInPort}, nil
	case inPortName, "ofpp_in_port":
		return PortNumber{Kind: InPortPort}, nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return PortNumber{}, fmt.Errorf("invalid port number %q", s)
	}
	return PhysicalNumber(uint32(v)), nil
}

func (n PortNumber) MarshalJSON() ([]byte, error) {
	if n.Kind == PhysicalPort {
		return json.Marshal(n.Value)
	}
	return json.Marshal(n.String())
}

func (n *PortNumber) UnmarshalJSON(data []byte) error {
	var v uint32
	if err := json.Unmarshal(data, &v); err == nil {
		*n = PhysicalNumber(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("port number must be an integer or a string: %w", err)
	}
	parsed, err := ParsePortNumber(s)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

func (n PortNumber) MarshalYAML() (interface{}, error) {
	if n.Kind == PhysicalPort {
		return n.Value, nil
	}
	return n.String(), nil
}

func (n *PortNumber) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: port number must be a scalar", value.Line)
	}
	parsed, err := ParsePortNumber(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*n = parsed
	return nil
}

// Port is a (switch, port number) pair. It is comparable and used as a map key.
type Port struct {
	SwitchID string
	Number   PortNumber
}

func Physical(switchID string, n uint32) Port {
	return Port{SwitchID: switchID, Number: PhysicalNumber(n)}
}

func Controller(switchID string) Port {
	return Port{SwitchID: switchID, Number: PortNumber{Kind: ControllerPort}}
}

func OutToIn(switchID string) Port {
	return Port{SwitchID: switchID, Number: PortNumber{Kind: OutToInPort}}
}

func (p Port) String() string {
	return p.SwitchID + ":" + p.Number.String()
}

// ParsePort parses the compact "switch:port" form. Switch ids may themselves
// contain colons (e.g. "openflow:1:3"), so the last colon separates the port.
func ParsePort(s string) (Port, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return Port{}, fmt.Errorf("invalid port %q: expected switch:port", s)
	}
	n, err := ParsePortNumber(s[i+1:])
	if err != nil {
		return Port{}, fmt.Errorf("invalid port %q: %w", s, err)
	}
	return Port{SwitchID: strings.TrimSpace(s[:i]), Number: n}, nil
}

type portWire struct {
	SwitchID string     `json:"switch_id" yaml:"switch_id"`
	Port     PortNumber `json:"port_num" yaml:"port_num"`
}

func (p Port) MarshalJSON() ([]byte, error) {
	return json.Marshal(portWire{SwitchID: p.SwitchID, Port: p.Number})
}

func (p *Port) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := ParsePort(s)
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	}
	var w portWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.SwitchID == "" {
		return fmt.Errorf("port is missing switch_id")
	}
	*p = Port{SwitchID: w.SwitchID, Number: w.Port}
	return nil
}

func (p Port) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

func (p *Port) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		parsed, err := ParsePort(value.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		*p = parsed
		return nil
	}
	var w portWire
	if err := value.Decode(&w); err != nil {
		return err
	}
	if w.SwitchID == "" {
		return fmt.Errorf("line %d: port is missing switch_id", value.Line)
	}
	*p = Port{SwitchID: w.SwitchID, Number: w.Port}
	return nil
}

// Link is an undirected physical link between two switch ports.
type Link struct {
	Src Port `json:"src" yaml:"src"`
	Dst Port `json:"dst" yaml:"dst"`
}

// Key identifies the link regardless of direction.
func (l Link) Key() string {
	a, b := l.Src.String(), l.Dst.String()
	if b < a {
		a, b = b, a
	}
	return a + "--" + b
}

func (l Link) String() string { return l.Src.String() + "--" + l.Dst.String() }

// Has reports whether p is one of the link's endpoints.
func (l Link) Has(p Port) bool { return l.Src == p || l.Dst == p }

// Peer returns the endpoint opposite p.
func (l Link) Peer(p Port) Port {
	if l.Src == p {
		return l.Dst
	}
	return l.Src
}
