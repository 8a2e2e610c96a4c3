package model

import (
	"encoding/json"
	"errors"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParsePortHandlesVirtualAndColonSwitchIDs(t *testing.T) {
	tests := []struct {
		in   string
		want Port
	}{
		{"s1:2", Physical("s1", 2)},
		{"openflow:1:3", Physical("openflow:1", 3)},
		{"s1:controller", Controller("s1")},
		{"s2:OUT_TO_IN", OutToIn("s2")},
		{"s3:in_port", Port{SwitchID: "s3", Number: PortNumber{Kind: InPortPort}}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePort(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}

	for _, bad := range []string{"", "s1", ":2", "s1:", "s1:-1", "s1:abc"} {
		if _, err := ParsePort(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestVirtualPortsNeverEqualPhysical(t *testing.T) {
	// The old sentinel encodings must not collide with the tagged variants.
	if Physical("s1", 4294967294) == Controller("s1") {
		t.Fatalf("controller port collides with physical port number")
	}
	if Physical("s1", 4294967293) == OutToIn("s1") {
		t.Fatalf("out_to_in port collides with physical port number")
	}
}

func TestPortJSONAcceptsObjectAndCompactForms(t *testing.T) {
	var p Port
	if err := json.Unmarshal([]byte(`{"switch_id":"s1","port_num":7}`), &p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != Physical("s1", 7) {
		t.Fatalf("expected s1:7, got %v", p)
	}
	if err := json.Unmarshal([]byte(`{"switch_id":"s1","port_num":"controller"}`), &p); err != nil || p != Controller("s1") {
		t.Fatalf("expected controller port, got %v (%v)", p, err)
	}
	if err := json.Unmarshal([]byte(`"s3:out_to_in"`), &p); err != nil || p != OutToIn("s3") {
		t.Fatalf("expected out_to_in port, got %v (%v)", p, err)
	}
	if err := json.Unmarshal([]byte(`{"port_num":1}`), &p); err == nil {
		t.Fatalf("expected error for missing switch id")
	}

	data, err := json.Marshal(Physical("s1", 2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"switch_id":"s1","port_num":2}` {
		t.Fatalf("unexpected encoding %s", data)
	}
}

func TestPortYAMLAcceptsObjectAndCompactForms(t *testing.T) {
	var zone Zone
	doc := "ports:\n  - s1:2\n  - switch_id: s2\n    port_num: controller\n"
	if err := yaml.Unmarshal([]byte(doc), &zone); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(zone.Ports) != 2 || zone.Ports[0] != Physical("s1", 2) || zone.Ports[1] != Controller("s2") {
		t.Fatalf("unexpected ports %v", zone.Ports)
	}
}

func TestLinkKeyIgnoresDirection(t *testing.T) {
	a := Link{Src: Physical("s1", 1), Dst: Physical("s2", 1)}
	b := Link{Src: Physical("s2", 1), Dst: Physical("s1", 1)}
	if a.Key() != b.Key() {
		t.Fatalf("expected equal keys, got %s and %s", a.Key(), b.Key())
	}
	if a.Peer(Physical("s2", 1)) != Physical("s1", 1) {
		t.Fatalf("unexpected peer")
	}
	if !a.Has(Physical("s1", 1)) || a.Has(Physical("s1", 2)) {
		t.Fatalf("unexpected Has result")
	}
}

func TestConfigErrorMatchesSentinel(t *testing.T) {
	err := Configf("duplicate priority %d", 10)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ConfigError to match ErrConfiguration")
	}
	if errors.Is(err, ErrInvariant) {
		t.Fatalf("ConfigError must not match ErrInvariant")
	}
	if !errors.Is(InvariantError{Detail: "x"}, ErrInvariant) {
		t.Fatalf("expected InvariantError to match ErrInvariant")
	}
}
