package headerspace

import (
	"strings"
	"testing"
)

func mustParse(t *testing.T, raw map[string]string) Match {
	t.Helper()
	m, err := Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse %v: %v", raw, err)
	}
	return m
}

func sampleMatches(t *testing.T) []Match {
	return []Match{
		Wildcard(),
		Unsatisfiable,
		mustParse(t, map[string]string{"eth_type": "ipv4"}),
		mustParse(t, map[string]string{"eth_type": "arp"}),
		mustParse(t, map[string]string{"ipv4_dst": "10.0.0.0/8"}),
		mustParse(t, map[string]string{"ipv4_dst": "10.1.0.0/16", "ip_proto": "tcp"}),
		mustParse(t, map[string]string{"ipv4_dst": "192.168.0.1"}),
		mustParse(t, map[string]string{"tcp_dst": "1000-2000"}),
		mustParse(t, map[string]string{"tcp_dst": "1500-3000", "eth_type": "0x0800"}),
		mustParse(t, map[string]string{"eth_dst": "00:00:00:00:00:01"}),
	}
}

func TestIntersectIsCommutative(t *testing.T) {
	ms := sampleMatches(t)
	for i, a := range ms {
		for j, b := range ms {
			if !Intersect(a, b).Equal(Intersect(b, a)) {
				t.Errorf("intersect(%d,%d) != intersect(%d,%d): %s vs %s", i, j, j, i, Intersect(a, b), Intersect(b, a))
			}
		}
	}
}

func TestIntersectIsAssociative(t *testing.T) {
	ms := sampleMatches(t)
	for i, a := range ms {
		for j, b := range ms {
			for k, c := range ms {
				left := Intersect(Intersect(a, b), c)
				right := Intersect(a, Intersect(b, c))
				if !left.Equal(right) {
					t.Errorf("associativity failed for (%d,%d,%d): %s vs %s", i, j, k, left, right)
				}
			}
		}
	}
}

func TestUnsatisfiableAbsorbs(t *testing.T) {
	for _, m := range sampleMatches(t) {
		if !Intersect(m, Unsatisfiable).IsEmpty() || !Intersect(Unsatisfiable, m).IsEmpty() {
			t.Errorf("intersect(%s, unsatisfiable) should be unsatisfiable", m)
		}
	}
}

func TestIntersectFieldSemantics(t *testing.T) {
	ipv4 := mustParse(t, map[string]string{"eth_type": "ipv4"})
	arp := mustParse(t, map[string]string{"eth_type": "arp"})
	if !Intersect(ipv4, arp).IsEmpty() {
		t.Fatalf("conflicting exact values must be unsatisfiable")
	}

	dst := mustParse(t, map[string]string{"ipv4_dst": "10.0.0.0/8"})
	got := Intersect(ipv4, dst)
	_, hasType := got.Field("eth_type")
	_, hasDst := got.Field("ipv4_dst")
	if got.IsEmpty() || !hasType || !hasDst {
		t.Fatalf("absent fields should inherit the other side, got %s", got)
	}

	narrow := Intersect(dst, mustParse(t, map[string]string{"ipv4_dst": "10.2.0.0/16"}))
	iv, ok := narrow.Field("ipv4_dst")
	if !ok || iv.Lo != 0x0A020000 || iv.Hi != 0x0A02FFFF {
		t.Fatalf("expected 10.2.0.0/16 range, got %v", iv)
	}

	if !Intersect(Wildcard(), ipv4).Equal(ipv4) {
		t.Fatalf("wildcard must be the identity")
	}
}

func TestRewriteReplacesField(t *testing.T) {
	m := mustParse(t, map[string]string{"vlan_id": "10", "eth_type": "ipv4"})
	rewritten := m.Rewrite("vlan_id", Exact(20))
	iv, _ := rewritten.Field("vlan_id")
	if iv != Exact(20) {
		t.Fatalf("expected vlan 20, got %v", iv)
	}
	if orig, _ := m.Field("vlan_id"); orig != Exact(10) {
		t.Fatalf("rewrite must not mutate the receiver, got %v", orig)
	}
	if !Unsatisfiable.Rewrite("vlan_id", Exact(1)).IsEmpty() {
		t.Fatalf("rewrite cannot revive an unsatisfiable match")
	}
	full := m.Rewrite("vlan_id", Interval{Lo: 0, Hi: 4095})
	if _, ok := full.Field("vlan_id"); ok {
		t.Fatalf("full-range rewrite should become a wildcard")
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown field":   {"color": "blue"},
		"in_port":         {"in_port": "1"},
		"bad value":       {"eth_type": "banana"},
		"too wide":        {"vlan_id": "5000"},
		"inverted range":  {"tcp_dst": "90-80"},
		"bad cidr":        {"ipv4_dst": "10.0.0.0/33"},
		"ipv6 in v4 cidr": {"ipv4_dst": "2001:db8::/64"},
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(raw); err == nil {
				t.Fatalf("expected error for %v", raw)
			}
		})
	}
}

func TestParseUnknownFieldListsKnownFields(t *testing.T) {
	_, err := Parse(map[string]string{"color": "blue"})
	if err == nil || !strings.Contains(err.Error(), "eth_type") || !strings.Contains(err.Error(), "udp_dst") {
		t.Fatalf("expected the known field names in %v", err)
	}
}

func TestParseWildcardValues(t *testing.T) {
	m := mustParse(t, map[string]string{"eth_type": "*", "ipv4_dst": "0.0.0.0/0"})
	if m.IsEmpty() {
		t.Fatalf("expected wildcard match, got %s", m)
	}
	if m.String() != "*" {
		t.Fatalf("expected * rendering, got %s", m.String())
	}
}
