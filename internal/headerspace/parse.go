package headerspace

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"flow-validator/internal/utils"
	"flow-validator/pkg/wellknown"
)

// Parse builds a match from a field-name to value mapping. Field names may be
// aliases; values may be "*", decimal, hex, "lo-hi", IPv4 addresses or CIDRs,
// MAC addresses, or names from the well-known registry.
func Parse(raw map[string]string) (Match, error) {
	m := Wildcard()
	for name, value := range raw {
		entry, ok := wellknown.Field(name)
		if !ok {
			if strings.EqualFold(strings.TrimSpace(name), wellknown.InPort) {
				return Match{}, fmt.Errorf("in_port is not a header field")
			}
			return Match{}, fmt.Errorf("unknown header field %q (known: %s)", name, strings.Join(wellknown.Fields(), ", "))
		}
		iv, wildcard, err := ParseValue(entry, value)
		if err != nil {
			return Match{}, fmt.Errorf("field %s: %w", name, err)
		}
		if wildcard {
			continue
		}
		m = m.Restrict(entry.Name, iv)
	}
	return m, nil
}

// ParseValue converts one textual field value into an interval.
func ParseValue(entry wellknown.FieldEntry, value string) (Interval, bool, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "*" {
		return Interval{}, true, nil
	}

	var iv Interval
	switch {
	case strings.Contains(value, "/"):
		_, cidr, err := net.ParseCIDR(value)
		if err != nil {
			return Interval{}, false, err
		}
		lo, hi, err := utils.IPv4Range(cidr)
		if err != nil {
			return Interval{}, false, err
		}
		iv = Interval{Lo: lo, Hi: hi}
	case net.ParseIP(value) != nil && strings.Contains(value, "."):
		v, err := utils.IPv4ToUint(net.ParseIP(value))
		if err != nil {
			return Interval{}, false, err
		}
		iv = Exact(v)
	case strings.Count(value, ":") == 5:
		v, err := utils.MACToUint(value)
		if err != nil {
			return Interval{}, false, err
		}
		iv = Exact(v)
	case strings.Contains(value, "-"):
		bounds := strings.SplitN(value, "-", 2)
		lo, err1 := strconv.ParseUint(strings.TrimSpace(bounds[0]), 0, 64)
		hi, err2 := strconv.ParseUint(strings.TrimSpace(bounds[1]), 0, 64)
		if err1 != nil || err2 != nil || lo > hi {
			return Interval{}, false, fmt.Errorf("invalid range %q", value)
		}
		iv = Interval{Lo: lo, Hi: hi}
	default:
		v, err := strconv.ParseUint(value, 0, 64)
		if err != nil {
			named, ok := wellknown.Value(entry.Name, value)
			if !ok {
				return Interval{}, false, fmt.Errorf("invalid value %q", value)
			}
			v = named
		}
		iv = Exact(v)
	}

	if iv.Hi > entry.Max() {
		return Interval{}, false, fmt.Errorf("value %q exceeds %d-bit field", value, entry.Width)
	}
	return iv, false, nil
}
