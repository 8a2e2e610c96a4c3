package utils

import (
	"encoding/binary"
	"fmt"
	"net"
)

// CIDRSize returns the number of addresses in a CIDR network.
func CIDRSize(cidr *net.IPNet) uint64 {
	ones, bits := cidr.Mask.Size()
	return 1 << (bits - ones)
}

// IPv4Range returns the first and last address of an IPv4 network as integers.
func IPv4Range(cidr *net.IPNet) (uint64, uint64, error) {
	ip4 := cidr.IP.Mask(cidr.Mask).To4()
	if ip4 == nil {
		return 0, 0, fmt.Errorf("%s is not an IPv4 network", cidr)
	}
	start := uint64(binary.BigEndian.Uint32(ip4))
	return start, start + CIDRSize(cidr) - 1, nil
}

// IPv4ToUint converts a dotted-quad address to an integer.
func IPv4ToUint(ip net.IP) (uint64, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, fmt.Errorf("%s is not an IPv4 address", ip)
	}
	return uint64(binary.BigEndian.Uint32(ip4)), nil
}

// MACToUint converts a colon separated hardware address to an integer.
func MACToUint(s string) (uint64, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return 0, err
	}
	if len(hw) != 6 {
		return 0, fmt.Errorf("%s is not a 48-bit MAC address", s)
	}
	var v uint64
	for _, b := range hw {
		v = v<<8 | uint64(b)
	}
	return v, nil
}
