// Package ipaddresses converts between textual IPv4/CIDR notation and 32-bit
// integer form, which the geo and threat intel indexes operate on.
package ipaddresses

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseIPv4 converts an address in octet notation (*.*.*.*) to its 32-bit
// unsigned integer value.
func ParseIPv4(addr string) (ip uint32, err error) {
	octets := strings.Split(addr, ".")
	if len(octets) != 4 {
		err = fmt.Errorf("invalid IPv4 address: %s", addr)
		return
	}

	for _, octet := range octets {
		n, cerr := strconv.Atoi(octet)
		if cerr != nil || n < 0 || n > 255 {
			err = fmt.Errorf("invalid IPv4 address: %s", addr)
			return
		}

		ip = ip<<8 | uint32(n)
	}

	return
}

// ParsePrefix parses either a plain address or CIDR notation. A plain address
// gets prefix length 32.
func ParsePrefix(s string) (ip uint32, bits int, err error) {
	addr := s
	bits = 32

	if slash := strings.IndexByte(s, '/'); slash >= 0 {
		addr = s[:slash]

		bits, err = strconv.Atoi(s[slash+1:])
		if err != nil || bits < 0 || bits > 32 {
			err = fmt.Errorf("invalid CIDR notation: %s", s)
			return
		}
	}

	ip, err = ParseIPv4(addr)
	if err != nil {
		err = fmt.Errorf("invalid CIDR notation: %s", s)
	}

	return
}

// ParseCIDR converts CIDR notation into the prefix and mask of its address
// space.
func ParseCIDR(cidr string) (prefix uint32, mask uint32, err error) {
	ip, bits, err := ParsePrefix(cidr)
	if err != nil {
		return
	}

	if bits > 0 {
		mask = ^uint32(0) << uint(32-bits)
	}
	prefix = ip & mask

	return
}

// ToOctets renders a 32-bit address back into "*.*.*.*" form.
func ToOctets(ip uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", ip>>24, ip>>16&0xff, ip>>8&0xff, ip&0xff)
}
