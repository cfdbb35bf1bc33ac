// Package netutil provides the address-comparison helpers the NAT-PMP,
// PCP and UPnP engines use to pair a local interface address with the
// most likely reachable gateway, and to keep the router candidate lists
// (wave targets, default gateways) in order without duplicates.
package netutil

import "net"

// LongestPrefixMatch returns the candidate IPv4 address sharing the most
// leading bits with target, and true if target and at least one candidate
// parse as IPv4. Ties break by earliest index in candidates.
func LongestPrefixMatch(candidates []string, target string) (string, bool) {
	targetIP := parseIPv4(target)
	if targetIP == nil {
		return "", false
	}

	best := ""
	bestLen := -1
	for _, c := range candidates {
		ip := parseIPv4(c)
		if ip == nil {
			continue
		}
		l := commonPrefixLen(ip, targetIP)
		if l > bestLen {
			bestLen = l
			best = c
		}
	}
	if bestLen < 0 {
		return "", false
	}
	return best, true
}

func parseIPv4(s string) net.IP {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil
	}
	return ip.To4()
}

// commonPrefixLen returns the number of leading bits shared by a and b,
// both assumed to be 4-byte IPv4 addresses (0..32).
func commonPrefixLen(a, b net.IP) int {
	total := 0
	for i := 0; i < 4; i++ {
		x := a[i] ^ b[i]
		if x == 0 {
			total += 8
			continue
		}
		for bit := 7; bit >= 0; bit-- {
			if x&(1<<uint(bit)) != 0 {
				return total
			}
			total++
		}
	}
	return total
}
