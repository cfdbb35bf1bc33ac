package netutil

import "net"

// FilterRouterCandidates returns the subset of candidates whose /24
// subnet matches any of localIPs, preserving candidates' order. Used to
// narrow the static DefaultRouterCandidates list to routers plausibly on
// this host's LAN before a blind fan-out.
func FilterRouterCandidates(candidates, localIPs []string) []string {
	var subnets []net.IP
	for _, l := range localIPs {
		ip := parseIPv4(l)
		if ip != nil {
			subnets = append(subnets, ip)
		}
	}

	var out []string
	for _, c := range candidates {
		cip := parseIPv4(c)
		if cip == nil {
			continue
		}
		for _, l := range subnets {
			if cip[0] == l[0] && cip[1] == l[1] && cip[2] == l[2] {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// ArrUnion returns the order-preserving, de-duplicated union of a and b:
// every element of a first, then elements of b not already seen.
func ArrUnion(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// ArrDifference returns the elements of a not present in b, preserving a's
// order.
func ArrDifference(a, b []string) []string {
	exclude := make(map[string]bool, len(b))
	for _, s := range b {
		exclude[s] = true
	}
	out := make([]string, 0, len(a))
	for _, s := range a {
		if !exclude[s] {
			out = append(out, s)
		}
	}
	return out
}
