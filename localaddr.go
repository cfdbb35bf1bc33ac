package portmap

import (
	"context"
	"net"
)

// DefaultLocalAddressProvider enumerates this host's up, non-loopback
// IPv4 interface addresses. It is the in-tree stand-in
// for the ICE-candidate-harvesting discovery spec.md abstracts away as an
// external collaborator; an embedder with a richer discovery mechanism
// (STUN, ICE) supplies its own LocalAddressProvider instead.
type DefaultLocalAddressProvider struct{}

// LocalIPv4s returns every up, non-loopback interface's IPv4 addresses.
// It returns ErrNoLocalAddress both when net.Interfaces itself fails and
// when the scan succeeds but yields nothing usable.
func (DefaultLocalAddressProvider) LocalIPv4s(ctx context.Context) ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, ErrNoLocalAddress
	}

	var out []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			var ip net.IP
			switch v := a.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip4 := ip.To4(); ip4 != nil {
				out = append(out, ip4.String())
			}
		}
	}

	if len(out) == 0 {
		return nil, ErrNoLocalAddress
	}
	return out, nil
}
