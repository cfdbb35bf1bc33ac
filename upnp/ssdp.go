package upnp

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-portmap/portmap/transport"
)

const (
	ssdpAddr = "239.255.255.250"
	ssdpPort = 1900

	searchTarget = "urn:schemas-upnp-org:device:InternetGatewayDevice:1"
)

func mSearchRequest() []byte {
	msg := "M-SEARCH * HTTP/1.1\r\n" +
		"HOST: 239.255.255.250:1900\r\n" +
		"MAN: \"ssdp:discover\"\r\n" +
		"MX: 3\r\n" +
		"ST: " + searchTarget + "\r\n\r\n"
	return []byte(msg)
}

// discoverLocations sends an M-SEARCH and collects every distinct
// LOCATION header seen in replies during ssdpTimeout (spec.md §4.7 Phase
// A). It never returns early on a reply: all responses within the budget
// are accumulated, since several routers/interfaces may answer.
func discoverLocations(ctx context.Context, t transport.Transport, ssdpTimeout time.Duration) ([]string, error) {
	sock, err := t.UDPBind(ctx, "0.0.0.0", 0)
	if err != nil {
		return nil, err
	}
	defer sock.Close()

	var (
		mu        sync.Mutex
		locations []string
		seen      = make(map[string]bool)
	)
	sock.OnData(func(peerIP string, peerPort int, data []byte) {
		loc, ok := extractLocation(string(data))
		if !ok {
			return
		}
		mu.Lock()
		if !seen[loc] {
			seen[loc] = true
			locations = append(locations, loc)
		}
		mu.Unlock()
	})

	if err := sock.SendTo(mSearchRequest(), ssdpAddr, ssdpPort); err != nil {
		return nil, err
	}

	timer := time.NewTimer(ssdpTimeout)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	if len(locations) == 0 {
		return nil, errNoSSDPReply
	}
	return locations, nil
}

// extractLocation does a case-insensitive scan for the "LOCATION:"
// header in an HTTP-over-UDP SSDP response, preserving the value exactly
// as the router sent it.
func extractLocation(datagram string) (string, bool) {
	lines := strings.Split(datagram, "\r\n")
	for _, line := range lines {
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(line[:idx]), "location") {
			continue
		}
		return strings.TrimSpace(line[idx+1:]), true
	}
	return "", false
}
