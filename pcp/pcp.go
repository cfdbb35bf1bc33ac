package pcp

import (
	"context"
	"net"
	"time"

	"github.com/go-portmap/portmap/internal/netutil"
	"github.com/go-portmap/portmap/internal/plog"
	"github.com/go-portmap/portmap/internal/race"
	"github.com/go-portmap/portmap/internal/wire"
	"github.com/go-portmap/portmap/transport"
)

var log = plog.New("pcp")

// Port is the well-known NAT-PMP/PCP UDP listener port on the gateway.
const Port = 5351

// Nonce is re-exported from wire so callers of this package never need to
// import internal/wire directly.
type Nonce = wire.Nonce

// AddResult is the outcome of an Add call.
type AddResult struct {
	Success        bool
	InternalIP     string
	ExternalIP     string
	ExternalPort   uint16
	ActualLifetime uint32
	Nonce          Nonce
	RouterIP       string
	ErrInfo        string
}

// DeleteResult is the outcome of a Delete call.
type DeleteResult struct {
	Success bool
	ErrInfo string
}

// Engine races PCP MAP requests across candidate gateway IPs.
type Engine struct {
	transport transport.Transport
	timeout   time.Duration
}

// New returns a PCP engine bound to transport with the given per-attempt
// wave timeout (spec.md §4.6: 2000ms).
func New(t transport.Transport, timeout time.Duration) *Engine {
	return &Engine{transport: t, timeout: timeout}
}

// Waves mirrors natpmp.Waves: first wave is cache ∪ locally-plausible
// defaults, second wave is whatever defaults remain.
func Waves(localIPs, routerCache, defaultCandidates []string) (first, second []string) {
	filtered := netutil.FilterRouterCandidates(defaultCandidates, localIPs)
	first = netutil.ArrUnion(routerCache, filtered)
	second = netutil.ArrDifference(defaultCandidates, first)
	return first, second
}

// Add races a MAP request for (internalPort, suggestedExternalPort,
// lifetime) using a fresh nonce, across localIPs' plausible gateways.
func (e *Engine) Add(ctx context.Context, localIPs, routerCache, defaultCandidates []string, internalPort, suggestedExternalPort uint16, lifetime uint32, nonce Nonce) AddResult {
	first, second := Waves(localIPs, routerCache, defaultCandidates)

	if res, ok := e.raceWave(ctx, first, localIPs, internalPort, suggestedExternalPort, lifetime, nonce); ok {
		return res
	}
	if res, ok := e.raceWave(ctx, second, localIPs, internalPort, suggestedExternalPort, lifetime, nonce); ok {
		return res
	}
	return AddResult{ErrInfo: "pcp: no gateway replied in either wave"}
}

// Delete races a deletion MAP request (external_port=0, lifetime=0)
// reusing the original mapping's nonce, since the gateway binds
// delete/refresh requests to the original MAP by nonce, not by source
// port. A reply with result 0 (SUCCESS) or 8 (NO_RESOURCES — "mapping no
// longer exists") both count as success per spec.md §4.6.
func (e *Engine) Delete(ctx context.Context, localIPs, routerCache, defaultCandidates []string, internalPort uint16, nonce Nonce) DeleteResult {
	first, second := Waves(localIPs, routerCache, defaultCandidates)

	if res, ok := e.raceDeleteWave(ctx, first, localIPs, internalPort, nonce); ok {
		return res
	}
	if res, ok := e.raceDeleteWave(ctx, second, localIPs, internalPort, nonce); ok {
		return res
	}
	return DeleteResult{ErrInfo: "pcp: delete got no confirming reply"}
}

func (e *Engine) raceWave(ctx context.Context, targets, localIPs []string, internalPort, suggestedExternalPort uint16, lifetime uint32, nonce Nonce) (AddResult, bool) {
	if len(targets) == 0 {
		return AddResult{}, false
	}

	attempts := make([]race.Attempt[AddResult], 0, len(targets))
	for _, routerIP := range targets {
		routerIP := routerIP
		attempts = append(attempts, func(ctx context.Context) (AddResult, bool) {
			// PCP requires the claimed client address to match the
			// source address the gateway actually observes, so the
			// source IP is chosen per-target by longest-prefix match
			// against that specific router, not once for the whole wave.
			clientIP, ok := netutil.LongestPrefixMatch(localIPs, routerIP)
			if !ok {
				return AddResult{}, false
			}
			req, err := wire.BuildPCPMapRequest(net.ParseIP(clientIP), internalPort, suggestedExternalPort, lifetime, nonce)
			if err != nil {
				log.Debug("pcp build request failed", "router", routerIP, "err", err)
				return AddResult{}, false
			}

			resp, ok := e.roundTrip(ctx, clientIP, routerIP, req[:])
			if !ok || resp.ResultCode != wire.PCPResultSuccess {
				if ok {
					log.Debug("pcp add rejected", "router", routerIP, "resultCode", resp.ResultCode)
				}
				return AddResult{}, false
			}

			return AddResult{
				Success:        true,
				InternalIP:     clientIP,
				ExternalIP:     resp.ExternalIP.String(),
				ExternalPort:   resp.ExternalPort,
				ActualLifetime: resp.Lifetime,
				Nonce:          resp.NonceEcho,
				RouterIP:       routerIP,
			}, true
		})
	}

	return race.Run(ctx, e.timeout, attempts)
}

func (e *Engine) raceDeleteWave(ctx context.Context, targets, localIPs []string, internalPort uint16, nonce Nonce) (DeleteResult, bool) {
	if len(targets) == 0 {
		return DeleteResult{}, false
	}

	attempts := make([]race.Attempt[DeleteResult], 0, len(targets))
	for _, routerIP := range targets {
		routerIP := routerIP
		attempts = append(attempts, func(ctx context.Context) (DeleteResult, bool) {
			clientIP, ok := netutil.LongestPrefixMatch(localIPs, routerIP)
			if !ok {
				return DeleteResult{}, false
			}
			req, err := wire.BuildPCPMapRequest(net.ParseIP(clientIP), internalPort, 0, 0, nonce)
			if err != nil {
				return DeleteResult{}, false
			}
			resp, ok := e.roundTrip(ctx, clientIP, routerIP, req[:])
			if !ok {
				return DeleteResult{}, false
			}
			if resp.ResultCode != wire.PCPResultSuccess && resp.ResultCode != wire.PCPResultNoResources {
				return DeleteResult{}, false
			}
			return DeleteResult{Success: true}, true
		})
	}
	return race.Run(ctx, e.timeout, attempts)
}

func (e *Engine) roundTrip(ctx context.Context, sourceIP, routerIP string, payload []byte) (wire.PCPResponse, bool) {
	sock, err := e.transport.UDPBind(ctx, sourceIP, 0)
	if err != nil {
		log.Debug("pcp udp bind failed", "sourceIP", sourceIP, "err", err)
		return wire.PCPResponse{}, false
	}
	defer sock.Close()

	replies := make(chan wire.PCPResponse, 1)
	sock.OnData(func(peerIP string, peerPort int, data []byte) {
		resp, err := wire.ParsePCPResponse(data)
		if err != nil {
			return
		}
		select {
		case replies <- resp:
		default:
		}
	})

	if err := sock.SendTo(payload, routerIP, Port); err != nil {
		return wire.PCPResponse{}, false
	}

	select {
	case resp := <-replies:
		return resp, true
	case <-ctx.Done():
		return wire.PCPResponse{}, false
	}
}
