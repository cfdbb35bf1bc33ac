package natpmp

import (
	"context"
	"time"

	"github.com/go-portmap/portmap/internal/netutil"
	"github.com/go-portmap/portmap/internal/plog"
	"github.com/go-portmap/portmap/internal/race"
	"github.com/go-portmap/portmap/internal/wire"
	"github.com/go-portmap/portmap/transport"
)

var log = plog.New("natpmp")

// Port is the well-known NAT-PMP/PCP UDP listener port on the gateway.
const Port = 5351

// AddResult is the outcome of an Add call. A failed attempt carries
// Success=false and a descriptive ErrInfo; the controller is responsible
// for turning this into a failure Mapping.
type AddResult struct {
	Success      bool
	InternalIP   string // inferred from the source interface (no client-address field in NAT-PMP)
	ExternalPort uint16
	ActualLifetime uint32
	RouterIP     string // the router that answered; controller adds this to RouterIPCache
	ErrInfo      string
}

// DeleteResult is the outcome of a Delete call.
type DeleteResult struct {
	Success bool
	ErrInfo string
}

// Engine races NAT-PMP requests across candidate gateway IPs over an
// injected Transport.
type Engine struct {
	transport transport.Transport
	timeout   time.Duration
}

// New returns a NAT-PMP engine bound to transport with the given
// per-attempt wave timeout (spec.md §4.5: 2000ms).
func New(t transport.Transport, timeout time.Duration) *Engine {
	return &Engine{transport: t, timeout: timeout}
}

// Waves computes the first- and second-wave router IP targets per
// spec.md §4.5: first wave is the union of the router cache and any
// default candidates on a matching local /24; second wave is whatever
// default candidates remain.
func Waves(localIPs, routerCache, defaultCandidates []string) (first, second []string) {
	filtered := netutil.FilterRouterCandidates(defaultCandidates, localIPs)
	first = netutil.ArrUnion(routerCache, filtered)
	second = netutil.ArrDifference(defaultCandidates, first)
	return first, second
}

// Add builds and races a UDP MAP request for (internalPort, externalPort,
// lifetime) across localIPs' plausible gateways, trying the first wave
// and falling back to the second if nothing usable replies.
func (e *Engine) Add(ctx context.Context, localIPs, routerCache, defaultCandidates []string, internalPort, externalPort uint16, lifetime uint32) AddResult {
	first, second := Waves(localIPs, routerCache, defaultCandidates)

	if res, ok := e.raceWave(ctx, first, localIPs, internalPort, externalPort, lifetime); ok {
		return res
	}
	if res, ok := e.raceWave(ctx, second, localIPs, internalPort, externalPort, lifetime); ok {
		return res
	}
	return AddResult{ErrInfo: "natpmp: no gateway replied in either wave"}
}

// Delete races a deletion request (external_port=0, lifetime=0) across
// the same candidate set used for Add; success iff any reply carries
// result code 0.
func (e *Engine) Delete(ctx context.Context, localIPs, routerCache, defaultCandidates []string, internalPort uint16) DeleteResult {
	first, second := Waves(localIPs, routerCache, defaultCandidates)

	if res, ok := e.raceDeleteWave(ctx, first, internalPort); ok {
		return res
	}
	if res, ok := e.raceDeleteWave(ctx, second, internalPort); ok {
		return res
	}
	return DeleteResult{ErrInfo: "natpmp: delete got no confirming reply"}
}

func (e *Engine) raceWave(ctx context.Context, targets, localIPs []string, internalPort, externalPort uint16, lifetime uint32) (AddResult, bool) {
	if len(targets) == 0 {
		return AddResult{}, false
	}

	req := wire.BuildNATPMPRequest(internalPort, externalPort, lifetime)
	attempts := make([]race.Attempt[AddResult], 0, len(targets))
	for _, routerIP := range targets {
		routerIP := routerIP
		attempts = append(attempts, func(ctx context.Context) (AddResult, bool) {
			resp, ok := e.roundTrip(ctx, routerIP, req[:])
			if !ok {
				return AddResult{}, false
			}
			if resp.ResultCode != 0 {
				log.Debug("natpmp add rejected", "router", routerIP, "resultCode", resp.ResultCode)
				return AddResult{}, false
			}
			internalIP, _ := netutil.LongestPrefixMatch(localIPs, routerIP)
			return AddResult{
				Success:        true,
				InternalIP:     internalIP,
				ExternalPort:   resp.ExternalPort,
				ActualLifetime: resp.Lifetime,
				RouterIP:       routerIP,
			}, true
		})
	}

	return race.Run(ctx, e.timeout, attempts)
}

func (e *Engine) raceDeleteWave(ctx context.Context, targets []string, internalPort uint16) (DeleteResult, bool) {
	if len(targets) == 0 {
		return DeleteResult{}, false
	}

	req := wire.BuildNATPMPRequest(internalPort, 0, 0)
	attempts := make([]race.Attempt[DeleteResult], 0, len(targets))
	for _, routerIP := range targets {
		routerIP := routerIP
		attempts = append(attempts, func(ctx context.Context) (DeleteResult, bool) {
			resp, ok := e.roundTrip(ctx, routerIP, req[:])
			if !ok || resp.ResultCode != 0 {
				return DeleteResult{}, false
			}
			return DeleteResult{Success: true}, true
		})
	}
	return race.Run(ctx, e.timeout, attempts)
}

// roundTrip sends payload to routerIP:Port and waits for one reply on an
// ephemeral source socket, honoring ctx cancellation so the race runner
// can reclaim the socket the instant it decides the race.
func (e *Engine) roundTrip(ctx context.Context, routerIP string, payload []byte) (wire.NATPMPResponse, bool) {
	sock, err := e.transport.UDPBind(ctx, "0.0.0.0", 0)
	if err != nil {
		log.Debug("natpmp udp bind failed", "err", err)
		return wire.NATPMPResponse{}, false
	}
	defer sock.Close()

	replies := make(chan wire.NATPMPResponse, 1)
	sock.OnData(func(peerIP string, peerPort int, data []byte) {
		resp, err := wire.ParseNATPMPResponse(data)
		if err != nil {
			return
		}
		select {
		case replies <- resp:
		default:
		}
	})

	if err := sock.SendTo(payload, routerIP, Port); err != nil {
		return wire.NATPMPResponse{}, false
	}

	select {
	case resp := <-replies:
		return resp, true
	case <-ctx.Done():
		return wire.NATPMPResponse{}, false
	}
}
