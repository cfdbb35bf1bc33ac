package portmap

import (
	"context"
	"sync"

	"github.com/go-portmap/portmap/pcp"
)

// ProbeProtocolSupport races a blind add_mapping to each protocol's fixed
// probe port concurrently, and concurrently discovers the UPnP
// controlURL, filling the protocol-support cache. Any mapping created on
// a probe port is torn down immediately afterward; probes never appear
// in GetActiveMappings.
func (c *Controller) ProbeProtocolSupport(ctx context.Context) Snapshot {
	if c.isClosed() {
		return Snapshot{}
	}

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		c.probeNatPmp(ctx)
	}()
	go func() {
		defer wg.Done()
		c.probePcp(ctx)
	}()
	go func() {
		defer wg.Done()
		c.probeUpnp(ctx)
	}()

	wg.Wait()
	return c.supportCache.snapshot()
}

// ProbePmpSupport probes NAT-PMP alone, leaving PCP/UPnP's cached values
// (if any) untouched.
func (c *Controller) ProbePmpSupport(ctx context.Context) bool {
	if c.isClosed() {
		return false
	}
	return c.probeNatPmp(ctx)
}

// ProbePcpSupport probes PCP alone.
func (c *Controller) ProbePcpSupport(ctx context.Context) bool {
	if c.isClosed() {
		return false
	}
	return c.probePcp(ctx)
}

// ProbeUpnpSupport probes UPnP alone.
func (c *Controller) ProbeUpnpSupport(ctx context.Context) bool {
	if c.isClosed() {
		return false
	}
	return c.probeUpnp(ctx)
}

func (c *Controller) probeNatPmp(ctx context.Context) bool {
	localIPs, err := c.privateIPs(ctx)
	if err != nil {
		c.supportCache.setNatPmp(false)
		return false
	}

	res := c.natpmpEngine.Add(ctx, localIPs, c.routerCache.List(), c.cfg.RouterCandidates, NatPmpProbePort, NatPmpProbePort, natPmpProbeLifetime)
	ok := res.Success
	c.supportCache.setNatPmp(ok)
	if ok {
		c.routerCache.Add(res.RouterIP)
		c.natpmpEngine.Delete(ctx, localIPs, c.routerCache.List(), c.cfg.RouterCandidates, NatPmpProbePort)
	}
	return ok
}

func (c *Controller) probePcp(ctx context.Context) bool {
	localIPs, err := c.privateIPs(ctx)
	if err != nil {
		c.supportCache.setPcp(false)
		return false
	}

	nonce := randomNonce()
	res := c.pcpEngine.Add(ctx, localIPs, c.routerCache.List(), c.cfg.RouterCandidates, PcpProbePort, PcpProbePort, natPmpProbeLifetime, pcp.Nonce(nonce))
	ok := res.Success
	c.supportCache.setPcp(ok)
	if ok {
		c.routerCache.Add(res.RouterIP)
		c.pcpEngine.Delete(ctx, localIPs, c.routerCache.List(), c.cfg.RouterCandidates, PcpProbePort, res.Nonce)
	}
	return ok
}

// natPmpProbeLifetime is a short-lived lease used only to verify a
// gateway answers the protocol at all; it is deleted immediately on
// success regardless.
const natPmpProbeLifetime = 120

func (c *Controller) probeUpnp(ctx context.Context) bool {
	localIPs, err := c.privateIPs(ctx)
	if err != nil {
		c.supportCache.setUpnp(false)
		return false
	}

	controlURL, discovered := c.upnpEngine.Probe(ctx, localIPs)
	if discovered {
		c.supportCache.setControlURL(controlURL)
	}

	res := c.upnpEngine.Add(ctx, localIPs, controlURL, UpnpProbePort, UpnpProbePort, "portmap-probe", natPmpProbeLifetime)
	// A conflict response proves the WANIPConnection service answered
	// even though this particular probe mapping was rejected (spec
	// scenario S3); a clean success proves it too, and is torn down
	// immediately.
	ok := res.Success || res.Conflict
	c.supportCache.setUpnp(ok)
	if res.Success {
		c.upnpEngine.Delete(ctx, res.ControlURL, UpnpProbePort)
	}
	return ok
}
