package portmap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/go-portmap/portmap/internal/plog"
	"github.com/go-portmap/portmap/natpmp"
	"github.com/go-portmap/portmap/pcp"
	"github.com/go-portmap/portmap/upnp"
)

var log = plog.New("controller")

// mappingEntry is the controller's private bookkeeping for one active
// port mapping: the public Mapping snapshot handed to callers, a closure
// that knows how to tear it down on the wire, and the internal timer
// token (refresh or pure expiry) armed for it. The internal handle is
// tracked separately from Mapping.RefreshHandle because the data-model
// invariant only allows the latter to be set when the mapping is being
// refreshed, not for the pure-expiry case that still needs an internal
// timer. UPnP mappings get no timer at all (timer is nil).
type mappingEntry struct {
	mapping *Mapping
	deleter func(ctx context.Context) error
	timer   *RefreshHandle
}

// Controller is the protocol-agnostic orchestrator (§4.8): it selects a
// protocol, maintains the active-mapping table, schedules refreshes, and
// routes deletions. The active-mapping table is guarded by mu; the router
// and protocol-support caches each carry their own lock. The protocol
// engines themselves are pure and touch no controller state.
type Controller struct {
	cfg Config

	natpmpEngine *natpmp.Engine
	pcpEngine    *pcp.Engine
	upnpEngine   *upnp.Engine

	routerCache  *RouterIPCache
	supportCache *ProtocolSupportCache

	mu     sync.Mutex
	active map[int]*mappingEntry
	closed bool
}

// New builds a Controller from DefaultConfig plus any Options.
func New(opts ...Option) *Controller {
	cfg := applyOptions(opts)
	return &Controller{
		cfg:          cfg,
		natpmpEngine: natpmp.New(cfg.Transport, cfg.NatPmpTimeout),
		pcpEngine:    pcp.New(cfg.Transport, cfg.PcpTimeout),
		upnpEngine:   upnp.New(cfg.Transport, cfg.SSDPTimeout, cfg.UPnPHTTPTimeout),
		routerCache:  NewRouterIPCache(),
		supportCache: &ProtocolSupportCache{},
		active:       make(map[int]*mappingEntry),
	}
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) privateIPs(ctx context.Context) ([]string, error) {
	return c.cfg.LocalAddresses.LocalIPv4s(ctx)
}

// AddMapping is the protocol-agnostic entry point: if no probe has run
// yet, it tries NAT-PMP, then PCP, then UPnP, stopping at the first
// success. Once probe_protocol_support has filled the cache, it dispatches
// directly to a supported protocol (preferring NatPmp > Pcp > Upnp), or
// returns a failure Mapping if none are supported.
func (c *Controller) AddMapping(ctx context.Context, internalPort, externalPort int, lifetime uint32) *Mapping {
	if c.isClosed() {
		return failure(NatPmp, "portmap: controller closed")
	}

	snap := c.supportCache.snapshot()
	if snap.NatPmp == nil && snap.Pcp == nil && snap.Upnp == nil {
		if m := c.AddMappingPmp(ctx, internalPort, externalPort, lifetime); !m.Failed() {
			return m
		}
		if m := c.AddMappingPcp(ctx, internalPort, externalPort, lifetime); !m.Failed() {
			return m
		}
		return c.AddMappingUpnp(ctx, internalPort, externalPort, lifetime)
	}

	switch {
	case boolVal(snap.NatPmp):
		return c.AddMappingPmp(ctx, internalPort, externalPort, lifetime)
	case boolVal(snap.Pcp):
		return c.AddMappingPcp(ctx, internalPort, externalPort, lifetime)
	case boolVal(snap.Upnp):
		return c.AddMappingUpnp(ctx, internalPort, externalPort, lifetime)
	default:
		return failure(NatPmp, "No protocols supported")
	}
}

func boolVal(b *bool) bool { return b != nil && *b }

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// AddMappingPmp requests a NAT-PMP mapping directly, bypassing protocol
// selection.
func (c *Controller) AddMappingPmp(ctx context.Context, internalPort, externalPort int, lifetime uint32) *Mapping {
	if c.isClosed() {
		return failure(NatPmp, "portmap: controller closed")
	}
	localIPs, err := c.privateIPs(ctx)
	if err != nil {
		return failure(NatPmp, "getPrivateIps failed")
	}

	res := c.natpmpEngine.Add(ctx, localIPs, c.routerCache.List(), c.cfg.RouterCandidates, uint16(internalPort), uint16(externalPort), lifetime)
	if !res.Success {
		return failure(NatPmp, "%s", orDefault(res.ErrInfo, "natpmp: add failed"))
	}
	c.routerCache.Add(res.RouterIP)

	m := &Mapping{
		InternalIP:        res.InternalIP,
		InternalPort:      internalPort,
		ExternalPort:      int(res.ExternalPort),
		RequestedLifetime: lifetime,
		ActualLifetime:    res.ActualLifetime,
		Protocol:          NatPmp,
	}

	deleter := func(ctx context.Context) error {
		delRes := c.natpmpEngine.Delete(ctx, localIPs, c.routerCache.List(), c.cfg.RouterCandidates, uint16(internalPort))
		if !delRes.Success {
			return fmt.Errorf("natpmp: delete failed: %s", delRes.ErrInfo)
		}
		return nil
	}

	c.commit(m, deleter)
	return m
}

// AddMappingPcp requests a PCP mapping directly, bypassing protocol
// selection.
func (c *Controller) AddMappingPcp(ctx context.Context, internalPort, externalPort int, lifetime uint32) *Mapping {
	if c.isClosed() {
		return failure(Pcp, "portmap: controller closed")
	}
	localIPs, err := c.privateIPs(ctx)
	if err != nil {
		return failure(Pcp, "getPrivateIps failed")
	}

	nonce := randomNonce()
	res := c.pcpEngine.Add(ctx, localIPs, c.routerCache.List(), c.cfg.RouterCandidates, uint16(internalPort), uint16(externalPort), lifetime, pcp.Nonce(nonce))
	if !res.Success {
		return failure(Pcp, "%s", orDefault(res.ErrInfo, "pcp: add failed"))
	}
	c.routerCache.Add(res.RouterIP)

	usedNonce := Nonce(res.Nonce)
	m := &Mapping{
		InternalIP:        res.InternalIP,
		InternalPort:      internalPort,
		ExternalIP:        res.ExternalIP,
		ExternalPort:      int(res.ExternalPort),
		RequestedLifetime: lifetime,
		ActualLifetime:    res.ActualLifetime,
		Protocol:          Pcp,
		Nonce:             &usedNonce,
	}

	deleter := func(ctx context.Context) error {
		delRes := c.pcpEngine.Delete(ctx, localIPs, c.routerCache.List(), c.cfg.RouterCandidates, uint16(internalPort), pcp.Nonce(usedNonce))
		if !delRes.Success {
			return fmt.Errorf("pcp: delete failed: %s", delRes.ErrInfo)
		}
		return nil
	}

	c.commit(m, deleter)
	return m
}

// AddMappingUpnp requests a UPnP mapping directly, bypassing protocol
// selection. It reuses a cached controlURL from a prior probe when one
// exists, skipping SSDP discovery entirely.
func (c *Controller) AddMappingUpnp(ctx context.Context, internalPort, externalPort int, lifetime uint32) *Mapping {
	if c.isClosed() {
		return failure(Upnp, "portmap: controller closed")
	}
	localIPs, err := c.privateIPs(ctx)
	if err != nil {
		return failure(Upnp, "getPrivateIps failed")
	}

	controlURL := c.supportCache.controlURL()
	res := c.upnpEngine.Add(ctx, localIPs, controlURL, uint16(internalPort), uint16(externalPort), "portmap", lifetime)
	if !res.Success {
		return failure(Upnp, "%s", orDefault(res.ErrInfo, "upnp: add failed"))
	}

	m := &Mapping{
		InternalIP:        res.InternalIP,
		InternalPort:      internalPort,
		ExternalPort:      int(res.ExternalPort),
		RequestedLifetime: lifetime,
		ActualLifetime:    lifetime, // UPnP never grants a shorter lease than requested; 0 means "forever" and is never refreshed
		Protocol:          Upnp,
		ControlURL:        res.ControlURL,
	}

	deleter := func(ctx context.Context) error {
		delRes := c.upnpEngine.Delete(ctx, res.ControlURL, uint16(externalPort))
		if !delRes.Success {
			return fmt.Errorf("upnp: delete failed: %s", delRes.ErrInfo)
		}
		return nil
	}

	c.commit(m, deleter)
	return m
}

// commit inserts m into the active table keyed by its external port,
// cancelling and replacing whatever was previously there (spec.md §5: a
// racing overwrite cancels the prior entry's timer before replacing it),
// and arms whichever timer m's lifetime calls for.
func (c *Controller) commit(m *Mapping, deleter func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.active[m.ExternalPort]; ok {
		old.timer.Cancel()
	}

	var timer *RefreshHandle
	switch {
	case m.Protocol == Upnp:
		// UPnP never refreshes: a requested lifetime of 0 is infinity.
	case m.needsRefresh():
		timer = c.scheduleRefresh(m.Protocol, m.InternalPort, m.ExternalPort, m.RequestedLifetime, m.ActualLifetime)
		m.RefreshHandle = timer
	default:
		timer = c.scheduleExpiry(m.ExternalPort, m.ActualLifetime)
	}

	c.active[m.ExternalPort] = &mappingEntry{mapping: m, deleter: deleter, timer: timer}
}

// scheduleRefresh arms a one-shot timer that re-invokes add_mapping_<proto>
// for the remaining lifetime Δ = requested − actual, or at the 24h default
// pace when the caller asked for the router's own choice (requested=0).
func (c *Controller) scheduleRefresh(protocol Protocol, internalPort, externalPort int, requested, actual uint32) *RefreshHandle {
	var wait time.Duration
	var nextLifetime uint32
	if requested == 0 {
		wait = c.cfg.RefreshLifetimeUnspecified
		nextLifetime = 0
	} else {
		wait = time.Duration(actual) * time.Second
		nextLifetime = requested - actual
	}

	timer := c.cfg.Clock.AfterFunc(wait, func() {
		c.reinvokeAdd(protocol, internalPort, externalPort, nextLifetime)
	})
	return newRefreshHandle(func() { timer.Stop() })
}

// scheduleExpiry arms a one-shot timer that removes the entry without
// renegotiation, used when actual_lifetime already satisfies what was
// requested. It is never surfaced on the public Mapping (the data-model
// invariant reserves Mapping.RefreshHandle for the refresh case), but the
// controller still needs to track and cancel it.
func (c *Controller) scheduleExpiry(externalPort int, actual uint32) *RefreshHandle {
	wait := time.Duration(actual) * time.Second
	timer := c.cfg.Clock.AfterFunc(wait, func() {
		c.mu.Lock()
		delete(c.active, externalPort)
		c.mu.Unlock()
	})
	return newRefreshHandle(func() { timer.Stop() })
}

func (c *Controller) reinvokeAdd(protocol Protocol, internalPort, externalPort int, lifetime uint32) {
	ctx := context.Background()
	switch protocol {
	case NatPmp:
		c.AddMappingPmp(ctx, internalPort, externalPort, lifetime)
	case Pcp:
		c.AddMappingPcp(ctx, internalPort, externalPort, lifetime)
	}
}

// DeleteMapping looks up externalPort's Mapping, invokes its stored
// deleter, and on success removes it from the active table. An unknown
// port returns false without error.
//
// The timer is cancelled before the wire delete is issued, not after: a
// refresh racing the delete must never win and re-commit a fresh entry
// for this external port out from under the stale lookup held here.
func (c *Controller) DeleteMapping(ctx context.Context, externalPort int) bool {
	c.mu.Lock()
	entry, ok := c.active[externalPort]
	c.mu.Unlock()
	if !ok {
		return false
	}
	entry.timer.Cancel()

	if err := entry.deleter(ctx); err != nil {
		log.Debug("delete failed", "externalPort", externalPort, "err", err)
		return false
	}

	c.mu.Lock()
	delete(c.active, externalPort)
	c.mu.Unlock()
	return true
}

// GetActiveMappings returns a snapshot of every currently active mapping,
// keyed by external port.
func (c *Controller) GetActiveMappings() map[int]Mapping {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]Mapping, len(c.active))
	for port, entry := range c.active {
		out[port] = *entry.mapping
	}
	return out
}

// GetRouterIPCache returns the router IPs known to have answered a prior
// probe, in first-success order.
func (c *Controller) GetRouterIPCache() []string {
	return c.routerCache.List()
}

// GetProtocolSupportCache returns the outcome of the last
// probe_protocol_support call, or all-nil fields if none has run.
func (c *Controller) GetProtocolSupportCache() Snapshot {
	return c.supportCache.snapshot()
}

// GetUpnpControlURL returns the cached UPnP controlURL, or "" if UPnP has
// never been discovered.
func (c *Controller) GetUpnpControlURL() string {
	return c.supportCache.controlURL()
}

// GetPrivateIPs returns this host's candidate private IPv4 addresses.
func (c *Controller) GetPrivateIPs(ctx context.Context) ([]string, error) {
	return c.privateIPs(ctx)
}

// Close deletes every active mapping concurrently and cancels every
// outstanding timer, completing once all deletions have settled. It is
// idempotent: a second call returns nil immediately.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	entries := make([]*mappingEntry, 0, len(c.active))
	for _, entry := range c.active {
		entries = append(entries, entry)
	}
	c.active = make(map[int]*mappingEntry)
	c.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, entry := range entries {
		entry := entry
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry.timer.Cancel()
			if err := entry.deleter(ctx); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errs
}
