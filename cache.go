package portmap

import "sync"

// Probe ports: fixed, non-overlapping UDP ports used by probeProtocolSupport
// so that a blind probe on one protocol can never be answered by a router
// socket actually bound for another protocol.
const (
	NatPmpProbePort = 55555
	PcpProbePort    = 55556
	UpnpProbePort   = 55557
)

// DefaultRouterCandidates are popular default-gateway addresses. Those on
// a local /24 join the first wave alongside the RouterIPCache; the rest
// form a blind second-wave fan-out, tried when the first wave gets no
// usable reply.
var DefaultRouterCandidates = []string{
	"192.168.0.1", "192.168.1.1", "192.168.2.1", "192.168.1.254",
	"192.168.0.254", "192.168.10.1", "192.168.100.1", "192.168.123.254",
	"10.0.0.1", "10.0.0.138", "10.0.1.1", "10.1.1.1",
	"172.16.0.1", "172.16.1.1",
	"192.168.8.1", "192.168.15.1", "192.168.20.1", "192.168.50.1",
	"192.168.3.1", "192.168.4.1",
}

// RouterIPCache is an ordered, duplicate-free set of gateway IPs known to
// have answered a prior probe, insertion-ordered by first success. It
// deliberately does not reorder on repeated hits: an LRU-style cache
// would promote-on-access and violate that ordering guarantee, so this is
// a small hand-rolled structure rather than a borrowed cache (see
// DESIGN.md).
type RouterIPCache struct {
	mu      sync.Mutex
	ordered []string
	seen    map[string]bool
}

// NewRouterIPCache returns an empty cache.
func NewRouterIPCache() *RouterIPCache {
	return &RouterIPCache{seen: make(map[string]bool)}
}

// Add inserts ip if absent. Returns true if it was newly added.
func (c *RouterIPCache) Add(ip string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[ip] {
		return false
	}
	c.seen[ip] = true
	c.ordered = append(c.ordered, ip)
	return true
}

// List returns a snapshot of the cache in insertion order.
func (c *RouterIPCache) List() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// ProtocolSupportCache records the outcome of probeProtocolSupport. All
// fields are nil/empty until probed.
type ProtocolSupportCache struct {
	mu              sync.RWMutex
	natPmp          *bool
	pcp             *bool
	upnp            *bool
	upnpControlURL  string
}

// Snapshot is a read-only copy of the cache's current values.
type Snapshot struct {
	NatPmp *bool
	Pcp    *bool
	Upnp   *bool
}

func (c *ProtocolSupportCache) set(natPmp, pcp, upnp bool, upnpControlURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.natPmp = &natPmp
	c.pcp = &pcp
	c.upnp = &upnp
	c.upnpControlURL = upnpControlURL
}

// setNatPmp/setPcp/setUpnp update a single protocol's support bit,
// leaving the others as whatever probe_protocol_support last observed
// (or nil if never probed). Used by the single-protocol probe_*_support
// operations, which must not clobber siblings they didn't test.
func (c *ProtocolSupportCache) setNatPmp(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.natPmp = &v
}

func (c *ProtocolSupportCache) setPcp(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pcp = &v
}

func (c *ProtocolSupportCache) setUpnp(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upnp = &v
}

func (c *ProtocolSupportCache) setControlURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upnpControlURL = url
}

func (c *ProtocolSupportCache) snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{NatPmp: c.natPmp, Pcp: c.pcp, Upnp: c.upnp}
}

func (c *ProtocolSupportCache) controlURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.upnpControlURL
}

// unset reports whether the cache has never been filled by a probe.
func (c *ProtocolSupportCache) unset() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.natPmp == nil && c.pcp == nil && c.upnp == nil
}
