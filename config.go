package portmap

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/go-portmap/portmap/transport"
)

// LocalAddressProvider discovers this host's candidate private IPv4
// addresses. spec.md treats ICE-candidate harvesting as an external
// collaborator; Config.LocalAddresses lets an embedder plug in whatever
// discovery mechanism its host environment offers (ICE, netlink, …).
// DefaultLocalAddressProvider, below, is a plain net.Interfaces scan.
type LocalAddressProvider interface {
	LocalIPv4s(ctx context.Context) ([]string, error)
}

// Config controls the timeouts, probe ports, router candidate list and
// clock used by a Controller and its engines. New starts from
// DefaultConfig and applies each Option on top of it.
type Config struct {
	// Transport is the UDP/HTTP collaborator every engine dispatches
	// through. Required.
	Transport transport.Transport

	// LocalAddresses discovers this host's private IPv4 addresses.
	// Required.
	LocalAddresses LocalAddressProvider

	// NatPmpTimeout / PcpTimeout are the per-attempt UDP race timeouts
	// for each wave (spec.md §4.5/§4.6: 2000ms).
	NatPmpTimeout time.Duration
	PcpTimeout    time.Duration

	// SSDPTimeout is Phase A's collection budget (spec.md §4.7: 3s).
	SSDPTimeout time.Duration
	// UPnPHTTPTimeout is Phase B/C's per-request budget (spec.md §4.7: 1s).
	UPnPHTTPTimeout time.Duration

	// RouterCandidates overrides DefaultRouterCandidates, mainly for tests.
	RouterCandidates []string

	// RefreshLifetimeUnspecified is the pacing used when a caller asks
	// for lifetime 0 ("router's choice"): spec.md §3/§4.8 fixes this at
	// 24h.
	RefreshLifetimeUnspecified time.Duration

	// Clock backs every scheduled refresh/expiry timer, so tests can
	// fast-forward virtual time instead of sleeping real seconds.
	Clock clock.Clock
}

// DefaultConfig returns the spec-mandated timeouts with a real Transport,
// a net.Interfaces-based LocalAddressProvider and a real Clock. Transport
// and LocalAddresses still need not be overridden for normal use; tests
// typically replace both with fakes via Option.
func DefaultConfig() Config {
	return Config{
		Transport:                  transport.NewNet(),
		LocalAddresses:             DefaultLocalAddressProvider{},
		NatPmpTimeout:              2000 * time.Millisecond,
		PcpTimeout:                 2000 * time.Millisecond,
		SSDPTimeout:                3 * time.Second,
		UPnPHTTPTimeout:            1 * time.Second,
		RouterCandidates:           DefaultRouterCandidates,
		RefreshLifetimeUnspecified: 24 * time.Hour,
		Clock:                      clock.New(),
	}
}

// Option mutates a Config under construction; used by New.
type Option func(*Config)

// WithTransport overrides the Transport collaborator.
func WithTransport(t transport.Transport) Option {
	return func(c *Config) { c.Transport = t }
}

// WithLocalAddressProvider overrides local IPv4 discovery.
func WithLocalAddressProvider(p LocalAddressProvider) Option {
	return func(c *Config) { c.LocalAddresses = p }
}

// WithClock overrides the scheduling clock, typically with
// clock.NewMock() in tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Config) { c.Clock = clk }
}

// WithTimeouts overrides the NAT-PMP/PCP per-attempt timeouts.
func WithTimeouts(natPmp, pcp time.Duration) Option {
	return func(c *Config) {
		c.NatPmpTimeout = natPmp
		c.PcpTimeout = pcp
	}
}

// WithRouterCandidates overrides the static default-gateway candidate list.
func WithRouterCandidates(candidates []string) Option {
	return func(c *Config) { c.RouterCandidates = candidates }
}

func applyOptions(opts []Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
