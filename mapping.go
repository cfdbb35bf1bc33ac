// Package portmap establishes and maintains inbound port mappings on
// consumer NATs over NAT-PMP (RFC 6886), PCP (RFC 6887) and UPnP
// IGD:WANIPConnection, unified behind one lifecycle: add, refresh,
// delete, enumerate, probe. See Controller for the public entry point.
package portmap

import (
	"fmt"

	"github.com/google/uuid"
)

// Protocol tags which wire protocol produced (or will delete) a Mapping.
type Protocol int

const (
	NatPmp Protocol = iota
	Pcp
	Upnp
)

func (p Protocol) String() string {
	switch p {
	case NatPmp:
		return "natpmp"
	case Pcp:
		return "pcp"
	case Upnp:
		return "upnp"
	default:
		return "unknown"
	}
}

// FailedPort is the sentinel ExternalPort carried by a failure Mapping.
// A Mapping is in the active table if and only if ExternalPort != FailedPort.
const FailedPort = -1

// Nonce is the 96-bit PCP mapping nonce (three 32-bit words). It is set
// if and only if Protocol == Pcp.
type Nonce [3]uint32

// RefreshHandle is the opaque, idempotent cancellation token for a
// Mapping's scheduled refresh or expiry timer. The zero value is not
// armed; Cancel on it is a no-op.
type RefreshHandle struct {
	id     uuid.UUID
	cancel func()
}

func newRefreshHandle(cancel func()) *RefreshHandle {
	return &RefreshHandle{id: uuid.New(), cancel: cancel}
}

// Cancel stops the underlying timer. Safe to call more than once and safe
// to call on a nil handle.
func (h *RefreshHandle) Cancel() {
	if h == nil || h.cancel == nil {
		return
	}
	h.cancel()
}

// ID returns the handle's correlation identifier, used only for logging.
func (h *RefreshHandle) ID() string {
	if h == nil {
		return ""
	}
	return h.id.String()
}

// Mapping describes one active (or failed) port mapping.
type Mapping struct {
	InternalIP string // set after success; may be absent on NAT-PMP failure
	InternalPort int

	ExternalIP   string // PCP only; unset for NAT-PMP/UPnP
	ExternalPort int    // FailedPort denotes failure

	RequestedLifetime uint32 // seconds
	ActualLifetime    uint32 // seconds, as granted by the router

	Protocol Protocol
	Nonce    *Nonce // set iff Protocol == Pcp

	RefreshHandle *RefreshHandle // set iff the mapping is being refreshed
	ControlURL    string         // UPnP only: control endpoint used to create it

	ErrInfo string // free-form last error, set on every failure path
}

// Failed reports whether m represents a failed mapping attempt.
func (m *Mapping) Failed() bool {
	return m == nil || m.ExternalPort == FailedPort
}

// failure builds a failure Mapping for protocol, carrying a descriptive
// ErrInfo (spec.md §9's open question is resolved in favor of always
// enriching the error, never leaving it blank).
func failure(protocol Protocol, format string, args ...any) *Mapping {
	return &Mapping{
		Protocol:     protocol,
		ExternalPort: FailedPort,
		ErrInfo:      fmt.Sprintf(format, args...),
	}
}

// needsRefresh reports whether m should have a refresh (not a pure
// expiry-delete) armed, per spec.md §3/§4.8:
//
//	requested == 0                      -> refresh at 24h
//	requested > actual && port != fail  -> refresh at actual, for (requested-actual)
//	otherwise, if port != fail           -> pure expiry-delete at actual
func (m *Mapping) needsRefresh() bool {
	if m.Failed() {
		return false
	}
	return m.RequestedLifetime == 0 || m.RequestedLifetime > m.ActualLifetime
}
