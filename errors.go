package portmap

import "errors"

// Sentinel errors surfaced by the public API. Protocol engines never
// propagate errors upward (spec.md §7): they encode failure in the
// returned Mapping's ExternalPort/ErrInfo instead. These sentinels are
// reserved for the handful of operations with a genuine boolean/error
// signature (GetPrivateIPs).
var (
	// ErrNoLocalAddress is returned by a LocalAddressProvider when no
	// usable local IPv4 address could be discovered.
	ErrNoLocalAddress = errors.New("portmap: getPrivateIps failed")

	// ErrClosed carries the message Controller operations report after
	// Close: the AddMapping* calls return a failure Mapping whose ErrInfo
	// is this text. No Controller method returns ErrClosed itself.
	ErrClosed = errors.New("portmap: controller closed")
)
