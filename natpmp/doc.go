// Package natpmp implements the NAT-PMP (RFC 6886) wire engine: it builds
// the 12-byte MAP request, races it in waves across candidate router
// IPs, and parses the first usable reply. It holds no mutable session
// state of its own — the Mapping Controller owns the active-mapping
// table, router-IP cache and refresh scheduling; this package is pure
// with respect to all of that, as spec.md §5 requires of every engine.
package natpmp
