// Package pcp implements the Port Control Protocol (RFC 6887) wire
// engine. It shares NAT-PMP's wave-racing strategy but additionally
// encodes a mapping nonce and a per-target source address into every
// request, since PCP requires the claimed client address to match the
// address the gateway actually observed the packet arrive from.
package pcp
