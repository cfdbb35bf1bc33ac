// Package wire implements the fixed-layout binary frames of NAT-PMP
// (RFC 6886) and PCP (RFC 6887). It performs no network I/O and no
// allocation beyond the returned buffer: every function here is pure and
// safe to fuzz or unit test in isolation from sockets.
package wire

import (
	"encoding/binary"
	"fmt"
	"net"
)

const (
	// NATPMPRequestLen is the fixed size of a NAT-PMP MAP request.
	NATPMPRequestLen = 12
	// NATPMPResponseMinLen is the minimum size of a NAT-PMP MAP response
	// this package accepts; shorter datagrams are a parse failure.
	NATPMPResponseMinLen = 16

	natpmpVersion    = 0
	natpmpOpMapUDP   = 1
	natpmpOpMapReply = natpmpOpMapUDP | 0x80
)

// NATPMPResponse is the parsed form of a NAT-PMP MAP reply.
type NATPMPResponse struct {
	Op           byte
	ResultCode   uint16
	InternalPort uint16
	ExternalPort uint16
	Lifetime     uint32
}

// BuildNATPMPRequest composes a 12-byte NAT-PMP UDP MAP request.
//
// Layout (big-endian): 0 version=0; 1 op=1 (UDP MAP); 2-3 reserved=0;
// 4-5 internal port; 6-7 external port; 8-11 requested lifetime.
func BuildNATPMPRequest(internalPort, externalPort uint16, lifetime uint32) [NATPMPRequestLen]byte {
	var buf [NATPMPRequestLen]byte
	buf[0] = natpmpVersion
	buf[1] = natpmpOpMapUDP
	// bytes 2-3 reserved, already zero
	binary.BigEndian.PutUint16(buf[4:6], internalPort)
	binary.BigEndian.PutUint16(buf[6:8], externalPort)
	binary.BigEndian.PutUint32(buf[8:12], lifetime)
	return buf
}

// ParseNATPMPResponse parses a NAT-PMP MAP response.
//
// Layout: 0 version; 1 op (request op | 0x80); 2-3 result code;
// 4-7 seconds since epoch (ignored); 8-9 internal port;
// 10-11 mapped external port; 12-15 granted lifetime.
func ParseNATPMPResponse(data []byte) (NATPMPResponse, error) {
	if len(data) < NATPMPResponseMinLen {
		return NATPMPResponse{}, fmt.Errorf("wire: natpmp response too short (%d bytes)", len(data))
	}
	if data[0] != natpmpVersion {
		return NATPMPResponse{}, fmt.Errorf("wire: natpmp unexpected version %d", data[0])
	}
	return NATPMPResponse{
		Op:           data[1],
		ResultCode:   binary.BigEndian.Uint16(data[2:4]),
		InternalPort: binary.BigEndian.Uint16(data[8:10]),
		ExternalPort: binary.BigEndian.Uint16(data[10:12]),
		Lifetime:     binary.BigEndian.Uint32(data[12:16]),
	}, nil
}

// ipv4MappedIPv6 writes the IPv4-mapped IPv6 form of ip (::ffff:a.b.c.d)
// into dst[0:16]. ip must be a 4-byte (or 4-in-16) IPv4 address.
func ipv4MappedIPv6(dst []byte, ip net.IP) error {
	v4 := ip.To4()
	if v4 == nil {
		return fmt.Errorf("wire: %s is not an IPv4 address", ip)
	}
	dst[10] = 0xff
	dst[11] = 0xff
	copy(dst[12:16], v4)
	return nil
}
