package wire

import (
	"encoding/binary"
	"fmt"
	"net"
)

const (
	// PCPRequestLen is the fixed size of a PCP MAP request.
	PCPRequestLen = 60
	// PCPResponseMinLen is the minimum size of a PCP MAP response this
	// package accepts.
	PCPResponseMinLen = 60

	pcpVersion  = 2
	pcpOpMap    = 1 // R bit (0x80) clear on request, set on reply
	pcpOpReply  = pcpOpMap | 0x80
	pcpProtoUDP = 17
)

// Nonce is the 96-bit PCP mapping nonce, three 32-bit words per RFC 6887.
type Nonce [3]uint32

// PCPResponse is the parsed form of a PCP MAP reply.
type PCPResponse struct {
	ResultCode   uint8
	Lifetime     uint32
	ExternalPort uint16
	ExternalIP   net.IP
	NonceEcho    Nonce
}

// BuildPCPMapRequest composes a 60-byte PCP MAP request.
//
// Layout (big-endian), offsets per RFC 6887 §11 as pinned by spec §4.1:
//
//	0      version = 2
//	1      R(0)|opcode(MAP=1)
//	2-3    reserved
//	4-7    requested lifetime
//	8-23   client IP, IPv4-mapped IPv6 (::ffff:a.b.c.d at 20..23)
//	24-35  mapping nonce, three big-endian u32 words
//	36     protocol number (17 = UDP)
//	37-39  reserved
//	40-41  internal port
//	42-43  suggested external port
//	44-59  suggested external IP, IPv4-mapped IPv6 (zero here; 54-55 = 0xffff)
func BuildPCPMapRequest(clientIP net.IP, internalPort, suggestedExternalPort uint16, lifetime uint32, nonce Nonce) ([PCPRequestLen]byte, error) {
	var buf [PCPRequestLen]byte

	buf[0] = pcpVersion
	buf[1] = pcpOpMap
	// 2-3 reserved = 0
	binary.BigEndian.PutUint32(buf[4:8], lifetime)

	if err := ipv4MappedIPv6(buf[8:24], clientIP); err != nil {
		return buf, fmt.Errorf("wire: pcp client address: %w", err)
	}

	binary.BigEndian.PutUint32(buf[24:28], nonce[0])
	binary.BigEndian.PutUint32(buf[28:32], nonce[1])
	binary.BigEndian.PutUint32(buf[32:36], nonce[2])

	buf[36] = pcpProtoUDP
	// 37-39 reserved = 0

	binary.BigEndian.PutUint16(buf[40:42], internalPort)
	binary.BigEndian.PutUint16(buf[42:44], suggestedExternalPort)

	// suggested external address left unspecified: zero prefix,
	// 0xffff IPv4-mapped marker at 54..55, zero IPv4 octets.
	buf[54] = 0xff
	buf[55] = 0xff

	return buf, nil
}

// ParsePCPResponse parses a PCP MAP response.
//
// Layout: 3 result code; 4-7 granted lifetime; 42-43 mapped external port;
// 56-59 external IPv4 (low 4 bytes of the IPv4-mapped IPv6 external
// address field); 24-35 nonce echo.
func ParsePCPResponse(data []byte) (PCPResponse, error) {
	if len(data) < PCPResponseMinLen {
		return PCPResponse{}, fmt.Errorf("wire: pcp response too short (%d bytes)", len(data))
	}
	if data[0] != pcpVersion {
		return PCPResponse{}, fmt.Errorf("wire: pcp unexpected version %d", data[0])
	}

	resp := PCPResponse{
		ResultCode:   data[3],
		Lifetime:     binary.BigEndian.Uint32(data[4:8]),
		ExternalPort: binary.BigEndian.Uint16(data[42:44]),
		ExternalIP:   net.IPv4(data[56], data[57], data[58], data[59]),
		NonceEcho: Nonce{
			binary.BigEndian.Uint32(data[24:28]),
			binary.BigEndian.Uint32(data[28:32]),
			binary.BigEndian.Uint32(data[32:36]),
		},
	}
	return resp, nil
}

// PCP result codes this module inspects directly; the remainder are
// surfaced to the caller via err_info but not special-cased.
const (
	PCPResultSuccess     uint8 = 0
	PCPResultNoResources uint8 = 8
)
