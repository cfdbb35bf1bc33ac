package wire

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildNATPMPRequest(t *testing.T) {
	buf := BuildNATPMPRequest(4000, 5000, 120)
	assert.Equal(t, byte(0), buf[0], "version")
	assert.Equal(t, byte(1), buf[1], "op")
	assert.Equal(t, []byte{0, 0}, buf[2:4], "reserved")
	assert.Equal(t, uint16(4000), be16(buf[4:6]))
	assert.Equal(t, uint16(5000), be16(buf[6:8]))
	assert.Equal(t, uint32(120), be32(buf[8:12]))
}

func TestParseNATPMPResponse_S1(t *testing.T) {
	// Scenario S1: external port 50000 (0xC350), lifetime 120 (0x78).
	resp := make([]byte, 16)
	resp[1] = 0x81
	resp[10], resp[11] = 0xC3, 0x50
	resp[12], resp[13], resp[14], resp[15] = 0, 0, 0, 0x78

	got, err := ParseNATPMPResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), got.ResultCode)
	assert.Equal(t, uint16(50000), got.ExternalPort)
	assert.Equal(t, uint32(120), got.Lifetime)
}

func TestParseNATPMPResponse_TooShort(t *testing.T) {
	_, err := ParseNATPMPResponse(make([]byte, 4))
	assert.Error(t, err)
}

func TestBuildPCPMapRequest_RoundTripNonce(t *testing.T) {
	nonce := Nonce{0xA, 0xB, 0xC}
	buf, err := BuildPCPMapRequest(net.ParseIP("192.168.1.50"), 4000, 0, 7200, nonce)
	require.NoError(t, err)

	assert.Equal(t, byte(2), buf[0], "version")
	assert.Equal(t, byte(1), buf[1], "opcode MAP, R clear")
	assert.Equal(t, uint32(7200), be32(buf[4:8]))
	assert.Equal(t, byte(0xff), buf[18])
	assert.Equal(t, byte(0xff), buf[19])
	assert.Equal(t, []byte{192, 168, 1, 50}, buf[20:24])
	assert.Equal(t, uint32(0xA), be32(buf[24:28]))
	assert.Equal(t, uint32(0xB), be32(buf[28:32]))
	assert.Equal(t, uint32(0xC), be32(buf[32:36]))
	assert.Equal(t, byte(17), buf[36], "UDP protocol number")
	assert.Equal(t, uint16(4000), be16(buf[40:42]))
}

func TestBuildPCPMapRequest_RejectsIPv6(t *testing.T) {
	_, err := BuildPCPMapRequest(net.ParseIP("::1"), 1, 1, 1, Nonce{})
	assert.Error(t, err)
}

func TestParsePCPResponse_S2(t *testing.T) {
	// Scenario S2: result 0, lifetime 3600, ext_port 50000, ext_ipv4 203.0.113.7.
	resp := make([]byte, 60)
	resp[0] = 2
	resp[3] = 0
	be32put(resp[4:8], 3600)
	be16put(resp[42:44], 50000)
	copy(resp[56:60], []byte{203, 0, 113, 7})
	be32put(resp[24:28], 0xA)
	be32put(resp[28:32], 0xB)
	be32put(resp[32:36], 0xC)

	got, err := ParsePCPResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, PCPResultSuccess, got.ResultCode)
	assert.Equal(t, uint32(3600), got.Lifetime)
	assert.Equal(t, uint16(50000), got.ExternalPort)
	assert.Equal(t, "203.0.113.7", got.ExternalIP.String())
	assert.Equal(t, Nonce{0xA, 0xB, 0xC}, got.NonceEcho)
}

func TestParsePCPResponse_NoResourcesIsNotSuccess(t *testing.T) {
	resp := make([]byte, 60)
	resp[0] = 2
	resp[3] = PCPResultNoResources
	got, err := ParsePCPResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, PCPResultNoResources, got.ResultCode)
	assert.NotEqual(t, PCPResultSuccess, got.ResultCode)
}

func be16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
func be16put(b []byte, v uint16) { b[0] = byte(v >> 8); b[1] = byte(v) }
func be32put(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
