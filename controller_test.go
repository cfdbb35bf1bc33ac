package portmap

import (
	"context"
	"encoding/binary"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-portmap/portmap/transport"
)

type fixedLocalAddrs struct{ ips []string }

func (f fixedLocalAddrs) LocalIPv4s(ctx context.Context) ([]string, error) {
	return f.ips, nil
}

func natpmpReplyBytes(resultCode uint8, externalPort uint16, lifetime uint32) []byte {
	buf := make([]byte, 16)
	buf[0] = 0
	buf[1] = 0x81
	binary.BigEndian.PutUint16(buf[2:4], uint16(resultCode))
	binary.BigEndian.PutUint16(buf[10:12], externalPort)
	binary.BigEndian.PutUint32(buf[12:16], lifetime)
	return buf
}

func pcpReplyBytes(resultCode uint8, lifetime uint32, externalPort uint16, externalIP [4]byte, nonce [3]uint32) []byte {
	buf := make([]byte, 60)
	buf[0] = 2
	buf[3] = resultCode
	binary.BigEndian.PutUint32(buf[4:8], lifetime)
	binary.BigEndian.PutUint16(buf[42:44], externalPort)
	copy(buf[56:60], externalIP[:])
	binary.BigEndian.PutUint32(buf[24:28], nonce[0])
	binary.BigEndian.PutUint32(buf[28:32], nonce[1])
	binary.BigEndian.PutUint32(buf[32:36], nonce[2])
	return buf
}

func newTestController(mock *transport.Mock, mockClock clock.Clock) *Controller {
	return New(
		WithTransport(mock),
		WithLocalAddressProvider(fixedLocalAddrs{ips: []string{"192.168.1.50"}}),
		WithClock(mockClock),
		WithTimeouts(200*time.Millisecond, 200*time.Millisecond),
		WithRouterCandidates([]string{"192.168.1.1"}),
	)
}

func TestAddMapping_S1_NatPmpSuccessNoRefresh(t *testing.T) {
	mock := transport.NewMock()
	mock.OnUDP("192.168.1.1", 5351, func(data []byte, ip string, port int) ([]byte, bool) {
		return natpmpReplyBytes(0, 50000, 120), true
	})

	c := newTestController(mock, clock.NewMock())
	m := c.AddMappingPmp(context.Background(), 4000, 50000, 120)

	require.False(t, m.Failed())
	assert.Equal(t, 50000, m.ExternalPort)
	assert.Equal(t, uint32(120), m.ActualLifetime)
	assert.Equal(t, "192.168.1.50", m.InternalIP)
	assert.Nil(t, m.RefreshHandle, "actual==requested must arm a pure expiry, not a public refresh handle")

	active := c.GetActiveMappings()
	got, ok := active[50000]
	require.True(t, ok)
	assert.Equal(t, NatPmp, got.Protocol)
	assert.Contains(t, c.GetRouterIPCache(), "192.168.1.1")
}

func TestAddMapping_S2_PcpRefreshReinvokesAtActualLifetime(t *testing.T) {
	mock := transport.NewMock()
	nonce := Nonce{1, 2, 3}
	var calls int32
	mock.OnUDP("192.168.1.1", 5351, func(data []byte, ip string, port int) ([]byte, bool) {
		atomic.AddInt32(&calls, 1)
		return pcpReplyBytes(0, 3600, 50000, [4]byte{203, 0, 113, 7}, nonce), true
	})

	mockClock := clock.NewMock()
	c := newTestController(mock, mockClock)
	m := c.AddMappingPcp(context.Background(), 4000, 50000, 7200)

	require.False(t, m.Failed())
	assert.Equal(t, uint32(3600), m.ActualLifetime)
	assert.Equal(t, "203.0.113.7", m.ExternalIP)
	require.NotNil(t, m.RefreshHandle, "requested > actual must arm a refresh")

	firstCalls := atomic.LoadInt32(&calls)
	mockClock.Add(3600 * time.Second)
	// give the fired timer's goroutine a moment to reach the mock transport
	time.Sleep(50 * time.Millisecond)

	assert.Greater(t, atomic.LoadInt32(&calls), firstCalls, "refresh must re-invoke add_mapping_pcp")
}

func TestAddMapping_S4_FallbackFromNatPmpToPcp(t *testing.T) {
	mock := transport.NewMock()
	// NAT-PMP requests get no reply -> time out.
	nonce := Nonce{0, 0, 0}
	mock.OnUDP("192.168.1.1", 5351, func(data []byte, ip string, port int) ([]byte, bool) {
		// 12-byte requests are NAT-PMP, 60-byte are PCP; only answer PCP.
		if len(data) != 60 {
			return nil, false
		}
		return pcpReplyBytes(0, 3600, 50000, [4]byte{203, 0, 113, 7}, nonce), true
	})

	c := newTestController(mock, clock.NewMock())
	m := c.AddMapping(context.Background(), 4000, 50000, 3600)

	require.False(t, m.Failed())
	assert.Equal(t, Pcp, m.Protocol)
	assert.Contains(t, c.GetRouterIPCache(), "192.168.1.1")
}

func TestDeleteMapping_UnknownPortReturnsFalse(t *testing.T) {
	mock := transport.NewMock()
	c := newTestController(mock, clock.NewMock())
	assert.False(t, c.DeleteMapping(context.Background(), 12345))
}

func TestDeleteMapping_Success(t *testing.T) {
	mock := transport.NewMock()
	mock.OnUDP("192.168.1.1", 5351, func(data []byte, ip string, port int) ([]byte, bool) {
		return natpmpReplyBytes(0, 50000, 120), true
	})

	c := newTestController(mock, clock.NewMock())
	m := c.AddMappingPmp(context.Background(), 4000, 50000, 120)
	require.False(t, m.Failed())

	require.True(t, c.DeleteMapping(context.Background(), 50000))
	_, ok := c.GetActiveMappings()[50000]
	assert.False(t, ok)

	assert.False(t, c.DeleteMapping(context.Background(), 50000), "second delete of the same port must return false")
}

func TestClose_S5_DeletesAllAndIsIdempotent(t *testing.T) {
	mock := transport.NewMock()
	mock.OnUDP("192.168.1.1", 5351, func(data []byte, ip string, port int) ([]byte, bool) {
		return natpmpReplyBytes(0, 50000, 120), true
	})
	mock.OnHTTPPost("http://192.168.1.1:1234/ctl", 200, nil, nil)

	c := newTestController(mock, clock.NewMock())
	m1 := c.AddMappingPmp(context.Background(), 4000, 50000, 120)
	require.False(t, m1.Failed())
	m2 := c.AddMappingUpnp(context.Background(), 4001, 50001, 0)
	_ = m2 // UPnP discovery has no fixture here and will fail; exercise Close regardless

	err := c.Close(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, c.GetActiveMappings())

	assert.NoError(t, c.Close(context.Background()), "second close must be a no-op")
}

func TestProbeProtocolSupport_S3UpnpConflictMeansSupported(t *testing.T) {
	mock := transport.NewMock()
	// NAT-PMP and PCP: no responders, both unsupported.
	mock.OnUDP(ssdpMulticastAddr, 1900, func(data []byte, ip string, port int) ([]byte, bool) {
		return []byte("HTTP/1.1 200 OK\r\nLOCATION: http://192.168.1.1:1234/desc.xml\r\n\r\n"), true
	})
	mock.OnHTTPGet("http://192.168.1.1:1234/desc.xml", []byte(`<root><device><serviceList><service><serviceType>WANIPConnection</serviceType><controlURL>/ctl</controlURL></service></serviceList></device></root>`), nil)
	mock.OnHTTPPost("http://192.168.1.1:1234/ctl", 500,
		[]byte(`<errorDescription>ConflictInMappingEntry</errorDescription>`), nil)

	c := newTestController(mock, clock.NewMock())
	snap := c.ProbeProtocolSupport(context.Background())

	require.NotNil(t, snap.NatPmp)
	assert.False(t, *snap.NatPmp)
	require.NotNil(t, snap.Upnp)
	assert.True(t, *snap.Upnp)
	assert.Equal(t, "http://192.168.1.1:1234/ctl", c.GetUpnpControlURL())
}

const ssdpMulticastAddr = "239.255.255.250"
