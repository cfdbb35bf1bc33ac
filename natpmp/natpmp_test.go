package natpmp

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-portmap/portmap/transport"
)

func natpmpReply(resultCode uint16, externalPort uint16, lifetime uint32) []byte {
	buf := make([]byte, 16)
	buf[1] = 0x81
	binary.BigEndian.PutUint16(buf[2:4], resultCode)
	binary.BigEndian.PutUint16(buf[10:12], externalPort)
	binary.BigEndian.PutUint32(buf[12:16], lifetime)
	return buf
}

func TestAdd_S1_FirstWaveSuccess(t *testing.T) {
	mock := transport.NewMock()
	mock.OnUDP("192.168.1.1", Port, func(data []byte, ip string, port int) ([]byte, bool) {
		return natpmpReply(0, 50000, 120), true
	})

	e := New(mock, 2*time.Second)
	res := e.Add(context.Background(), []string{"192.168.1.50"}, []string{"192.168.1.1"}, nil, 4000, 0, 120)

	require.True(t, res.Success)
	assert.Equal(t, uint16(50000), res.ExternalPort)
	assert.Equal(t, uint32(120), res.ActualLifetime)
	assert.Equal(t, "192.168.1.50", res.InternalIP)
	assert.Equal(t, "192.168.1.1", res.RouterIP)
}

func TestAdd_FallsBackToSecondWave(t *testing.T) {
	mock := transport.NewMock()
	// first wave (cache+filtered candidates) has no responder registered.
	mock.OnUDP("10.0.0.1", Port, func(data []byte, ip string, port int) ([]byte, bool) {
		return natpmpReply(0, 4000, 3600), true
	})

	e := New(mock, 200*time.Millisecond)
	res := e.Add(context.Background(), []string{"192.168.1.50"}, nil, []string{"10.0.0.1"}, 4000, 0, 3600)

	require.True(t, res.Success)
	assert.Equal(t, "10.0.0.1", res.RouterIP)
}

func TestAdd_AllWavesTimeOut(t *testing.T) {
	mock := transport.NewMock() // no responders registered anywhere
	e := New(mock, 50*time.Millisecond)

	res := e.Add(context.Background(), []string{"192.168.1.50"}, []string{"192.168.1.1"}, nil, 4000, 0, 120)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.ErrInfo)
}

func TestAdd_NonZeroResultCodeIsNotSuccess(t *testing.T) {
	mock := transport.NewMock()
	mock.OnUDP("192.168.1.1", Port, func(data []byte, ip string, port int) ([]byte, bool) {
		return natpmpReply(3, 0, 0), true // NetworkFailure
	})

	e := New(mock, 100*time.Millisecond)
	res := e.Add(context.Background(), []string{"192.168.1.50"}, []string{"192.168.1.1"}, nil, 4000, 0, 120)
	assert.False(t, res.Success)
}

func TestDelete_SuccessOnResultZero(t *testing.T) {
	mock := transport.NewMock()
	mock.OnUDP("192.168.1.1", Port, func(data []byte, ip string, port int) ([]byte, bool) {
		return natpmpReply(0, 0, 0), true
	})

	e := New(mock, 2*time.Second)
	res := e.Delete(context.Background(), []string{"192.168.1.50"}, []string{"192.168.1.1"}, nil, 4000)
	assert.True(t, res.Success)
}
