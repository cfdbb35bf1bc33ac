package pcp

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-portmap/portmap/transport"
)

func pcpReply(resultCode uint8, lifetime uint32, externalPort uint16, externalIP [4]byte, nonce Nonce) []byte {
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

func TestAdd_S2_GrantedShorterLifetime(t *testing.T) {
	mock := transport.NewMock()
	nonce := Nonce{1, 2, 3}
	mock.OnUDP("192.168.1.1", Port, func(data []byte, ip string, port int) ([]byte, bool) {
		return pcpReply(0, 3600, 50000, [4]byte{203, 0, 113, 7}, nonce), true
	})

	e := New(mock, 2*time.Second)
	res := e.Add(context.Background(), []string{"192.168.1.50"}, []string{"192.168.1.1"}, nil, 4000, 0, 7200, nonce)

	require.True(t, res.Success)
	assert.Equal(t, uint16(50000), res.ExternalPort)
	assert.Equal(t, uint32(3600), res.ActualLifetime)
	assert.Equal(t, "203.0.113.7", res.ExternalIP)
	assert.Equal(t, "192.168.1.50", res.InternalIP)
	assert.Equal(t, nonce, res.Nonce)
}

func TestAdd_NoLocalMatchFails(t *testing.T) {
	mock := transport.NewMock()
	e := New(mock, 50*time.Millisecond)
	res := e.Add(context.Background(), nil, []string{"192.168.1.1"}, nil, 4000, 0, 7200, Nonce{})
	assert.False(t, res.Success)
}

func TestDelete_S6_NoResourcesTreatedAsSuccess(t *testing.T) {
	mock := transport.NewMock()
	nonce := Nonce{0xA, 0xB, 0xC}
	mock.OnUDP("192.168.1.1", Port, func(data []byte, ip string, port int) ([]byte, bool) {
		return pcpReply(8, 0, 0, [4]byte{}, nonce), true
	})

	e := New(mock, 2*time.Second)
	res := e.Delete(context.Background(), []string{"192.168.1.50"}, []string{"192.168.1.1"}, nil, 4000, nonce)
	assert.True(t, res.Success)
}

func TestDelete_OtherErrorIsNotSuccess(t *testing.T) {
	mock := transport.NewMock()
	nonce := Nonce{1, 1, 1}
	mock.OnUDP("192.168.1.1", Port, func(data []byte, ip string, port int) ([]byte, bool) {
		return pcpReply(3, 0, 0, [4]byte{}, nonce), true // NETWORK_FAILURE
	})

	e := New(mock, 2*time.Second)
	res := e.Delete(context.Background(), []string{"192.168.1.50"}, []string{"192.168.1.1"}, nil, 4000, nonce)
	assert.False(t, res.Success)
}
