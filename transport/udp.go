package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/go-portmap/portmap/internal/plog"
)

var udpLog = plog.New("transport/udp")

// Net is the default Transport, backed by real UDP sockets and
// net/http. It is safe for concurrent use: every UDPBind call owns an
// independent socket and read loop.
type Net struct {
	client *httpClient
}

// NewNet returns the default net-backed Transport.
func NewNet() *Net {
	return &Net{client: newHTTPClient()}
}

func (n *Net) UDPBind(ctx context.Context, localIP string, port int) (Socket, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(localIP), Port: port}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: udp bind %s:%d: %w", localIP, port, err)
	}

	s := &udpSocket{conn: conn}
	go s.readLoop()
	return s, nil
}

type udpSocket struct {
	conn     *net.UDPConn
	mu       sync.Mutex
	callback func(peerIP string, peerPort int, data []byte)
	closed   bool
}

func (s *udpSocket) SendTo(data []byte, peerIP string, peerPort int) error {
	_, err := s.conn.WriteToUDP(data, &net.UDPAddr{IP: net.ParseIP(peerIP), Port: peerPort})
	return err
}

func (s *udpSocket) OnData(callback func(peerIP string, peerPort int, data []byte)) {
	s.mu.Lock()
	s.callback = callback
	s.mu.Unlock()
}

func (s *udpSocket) LocalPort() int {
	if addr, ok := s.conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.Port
	}
	return 0
}

func (s *udpSocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close()
}

func (s *udpSocket) readLoop() {
	buf := make([]byte, 1500)
	for {
		n, peer, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return // socket closed or fatal error; race runner already moved on
		}
		s.mu.Lock()
		cb := s.callback
		s.mu.Unlock()
		if cb != nil {
			data := make([]byte, n)
			copy(data, buf[:n])
			cb(peer.IP.String(), peer.Port, data)
		}
	}
}
