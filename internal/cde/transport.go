package cde

import (
	"fmt"
	"net"

	"overlaysearch/internal/wire"
)

// socket wraps the engine's single UDP connection. All Chord peers listen
// on the same configured application port, so a wire.AddrPayload or similar
// "just an IP" field is always paired with this fixed port to form a
// dialable address.
type socket struct {
	conn *net.UDPConn
	port int
}

func newSocket(bindHost string, port int) (*socket, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(bindHost), Port: port}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("chord socket listen: %w", err)
	}
	return &socket{conn: conn, port: port}, nil
}

func (s *socket) send(ip string, frame wire.ChordFrame) error {
	addr := &net.UDPAddr{IP: net.ParseIP(ip), Port: s.port}
	_, err := s.conn.WriteToUDP(frame.Encode(), addr)
	return err
}

func (s *socket) close() error {
	return s.conn.Close()
}
