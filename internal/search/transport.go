package search

import (
	"fmt"
	"net"

	"overlaysearch/internal/wire"
)

// socket is the Search Layer's own UDP listener, separate from CDE's
// application-port socket: posting-list transfer is SL's concern, not
// CDE's, and runs its own wire protocol (internal/wire/sl.go).
type socket struct {
	conn *net.UDPConn
	port int
}

func newSocket(bindHost string, port int) (*socket, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(bindHost), Port: port}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("search socket listen: %w", err)
	}
	return &socket{conn: conn, port: port}, nil
}

func (s *socket) send(ip string, frame wire.SLFrame) error {
	addr := &net.UDPAddr{IP: net.ParseIP(ip), Port: s.port}
	_, err := s.conn.WriteToUDP(frame.Encode(), addr)
	return err
}

func (s *socket) close() error {
	return s.conn.Close()
}
