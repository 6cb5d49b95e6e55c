package lse

import (
	"fmt"
	"net"

	"overlaysearch/internal/wire"
)

// socket is one UDP listener bound to a single interface address. LSE opens
// one per configured interface (or a single wildcard socket when none are
// configured) so that split-horizon forwarding can be keyed off the real
// interface of arrival rather than a single shared listener.
type socket struct {
	conn    *net.UDPConn
	ifaceIP string
	port    int
}

func newSocket(bindIP string, port int) (*socket, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(bindIP), Port: port}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("lsr socket listen on %s: %w", bindIP, err)
	}
	return &socket{conn: conn, ifaceIP: bindIP, port: port}, nil
}

func (s *socket) send(destIP string, frame wire.LSRFrame) error {
	addr := &net.UDPAddr{IP: net.ParseIP(destIP), Port: s.port}
	_, err := s.conn.WriteToUDP(frame.Encode(), addr)
	return err
}

func (s *socket) close() error {
	return s.conn.Close()
}
